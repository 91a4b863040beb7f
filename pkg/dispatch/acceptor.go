package dispatch

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cuemby/relayd/pkg/events"
	"github.com/cuemby/relayd/pkg/log"
	"github.com/cuemby/relayd/pkg/metrics"
	"github.com/cuemby/relayd/pkg/types"
)

// Acceptor owns the listening TCP endpoint, per spec.md §4.1. It
// multiplexes "new client arrived" against "descriptor returned from
// Monitor" using two goroutines instead of one readiness primitive — the
// Go analogue SPEC_FULL §4.1 calls for, since net.Listener.Accept has no
// non-blocking peer to select alongside a channel receive.
type Acceptor struct {
	port        int
	toMonitor   chan<- *types.Connection
	fromMonitor <-chan *types.Connection
	broker      *events.Broker

	mu       sync.Mutex
	registry map[uint64]bool // seq -> parked-with-monitor
	seq      uint64

	log zerolog.Logger
}

// NewAcceptor constructs an Acceptor bound to port, with toMonitor/
// fromMonitor as its half of the acceptor<->monitor control channel pair.
func NewAcceptor(port int, toMonitor chan<- *types.Connection, fromMonitor <-chan *types.Connection, broker *events.Broker) *Acceptor {
	return &Acceptor{
		port:        port,
		toMonitor:   toMonitor,
		fromMonitor: fromMonitor,
		broker:      broker,
		registry:    make(map[uint64]bool),
		log:         log.WithComponent("acceptor"),
	}
}

// Run implements spec.md §4.1's start(): it idempotently creates the
// listening endpoint, blocks until ctx is cancelled (the exit_flag of
// spec.md §5), then closes the listener. Parked connections still held by
// the Monitor at shutdown are not force-closed — a documented limitation
// spec.md §4.1 itself calls out ("any parked descriptors are leaked to
// the kernel's cleanup").
func (a *Acceptor) Run(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", fmt.Sprintf(":%d", a.port))
	if err != nil {
		metrics.SetAcceptorUp(false, err.Error())
		return fmt.Errorf("dispatch: listen on port %d: %w", a.port, err)
	}
	a.log.Info().Int("port", a.port).Msg("acceptor listening")
	metrics.SetAcceptorUp(true, "")

	var wg sync.WaitGroup
	wg.Add(2)
	go a.acceptLoop(ctx, ln, &wg)
	go a.returnLoop(ctx, &wg)

	<-ctx.Done()
	ln.Close()
	wg.Wait()
	metrics.SetAcceptorUp(false, "shut down")
	a.log.Info().Msg("acceptor shut down")
	return nil
}

// acceptLoop is the "new client arrived on listen socket" half: Accept()
// blocks the goroutine, but ln.Close() on shutdown makes it return an
// error promptly. The loop exits on that error once ctx is done, or when
// ctx is done while it waits to hand a connection to the Monitor.
func (a *Acceptor) acceptLoop(ctx context.Context, ln net.Listener, wg *sync.WaitGroup) {
	defer wg.Done()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				a.log.Warn().Err(err).Msg("accept failed, retrying")
				continue
			}
		}

		seq := atomic.AddUint64(&a.seq, 1)
		c := &types.Connection{
			ID:       uuid.New(),
			Conn:     conn,
			Peer:     conn.RemoteAddr(),
			Seq:      seq,
			Accepted: time.Now(),
		}

		a.mu.Lock()
		a.registry[seq] = true
		a.mu.Unlock()

		metrics.ConnectionsAccepted.Inc()
		a.publish(events.EventConnectionAccepted, c)

		select {
		case a.toMonitor <- c:
		case <-ctx.Done():
			conn.Close()
			return
		}
	}
}

// returnLoop is the "descriptor returned from Monitor" half: every
// connection a worker finished with comes back here to be closed and
// removed from the registry. A negative/nil connection is logged and
// ignored, matching spec.md §4.1's handling of malformed returns.
func (a *Acceptor) returnLoop(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case c, ok := <-a.fromMonitor:
			if !ok {
				return
			}
			if c == nil {
				a.log.Warn().Msg("ignoring nil connection returned from monitor")
				continue
			}

			a.mu.Lock()
			delete(a.registry, c.Seq)
			a.mu.Unlock()

			c.Conn.Close()
		}
	}
}

func (a *Acceptor) publish(t events.EventType, c *types.Connection) {
	if a.broker == nil {
		return
	}
	a.broker.Publish(&events.Event{
		Type:    t,
		Message: c.ID.String(),
		Metadata: map[string]string{
			"peer": c.Peer.String(),
			"seq":  fmt.Sprintf("%d", c.Seq),
		},
	})
}

// Parked reports how many connections the registry currently believes
// are held by the Monitor or a worker, for operational visibility.
func (a *Acceptor) Parked() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.registry)
}
