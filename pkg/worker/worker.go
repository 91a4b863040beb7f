package worker

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/cuemby/relayd/pkg/events"
	"github.com/cuemby/relayd/pkg/httpproto"
	"github.com/cuemby/relayd/pkg/log"
	"github.com/cuemby/relayd/pkg/metrics"
	"github.com/cuemby/relayd/pkg/store"
	"github.com/cuemby/relayd/pkg/types"
)

// errFatal marks a cycle error as spec.md §4.3's Fatal state: the
// worker goroutine exits and the Monitor respawns its slot.
var errFatal = errors.New("worker: fatal")

// readBufSize is the maximum request prelude spec.md §4.3/§6 define.
const readBufSize = 1024

// Worker runs one slot's dispatch cycle in a loop, per spec.md §4.3.
type Worker struct {
	Slot       int
	Generation uint64

	toWorker   <-chan *types.Connection
	fromWorker chan<- *types.Connection
	dead       chan<- int

	docRoot string
	store   store.Store
	reload  *ReloadManager
	broker  *events.Broker

	log zerolog.Logger
}

// Config bundles the shared, slot-independent settings a Monitor hands
// to every worker it spawns.
type Config struct {
	DocRoot  string
	Artifact string
	Store    store.Store
	Broker   *events.Broker
}

// New constructs a Worker for one slot. toWorker/fromWorker are that
// slot's private channels; dead is the shared channel the Monitor
// selects dead-slot notifications on.
func New(slot int, generation uint64, toWorker <-chan *types.Connection, fromWorker chan<- *types.Connection, dead chan<- int, cfg Config) *Worker {
	return &Worker{
		Slot:       slot,
		Generation: generation,
		toWorker:   toWorker,
		fromWorker: fromWorker,
		dead:       dead,
		docRoot:    cfg.DocRoot,
		store:      cfg.Store,
		reload:     NewReloadManager(slot, cfg.Artifact),
		broker:     cfg.Broker,
		log:        log.WithWorker(slot, generation),
	}
}

// Run is the worker's event loop. It always closes fromWorker on exit
// so the Monitor's per-slot fan-in goroutine terminates, whether the
// exit is a clean ctx cancellation or a Fatal/panic needing respawn.
func (w *Worker) Run(ctx context.Context) {
	defer close(w.fromWorker)
	defer func() {
		if r := recover(); r != nil {
			w.log.Error().Interface("panic", r).Msg("worker panicked")
			w.notifyDead(ctx)
		}
	}()

	w.reload.StartObserving(ctx)
	metrics.WorkerState.WithLabelValues(strconv.Itoa(w.Slot)).Set(1)
	metrics.WorkerGeneration.WithLabelValues(strconv.Itoa(w.Slot)).Set(float64(w.Generation))

	for {
		select {
		case <-ctx.Done():
			return
		case conn, ok := <-w.toWorker:
			if !ok {
				return
			}
			if err := w.cycle(ctx, conn); err != nil {
				w.log.Error().Err(err).Msg("cycle ended fatally")
				conn.Conn.Close()
				w.notifyDead(ctx)
				return
			}
		}
	}
}

func (w *Worker) notifyDead(ctx context.Context) {
	select {
	case w.dead <- w.Slot:
	case <-ctx.Done():
	}
}

// cycle runs one dispatch cycle: Loading, Reading, Validating,
// Dispatching, Emitting, Return, exactly as spec.md §4.3 states. It
// always returns the connection to the Monitor unless it returns a
// Fatal error, in which case the caller closes the socket itself.
func (w *Worker) cycle(ctx context.Context, conn *types.Connection) error {
	timer := metrics.NewTimer()
	slotLabel := strconv.Itoa(w.Slot)
	defer timer.ObserveDurationVec(metrics.RequestDuration, slotLabel)

	// Loading
	if err := w.reload.MaybeReload(); err != nil {
		return fmt.Errorf("%w: %v", errFatal, err)
	}
	hs := w.reload.Current()

	// Reading
	buf := make([]byte, readBufSize)
	n, err := conn.Conn.Read(buf)
	if err != nil {
		w.log.Debug().Err(err).Msg("transient read error")
		w.returnConn(ctx, conn)
		return nil
	}
	raw := buf[:n]

	// Validating
	req, err := hs.ValidateRequest(raw)
	if err != nil {
		w.log.Warn().Err(err).Msg("malformed request")
		if werr := httpproto.Serve400(conn.Conn, w.docRoot); werr != nil {
			w.log.Debug().Err(werr).Msg("failed writing 400 response")
		}
		metrics.RequestsTotal.WithLabelValues("UNKNOWN", "400").Inc()
		w.returnConn(ctx, conn)
		return nil
	}

	// Dispatching
	status := w.dispatch(conn, hs, req)
	metrics.RequestsTotal.WithLabelValues(string(req.Method), status).Inc()
	w.returnConn(ctx, conn)
	return nil
}

func (w *Worker) dispatch(conn *types.Connection, hs HandlerSet, req *types.Request) (status string) {
	switch req.Method {
	case types.MethodPOST:
		w.handlePost(hs, req)
		return "-"
	case types.MethodHEAD:
		if err := hs.HandleRequest(conn.Conn, w.docRoot, req, true); err != nil {
			w.log.Debug().Err(err).Msg("failed writing HEAD response")
			return "error"
		}
		return "200"
	case types.MethodGET:
		if err := hs.HandleRequest(conn.Conn, w.docRoot, req, false); err != nil {
			w.log.Debug().Err(err).Msg("failed writing GET response")
			return "error"
		}
		return "200"
	default:
		if err := httpproto.Serve405(conn.Conn); err != nil {
			w.log.Debug().Err(err).Msg("failed writing 405 response")
		}
		return "405"
	}
}

// handlePost implements spec.md §4.5: extract the body, and if present,
// persist it through the store's two-step counter transaction.
func (w *Worker) handlePost(hs HandlerSet, req *types.Request) {
	body, ok := hs.HandlePost(req.Raw)
	if !ok {
		w.log.Debug().Msg("no POST data")
		return
	}

	key, err := w.store.Put(body)
	if err != nil {
		w.log.Error().Err(err).Msg("failed to persist POST body")
		return
	}

	metrics.StoreWritesTotal.Inc()
	if w.broker != nil {
		w.broker.Publish(&events.Event{
			Type:    events.EventPostCommitted,
			Message: key,
		})
	}
}

func (w *Worker) returnConn(ctx context.Context, conn *types.Connection) {
	select {
	case w.fromWorker <- conn:
	case <-ctx.Done():
		// Only a shutdown in progress excuses dropping the connection
		// here: spec.md §9 normatively requires every connection to
		// make it back to the Acceptor, so this never races a merely
		// slow-but-alive fan-in goroutine the way a bare select/default
		// would.
		conn.Conn.Close()
	}
}
