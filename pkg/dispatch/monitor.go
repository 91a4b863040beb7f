package dispatch

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/relayd/pkg/events"
	"github.com/cuemby/relayd/pkg/log"
	"github.com/cuemby/relayd/pkg/metrics"
	"github.com/cuemby/relayd/pkg/types"
	"github.com/cuemby/relayd/pkg/worker"
)

const (
	// workerChanBuf decouples the Monitor's dispatch loop from a worker
	// that is mid-cycle, so a short burst doesn't immediately fall onto
	// the timeout path below.
	workerChanBuf = 4

	// dispatchSendTimeout bounds how long the Monitor will wait to hand a
	// connection to a slot before treating the worker as dead-mid-handoff
	// per spec.md §4.2. Go channels have no non-blocking "try send with
	// fallback to error" short of select+timeout, so this stands in for
	// the readiness-driven "send failed" the original gets for free from
	// a non-blocking domain socket write.
	dispatchSendTimeout = 2 * time.Second
)

// Monitor implements spec.md §4.2: fan-out from the acceptor channel to N
// worker slots round-robin, fan-in from every slot back to the acceptor,
// and non-blocking reap/respawn of dead workers. It runs as a single
// goroutine's select loop; dispatch and respawn therefore never race with
// each other, which is what lets respawn mutate slot state without a lock.
type Monitor struct {
	n            int
	slots        []*types.WorkerSlot
	fromAcceptor <-chan *types.Connection
	toAcceptor   chan<- *types.Connection
	dead         chan int
	next         int
	workerCfg    worker.Config
	broker       *events.Broker

	log zerolog.Logger
}

// NewMonitor constructs a Monitor with n pre-forked worker slots (spec.md
// §9's "normatively requires one-time pre-fork" — here, one-time
// goroutine spawn at Run, never per-connection).
func NewMonitor(n int, fromAcceptor <-chan *types.Connection, toAcceptor chan<- *types.Connection, workerCfg worker.Config, broker *events.Broker) *Monitor {
	slots := make([]*types.WorkerSlot, n)
	for i := range slots {
		slots[i] = &types.WorkerSlot{
			Index:      i,
			Generation: 1,
			ToWorker:   make(chan *types.Connection, workerChanBuf),
			FromWorker: make(chan *types.Connection, workerChanBuf),
			State:      types.LivenessAlive,
		}
	}

	return &Monitor{
		n:            n,
		slots:        slots,
		fromAcceptor: fromAcceptor,
		toAcceptor:   toAcceptor,
		dead:         make(chan int, n),
		workerCfg:    workerCfg,
		broker:       broker,
		log:          log.WithComponent("monitor"),
	}
}

// Run spawns every slot's worker goroutine and fan-in goroutine, then
// loops until ctx is cancelled, handling new connections, returned
// connections and dead-worker respawns as they arrive.
func (m *Monitor) Run(ctx context.Context) {
	var wg sync.WaitGroup

	for _, slot := range m.slots {
		m.spawnWorker(ctx, slot)
		wg.Add(1)
		go m.fanIn(ctx, slot.Index, slot.FromWorker, &wg)
	}
	m.reportSlots()

	m.log.Info().Int("workers", m.n).Msg("monitor started")

	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			m.log.Info().Msg("monitor shut down")
			return
		case c, ok := <-m.fromAcceptor:
			if !ok {
				wg.Wait()
				return
			}
			m.dispatch(ctx, c)
		case idx := <-m.dead:
			m.respawn(ctx, idx, &wg)
		}
	}
}

// dispatch sends c to the next worker slot in round-robin order and
// advances the rotation pointer, per spec.md §4.2 step 1. A send that
// cannot complete within dispatchSendTimeout is treated as a dead-worker
// handoff failure: logged and handed straight to the Acceptor instead of
// a worker, so the Acceptor's returnLoop still nulls the connection's
// registry slot and closes it — the same "always return to Monitor [or,
// here, the Acceptor]" accounting every other drop path in this daemon
// follows, so no registry entry is ever orphaned by a slow or dead slot.
func (m *Monitor) dispatch(ctx context.Context, c *types.Connection) {
	idx := m.next
	slot := m.slots[idx]
	m.next = (m.next + 1) % m.n

	select {
	case slot.ToWorker <- c:
		metrics.ConnectionsDispatched.WithLabelValues(strconv.Itoa(idx)).Inc()
		m.publish(events.EventConnectionDispatched, c, idx)
	case <-ctx.Done():
		m.returnUndispatched(ctx, c)
	case <-time.After(dispatchSendTimeout):
		m.log.Warn().Int("slot", idx).Str("conn", c.ID.String()).Msg("dispatch send timed out, returning connection undispatched")
		m.returnUndispatched(ctx, c)
	}
}

// returnUndispatched hands a connection that never reached a worker
// straight to the Acceptor. It is the dispatch-side mirror of fanIn: the
// only other path, besides a worker finishing a cycle, by which a
// connection reaches toAcceptor.
func (m *Monitor) returnUndispatched(ctx context.Context, c *types.Connection) {
	select {
	case m.toAcceptor <- c:
	case <-ctx.Done():
		c.Conn.Close()
	}
}

// fanIn receives connections a worker finished with and forwards them to
// the acceptor. It is parameterized over a specific fromWorker channel
// value (not the slot pointer) so a respawn that replaces slot.FromWorker
// mid-flight doesn't change what this already-running goroutine reads
// from; the old goroutine simply exits once its channel closes.
func (m *Monitor) fanIn(ctx context.Context, idx int, fromWorker <-chan *types.Connection, wg *sync.WaitGroup) {
	defer wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case c, ok := <-fromWorker:
			if !ok {
				return
			}
			metrics.ConnectionsReturned.WithLabelValues(strconv.Itoa(idx)).Inc()
			m.publish(events.EventConnectionReturned, c, idx)

			select {
			case m.toAcceptor <- c:
			case <-ctx.Done():
				c.Conn.Close()
				return
			}
		}
	}
}

// respawn implements spec.md §4.2 step 3: close both ends of the dead
// slot's channel pair, create a fresh pair, and launch a replacement
// worker goroutine. The rotation pointer (m.next) is untouched, matching
// the "respawned workers inherit the slot's dispatch position... the
// rotation pointer is not reset" invariant.
func (m *Monitor) respawn(ctx context.Context, idx int, wg *sync.WaitGroup) {
	slot := m.slots[idx]
	slot.State = types.LivenessRespawning
	metrics.WorkerState.WithLabelValues(strconv.Itoa(idx)).Set(0)
	metrics.WorkerRespawnsTotal.WithLabelValues(strconv.Itoa(idx)).Inc()
	m.reportSlots()

	// The dead worker's goroutine has already exited, so nothing still
	// reads slot.ToWorker, and dispatch runs on this same goroutine, so no
	// send to it is in progress; closing it here is safe.
	close(slot.ToWorker)

	slot.ToWorker = make(chan *types.Connection, workerChanBuf)
	slot.FromWorker = make(chan *types.Connection, workerChanBuf)
	slot.Generation++
	slot.State = types.LivenessAlive

	m.log.Warn().Int("slot", idx).Uint64("generation", slot.Generation).Msg("respawning dead worker")
	if m.broker != nil {
		m.broker.Publish(&events.Event{
			Type:    events.EventWorkerRespawned,
			Message: fmt.Sprintf("slot %d", idx),
			Metadata: map[string]string{
				"slot":       strconv.Itoa(idx),
				"generation": strconv.FormatUint(slot.Generation, 10),
			},
		})
	}

	metrics.WorkerState.WithLabelValues(strconv.Itoa(idx)).Set(1)
	metrics.WorkerGeneration.WithLabelValues(strconv.Itoa(idx)).Set(float64(slot.Generation))

	m.spawnWorker(ctx, slot)
	wg.Add(1)
	go m.fanIn(ctx, idx, slot.FromWorker, wg)

	m.reportSlots()
}

// reportSlots recomputes the pool's liveness and hands it to the metrics
// package so /health and /ready reflect the Monitor's actual slot states
// instead of a heartbeat the Monitor would otherwise have to remember to
// send on a timer.
func (m *Monitor) reportSlots() {
	alive := 0
	for _, s := range m.slots {
		if s.State == types.LivenessAlive {
			alive++
		}
	}
	metrics.SetSlotSnapshot(metrics.SlotSnapshot{Alive: alive, Total: len(m.slots)})
}

func (m *Monitor) spawnWorker(ctx context.Context, slot *types.WorkerSlot) {
	metrics.WorkerState.WithLabelValues(strconv.Itoa(slot.Index)).Set(1)
	metrics.WorkerGeneration.WithLabelValues(strconv.Itoa(slot.Index)).Set(float64(slot.Generation))
	w := worker.New(slot.Index, slot.Generation, slot.ToWorker, slot.FromWorker, m.dead, m.workerCfg)
	go w.Run(ctx)
}

func (m *Monitor) publish(t events.EventType, c *types.Connection, slot int) {
	if m.broker == nil {
		return
	}
	m.broker.Publish(&events.Event{
		Type:    t,
		Message: c.ID.String(),
		Metadata: map[string]string{
			"slot": strconv.Itoa(slot),
			"seq":  strconv.FormatUint(c.Seq, 10),
		},
	})
}

// Slots exposes a read-only snapshot of slot liveness/generation, for
// operational inspection (e.g. a future admin endpoint).
func (m *Monitor) Slots() []types.WorkerSlot {
	out := make([]types.WorkerSlot, len(m.slots))
	for i, s := range m.slots {
		out[i] = types.WorkerSlot{Index: s.Index, Generation: s.Generation, State: s.State}
	}
	return out
}
