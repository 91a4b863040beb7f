package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ConnectionsAccepted counts sockets accepted by the Acceptor.
	ConnectionsAccepted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "relayd_connections_accepted_total",
			Help: "Total number of client connections accepted",
		},
	)

	// ConnectionsDispatched counts connections the Monitor handed to a
	// worker slot, labeled by the slot index.
	ConnectionsDispatched = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relayd_connections_dispatched_total",
			Help: "Total number of connections dispatched to a worker slot",
		},
		[]string{"slot"},
	)

	// ConnectionsReturned counts connections a worker handed back to the
	// Monitor after serving them; the Acceptor closes the client socket.
	ConnectionsReturned = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relayd_connections_returned_total",
			Help: "Total number of connections returned by a worker slot",
		},
		[]string{"slot"},
	)

	// WorkerState is 1 for an alive slot, 0 while it is respawning.
	WorkerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "relayd_worker_state",
			Help: "Worker slot liveness (1 = alive, 0 = respawning)",
		},
		[]string{"slot"},
	)

	// WorkerGeneration is the respawn generation currently occupying a
	// slot; it only ever increases.
	WorkerGeneration = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "relayd_worker_generation",
			Help: "Current respawn generation of a worker slot",
		},
		[]string{"slot"},
	)

	// WorkerRespawnsTotal counts Monitor-initiated worker restarts.
	WorkerRespawnsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relayd_worker_respawns_total",
			Help: "Total number of worker respawns",
		},
		[]string{"slot"},
	)

	// RequestsTotal counts completed requests by method and the status
	// line sent back to the client.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relayd_requests_total",
			Help: "Total number of requests handled, by method and response status",
		},
		[]string{"method", "status"},
	)

	// RequestDuration measures the wall time of one worker cycle, from the
	// worker receiving the connection to handing it back, labeled by slot.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "relayd_request_duration_seconds",
			Help:    "Time to handle one request, from dispatch to response sent",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"slot"},
	)

	// StoreWritesTotal counts successful POST persistence writes.
	StoreWritesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "relayd_store_writes_total",
			Help: "Total number of POST bodies persisted to the request log store",
		},
	)

	// HandlerReloadsTotal counts handler artifact reload attempts, labeled
	// by outcome ("ok" or "error"); a cycle whose artifact is missing or
	// unchanged is not counted.
	HandlerReloadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relayd_handler_reloads_total",
			Help: "Total number of handler artifact reload attempts by outcome",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(
		ConnectionsAccepted,
		ConnectionsDispatched,
		ConnectionsReturned,
		WorkerState,
		WorkerGeneration,
		WorkerRespawnsTotal,
		RequestsTotal,
		RequestDuration,
		StoreWritesTotal,
		HandlerReloadsTotal,
	)
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a small helper for timing a request cycle and recording it
// to a histogram on completion.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed time to histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the elapsed time to a labeled histogram.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
