// Package metrics registers relayd's Prometheus metrics (connection
// counts, worker slot liveness, request/response counts, store writes,
// handler reload outcomes) and exposes them over HTTP alongside
// /health, /ready and /live, in the style of a small sidecar: each
// dispatch-core component updates the package vars directly rather than
// being polled by a collector.
package metrics
