// Package dispatch implements the connection-dispatch core of spec.md
// §4.1/§4.2: the Acceptor that owns the listening endpoint and the
// Monitor that fans accepted connections out to a worker pool and back.
// Per SPEC_FULL §2, the fd-passing control channels of the original
// process-per-role design collapse to typed Go channels carrying
// *types.Connection, since acceptor/monitor/workers are goroutines in
// one process rather than separate OS processes.
package dispatch
