// Package worker runs the per-slot dispatch cycle: receive a connection
// from the Monitor, reload the handler artifact if it changed, read and
// validate the request, dispatch to the handler, write the response,
// and return the connection. A Worker closes the client socket itself
// only when a cycle ends fatally or a shutdown is in progress; every
// other connection, including one whose read failed, goes back to the
// Monitor and the Acceptor closes it.
package worker
