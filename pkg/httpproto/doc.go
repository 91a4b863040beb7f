// Package httpproto implements the request-handling entry points a
// worker's dispatch cycle calls through a HandlerSet: parsing and
// validating the first request-line-and-headers read off a socket,
// resolving a target to a file under a document root, and writing the
// HTTP/1.0 response back. It is deliberately independent of pkg/worker
// so both the built-in HandlerSet and a plugin built against this
// package can share it.
package httpproto
