package types

import (
	"net"
	"time"

	"github.com/google/uuid"
)

// Connection is a single accepted client socket as it moves between
// roles: created by the Acceptor, handed to the Monitor, assigned to
// exactly one Worker, and finally returned to the Acceptor for closure.
// At any instant exactly one role holds a Connection.
type Connection struct {
	ID       uuid.UUID
	Conn     net.Conn
	Peer     net.Addr
	Seq      uint64    // arrival order, assigned by the Acceptor
	Accepted time.Time
}

// Liveness is the state of a worker slot as tracked by the Monitor.
type Liveness int

const (
	// LivenessAlive means the slot's worker goroutine is running and its
	// channels are live.
	LivenessAlive Liveness = iota
	// LivenessRespawning means the slot's worker died and the Monitor is
	// in the process of recreating its channels and launching a
	// replacement.
	LivenessRespawning
)

func (l Liveness) String() string {
	switch l {
	case LivenessAlive:
		return "alive"
	case LivenessRespawning:
		return "respawning"
	default:
		return "unknown"
	}
}

// WorkerSlot is index i in [0, N) of the worker pool. It is created once
// at startup and never destroyed; only its channels, Generation and
// State are mutated, and only by the Monitor, on respawn.
type WorkerSlot struct {
	Index      int
	Generation uint64
	ToWorker   chan *Connection
	FromWorker chan *Connection
	State      Liveness
}

// Method is an HTTP request method token. Validity against the closed
// set in spec.md §3 is checked by httpproto, not by this type.
type Method string

const (
	MethodGET     Method = "GET"
	MethodHEAD    Method = "HEAD"
	MethodPOST    Method = "POST"
	MethodPUT     Method = "PUT"
	MethodDELETE  Method = "DELETE"
	MethodCONNECT Method = "CONNECT"
	MethodOPTIONS Method = "OPTIONS"
	MethodTRACE   Method = "TRACE"
	MethodPATCH   Method = "PATCH"
)

// Dispatchable reports whether a method is one the worker's Dispatching
// state actually routes to a handler (GET, HEAD, POST); the remaining
// methods in the closed set are valid tokens but only ever produce a 405.
func (m Method) Dispatchable() bool {
	switch m {
	case MethodGET, MethodHEAD, MethodPOST:
		return true
	default:
		return false
	}
}

// Request is parsed from the first <=1024 bytes of the client stream.
// It is constructed per read and discarded after the response is sent.
type Request struct {
	Method   Method
	Target   string
	Protocol string
	IsImage  bool
	Raw      []byte
}
