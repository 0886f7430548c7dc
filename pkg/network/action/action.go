/*
Package action implements the event bus delivering connection lifecycle
events to application listeners. Every connection has its own Dispatcher,
events are delivered synchronously on the producing goroutine (inline mode),
via a shared Delivery goroutine (independent mode) or via an application
provided Executor.

Inline delivery doesn't hold the Dispatcher lock while listeners run, events
go to a snapshot of listeners taken when delivery starts. Listeners can
therefore register or unregister listeners from their callbacks, such changes
apply to the next event.
*/
package action

import (
	"github.com/nspcc-dev/dsocket/pkg/network/endpoint"
)

// Action is the type of a lifecycle event.
type Action uint8

// Lifecycle events produced by connections.
const (
	ConnectionSuccess Action = iota + 1
	ConnectionFailed
	Disconnection
	ReadComplete
	WriteComplete
	ReadThreadStart
	WriteThreadStart
	ReadThreadShutdown
	WriteThreadShutdown
	PulseRequest
)

var actionNames = map[Action]string{
	ConnectionSuccess:   "connection_success",
	ConnectionFailed:    "connection_failed",
	Disconnection:       "disconnection",
	ReadComplete:        "read_complete",
	WriteComplete:       "write_complete",
	ReadThreadStart:     "read_thread_start",
	WriteThreadStart:    "write_thread_start",
	ReadThreadShutdown:  "read_thread_shutdown",
	WriteThreadShutdown: "write_thread_shutdown",
	PulseRequest:        "pulse_request",
}

// String implements the fmt.Stringer interface.
func (a Action) String() string {
	if s, ok := actionNames[a]; ok {
		return s
	}
	return "unknown"
}

// Thread names an I/O loop of a connection.
type Thread uint8

// I/O loops.
const (
	ReadThread Thread = iota + 1
	WriteThread
)

// String implements the fmt.Stringer interface.
func (t Thread) String() string {
	switch t {
	case ReadThread:
		return "read"
	case WriteThread:
		return "write"
	default:
		return "unknown"
	}
}

// Event is a single lifecycle event. Info is the identity of the connection
// at the moment the event was produced, Arg depends on the Action:
//   - ConnectionFailed, Disconnection, ReadThreadShutdown, WriteThreadShutdown:
//     error (nil for clean shutdowns)
//   - ReadComplete: *frame.Packet
//   - WriteComplete, PulseRequest: frame.Sendable
type Event struct {
	Action Action
	Arg    any
	Info   endpoint.Info

	target *Dispatcher
}

// Err returns the error carried by the event if any.
func (e Event) Err() error {
	err, _ := e.Arg.(error)
	return err
}
