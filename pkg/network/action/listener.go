package action

import (
	"github.com/nspcc-dev/dsocket/pkg/network/endpoint"
	"github.com/nspcc-dev/dsocket/pkg/network/frame"
)

// Listener receives lifecycle events of a connection. Listeners are compared
// by identity when registering, so they should be pointers (or other
// comparable values). Embed Adapter to implement only a subset of methods.
type Listener interface {
	OnConnectionSuccess(info endpoint.Info)
	OnConnectionFailed(info endpoint.Info, err error)
	OnDisconnection(info endpoint.Info, err error)
	OnReadComplete(info endpoint.Info, p *frame.Packet)
	OnWriteComplete(info endpoint.Info, s frame.Sendable)
	OnIOThreadStart(t Thread)
	OnIOThreadShutdown(t Thread, err error)
	OnPulse(info endpoint.Info, pulse frame.Sendable)
}

// Adapter is a no-op Listener.
type Adapter struct{}

// OnConnectionSuccess implements the Listener interface.
func (Adapter) OnConnectionSuccess(endpoint.Info) {}

// OnConnectionFailed implements the Listener interface.
func (Adapter) OnConnectionFailed(endpoint.Info, error) {}

// OnDisconnection implements the Listener interface.
func (Adapter) OnDisconnection(endpoint.Info, error) {}

// OnReadComplete implements the Listener interface.
func (Adapter) OnReadComplete(endpoint.Info, *frame.Packet) {}

// OnWriteComplete implements the Listener interface.
func (Adapter) OnWriteComplete(endpoint.Info, frame.Sendable) {}

// OnIOThreadStart implements the Listener interface.
func (Adapter) OnIOThreadStart(Thread) {}

// OnIOThreadShutdown implements the Listener interface.
func (Adapter) OnIOThreadShutdown(Thread, error) {}

// OnPulse implements the Listener interface.
func (Adapter) OnPulse(endpoint.Info, frame.Sendable) {}

// notify calls the listener method matching the event.
func notify(l Listener, ev Event) {
	switch ev.Action {
	case ConnectionSuccess:
		l.OnConnectionSuccess(ev.Info)
	case ConnectionFailed:
		l.OnConnectionFailed(ev.Info, ev.Err())
	case Disconnection:
		l.OnDisconnection(ev.Info, ev.Err())
	case ReadComplete:
		p, _ := ev.Arg.(*frame.Packet)
		l.OnReadComplete(ev.Info, p)
	case WriteComplete:
		s, _ := ev.Arg.(frame.Sendable)
		l.OnWriteComplete(ev.Info, s)
	case ReadThreadStart:
		l.OnIOThreadStart(ReadThread)
	case WriteThreadStart:
		l.OnIOThreadStart(WriteThread)
	case ReadThreadShutdown:
		l.OnIOThreadShutdown(ReadThread, ev.Err())
	case WriteThreadShutdown:
		l.OnIOThreadShutdown(WriteThread, ev.Err())
	case PulseRequest:
		s, _ := ev.Arg.(frame.Sendable)
		l.OnPulse(ev.Info, s)
	}
}
