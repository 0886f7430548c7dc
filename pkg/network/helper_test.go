package network

import (
	"context"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/nspcc-dev/dsocket/pkg/network/action"
	"github.com/nspcc-dev/dsocket/pkg/network/endpoint"
	"github.com/nspcc-dev/dsocket/pkg/network/frame"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const (
	waitTime = 5 * time.Second
	tick     = 5 * time.Millisecond
)

// recorder is a listener remembering all events.
type recorder struct {
	action.Adapter

	lock    sync.Mutex
	events  []action.Event
	threads []error
}

func (r *recorder) add(a action.Action, info endpoint.Info, arg any) {
	r.lock.Lock()
	r.events = append(r.events, action.Event{Action: a, Info: info, Arg: arg})
	r.lock.Unlock()
}

func (r *recorder) OnConnectionSuccess(info endpoint.Info) {
	r.add(action.ConnectionSuccess, info, nil)
}

func (r *recorder) OnConnectionFailed(info endpoint.Info, err error) {
	r.add(action.ConnectionFailed, info, err)
}

func (r *recorder) OnDisconnection(info endpoint.Info, err error) {
	r.add(action.Disconnection, info, err)
}

func (r *recorder) OnReadComplete(info endpoint.Info, p *frame.Packet) {
	r.add(action.ReadComplete, info, p)
}

func (r *recorder) OnWriteComplete(info endpoint.Info, s frame.Sendable) {
	r.add(action.WriteComplete, info, s)
}

func (r *recorder) OnIOThreadShutdown(_ action.Thread, err error) {
	r.lock.Lock()
	r.threads = append(r.threads, err)
	r.lock.Unlock()
}

func (r *recorder) OnPulse(info endpoint.Info, s frame.Sendable) {
	r.add(action.PulseRequest, info, s)
}

func (r *recorder) count(a action.Action) int {
	r.lock.Lock()
	defer r.lock.Unlock()
	var n int
	for _, ev := range r.events {
		if ev.Action == a {
			n++
		}
	}
	return n
}

func (r *recorder) last(a action.Action) action.Event {
	r.lock.Lock()
	defer r.lock.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].Action == a {
			return r.events[i]
		}
	}
	return action.Event{}
}

func (r *recorder) threadErrors() []error {
	r.lock.Lock()
	defer r.lock.Unlock()
	var res []error
	for _, err := range r.threads {
		if err != nil {
			res = append(res, err)
		}
	}
	return res
}

func (r *recorder) waitFor(t *testing.T, a action.Action, n int) {
	require.Eventually(t, func() bool { return r.count(a) >= n }, waitTime, tick,
		"waiting for %d %s events", n, a)
}

type echo struct {
	action.Adapter
	c *Client
}

func (e *echo) OnReadComplete(_ endpoint.Info, p *frame.Packet) {
	_ = e.c.Send(frame.Raw(p.Body))
}

// echoServer registers an echo listener on every client.
type echoServer struct {
	ServerAdapter
}

func (*echoServer) OnClientConnected(c *Client) {
	c.Register(&echo{c: c})
}

func newEchoServer(t *testing.T, opts ServerOptions) (*TCPServer, endpoint.Info) {
	opts.BindAddress = "127.0.0.1"
	s := NewTCPServer(0, opts, zaptest.NewLogger(t), nil)
	s.Register(&echoServer{})
	require.NoError(t, s.Listen())
	t.Cleanup(s.Shutdown)
	return s, endpoint.New("127.0.0.1", s.Port())
}

// newSilentServer accepts connections and reads everything never answering.
func newSilentServer(t *testing.T) endpoint.Info {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	go func() {
		for {
			conn, err := l.Accept()
			if err != nil {
				return
			}
			go func() {
				_, _ = io.Copy(io.Discard, conn)
				_ = conn.Close()
			}()
		}
	}()
	return endpoint.New("127.0.0.1", uint16(l.Addr().(*net.TCPAddr).Port))
}

// closedEndpoint returns an endpoint nobody listens on.
func closedEndpoint(t *testing.T) endpoint.Info {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := uint16(l.Addr().(*net.TCPAddr).Port)
	require.NoError(t, l.Close())
	return endpoint.New("127.0.0.1", port)
}

func testOptions() Options {
	o := DefaultOptions()
	o.Reconnect.Enabled = false
	o.ConnectTimeout = time.Second
	return o
}

func fastReconnect() ReconnectPolicy {
	return ReconnectPolicy{
		Enabled:      true,
		InitialDelay: 10 * time.Millisecond,
		MaxDelay:     50 * time.Millisecond,
		Multiplier:   2,
	}
}

func newTestManager(t *testing.T, info endpoint.Info, opts Options) (*Manager, *recorder) {
	m := NewManager(info, opts, zaptest.NewLogger(t), nil, nil)
	rec := &recorder{}
	m.Register(rec)
	t.Cleanup(func() {
		m.Close()
		m.Wait()
	})
	return m, rec
}

// blockingDialer never connects until the context is done.
type blockingDialer struct {
	called chan struct{}
}

func (d blockingDialer) DialContext(ctx context.Context, _, _ string) (net.Conn, error) {
	d.called <- struct{}{}
	<-ctx.Done()
	return nil, ctx.Err()
}
