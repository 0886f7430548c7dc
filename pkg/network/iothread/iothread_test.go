package iothread

import (
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/nspcc-dev/dsocket/pkg/network/action"
	"github.com/nspcc-dev/dsocket/pkg/network/bqueue"
	"github.com/nspcc-dev/dsocket/pkg/network/frame"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type event struct {
	a   action.Action
	arg any
}

type recorder struct {
	lock   sync.Mutex
	events []event
	ch     chan event
}

func newRecorder() *recorder {
	return &recorder{ch: make(chan event, 100)}
}

func (r *recorder) Broadcast(a action.Action, arg any) {
	r.lock.Lock()
	r.events = append(r.events, event{a, arg})
	r.lock.Unlock()
	r.ch <- event{a, arg}
}

func (r *recorder) wait(t *testing.T, a action.Action) event {
	for {
		select {
		case ev := <-r.ch:
			if ev.a == a {
				return ev
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("no %s event", a)
		}
	}
}

func (r *recorder) count(a action.Action) int {
	r.lock.Lock()
	defer r.lock.Unlock()
	var n int
	for _, ev := range r.events {
		if ev.a == a {
			n++
		}
	}
	return n
}

func TestLoopShutdownBeforeStart(t *testing.T) {
	var finished bool
	l := newLoop("test", zaptest.NewLogger(t), func() {}, func() error { return nil }, func(error) { finished = true })
	l.Shutdown(ErrManualDisconnect)
	l.Shutdown(errors.New("second"))
	require.True(t, l.IsShutdown())
	l.Start()
	l.Wait()
	require.False(t, finished)
}

func TestLoopFirstCauseWins(t *testing.T) {
	var (
		causeCh = make(chan error, 1)
		release = make(chan struct{})
	)
	l := newLoop("test", zaptest.NewLogger(t), func() {}, func() error {
		<-release
		return errors.New("step failure")
	}, func(err error) { causeCh <- err })
	l.Start()
	l.Start()
	l.Shutdown(ErrManualDisconnect)
	close(release)
	l.Wait()
	require.ErrorIs(t, <-causeCh, ErrManualDisconnect)
}

func TestReaderDecodes(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	rec := newRecorder()
	r := NewReader(server, frame.NewCodec(0), rec, zaptest.NewLogger(t))
	r.Start()
	rec.wait(t, action.ReadThreadStart)

	codec := frame.NewCodec(0)
	for _, msg := range []string{"one", "two"} {
		data, err := codec.Encode(frame.Text(msg))
		require.NoError(t, err)
		_, err = client.Write(data)
		require.NoError(t, err)
		ev := rec.wait(t, action.ReadComplete)
		require.Equal(t, []byte(msg), ev.arg.(*frame.Packet).Body)
	}

	r.Shutdown(ErrManualDisconnect)
	require.NoError(t, server.Close())
	r.Wait()
	ev := rec.wait(t, action.ReadThreadShutdown)
	require.Nil(t, ev.arg)
}

func TestReaderRemoteClose(t *testing.T) {
	client, server := net.Pipe()
	rec := newRecorder()
	r := NewReader(server, frame.NewCodec(0), rec, zaptest.NewLogger(t))
	r.Start()
	require.NoError(t, client.Close())
	r.Wait()
	ev := rec.wait(t, action.ReadThreadShutdown)
	require.ErrorIs(t, ev.arg.(error), io.EOF)
}

func TestReaderOversizedFrame(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()
	rec := newRecorder()
	r := NewReader(server, frame.NewCodec(8), rec, zaptest.NewLogger(t))
	r.Start()
	go func() { _, _ = client.Write([]byte{0, 0, 1, 0}) }()
	r.Wait()
	ev := rec.wait(t, action.ReadThreadShutdown)
	require.ErrorIs(t, ev.arg.(error), frame.ErrFrameTooLarge)
	require.Equal(t, 0, rec.count(action.ReadComplete))
}

func TestWriterSends(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	rec := newRecorder()
	codec := frame.NewCodec(0)
	w := NewWriter(server, codec, func() time.Duration { return time.Second }, rec, zaptest.NewLogger(t), nil)
	require.NoError(t, w.Offer(frame.Text("hello")))
	prep, err := codec.Prepare(frame.Raw{1, 2, 3})
	require.NoError(t, err)
	require.NoError(t, w.Offer(prep))
	w.Start()

	for _, want := range [][]byte{[]byte("hello"), {1, 2, 3}} {
		p, err := codec.Decode(client)
		require.NoError(t, err)
		require.Equal(t, want, p.Body)
		rec.wait(t, action.WriteComplete)
	}

	w.Shutdown(ErrManualDisconnect)
	w.Shutdown(ErrManualDisconnect)
	require.NoError(t, server.Close())
	w.Wait()
	ev := rec.wait(t, action.WriteThreadShutdown)
	require.Nil(t, ev.arg)
	require.ErrorIs(t, w.Offer(frame.Text("late")), bqueue.ErrClosed)
	require.Equal(t, 1, rec.count(action.WriteThreadStart))
}

func TestWriterFailure(t *testing.T) {
	client, server := net.Pipe()
	rec := newRecorder()
	w := NewWriter(server, frame.NewCodec(0), nil, rec, zaptest.NewLogger(t), nil)
	w.Start()
	require.NoError(t, client.Close())
	require.NoError(t, w.Offer(frame.Text("lost")))
	w.Wait()
	ev := rec.wait(t, action.WriteThreadShutdown)
	require.Error(t, ev.arg.(error))
	require.Equal(t, 0, rec.count(action.WriteComplete))
}

func TestWriterSkipsBadMessage(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()
	rec := newRecorder()
	codec := frame.NewCodec(4)
	w := NewWriter(server, codec, nil, rec, zaptest.NewLogger(t), nil)
	w.Start()
	require.NoError(t, w.Offer(frame.Text("too long")))
	require.NoError(t, w.Offer(frame.Text("ok")))
	p, err := codec.Decode(client)
	require.NoError(t, err)
	require.Equal(t, []byte("ok"), p.Body)
	w.Shutdown(ErrManualDisconnect)
	_ = server.Close()
	w.Wait()
}
