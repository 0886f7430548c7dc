package iothread

import (
	"io"
	"sync"
	"time"

	"github.com/nspcc-dev/dsocket/pkg/network/action"
	"github.com/nspcc-dev/dsocket/pkg/network/bqueue"
	"github.com/nspcc-dev/dsocket/pkg/network/frame"
	"go.uber.org/zap"
)

type writeDeadliner interface {
	SetWriteDeadline(t time.Time) error
}

// Writer is the loop sending queued messages to a stream.
type Writer struct {
	*Loop

	w       io.Writer
	codec   frame.Codec
	timeout func() time.Duration
	queue   *bqueue.Queue[frame.Sendable]
	sender  Broadcaster
	log     *zap.Logger

	closeOnce sync.Once
}

// NewWriter creates a writer loop over w, it's not started. timeout returns
// the deadline for every single write, it's applied only if w supports
// write deadlines, nil or zero means no deadline. onLen is an optional
// queue length observer.
func NewWriter(w io.Writer, codec frame.Codec, timeout func() time.Duration, sender Broadcaster, log *zap.Logger, onLen func(int)) *Writer {
	if log == nil {
		log = zap.NewNop()
	}
	wr := &Writer{
		w:       w,
		codec:   codec,
		timeout: timeout,
		queue:   bqueue.New[frame.Sendable](onLen),
		sender:  sender,
		log:     log,
	}
	wr.Loop = newLoop("write", log, wr.beforeLoop, wr.write, wr.loopFinish)
	return wr
}

// Offer puts the message into the outbound queue. It never performs I/O.
func (w *Writer) Offer(s frame.Sendable) error {
	return w.queue.Push(s)
}

// Pending returns the number of queued messages.
func (w *Writer) Pending() int {
	return w.queue.Len()
}

// Shutdown stops the loop and closes the outbound queue, messages not yet
// written are dropped.
func (w *Writer) Shutdown(cause error) {
	w.Loop.Shutdown(cause)
	w.closeOnce.Do(func() {
		w.queue.Close()
		w.queue.Discard()
	})
}

func (w *Writer) beforeLoop() {
	w.sender.Broadcast(action.WriteThreadStart, nil)
}

func (w *Writer) write() error {
	s, err := w.queue.Pop()
	if err != nil {
		return err
	}
	data, err := w.codec.Encode(s)
	if err != nil {
		// Only this message is affected.
		w.log.Warn("can't encode outbound message", zap.Error(err))
		return nil
	}
	if d, ok := w.w.(writeDeadliner); ok && w.timeout != nil {
		if t := w.timeout(); t > 0 {
			_ = d.SetWriteDeadline(time.Now().Add(t))
		}
	}
	if _, err = w.w.Write(data); err != nil {
		return err
	}
	w.sender.Broadcast(action.WriteComplete, s)
	return nil
}

func (w *Writer) loopFinish(err error) {
	err = cleanCause(err)
	if err != nil {
		w.log.Warn("write loop is dead", zap.Error(err))
	}
	w.sender.Broadcast(action.WriteThreadShutdown, err)
}
