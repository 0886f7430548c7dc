/*
Package iothread implements the two cooperative loops serving a connection:
the reader decoding incoming frames and the writer sending queued messages.
Loops report everything through a Broadcaster and never restart themselves.
*/
package iothread

import (
	"errors"
	"sync"

	"github.com/nspcc-dev/dsocket/pkg/network/action"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// ErrManualDisconnect is the shutdown cause for intentional disconnections,
// loops stopped with it report a clean (nil) shutdown.
var ErrManualDisconnect = errors.New("manual disconnect")

// Broadcaster receives loop events.
type Broadcaster interface {
	Broadcast(a action.Action, arg any)
}

// Loop is a goroutine running step until it fails or is stopped.
type Loop struct {
	name string
	log  *zap.Logger

	before func()
	step   func() error
	finish func(error)

	lock     sync.Mutex
	started  bool
	cause    error
	stopping atomic.Bool
	doneOnce sync.Once
	done     chan struct{}
}

func newLoop(name string, log *zap.Logger, before func(), step func() error, finish func(error)) *Loop {
	if log == nil {
		log = zap.NewNop()
	}
	return &Loop{
		name:   name,
		log:    log,
		before: before,
		step:   step,
		finish: finish,
		done:   make(chan struct{}),
	}
}

// Start starts the loop goroutine. It does nothing if the loop was already
// started or stopped.
func (l *Loop) Start() {
	l.lock.Lock()
	defer l.lock.Unlock()
	if l.started || l.stopping.Load() {
		return
	}
	l.started = true
	go l.run()
}

func (l *Loop) run() {
	defer l.doneOnce.Do(func() { close(l.done) })
	l.log.Debug("loop started", zap.String("loop", l.name))
	l.before()
	var err error
	for !l.stopping.Load() {
		if err = l.step(); err != nil {
			break
		}
	}
	l.lock.Lock()
	if l.cause == nil {
		l.cause = err
	}
	cause := l.cause
	l.lock.Unlock()
	l.log.Debug("loop finished", zap.String("loop", l.name), zap.Error(cause))
	l.finish(cause)
}

// Shutdown asks the loop to stop. The first cause given (either here or by a
// failing step) is the one reported. Blocking operations are not interrupted,
// the owner should close the underlying stream to unblock them. It's safe to
// call Shutdown many times and before Start.
func (l *Loop) Shutdown(cause error) {
	l.lock.Lock()
	if l.cause == nil {
		l.cause = cause
	}
	started := l.started
	l.stopping.Store(true)
	l.lock.Unlock()
	if !started {
		l.doneOnce.Do(func() { close(l.done) })
	}
}

// IsShutdown returns true if Shutdown was called.
func (l *Loop) IsShutdown() bool {
	return l.stopping.Load()
}

// Done returns a channel closed when the loop goroutine exits (or when the
// loop is shut down without being started).
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// Wait blocks until the loop exits.
func (l *Loop) Wait() {
	<-l.done
}

// cleanCause hides intentional disconnections.
func cleanCause(err error) error {
	if errors.Is(err, ErrManualDisconnect) {
		return nil
	}
	return err
}
