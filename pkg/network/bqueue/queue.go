/*
Package bqueue provides an unbounded blocking FIFO queue safe for concurrent
use. It's used for the outbound message queue of a connection and for the
shared event delivery queue.
*/
package bqueue

import (
	"errors"
	"sync"

	"github.com/eapache/queue"
)

// ErrClosed is returned when pushing into a closed queue and when popping
// from a closed queue that has no more items.
var ErrClosed = errors.New("queue is closed")

// Queue is an unbounded FIFO. Any number of goroutines can push into it,
// Pop blocks until an item is available or the queue is closed.
type Queue[T any] struct {
	lock       sync.Mutex
	cond       *sync.Cond
	items      *queue.Queue
	closed     bool
	lenUpdateF func(int)
}

// New creates an empty queue. lenUpdateF (if not nil) is called with the new
// queue length after every change, it's intended for metrics.
func New[T any](lenUpdateF func(l int)) *Queue[T] {
	q := &Queue[T]{
		items:      queue.New(),
		lenUpdateF: lenUpdateF,
	}
	q.cond = sync.NewCond(&q.lock)
	return q
}

// Push appends an item to the queue. It never blocks.
func (q *Queue[T]) Push(item T) error {
	q.lock.Lock()
	if q.closed {
		q.lock.Unlock()
		return ErrClosed
	}
	q.items.Add(item)
	l := q.items.Length()
	q.lock.Unlock()
	q.cond.Signal()
	q.updateLen(l)
	return nil
}

// Pop removes and returns the first item of the queue, blocking until there
// is one. Items pushed before Close are still returned after it, ErrClosed
// is returned once the closed queue is drained.
func (q *Queue[T]) Pop() (T, error) {
	q.lock.Lock()
	for q.items.Length() == 0 && !q.closed {
		q.cond.Wait()
	}
	if q.items.Length() == 0 {
		q.lock.Unlock()
		var zero T
		return zero, ErrClosed
	}
	item := q.items.Remove().(T)
	l := q.items.Length()
	q.lock.Unlock()
	q.updateLen(l)
	return item, nil
}

// TryPop is a non-blocking version of Pop, ok is false if the queue is
// empty.
func (q *Queue[T]) TryPop() (item T, ok bool) {
	q.lock.Lock()
	if q.items.Length() == 0 {
		q.lock.Unlock()
		return item, false
	}
	item = q.items.Remove().(T)
	l := q.items.Length()
	q.lock.Unlock()
	q.updateLen(l)
	return item, true
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.lock.Lock()
	defer q.lock.Unlock()
	return q.items.Length()
}

// Close marks the queue as closed and wakes up all waiting consumers. It
// returns false if the queue was already closed.
func (q *Queue[T]) Close() bool {
	q.lock.Lock()
	if q.closed {
		q.lock.Unlock()
		return false
	}
	q.closed = true
	q.lock.Unlock()
	q.cond.Broadcast()
	return true
}

// Discard drops all queued items.
func (q *Queue[T]) Discard() {
	q.lock.Lock()
	q.items = queue.New()
	q.lock.Unlock()
	q.updateLen(0)
}

func (q *Queue[T]) updateLen(l int) {
	if q.lenUpdateF != nil {
		q.lenUpdateF(l)
	}
}
