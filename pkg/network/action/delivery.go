package action

import (
	"sync"

	"github.com/nspcc-dev/dsocket/pkg/network/bqueue"
	"go.uber.org/zap"
)

// Delivery is the independent delivery service. It has a single FIFO queue
// shared by all dispatchers using it and a single goroutine emptying it, so
// events are delivered in the order they were broadcast across all of these
// dispatchers.
type Delivery struct {
	log   *zap.Logger
	queue *bqueue.Queue[Event]

	startOnce sync.Once
	stopOnce  sync.Once
	done      chan struct{}
}

// NewDelivery creates a delivery service. The goroutine is started on the
// first event.
func NewDelivery(log *zap.Logger) *Delivery {
	if log == nil {
		log = zap.NewNop()
	}
	return &Delivery{
		log:   log,
		queue: bqueue.New[Event](updateDeliveryQueueLen),
		done:  make(chan struct{}),
	}
}

func (d *Delivery) enqueue(ev Event) error {
	d.startOnce.Do(func() {
		go d.run()
	})
	return d.queue.Push(ev)
}

func (d *Delivery) run() {
	defer close(d.done)
	for {
		ev, err := d.queue.Pop()
		if err != nil {
			return
		}
		if ev.target != nil {
			ev.target.deliver(ev)
		}
	}
}

// Len returns the number of events waiting for delivery.
func (d *Delivery) Len() int {
	return d.queue.Len()
}

// Stop delivers all already queued events and stops the delivery goroutine.
// Events broadcast after Stop are delivered inline. It must not be called
// from a listener served by this Delivery.
func (d *Delivery) Stop() {
	d.stopOnce.Do(func() {
		d.queue.Close()
		d.startOnce.Do(func() {
			close(d.done)
		})
		<-d.done
		d.log.Debug("delivery service stopped")
	})
}
