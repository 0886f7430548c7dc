package action

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/nspcc-dev/dsocket/pkg/network/endpoint"
	"go.uber.org/zap"
)

// ErrUncomparableListener is returned when registering a listener which
// dynamic type can't be compared, like a struct value with a slice field. Use
// a pointer to such a listener instead.
var ErrUncomparableListener = errors.New("listener type is not comparable")

// Dispatcher is the event bus of a single connection.
type Dispatcher struct {
	log      *zap.Logger
	settings func() Settings
	delivery *Delivery

	// lock protects listeners, broadcasts iterate over copies.
	lock      sync.Mutex
	listeners []Listener

	infoLock sync.RWMutex
	info     endpoint.Info
}

// NewDispatcher creates a dispatcher for the connection with the given
// identity. settings is called for every broadcast, so the delivery mode can
// be changed at any time. delivery is used for the independent mode, if it's
// nil such events are delivered inline.
func NewDispatcher(info endpoint.Info, settings func() Settings, delivery *Delivery, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	if settings == nil {
		settings = func() Settings { return Settings{} }
	}
	return &Dispatcher{
		log:      log,
		settings: settings,
		delivery: delivery,
		info:     info,
	}
}

// Register adds the listener. Registering the same listener twice has no
// effect. Listeners that can't be compared are rejected.
func (d *Dispatcher) Register(l Listener) error {
	if l == nil {
		return nil
	}
	if !IsComparable(l) {
		d.log.Warn("listener rejected", zap.String("type", fmt.Sprintf("%T", l)),
			zap.Error(ErrUncomparableListener))
		return ErrUncomparableListener
	}
	d.lock.Lock()
	defer d.lock.Unlock()
	for _, have := range d.listeners {
		if have == l {
			return nil
		}
	}
	d.listeners = append(d.listeners, l)
	return nil
}

// Unregister removes the listener if it's registered.
func (d *Dispatcher) Unregister(l Listener) {
	if l == nil || !IsComparable(l) {
		return
	}
	d.lock.Lock()
	defer d.lock.Unlock()
	for i, have := range d.listeners {
		if have == l {
			d.listeners = append(d.listeners[:i:i], d.listeners[i+1:]...)
			return
		}
	}
}

// IsComparable tells whether the dynamic type of v can be used with ==
// without a panic.
func IsComparable(v any) bool {
	return v != nil && reflect.TypeOf(v).Comparable()
}

// Listeners returns a copy of the registered listeners.
func (d *Dispatcher) Listeners() []Listener {
	d.lock.Lock()
	defer d.lock.Unlock()
	res := make([]Listener, len(d.listeners))
	copy(res, d.listeners)
	return res
}

// Info returns the current identity used for new events.
func (d *Dispatcher) Info() endpoint.Info {
	d.infoLock.RLock()
	defer d.infoLock.RUnlock()
	return d.info
}

// SetInfo changes the identity used for subsequent events. Events already
// queued keep the identity they were created with.
func (d *Dispatcher) SetInfo(info endpoint.Info) {
	d.infoLock.Lock()
	d.info = info
	d.infoLock.Unlock()
}

// Broadcast delivers the event to all listeners according to the current
// delivery settings. It never returns listener failures to the caller.
func (d *Dispatcher) Broadcast(a Action, arg any) {
	ev := Event{Action: a, Arg: arg, Info: d.Info(), target: d}
	s := d.settings()
	switch {
	case s.Executor != nil:
		d.execute(s.Executor, ev)
	case s.Mode == ModeIndependent && d.delivery != nil:
		if err := d.delivery.enqueue(ev); err != nil {
			d.log.Warn("delivery service is unavailable, dispatching inline",
				zap.Stringer("action", a), zap.Error(err))
			d.deliver(ev)
		}
	default:
		d.deliver(ev)
	}
}

func (d *Dispatcher) execute(e Executor, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("executor panicked", zap.Stringer("action", ev.Action), zap.Any("panic", r))
		}
	}()
	if err := e.Execute(func() { d.deliver(ev) }); err != nil {
		d.log.Error("executor rejected event", zap.Stringer("action", ev.Action), zap.Error(err))
	}
}

// deliver sends the event to the snapshot of listeners.
func (d *Dispatcher) deliver(ev Event) {
	for _, l := range d.Listeners() {
		d.notifyOne(l, ev)
	}
}

func (d *Dispatcher) notifyOne(l Listener, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			addListenerPanic(ev.Action)
			d.log.Error("listener panicked",
				zap.Stringer("action", ev.Action),
				zap.Stringer("endpoint", ev.Info),
				zap.Any("panic", r))
		}
	}()
	notify(l, ev)
}
