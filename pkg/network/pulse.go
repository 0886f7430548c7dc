package network

import (
	"sync"
	"time"

	"github.com/nspcc-dev/dsocket/pkg/network/action"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// Pulse is the heartbeat of a connection. Every PulseInterval it sends a
// pulse message and counts it as lost until anything is read from the
// connection. When more than PulseLoseLimit pulses are lost, the connection
// is dropped with ErrPulseLost.
type Pulse struct {
	m    *Manager
	lost atomic.Int32

	reset   chan struct{}
	trigger chan struct{}
	quit    chan struct{}
	done    chan struct{}

	startOnce sync.Once
	stopOnce  sync.Once
}

func newPulse(m *Manager) *Pulse {
	return &Pulse{
		m:       m,
		reset:   make(chan struct{}, 1),
		trigger: make(chan struct{}, 1),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Feed resets the lost pulse counter.
func (p *Pulse) Feed() {
	p.lost.Store(0)
}

// Lost returns the number of pulses sent since the last Feed.
func (p *Pulse) Lost() int {
	return int(p.lost.Load())
}

// Trigger sends a pulse immediately. It's not counted as lost.
func (p *Pulse) Trigger() {
	select {
	case p.trigger <- struct{}{}:
	default:
	}
}

// Reset restarts the interval using the current options.
func (p *Pulse) Reset() {
	select {
	case p.reset <- struct{}{}:
	default:
	}
}

func (p *Pulse) start() {
	p.startOnce.Do(func() {
		go p.run()
	})
}

func (p *Pulse) stop() {
	p.stopOnce.Do(func() {
		close(p.quit)
	})
	p.startOnce.Do(func() {
		close(p.done)
	})
}

func (p *Pulse) wait() {
	<-p.done
}

func (p *Pulse) run() {
	defer close(p.done)
	for {
		var (
			timer *time.Timer
			tick  <-chan time.Time
		)
		if interval := p.m.Options().PulseInterval; interval > 0 {
			timer = time.NewTimer(interval)
			tick = timer.C
		}
		var ok = true
		select {
		case <-p.quit:
			ok = false
		case <-p.reset:
		case <-p.trigger:
			ok = p.beat(false)
		case <-tick:
			ok = p.beat(true)
		}
		if timer != nil {
			timer.Stop()
		}
		if !ok {
			return
		}
	}
}

// beat sends a pulse, it returns false if the pulse should stop.
func (p *Pulse) beat(count bool) bool {
	opts := p.m.Options()
	if opts.Pulse == nil {
		return true
	}
	payload := opts.Pulse()
	if err := p.m.Send(payload); err != nil {
		return false
	}
	pulsesSent.Inc()
	p.m.dispatcher.Broadcast(action.PulseRequest, payload)
	if !count {
		return true
	}
	lost := int(p.lost.Inc())
	if opts.PulseLoseLimit > 0 && lost > opts.PulseLoseLimit {
		pulseLosses.Inc()
		p.m.baseLog.Warn("pulse lost", zap.Int("lost", lost))
		p.m.disconnect(ErrPulseLost, false)
		return false
	}
	return true
}
