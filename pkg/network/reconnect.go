package network

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// reconnector schedules reconnections of a Manager according to its
// ReconnectPolicy. The delay grows exponentially with every consecutive
// attempt and is reset by a successful connection.
type reconnector struct {
	m *Manager

	lock     sync.Mutex
	attempts int
	gen      uint64
	timer    *time.Timer
}

func newReconnector(m *Manager) *reconnector {
	return &reconnector{m: m}
}

// schedule plans the next attempt if the policy allows it.
func (r *reconnector) schedule(cause error) {
	policy := r.m.Options().Reconnect
	if !policy.Enabled || r.m.IsInbound() {
		return
	}
	r.lock.Lock()
	defer r.lock.Unlock()
	if policy.MaxAttempts > 0 && r.attempts >= policy.MaxAttempts {
		r.m.baseLog.Warn("giving up reconnecting",
			zap.Int("attempts", r.attempts),
			zap.Error(cause))
		return
	}
	delay := policy.Delay(r.attempts)
	r.attempts++
	if r.timer != nil {
		r.timer.Stop()
	}
	r.gen++
	gen := r.gen
	reconnectAttempts.Inc()
	r.m.baseLog.Info("reconnecting",
		zap.Int("attempt", r.attempts),
		zap.Duration("delay", delay),
		zap.Error(cause))
	r.timer = time.AfterFunc(delay, func() {
		r.lock.Lock()
		stale := gen != r.gen
		r.lock.Unlock()
		if !stale {
			r.m.Connect()
		}
	})
}

// cancel drops the scheduled attempt if any.
func (r *reconnector) cancel() {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.gen++
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}

// reset is called after a successful connection.
func (r *reconnector) reset() {
	r.lock.Lock()
	r.attempts = 0
	r.lock.Unlock()
}

// Attempts returns the number of consecutive attempts made.
func (r *reconnector) Attempts() int {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.attempts
}
