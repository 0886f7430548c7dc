package network

import (
	"fmt"
	"math"
	"time"

	"github.com/nspcc-dev/dsocket/pkg/config"
	"github.com/nspcc-dev/dsocket/pkg/network/action"
	"github.com/nspcc-dev/dsocket/pkg/network/endpoint"
	"github.com/nspcc-dev/dsocket/pkg/network/frame"
)

// DefaultPulsePayload is the pulse message body used when none is configured.
const DefaultPulsePayload = "pulse"

// PulseFactory creates pulse messages.
type PulseFactory func() frame.Sendable

// ReconnectPolicy describes automatic reconnections after connection
// failures and unexpected disconnections.
type ReconnectPolicy struct {
	Enabled bool
	// MaxAttempts limits the number of consecutive attempts, 0 means no limit.
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// Options is the configuration of a connection Manager. Managers keep a
// copy, so Options can be reused and changed freely after being passed.
type Options struct {
	// Holden managers are kept and reused by the Registry.
	Holden    bool
	Reconnect ReconnectPolicy

	// PulseInterval is the interval between pulses, zero disables them.
	PulseInterval time.Duration
	// PulseLoseLimit is the number of pulses that can stay unanswered (no
	// data read in between) before the connection is dropped with
	// ErrPulseLost. Zero means no limit.
	PulseLoseLimit int
	Pulse          PulseFactory

	// CallbackMode is used when there is no Executor.
	CallbackMode action.Mode
	Executor     action.Executor

	// MaxFrameSize and the timeouts apply to the next connection made.
	MaxFrameSize   uint32
	ConnectTimeout time.Duration
	WriteTimeout   time.Duration

	// Backup is the endpoint to switch to when a connection attempt fails.
	Backup endpoint.Info
}

// DefaultOptions returns the options used by Registry.Get for new managers.
func DefaultOptions() Options {
	return Options{
		Holden: true,
		Reconnect: ReconnectPolicy{
			Enabled:      true,
			InitialDelay: time.Second,
			MaxDelay:     30 * time.Second,
			Multiplier:   2,
		},
		PulseLoseLimit: 3,
		Pulse:          TextPulse(DefaultPulsePayload),
		CallbackMode:   action.ModeInline,
		MaxFrameSize:   frame.DefaultMaxFrameSize,
		ConnectTimeout: 5 * time.Second,
		WriteTimeout:   10 * time.Second,
	}
}

// TextPulse returns a PulseFactory producing the given text.
func TextPulse(s string) PulseFactory {
	return func() frame.Sendable { return frame.Text(s) }
}

// NewOptions converts the client configuration into connection options.
func NewOptions(cfg config.Client) (Options, error) {
	mode, err := action.ParseMode(cfg.CallbackMode)
	if err != nil {
		return Options{}, err
	}
	o := Options{
		Holden: cfg.Holden,
		Reconnect: ReconnectPolicy{
			Enabled:      cfg.Reconnect.Enabled,
			MaxAttempts:  cfg.Reconnect.MaxAttempts,
			InitialDelay: cfg.Reconnect.InitialDelay,
			MaxDelay:     cfg.Reconnect.MaxDelay,
			Multiplier:   cfg.Reconnect.Multiplier,
		},
		PulseInterval:  cfg.Pulse.Interval,
		PulseLoseLimit: cfg.Pulse.LoseLimit,
		Pulse:          pulseFromConfig(cfg.Pulse),
		CallbackMode:   mode,
		MaxFrameSize:   cfg.MaxFrameSize,
		ConnectTimeout: cfg.ConnectTimeout,
		WriteTimeout:   cfg.WriteTimeout,
	}
	if cfg.Backup != "" {
		o.Backup, err = endpoint.Parse(cfg.Backup)
		if err != nil {
			return Options{}, fmt.Errorf("backup: %w", err)
		}
		o.Backup = o.Backup.WithTag(cfg.Tag)
	}
	return o, nil
}

// ClientEndpoint returns the identity of the configured client connection.
func ClientEndpoint(cfg config.Client) (endpoint.Info, error) {
	info, err := endpoint.Parse(cfg.Address)
	if err != nil {
		return endpoint.Info{}, err
	}
	return info.WithTag(cfg.Tag), nil
}

func pulseFromConfig(cfg config.Pulse) PulseFactory {
	payload := cfg.Payload
	if payload == "" {
		payload = DefaultPulsePayload
	}
	return TextPulse(payload)
}

// Delay returns the delay before the given (0-based) attempt.
func (p ReconnectPolicy) Delay(attempt int) time.Duration {
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}
	d := float64(p.InitialDelay) * math.Pow(mult, float64(attempt))
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	if d >= math.MaxInt64 {
		return math.MaxInt64
	}
	return time.Duration(d)
}

func (o Options) settings() action.Settings {
	return action.Settings{Mode: o.CallbackMode, Executor: o.Executor}
}
