package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

// Client is the configuration of an outbound connection.
type Client struct {
	// Address is the "host:port" to connect to.
	Address string `yaml:"Address"`
	// Tag distinguishes several logical connections to the same Address.
	Tag string `yaml:"Tag"`
	// Backup is an optional "host:port" used when Address can't be reached.
	Backup string `yaml:"Backup"`
	// Holden connections are kept and reused by the registry.
	Holden         bool          `yaml:"Holden"`
	ConnectTimeout time.Duration `yaml:"ConnectTimeout"`
	WriteTimeout   time.Duration `yaml:"WriteTimeout"`
	MaxFrameSize   uint32        `yaml:"MaxFrameSize"`
	Pulse          Pulse         `yaml:"Pulse"`
	// CallbackMode is either "inline" or "independent".
	CallbackMode string    `yaml:"CallbackMode"`
	Reconnect    Reconnect `yaml:"Reconnect"`
}

// Pulse is the heartbeat configuration.
type Pulse struct {
	// Interval between pulses, zero disables them.
	Interval time.Duration `yaml:"Interval"`
	// LoseLimit is the number of unanswered pulses tolerated before the
	// connection is considered dead.
	LoseLimit int `yaml:"LoseLimit"`
	// Payload is the pulse message body.
	Payload string `yaml:"Payload"`
}

// Reconnect is the reconnection policy configuration.
type Reconnect struct {
	Enabled bool `yaml:"Enabled"`
	// MaxAttempts limits the number of consecutive attempts, 0 means no
	// limit.
	MaxAttempts  int           `yaml:"MaxAttempts"`
	InitialDelay time.Duration `yaml:"InitialDelay"`
	MaxDelay     time.Duration `yaml:"MaxDelay"`
	Multiplier   float64       `yaml:"Multiplier"`
}

// Validate checks Client for internal consistency.
func (c Client) Validate() error {
	if c.Address != "" {
		if _, _, err := net.SplitHostPort(c.Address); err != nil {
			return fmt.Errorf("bad Address: %w", err)
		}
	}
	if c.Backup != "" {
		if _, _, err := net.SplitHostPort(c.Backup); err != nil {
			return fmt.Errorf("bad Backup: %w", err)
		}
	}
	if c.ConnectTimeout < 0 || c.WriteTimeout < 0 {
		return errors.New("negative timeout")
	}
	switch strings.ToLower(c.CallbackMode) {
	case "", "inline", "independent":
	default:
		return fmt.Errorf("unknown CallbackMode %q", c.CallbackMode)
	}
	if err := c.Pulse.Validate(); err != nil {
		return fmt.Errorf("pulse: %w", err)
	}
	if err := c.Reconnect.Validate(); err != nil {
		return fmt.Errorf("reconnect: %w", err)
	}
	return nil
}

// Validate checks Pulse for internal consistency.
func (p Pulse) Validate() error {
	if p.Interval < 0 {
		return errors.New("negative Interval")
	}
	if p.Interval > 0 && p.LoseLimit <= 0 {
		return errors.New("lose limit must be positive when pulse is enabled")
	}
	return nil
}

// Validate checks Reconnect for internal consistency.
func (r Reconnect) Validate() error {
	if !r.Enabled {
		return nil
	}
	if r.MaxAttempts < 0 {
		return errors.New("negative MaxAttempts")
	}
	if r.InitialDelay <= 0 {
		return errors.New("initial delay must be positive")
	}
	if r.MaxDelay < r.InitialDelay {
		return errors.New("max delay is less than initial delay")
	}
	if r.Multiplier < 1 {
		return errors.New("multiplier can't be less than 1")
	}
	return nil
}
