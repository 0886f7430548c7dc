package action

import (
	"fmt"
	"strings"
)

// Mode is the way events are delivered when no Executor is set.
type Mode uint8

const (
	// ModeInline delivers events synchronously on the goroutine producing
	// them (usually an I/O loop).
	ModeInline Mode = iota
	// ModeIndependent delivers events from the Delivery goroutine.
	ModeIndependent
)

// String implements the fmt.Stringer interface.
func (m Mode) String() string {
	switch m {
	case ModeInline:
		return "inline"
	case ModeIndependent:
		return "independent"
	default:
		return "unknown"
	}
}

// ParseMode parses the mode name.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "", "inline":
		return ModeInline, nil
	case "independent":
		return ModeIndependent, nil
	default:
		return 0, fmt.Errorf("unknown callback mode %q", s)
	}
}

// Executor runs event delivery tasks, it's the custom executor mode of the
// bus. The bus makes no ordering guarantees beyond the ones of the Executor.
type Executor interface {
	Execute(task func()) error
}

// ExecutorFunc is an adapter to use ordinary functions as Executors.
type ExecutorFunc func(task func())

// Execute implements the Executor interface.
func (f ExecutorFunc) Execute(task func()) error {
	f(task)
	return nil
}

// Settings is the delivery configuration of a Dispatcher. A non-nil Executor
// takes precedence over the Mode.
type Settings struct {
	Mode     Mode
	Executor Executor
}
