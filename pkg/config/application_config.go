package config

import (
	"fmt"

	"go.uber.org/zap/zapcore"
)

// ApplicationConfiguration contains settings of the process itself rather
// than of the connections it serves.
type ApplicationConfiguration struct {
	// LogLevel is one of the zap levels ("debug", "info", "warn", ...).
	LogLevel string `yaml:"LogLevel"`
	// LogPath is the file to write logs to, stderr is used when it's empty.
	LogPath    string       `yaml:"LogPath"`
	Prometheus BasicService `yaml:"Prometheus"`
	Pprof      BasicService `yaml:"Pprof"`
}

// Validate checks ApplicationConfiguration for internal consistency.
func (a ApplicationConfiguration) Validate() error {
	if len(a.LogLevel) > 0 {
		if _, err := zapcore.ParseLevel(a.LogLevel); err != nil {
			return fmt.Errorf("bad LogLevel: %w", err)
		}
	}
	if err := a.Prometheus.Validate(); err != nil {
		return fmt.Errorf("prometheus: %w", err)
	}
	if err := a.Pprof.Validate(); err != nil {
		return fmt.Errorf("pprof: %w", err)
	}
	return nil
}
