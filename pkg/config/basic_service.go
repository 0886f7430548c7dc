package config

import (
	"errors"
	"fmt"
	"net"
)

// BasicService is used as a simple base for auxiliary services like Pprof
// or Prometheus monitoring.
type BasicService struct {
	Enabled bool `yaml:"Enabled"`
	// Addresses holds the list of bind addresses in the form of "address:port".
	Addresses []string `yaml:"Addresses"`
}

// Validate checks that an enabled service has valid bind addresses.
func (s BasicService) Validate() error {
	if !s.Enabled {
		return nil
	}
	if len(s.Addresses) == 0 {
		return errors.New("no Addresses for an enabled service")
	}
	for _, addr := range s.Addresses {
		if _, _, err := net.SplitHostPort(addr); err != nil {
			return fmt.Errorf("bad address %q: %w", addr, err)
		}
	}
	return nil
}
