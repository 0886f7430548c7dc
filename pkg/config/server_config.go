package config

import (
	"errors"
	"fmt"
	"time"
)

// Server is the configuration of a listening server.
type Server struct {
	BindAddress string `yaml:"BindAddress"`
	Port        uint16 `yaml:"Port"`
	// MaxClients limits the number of simultaneously connected clients, 0
	// means no limit.
	MaxClients   int           `yaml:"MaxClients"`
	MaxFrameSize uint32        `yaml:"MaxFrameSize"`
	WriteTimeout time.Duration `yaml:"WriteTimeout"`
	Pulse        Pulse         `yaml:"Pulse"`
}

// Validate checks Server for internal consistency.
func (s Server) Validate() error {
	if s.MaxClients < 0 {
		return errors.New("negative MaxClients")
	}
	if s.WriteTimeout < 0 {
		return errors.New("negative WriteTimeout")
	}
	if err := s.Pulse.Validate(); err != nil {
		return fmt.Errorf("pulse: %w", err)
	}
	return nil
}
