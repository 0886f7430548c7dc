package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigPath is the default path to the config file.
const DefaultConfigPath = "./config/dsocket.yml"

// Version is the version of the dsocket tools, it's set at build time.
var Version string

// Config is the top level struct representing the configuration of the
// dsocket tools.
type Config struct {
	ApplicationConfiguration ApplicationConfiguration `yaml:"ApplicationConfiguration"`
	Client                   Client                   `yaml:"Client"`
	Server                   Server                   `yaml:"Server"`
}

// Load attempts to load the config from the given path, an empty path means
// DefaultConfigPath.
func Load(path string) (Config, error) {
	if path == "" {
		path = DefaultConfigPath
	}
	return LoadFile(path)
}

// LoadFile loads the config from the provided file.
func LoadFile(configPath string) (Config, error) {
	configData, err := os.ReadFile(configPath)
	if err != nil {
		return Config{}, fmt.Errorf("unable to read config: %w", err)
	}
	return Decode(configData)
}

// Decode parses YAML configuration data on top of the default values and
// validates the result. Unknown fields are an error.
func Decode(data []byte) (Config, error) {
	config := Default()
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	err := decoder.Decode(&config)
	if err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("failed to unmarshal config YAML: %w", err)
	}
	if err = config.Validate(); err != nil {
		return Config{}, err
	}
	return config, nil
}

// Default returns the configuration used for the missing fields.
func Default() Config {
	return Config{
		ApplicationConfiguration: ApplicationConfiguration{
			LogLevel: "info",
		},
		Client: Client{
			Holden:         true,
			ConnectTimeout: 5 * time.Second,
			WriteTimeout:   10 * time.Second,
			Pulse: Pulse{
				LoseLimit: 3,
			},
			CallbackMode: "inline",
			Reconnect: Reconnect{
				InitialDelay: time.Second,
				MaxDelay:     30 * time.Second,
				Multiplier:   2,
			},
		},
		Server: Server{
			BindAddress:  "0.0.0.0",
			WriteTimeout: 10 * time.Second,
			Pulse: Pulse{
				LoseLimit: 3,
			},
		},
	}
}

// Validate checks the configuration for consistency.
func (c Config) Validate() error {
	if err := c.ApplicationConfiguration.Validate(); err != nil {
		return fmt.Errorf("invalid ApplicationConfiguration: %w", err)
	}
	if err := c.Client.Validate(); err != nil {
		return fmt.Errorf("invalid Client configuration: %w", err)
	}
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("invalid Server configuration: %w", err)
	}
	return nil
}
