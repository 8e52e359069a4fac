// Package config loads the wampd YAML configuration file: listener
// definitions and the static realm list, via a load-then-default-then-
// validate sequence.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the top-level wampd configuration document.
type Config struct {
	AppName string `yaml:"app_name"`
	Debug   bool   `yaml:"debug"`

	Listeners []ListenerConfig `yaml:"listeners"`
	Realms    []RealmConfig    `yaml:"realms"`

	AwaitGoodbyeSeconds int `yaml:"await_goodbye_seconds"`
}

// ListenerConfig describes one accept loop the server runs.
type ListenerConfig struct {
	Protocol string `yaml:"protocol"` // "rawsocket" | "websocket"
	Network  string `yaml:"network"`  // "tcp" | "unix"
	Address  string `yaml:"address"`
	Path     string `yaml:"path,omitempty"` // HTTP upgrade path, websocket only
}

// RealmConfig describes one statically configured realm.
type RealmConfig struct {
	Name      string `yaml:"name"`
	Anonymous bool   `yaml:"anonymous"`
}

// Load reads and parses filename, filling in defaults and validating
// range-bound fields.
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if cfg.AppName == "" {
		cfg.AppName = "wampd"
	}
	if cfg.AwaitGoodbyeSeconds == 0 {
		cfg.AwaitGoodbyeSeconds = 10
	}
	if len(cfg.Listeners) == 0 {
		cfg.Listeners = []ListenerConfig{{Protocol: "rawsocket", Network: "tcp", Address: ":8080"}}
	}
	for i, l := range cfg.Listeners {
		if l.Protocol != "rawsocket" && l.Protocol != "websocket" {
			return nil, fmt.Errorf("listener %d: unknown protocol %q", i, l.Protocol)
		}
		if l.Network == "" {
			cfg.Listeners[i].Network = "tcp"
		}
	}
	if len(cfg.Realms) == 0 {
		cfg.Realms = []RealmConfig{{Name: "realm1", Anonymous: true}}
	}

	if cfg.AwaitGoodbyeSeconds < 0 {
		return nil, fmt.Errorf("await_goodbye_seconds cannot be negative: %d", cfg.AwaitGoodbyeSeconds)
	}

	return &cfg, nil
}

// RealmNames returns the configured realm names, for building a
// router.Router.
func (c *Config) RealmNames() []string {
	names := make([]string, len(c.Realms))
	for i, r := range c.Realms {
		names[i] = r.Name
	}
	return names
}
