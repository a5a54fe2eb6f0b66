// Package config handles pagelens configuration from YAML files.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level pagelens configuration.
type Config struct {
	Page     PageConfig     `yaml:"page"`
	Browser  BrowserConfig  `yaml:"browser"`
	Observe  ObserveConfig  `yaml:"observe"`
	Decide   DecideConfig   `yaml:"decide"`
	Sinks    []SinkConfig   `yaml:"sinks"`
	DebugAPI DebugAPIConfig `yaml:"debug_api"`
	Log      LogConfig      `yaml:"log"`
}

// PageConfig names the page under observation.
type PageConfig struct {
	URL    string `yaml:"url"`
	Intent string `yaml:"intent"`
}

// BrowserConfig controls the Chrome attachment.
type BrowserConfig struct {
	Remote   string        `yaml:"remote"` // ws:// devtools URL; empty launches a local browser
	Headless bool          `yaml:"headless"`
	Stealth  bool          `yaml:"stealth"`
	Timeout  time.Duration `yaml:"timeout"`
}

// ObserveConfig controls snapshot refresh and history behaviour.
type ObserveConfig struct {
	Debounce       time.Duration `yaml:"debounce"`
	InteractionCap int           `yaml:"interaction_cap"`
	HistoryCap     int           `yaml:"history_cap"`
}

// DecideConfig controls the highlight decision round-trip.
type DecideConfig struct {
	ProviderURL   string        `yaml:"provider_url"` // empty runs fallback-only
	Debounce      time.Duration `yaml:"debounce"`
	Throttle      time.Duration `yaml:"throttle"`
	BridgeTimeout time.Duration `yaml:"bridge_timeout"`
}

// SinkConfig defines an output backend.
type SinkConfig struct {
	Type string `yaml:"type"` // stdout | webhook | sqlite
	URL  string `yaml:"url"`  // for webhook
	Path string `yaml:"path"` // for sqlite
}

// DebugAPIConfig controls the local inspection endpoint.
type DebugAPIConfig struct {
	Listen string `yaml:"listen"` // empty disables the API
}

// LogConfig controls slog output.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// LoadFile reads a YAML configuration file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg.ApplyDefaults()
	return &cfg, nil
}

// ApplyDefaults fills zero values with production defaults.
func (c *Config) ApplyDefaults() {
	if c.Browser.Timeout <= 0 {
		c.Browser.Timeout = 30 * time.Second
	}
	if c.Observe.Debounce <= 0 {
		c.Observe.Debounce = 200 * time.Millisecond
	}
	if c.Observe.InteractionCap <= 0 {
		c.Observe.InteractionCap = 100
	}
	if c.Observe.HistoryCap <= 0 {
		c.Observe.HistoryCap = 50
	}
	if c.Decide.Debounce <= 0 {
		c.Decide.Debounce = 200 * time.Millisecond
	}
	if c.Decide.Throttle <= 0 {
		c.Decide.Throttle = time.Second
	}
	if c.Decide.BridgeTimeout <= 0 {
		c.Decide.BridgeTimeout = 30 * time.Second
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// Validate rejects configurations that cannot start.
func (c *Config) Validate() error {
	if c.Page.URL == "" {
		return fmt.Errorf("config: page.url is required")
	}
	for i, s := range c.Sinks {
		switch s.Type {
		case "stdout":
		case "webhook":
			if s.URL == "" {
				return fmt.Errorf("config: sinks[%d]: webhook requires url", i)
			}
		case "sqlite":
			if s.Path == "" {
				return fmt.Errorf("config: sinks[%d]: sqlite requires path", i)
			}
		default:
			return fmt.Errorf("config: sinks[%d]: unknown type %q", i, s.Type)
		}
	}
	return nil
}
