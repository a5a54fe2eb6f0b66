package pagelens

import (
	"github.com/hazyhaar/pagelens/internal/config"
)

// Config is the top-level pagelens configuration. Re-exported from internal.
type Config = config.Config

// PageConfig names the page under observation.
type PageConfig = config.PageConfig

// BrowserConfig controls the Chrome attachment.
type BrowserConfig = config.BrowserConfig

// ObserveConfig controls snapshot refresh and history behaviour.
type ObserveConfig = config.ObserveConfig

// DecideConfig controls the highlight decision round-trip.
type DecideConfig = config.DecideConfig

// SinkConfig defines an output backend.
type SinkConfig = config.SinkConfig

// DebugAPIConfig controls the local inspection endpoint.
type DebugAPIConfig = config.DebugAPIConfig

// LoadConfigFile reads a YAML configuration file.
func LoadConfigFile(path string) (*Config, error) {
	return config.LoadFile(path)
}
