// Package config provides configuration loading for signet.
//
// Configuration Hierarchy (highest to lowest priority):
//  1. Command-line flags (bound by the cli package)
//  2. Environment variables (SIGNET_*)
//  3. Config file (--config, or signet.yml in the user config directory)
//  4. Built-in defaults
//
// Nested keys map to environment variables with underscores, e.g.
// scan.max_entry_size_mb is SIGNET_SCAN_MAX_ENTRY_SIZE_MB.
package config

import "runtime"

// Config represents the complete signet configuration.
type Config struct {
	Scan   ScanConfig   `yaml:"scan" mapstructure:"scan"`
	Cache  CacheConfig  `yaml:"cache" mapstructure:"cache"`
	Output OutputConfig `yaml:"output" mapstructure:"output"`
}

// ScanConfig controls expansion and extraction.
type ScanConfig struct {
	Workers        int      `yaml:"workers" mapstructure:"workers"`                     // concurrent item reads
	Ignore         []string `yaml:"ignore" mapstructure:"ignore"`                       // glob patterns skipped in directories
	MaxEntrySizeMB int      `yaml:"max_entry_size_mb" mapstructure:"max_entry_size_mb"` // archive member buffer cap
}

// CacheConfig controls the in-memory signature cache.
type CacheConfig struct {
	Enabled  bool `yaml:"enabled" mapstructure:"enabled"`
	Capacity int  `yaml:"capacity" mapstructure:"capacity"` // max cached signatures
}

// OutputConfig controls report rendering.
type OutputConfig struct {
	Format string `yaml:"format" mapstructure:"format"` // "text", "json" or "yaml"
	Color  string `yaml:"color" mapstructure:"color"`   // "auto", "always" or "never"
}

// Color modes.
const (
	ColorAuto   = "auto"
	ColorAlways = "always"
	ColorNever  = "never"
)

// Default returns a configuration with sensible defaults.
func Default() *Config {
	return &Config{
		Scan: ScanConfig{
			Workers:        runtime.NumCPU(),
			Ignore:         []string{".git/**"},
			MaxEntrySizeMB: 256,
		},
		Cache: CacheConfig{
			Enabled:  true,
			Capacity: 10_000,
		},
		Output: OutputConfig{
			Format: "text",
			Color:  ColorAuto,
		},
	}
}

// MaxEntrySizeBytes returns the archive member cap in bytes.
func (c *Config) MaxEntrySizeBytes() int64 {
	return int64(c.Scan.MaxEntrySizeMB) << 20
}
