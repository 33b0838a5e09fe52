package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "SIGNET"

// Loader provides configuration loading capabilities.
type Loader interface {
	// Load loads configuration from file and environment variables.
	// Priority: defaults → config file → environment variables (env wins)
	Load() (*Config, error)

	// Viper exposes the underlying instance so callers can bind flags
	// before Load.
	Viper() *viper.Viper
}

type loader struct {
	v          *viper.Viper
	configFile string
	searchDirs []string
}

// NewLoader creates a loader. An explicit configFile must exist; otherwise
// searchDirs are searched for signet.yml / signet.yaml and a missing file is
// not an error.
func NewLoader(configFile string, searchDirs ...string) Loader {
	return &loader{
		v:          viper.New(),
		configFile: configFile,
		searchDirs: searchDirs,
	}
}

func (l *loader) Viper() *viper.Viper {
	return l.v
}

// Load loads configuration with the following priority (highest to lowest):
// 1. Flags bound through Viper()
// 2. Environment variables (SIGNET_*)
// 3. Config file
// 4. Default values
func (l *loader) Load() (*Config, error) {
	v := l.v

	if l.configFile != "" {
		v.SetConfigFile(l.configFile)
	} else {
		v.SetConfigName("signet")
		v.SetConfigType("yaml")
		for _, dir := range l.searchDirs {
			v.AddConfigPath(dir)
		}
	}

	// Enable environment variable overrides
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	// Replace . with _ in env var names (e.g., SIGNET_SCAN_WORKERS)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Bind environment variables to config keys so Unmarshal sees them
	for _, key := range []string{
		"scan.workers",
		"scan.ignore",
		"scan.max_entry_size_mb",
		"cache.enabled",
		"cache.capacity",
		"output.format",
		"output.color",
	} {
		_ = v.BindEnv(key)
	}

	setDefaults(v)

	if l.configFile != "" || len(l.searchDirs) > 0 {
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			// Only a searched-for file may be missing
			if l.configFile != "" || !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// A comma-separated SIGNET_SCAN_IGNORE arrives as a single element
	cfg.Scan.Ignore = splitList(cfg.Scan.Ignore)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// setDefaults configures viper with default values.
func setDefaults(v *viper.Viper) {
	defaults := Default()

	v.SetDefault("scan.workers", defaults.Scan.Workers)
	v.SetDefault("scan.ignore", defaults.Scan.Ignore)
	v.SetDefault("scan.max_entry_size_mb", defaults.Scan.MaxEntrySizeMB)

	v.SetDefault("cache.enabled", defaults.Cache.Enabled)
	v.SetDefault("cache.capacity", defaults.Cache.Capacity)

	v.SetDefault("output.format", defaults.Output.Format)
	v.SetDefault("output.color", defaults.Output.Color)
}

func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// DefaultSearchDirs returns the directories searched when no config file is
// given: the user config directory's signet folder.
func DefaultSearchDirs() []string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return nil
	}
	return []string{filepath.Join(dir, "signet")}
}
