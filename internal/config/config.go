package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/vidyasagar/surfshell/internal/cache"
	"github.com/vidyasagar/surfshell/internal/storage"
)

// Prefix is prepended to every environment variable name.
const Prefix = "SURFSHELL"

// Config holds process-level settings read from the environment. User
// preferences live in storage.Settings instead.
type Config struct {
	DataDir   string `envconfig:"DATA_DIR"`
	ConfigDir string `envconfig:"CONFIG_DIR"`

	Log   LogConfig
	Cache CacheConfig

	SettleDelay time.Duration `envconfig:"SETTLE_DELAY" default:"500ms"`
}

// LogConfig holds logging configuration (SURFSHELL_LOG_*).
type LogConfig struct {
	Level       string `envconfig:"LEVEL" default:"info"`
	File        string `envconfig:"FILE"`
	Development bool   `envconfig:"DEV" default:"false"`
}

// CacheConfig holds favicon cache limits (SURFSHELL_CACHE_*).
type CacheConfig struct {
	MaxEntries int   `envconfig:"MAX_ENTRIES" default:"200"`
	MaxBytes   int64 `envconfig:"MAX_BYTES" default:"157286400"`
}

// Load reads the configuration from the environment and fills in platform
// directories for anything left unset.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if cfg.DataDir == "" {
		dir, err := storage.DataDir()
		if err != nil {
			return nil, err
		}
		cfg.DataDir = dir
	}
	if cfg.ConfigDir == "" {
		dir, err := storage.ConfigDir()
		if err != nil {
			return nil, err
		}
		cfg.ConfigDir = dir
	}
	if cfg.Log.File == "" {
		cfg.Log.File = filepath.Join(cfg.DataDir, "surfshell.log")
	}
	return &cfg, nil
}

// SettingsPath is the location of the persisted user settings.
func (c *Config) SettingsPath() string {
	return filepath.Join(c.ConfigDir, "settings.json")
}

// CacheOptions converts the cache limits for cache.New.
func (c *Config) CacheOptions() cache.Options {
	return cache.Options{
		MaxEntries: c.Cache.MaxEntries,
		MaxCost:    c.Cache.MaxBytes,
	}
}
