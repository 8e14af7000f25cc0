// Package config loads and validates memsync configuration.
//
// Configuration is resolved in three layers, later layers winning:
//  1. built-in defaults
//  2. .memsync.yaml in the working directory (or an explicit path)
//  3. MEMSYNC_* environment variables
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"

	syncerrors "github.com/Aman-CERP/memsync/internal/errors"
)

// DefaultConfigFile is the config file name looked up in the working directory.
const DefaultConfigFile = ".memsync.yaml"

// Config represents the complete memsync configuration.
type Config struct {
	Version int           `yaml:"version"`
	Paths   PathsConfig   `yaml:"paths"`
	Bulk    BulkConfig    `yaml:"bulk"`
	Logging LoggingConfig `yaml:"logging"`
}

// PathsConfig configures data locations.
type PathsConfig struct {
	// DataDir holds index generations, the alias catalog, and lock files.
	DataDir string `yaml:"data_dir"`

	// SourceDB is the path to the primary store SQLite database.
	SourceDB string `yaml:"source_db"`
}

// BulkConfig tunes the bulk writer.
type BulkConfig struct {
	// BatchSize is the number of documents per bulk request.
	BatchSize int `yaml:"batch_size"`

	// Workers bounds the number of concurrent in-flight bulk requests.
	Workers int `yaml:"workers"`

	// MaxRetries is the retry ceiling per bulk request before items are
	// reported as permanently failed.
	MaxRetries int `yaml:"max_retries"`
}

// LoggingConfig configures the log level.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Version: 1,
		Paths: PathsConfig{
			DataDir:  defaultDataDir(),
			SourceDB: filepath.Join(defaultDataDir(), "memories.db"),
		},
		Bulk: BulkConfig{
			BatchSize:  500,
			Workers:    4,
			MaxRetries: 3,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".memsync")
	}
	return filepath.Join(home, ".memsync")
}

// Load resolves configuration from defaults, an optional config file, and
// environment overrides. path may be empty, in which case DefaultConfigFile
// is used when present.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		if _, err := os.Stat(DefaultConfigFile); err == nil {
			path = DefaultConfigFile
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, syncerrors.New(syncerrors.ErrCodeConfigNotFound,
				fmt.Sprintf("cannot read config file %s", path), err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, syncerrors.ConfigError(
				fmt.Sprintf("cannot parse config file %s", path), err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides applies MEMSYNC_* environment variables.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MEMSYNC_DATA_DIR"); v != "" {
		cfg.Paths.DataDir = v
	}
	if v := os.Getenv("MEMSYNC_SOURCE_DB"); v != "" {
		cfg.Paths.SourceDB = v
	}
	if v := os.Getenv("MEMSYNC_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Bulk.BatchSize = n
		}
	}
	if v := os.Getenv("MEMSYNC_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Bulk.Workers = n
		}
	}
	if v := os.Getenv("MEMSYNC_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	if c.Paths.DataDir == "" {
		return syncerrors.ConfigError("paths.data_dir must not be empty", nil)
	}
	if c.Paths.SourceDB == "" {
		return syncerrors.ConfigError("paths.source_db must not be empty", nil)
	}
	if c.Bulk.BatchSize <= 0 {
		return syncerrors.ConfigError(
			fmt.Sprintf("bulk.batch_size must be positive, got %d", c.Bulk.BatchSize), nil)
	}
	if c.Bulk.Workers <= 0 || c.Bulk.Workers > 64 {
		return syncerrors.ConfigError(
			fmt.Sprintf("bulk.workers must be in 1..64, got %d", c.Bulk.Workers), nil)
	}
	if c.Bulk.MaxRetries < 0 {
		return syncerrors.ConfigError(
			fmt.Sprintf("bulk.max_retries must not be negative, got %d", c.Bulk.MaxRetries), nil)
	}
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return syncerrors.ConfigError(
			fmt.Sprintf("logging.level %q is not a valid level", c.Logging.Level), nil)
	}
	return nil
}

// Save writes the configuration to the given path as YAML.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return syncerrors.ConfigError("cannot marshal config", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return syncerrors.ConfigError("cannot create config directory", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return syncerrors.ConfigError(fmt.Sprintf("cannot write config file %s", path), err)
	}
	return nil
}
