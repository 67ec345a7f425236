// Package config handles YAML configuration loading, environment variable
// expansion, and structural validation for memvault.
package config

import (
	"time"

	"github.com/memvault/memvault/internal/gateway"
	"github.com/memvault/memvault/internal/mcp"
	"github.com/memvault/memvault/internal/repository/sqlite"
	"github.com/memvault/memvault/internal/telemetry"
)

// Storage backends.
const (
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Config is the top-level configuration structure.
type Config struct {
	// Version is the config format version. Currently only "1" is supported.
	Version string `yaml:"version"`

	Log       LogConfig        `yaml:"log"`
	Server    gateway.Config   `yaml:"server"`
	Storage   StorageConfig    `yaml:"storage"`
	Stream    StreamConfig     `yaml:"stream"`
	Retention RetentionConfig  `yaml:"retention"`
	Telemetry telemetry.Config `yaml:"telemetry"`
}

// LogConfig controls the slog handler.
type LogConfig struct {
	// Level is one of debug, info, warn, error. Defaults to info.
	Level string `yaml:"level"`

	// Format is text or json. Defaults to text.
	Format string `yaml:"format"`
}

// StorageConfig selects and configures the repository backend.
type StorageConfig struct {
	// Backend is sqlite or memory. Defaults to sqlite.
	Backend string `yaml:"backend"`

	SQLite sqlite.Config `yaml:"sqlite"`
}

// StreamConfig tunes the resource streaming engine.
type StreamConfig struct {
	// PaceInterval is the minimum delay between consecutive frames.
	// Defaults to 10ms.
	PaceInterval time.Duration `yaml:"pace_interval"`
}

// RetentionConfig controls the scheduled pruning of old records.
// Pruning is off unless both fields are set.
type RetentionConfig struct {
	// Schedule is a standard 5-field cron expression.
	Schedule string `yaml:"schedule"`

	// MaxAge is how long records are kept.
	MaxAge time.Duration `yaml:"max_age"`
}

// Enabled reports whether retention pruning is configured.
func (r RetentionConfig) Enabled() bool {
	return r.Schedule != "" && r.MaxAge > 0
}

func (c *Config) applyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = BackendSQLite
	}
	if c.Stream.PaceInterval == 0 {
		c.Stream.PaceInterval = mcp.DefaultPaceInterval
	}
}
