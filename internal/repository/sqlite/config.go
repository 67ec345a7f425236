package sqlite

import (
	"fmt"

	"github.com/memvault/memvault/internal/repository"
)

const (
	defaultBusyTimeout = 5000
	defaultDBFile      = "memvault.db"
)

// Config holds the SQLite repository configuration.
type Config struct {
	// Path is the database file path. Defaults to {data_dir}/memvault.db
	// when resolved by the caller.
	Path string `yaml:"path"`

	// WAL enables WAL journal mode for concurrent reads. Defaults to true.
	WAL *bool `yaml:"wal"`

	// BusyTimeout is the milliseconds to wait on a busy lock. Defaults to 5000.
	BusyTimeout int `yaml:"busy_timeout"`

	// StreamBatch is the number of records fetched per cursor pull.
	// Defaults to repository.DefaultStreamBatch.
	StreamBatch int `yaml:"stream_batch"`
}

// DefaultFileName returns the database file name used when no path is
// configured.
func DefaultFileName() string { return defaultDBFile }

func (c *Config) defaults() {
	if c.WAL == nil {
		t := true
		c.WAL = &t
	}
	if c.BusyTimeout == 0 {
		c.BusyTimeout = defaultBusyTimeout
	}
	if c.StreamBatch == 0 {
		c.StreamBatch = repository.DefaultStreamBatch
	}
}

func (c *Config) walEnabled() bool {
	return c.WAL == nil || *c.WAL
}

func (c *Config) validate() error {
	if c.Path == "" {
		return fmt.Errorf("sqlite: path must not be empty")
	}
	if c.BusyTimeout < 0 {
		return fmt.Errorf("sqlite: busy_timeout must be non-negative, got %d", c.BusyTimeout)
	}
	if c.StreamBatch < 0 {
		return fmt.Errorf("sqlite: stream_batch must be non-negative, got %d", c.StreamBatch)
	}
	return nil
}
