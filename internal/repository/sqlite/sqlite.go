// Package sqlite implements a persistent SQLite-backed Repository using
// modernc.org/sqlite (pure Go, no CGO) with WAL mode. One logical table
// holds all records keyed by id, with secondary access paths on
// (owner, timestamp) and (owner, conversation_id).
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/memvault/memvault/internal/repository"

	_ "modernc.org/sqlite" // SQLite driver registration
)

// Store is a SQLite-backed repository.Repository.
type Store struct {
	db     *sql.DB
	config Config
	logger *slog.Logger
}

// Compile-time interface check.
var _ repository.Repository = (*Store)(nil)

// Open opens (creating if necessary) the database at cfg.Path, applies
// pragmas, migrates the schema, and returns a ready Store.
func Open(cfg Config, logger *slog.Logger) (*Store, error) {
	cfg.defaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("sqlite: create directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", cfg.Path, err)
	}

	// SQLite handles one writer at a time; limit pool to 1 connection
	// so PRAGMAs apply consistently.
	db.SetMaxOpenConns(1)

	ctx := context.Background()

	if cfg.walEnabled() {
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite: enable WAL: %w", err)
		}
	}

	if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout=%d", cfg.BusyTimeout)); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: set busy_timeout: %w", err)
	}

	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	logger.Info("sqlite repository opened",
		"path", cfg.Path,
		"wal", cfg.walEnabled(),
		"stream_batch", cfg.StreamBatch,
	)

	return &Store{db: db, config: cfg, logger: logger}, nil
}

// Ping implements repository.Repository.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("sqlite: ping: %w", err)
	}
	return nil
}

// Close implements repository.Repository.
func (s *Store) Close() error {
	return s.db.Close()
}
