package config

import (
	"errors"
	"fmt"
	"slices"

	"github.com/robfig/cron/v3"
)

var validLogLevels = []string{"debug", "info", "warn", "error"}

// Validate checks the structural validity of a Config. All problems are
// reported at once rather than one per run.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Version == "" {
		errs = append(errs, errors.New("config: version field is required"))
	} else if cfg.Version != "1" {
		errs = append(errs, fmt.Errorf("config: unsupported version %q (supported: \"1\")", cfg.Version))
	}

	if !slices.Contains(validLogLevels, cfg.Log.Level) {
		errs = append(errs, fmt.Errorf("config: log.level %q is not one of %v", cfg.Log.Level, validLogLevels))
	}
	if cfg.Log.Format != "text" && cfg.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("config: log.format %q is not text or json", cfg.Log.Format))
	}

	switch cfg.Storage.Backend {
	case BackendSQLite, BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("config: storage.backend %q is not %s or %s",
			cfg.Storage.Backend, BackendSQLite, BackendMemory))
	}

	if cfg.Stream.PaceInterval < 0 {
		errs = append(errs, fmt.Errorf("config: stream.pace_interval must be non-negative, got %s", cfg.Stream.PaceInterval))
	}

	errs = append(errs, validateRetention(cfg.Retention)...)

	return errors.Join(errs...)
}

func validateRetention(r RetentionConfig) []error {
	var errs []error

	if r.Schedule != "" {
		if _, err := cron.ParseStandard(r.Schedule); err != nil {
			errs = append(errs, fmt.Errorf("config: retention.schedule: %w", err))
		}
		if r.MaxAge <= 0 {
			errs = append(errs, errors.New("config: retention.schedule is set but max_age is not positive"))
		}
	}
	if r.MaxAge < 0 {
		errs = append(errs, fmt.Errorf("config: retention.max_age must be non-negative, got %s", r.MaxAge))
	}

	return errs
}
