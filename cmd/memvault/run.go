package main

import (
	"context"
	"log/slog"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/memvault/memvault/internal/config"
	"github.com/memvault/memvault/internal/cron"
	"github.com/memvault/memvault/internal/gateway"
	"github.com/memvault/memvault/internal/mcp"
	"github.com/memvault/memvault/internal/repository"
	"github.com/memvault/memvault/internal/repository/memstore"
	"github.com/memvault/memvault/internal/repository/sqlite"
	"github.com/memvault/memvault/internal/telemetry"
)

// run wires the repository, MCP surface, gateway, and background jobs
// together and blocks until a shutdown signal arrives.
func run(cfg *config.Config) error {
	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry, version, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn("tracing shutdown failed", "error", err)
		}
	}()

	repo, err := openRepository(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := repo.Close(); err != nil {
			logger.Warn("repository close failed", "error", err)
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := mcp.NewMetrics(reg)

	tools := mcp.NewToolRegistry(logger)
	resources := mcp.NewResourceRegistry()
	mcp.RegisterBuiltins(tools, resources, repo)

	dispatcher := mcp.NewDispatcher(tools, resources, logger, metrics)
	stream := &mcp.StreamEngine{
		Interval: cfg.Stream.PaceInterval,
		Logger:   logger,
		Metrics:  metrics,
	}

	srv := gateway.New(cfg.Server, dispatcher, stream, repo, reg, logger)
	if err := srv.Start(); err != nil {
		return err
	}

	scheduler := cron.NewScheduler(logger)
	if cfg.Retention.Enabled() {
		job := &cron.RetentionJob{
			Repo:         repo,
			MaxAge:       cfg.Retention.MaxAge,
			Logger:       logger,
			ScheduleExpr: cfg.Retention.Schedule,
		}
		if err := scheduler.RegisterJob(job); err != nil {
			return err
		}
	}
	if err := scheduler.Start(); err != nil {
		return err
	}

	logger.Info("memvault started", "version", version, "storage", cfg.Storage.Backend)
	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx := context.Background()
	if err := scheduler.Stop(shutdownCtx); err != nil {
		logger.Warn("scheduler stop failed", "error", err)
	}
	return srv.Stop(shutdownCtx)
}

// openRepository builds the configured storage backend. A missing SQLite
// path falls back to the user data directory.
func openRepository(cfg *config.Config, logger *slog.Logger) (repository.Repository, error) {
	switch cfg.Storage.Backend {
	case config.BackendMemory:
		logger.Warn("using in-memory storage, records will not survive restarts")
		return memstore.New(), nil
	default:
		sqliteCfg := cfg.Storage.SQLite
		if sqliteCfg.Path == "" {
			sqliteCfg.Path = filepath.Join(defaultDataDir(), sqlite.DefaultFileName())
		}
		return sqlite.Open(sqliteCfg, logger)
	}
}
