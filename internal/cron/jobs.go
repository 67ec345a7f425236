package cron

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/memvault/memvault/internal/record"
)

// Pruner is the subset of the repository needed by the retention job.
// Defined here to avoid a dependency on the repository package.
type Pruner interface {
	PruneBefore(ctx context.Context, cutoff string) (int, error)
}

// RetentionJob deletes records older than MaxAge across all owners.
type RetentionJob struct {
	Repo         Pruner
	MaxAge       time.Duration
	Logger       *slog.Logger
	ScheduleExpr string // empty = default "0 3 * * *"
}

// Compile-time interface check.
var _ Job = (*RetentionJob)(nil)

// Name implements Job.
func (j *RetentionJob) Name() string { return "retention_prune" }

// Schedule implements Job.
func (j *RetentionJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return "0 3 * * *"
}

// Run prunes records whose timestamp falls before now minus MaxAge.
func (j *RetentionJob) Run(ctx context.Context) error {
	cutoff := record.FormatTimestamp(time.Now().Add(-j.MaxAge))

	pruned, err := j.Repo.PruneBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("cron: retention prune: %w", err)
	}
	if pruned > 0 {
		j.Logger.Info("cron: pruned expired records", "count", pruned, "cutoff", cutoff)
	}
	return nil
}
