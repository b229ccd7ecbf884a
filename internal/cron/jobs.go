package cron

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Sweeper is the subset of blobstore.Store needed by SweepJob.
type Sweeper interface {
	Sweep(maxAge time.Duration) (int, error)
}

// SweepJob removes temporary snapshot directories abandoned by saves that
// never completed.
type SweepJob struct {
	Store        Sweeper
	MaxAge       time.Duration // empty = 1h
	Logger       *slog.Logger
	ScheduleExpr string // empty = default "17 * * * *"
}

// Compile-time interface check.
var _ Job = (*SweepJob)(nil)

// Name implements Job.
func (j *SweepJob) Name() string { return "blobstore.sweep" }

// Schedule implements Job.
func (j *SweepJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return "17 * * * *"
}

// Run sweeps temporary directories older than MaxAge.
func (j *SweepJob) Run(ctx context.Context) error {
	if ctx.Err() != nil {
		return fmt.Errorf("cron: sweep cancelled: %w", ctx.Err())
	}
	maxAge := j.MaxAge
	if maxAge <= 0 {
		maxAge = time.Hour
	}
	removed, err := j.Store.Sweep(maxAge)
	if removed > 0 {
		j.Logger.Info("cron: swept abandoned snapshot directories", "count", removed)
	}
	return err
}

// Reloader is the subset of Scheduler needed by ReconcileJob.
type Reloader interface {
	Reload(ctx context.Context)
}

// ReconcileJob periodically rebuilds the schedule registry from the store
// so edits made by other processes are picked up.
type ReconcileJob struct {
	Scheduler    Reloader
	Logger       *slog.Logger
	ScheduleExpr string // empty = default "*/15 * * * *"
}

// Compile-time interface check.
var _ Job = (*ReconcileJob)(nil)

// Name implements Job.
func (j *ReconcileJob) Name() string { return "schedule.reconcile" }

// Schedule implements Job.
func (j *ReconcileJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return "*/15 * * * *"
}

// Run reloads the scheduler.
func (j *ReconcileJob) Run(ctx context.Context) error {
	if ctx.Err() != nil {
		return fmt.Errorf("cron: reconcile cancelled: %w", ctx.Err())
	}
	j.Logger.Debug("cron: reconciling schedules with the store")
	j.Scheduler.Reload(ctx)
	return nil
}
