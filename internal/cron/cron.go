// Package cron drives snapshot schedules and maintenance jobs from cron
// expressions. The registry of live timers is a cache of the schedule
// store and can always be rebuilt from it.
package cron

import (
	"context"

	"github.com/flemzord/snapkeep/internal/schedule"
	"github.com/robfig/cron/v3"
)

// Job defines a periodic maintenance task.
type Job interface {
	// Name returns a unique identifier for this job (used for logging and dedup).
	Name() string

	// Schedule returns a 5-field cron expression (e.g., "*/5 * * * *").
	Schedule() string

	// Run executes the job. Implementations should check ctx.Done() for
	// graceful cancellation.
	Run(ctx context.Context) error
}

// ScheduleSource lists the schedules that should have a live timer.
type ScheduleSource interface {
	FindAllEnabled(ctx context.Context) ([]schedule.Schedule, error)
}

// Executor runs one schedule by id. Errors are logged by the scheduler.
type Executor interface {
	Execute(ctx context.Context, scheduleID string) error
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, scheduleID string) error

// Execute implements Executor.
func (f ExecutorFunc) Execute(ctx context.Context, id string) error { return f(ctx, id) }

// Parser accepts the five-field grammar used by schedules.
var Parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
