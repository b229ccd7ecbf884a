package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/flemzord/snapkeep/internal/action"
	"github.com/flemzord/snapkeep/internal/artifact"
	"github.com/flemzord/snapkeep/internal/errdefs"
	"github.com/flemzord/snapkeep/internal/runner"
	"github.com/flemzord/snapkeep/internal/schedule"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// NoChangesMessage is recorded when a push finds nothing to commit.
const NoChangesMessage = "No changes to backup"

const noChangesMarker = "nothing to commit"

// Execute runs one firing of the schedule and records its outcome on the
// schedule. Missing and disabled schedules are skipped. Execution failures
// become a recorded failure, never a returned error; only a failure to
// record the outcome is returned.
func (e *Engine) Execute(ctx context.Context, scheduleID string) error {
	ctx, span := e.tracer.Start(ctx, "engine.execute",
		trace.WithAttributes(attribute.String("schedule.id", scheduleID)))
	defer span.End()

	s, err := e.schedules.FindByID(ctx, scheduleID)
	if err != nil && !errdefs.IsNotFound(err) {
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("engine: load schedule %s: %w", scheduleID, err)
	}
	if err != nil || !s.Enabled {
		e.logger.Warn("engine: skipping disabled/missing schedule", "schedule", scheduleID)
		return nil
	}
	span.SetAttributes(
		attribute.String("schedule.kind", string(s.Kind)),
		attribute.String("schedule.target", s.Target),
	)

	start := e.now()
	status, message, artifactID := e.run(ctx, s)
	elapsed := e.now().Sub(start)
	e.metrics.ObserveRun(string(s.Kind), string(status), elapsed)

	details := map[string]any{
		"scheduleId": s.ID,
		"kind":       string(s.Kind),
		"message":    message,
	}
	if artifactID != "" {
		details["artifactId"] = artifactID
	}
	var runErr error
	if status == schedule.StatusFailure {
		runErr = errors.New(message)
		span.SetStatus(codes.Error, message)
		e.logger.Error("engine: execution failed", "schedule", s.ID, "target", s.Target, "message", message)
	} else {
		e.logger.Info("engine: execution finished", "schedule", s.ID, "target", s.Target, "message", message, "duration", elapsed)
	}
	e.emit(ctx, "schedule.execute", "server", s.Target, details, runErr)

	return e.recordRun(ctx, s.ID, status, message)
}

// run performs the action and classifies the outcome.
func (e *Engine) run(ctx context.Context, s schedule.Schedule) (schedule.RunStatus, string, string) {
	t, ok := e.targets.Lookup(s.Target)
	if !ok {
		return schedule.StatusFailure, fmt.Sprintf("Target %s is not configured", s.Target), ""
	}
	act, err := e.actions.For(s.Kind)
	if err != nil {
		return schedule.StatusFailure, err.Error(), ""
	}
	if err := act.Precheck(t); err != nil {
		return schedule.StatusFailure, err.Error(), ""
	}

	now := e.now()
	out, err := act.Produce(ctx, action.Request{
		Target:      t,
		ScheduleID:  s.ID,
		Description: Description(s, now),
		Now:         now,
	})
	if err != nil {
		if isNoChanges(err) {
			return schedule.StatusSuccess, NoChangesMessage, ""
		}
		return schedule.StatusFailure, runner.Diagnostic(err), ""
	}

	if err := e.artifacts.Create(ctx, out.Artifact); err != nil {
		if derr := act.Discard(ctx, out.Artifact); derr != nil {
			e.logger.Warn("engine: cannot discard unrecorded content", "artifact", out.Artifact.ID, "error", derr)
		}
		return schedule.StatusFailure, runner.Diagnostic(err), ""
	}

	e.prune(ctx, s, out.Artifact.ID)
	return schedule.StatusSuccess, out.Message, out.Artifact.ID
}

// prune applies retention after a successful run. Failures are logged.
func (e *Engine) prune(ctx context.Context, s schedule.Schedule, keepID string) {
	ctx, span := e.tracer.Start(ctx, "engine.retention",
		trace.WithAttributes(attribute.String("schedule.id", s.ID)))
	defer span.End()

	n, err := e.pruner.Prune(ctx, s, keepID)
	e.metrics.AddRetentionDeleted(n)
	span.SetAttributes(attribute.Int("retention.deleted", n))
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		e.logger.Warn("engine: retention failed", "schedule", s.ID, "error", err)
	}
}

// recordRun stores the outcome in the last-run fields only, so edits made
// while the execution ran are kept.
func (e *Engine) recordRun(ctx context.Context, id string, status schedule.RunStatus, message string) error {
	err := e.schedules.RecordRun(ctx, id, status, message, e.now())
	if errdefs.IsNotFound(err) {
		e.logger.Warn("engine: schedule deleted during execution", "schedule", id)
		return nil
	}
	if err != nil {
		return fmt.Errorf("engine: record run of %s: %w", id, err)
	}
	return nil
}

// Description returns the artifact description, or commit message, used
// for a scheduled firing at now.
func Description(s schedule.Schedule, now time.Time) string {
	stamp := now.UTC().Format(time.RFC3339)
	if s.Kind == artifact.KindVersionedPush {
		return fmt.Sprintf("Scheduled backup: %s [%s]", s.Name, stamp)
	}
	return fmt.Sprintf("Scheduled: %s [%s]", s.Name, stamp)
}

func isNoChanges(err error) bool {
	return errors.Is(err, action.ErrNoChanges) || strings.Contains(runner.Diagnostic(err), noChangesMarker)
}
