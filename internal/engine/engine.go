// Package engine executes snapshot schedules and serves the inbound
// operations on schedules and artifacts: create, edit, toggle, delete,
// run now, diff and restore.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/flemzord/snapkeep/internal/action"
	"github.com/flemzord/snapkeep/internal/artifact"
	"github.com/flemzord/snapkeep/internal/metrics"
	"github.com/flemzord/snapkeep/internal/retention"
	"github.com/flemzord/snapkeep/internal/runner"
	"github.com/flemzord/snapkeep/internal/schedule"
	"github.com/flemzord/snapkeep/internal/security"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// ErrTargetRunning is returned by Restore when the target reports running
// and the caller did not force the restore.
var ErrTargetRunning = errors.New("engine: target is running")

const tracerName = "github.com/flemzord/snapkeep/internal/engine"

// AuditSink receives one event per mutating operation and per execution.
// *security.AuditLogger satisfies it.
type AuditSink interface {
	Log(event security.AuditEvent)
}

// Targets resolves target names.
type Targets interface {
	Lookup(name string) (action.Target, bool)
}

// StaticTargets is a fixed set of targets keyed by name.
type StaticTargets map[string]action.Target

// Lookup implements Targets.
func (s StaticTargets) Lookup(name string) (action.Target, bool) {
	t, ok := s[name]
	if ok && t.Name == "" {
		t.Name = name
	}
	return t, ok
}

// Deps are the collaborators of an Engine. Schedules, Artifacts, Actions
// and Targets are required.
type Deps struct {
	Schedules schedule.Repository
	Artifacts artifact.Repository
	Actions   action.Set
	Targets   Targets

	// Runner executes target running checks.
	Runner runner.Runner

	Audit   AuditSink
	Metrics *metrics.Metrics
	Tracer  trace.Tracer
	Logger  *slog.Logger
	Now     func() time.Time
}

// Engine runs schedules. It is safe for concurrent use.
type Engine struct {
	schedules schedule.Repository
	artifacts artifact.Repository
	actions   action.Set
	targets   Targets
	runner    runner.Runner
	pruner    *retention.Pruner
	audit     AuditSink
	metrics   *metrics.Metrics
	tracer    trace.Tracer
	logger    *slog.Logger
	now       func() time.Time
}

// New builds an Engine from d.
func New(d Deps) *Engine {
	e := &Engine{
		schedules: d.Schedules,
		artifacts: d.Artifacts,
		actions:   d.Actions,
		targets:   d.Targets,
		runner:    d.Runner,
		audit:     d.Audit,
		metrics:   d.Metrics,
		tracer:    d.Tracer,
		logger:    d.Logger,
		now:       d.Now,
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.tracer == nil {
		e.tracer = otel.Tracer(tracerName)
	}
	if e.runner == nil {
		e.runner = runner.NewExecRunner(0, e.logger)
	}
	e.pruner = &retention.Pruner{
		Artifacts: e.artifacts,
		Delete:    e.deleteArtifact,
		Logger:    e.logger,
		Now:       e.now,
	}
	return e
}

// deleteArtifact removes stored content first, then the record.
func (e *Engine) deleteArtifact(ctx context.Context, a artifact.Artifact) error {
	act, err := e.actions.For(a.Kind)
	if err != nil {
		return err
	}
	if err := act.Discard(ctx, a); err != nil {
		return err
	}
	return e.artifacts.Delete(ctx, a.ID)
}

type actorKey struct{}

// WithActor attaches the identity recorded on audit events.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

func actorFrom(ctx context.Context) string {
	if a, ok := ctx.Value(actorKey{}).(string); ok && a != "" {
		return a
	}
	return "system"
}

func (e *Engine) emit(ctx context.Context, act, targetType, targetName string, details map[string]any, err error) {
	if e.audit == nil {
		return
	}
	ev := security.AuditEvent{
		Action:     act,
		Actor:      actorFrom(ctx),
		TargetType: targetType,
		TargetName: targetName,
		Status:     security.AuditSuccess,
		Details:    details,
	}
	if err != nil {
		ev.Status = security.AuditFailure
		ev.ErrorMessage = err.Error()
	}
	e.audit.Log(ev)
}
