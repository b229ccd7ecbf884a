package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/flemzord/snapkeep/internal/action"
	"github.com/flemzord/snapkeep/internal/artifact"
	"github.com/flemzord/snapkeep/internal/diff"
	"github.com/flemzord/snapkeep/internal/errdefs"
	"github.com/flemzord/snapkeep/internal/schedule"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ServiceName is the AppContext service key of the running Service.
const ServiceName = "engine.service"

// SafetyDescription labels the artifact captured before a restore.
const SafetyDescription = "Pre-restore safety snapshot"

// Registry is the live timer registry kept in step with schedule edits.
// *cron.Scheduler satisfies it.
type Registry interface {
	UpdateSchedule(s schedule.Schedule) error
	UnregisterTask(id string)
	RunNow(ctx context.Context, id string) error
}

// Service is the inbound API of the engine. Every mutation is written to
// the store first; the registry follows.
type Service struct {
	*Engine
	registry Registry
}

// NewService wraps e, keeping registry in step with schedule edits.
func NewService(e *Engine, registry Registry) *Service {
	return &Service{Engine: e, registry: registry}
}

// CreateSchedule validates p, persists the schedule and registers it
// when enabled.
func (s *Service) CreateSchedule(ctx context.Context, p schedule.NewParams) (schedule.Schedule, error) {
	sched, err := s.createSchedule(ctx, p)
	s.emit(ctx, "schedule.create", "server", p.Target, map[string]any{"name": p.Name, "cron": p.CronExpression}, err)
	return sched, err
}

func (s *Service) createSchedule(ctx context.Context, p schedule.NewParams) (schedule.Schedule, error) {
	sched, err := schedule.New(p, s.now())
	if err != nil {
		return schedule.Schedule{}, err
	}
	if _, ok := s.targets.Lookup(sched.Target); !ok {
		return schedule.Schedule{}, errdefs.NotFound("target", sched.Target)
	}
	if err := s.schedules.Create(ctx, sched); err != nil {
		return schedule.Schedule{}, err
	}
	s.sync(sched)
	return sched, nil
}

// UpdateSchedule applies p to the schedule and re-registers it.
func (s *Service) UpdateSchedule(ctx context.Context, id string, p schedule.UpdateParams) (schedule.Schedule, error) {
	sched, err := s.mutate(ctx, id, func(cur schedule.Schedule) (schedule.Schedule, error) {
		return cur.Apply(p, s.now())
	})
	s.emit(ctx, "schedule.update", "schedule", id, nil, err)
	return sched, err
}

// SetEnabled toggles the schedule; the registry gains or loses one task.
func (s *Service) SetEnabled(ctx context.Context, id string, enabled bool) (schedule.Schedule, error) {
	sched, err := s.mutate(ctx, id, func(cur schedule.Schedule) (schedule.Schedule, error) {
		return cur.WithEnabled(enabled, s.now()), nil
	})
	s.emit(ctx, "schedule.toggle", "schedule", id, map[string]any{"enabled": enabled}, err)
	return sched, err
}

func (s *Service) mutate(ctx context.Context, id string, fn func(schedule.Schedule) (schedule.Schedule, error)) (schedule.Schedule, error) {
	cur, err := s.schedules.FindByID(ctx, id)
	if err != nil {
		return schedule.Schedule{}, err
	}
	next, err := fn(cur)
	if err != nil {
		return schedule.Schedule{}, err
	}
	if err := s.schedules.Update(ctx, next); err != nil {
		return schedule.Schedule{}, err
	}
	s.sync(next)
	return next, nil
}

// DeleteSchedule removes the schedule and its timer. Artifacts it produced
// are kept.
func (s *Service) DeleteSchedule(ctx context.Context, id string) error {
	err := s.schedules.Delete(ctx, id)
	if err == nil {
		s.registry.UnregisterTask(id)
	}
	s.emit(ctx, "schedule.delete", "schedule", id, nil, err)
	return err
}

// GetSchedule returns one schedule.
func (s *Service) GetSchedule(ctx context.Context, id string) (schedule.Schedule, error) {
	return s.schedules.FindByID(ctx, id)
}

// ListSchedules returns the schedules of target, or all schedules when
// target is empty.
func (s *Service) ListSchedules(ctx context.Context, target string) ([]schedule.Schedule, error) {
	if target == "" {
		return s.schedules.FindAll(ctx)
	}
	return s.schedules.FindByTarget(ctx, target)
}

// RunNow executes the schedule immediately and returns it with the
// recorded outcome. It fails with cron.ErrAlreadyRunning while a firing
// of the same schedule is in flight.
func (s *Service) RunNow(ctx context.Context, id string) (schedule.Schedule, error) {
	sched, err := s.schedules.FindByID(ctx, id)
	if err != nil {
		return schedule.Schedule{}, err
	}
	if !sched.Enabled {
		return schedule.Schedule{}, errdefs.Validationf("schedule %s is disabled", id)
	}
	if err := s.registry.RunNow(ctx, id); err != nil {
		return schedule.Schedule{}, err
	}
	return s.schedules.FindByID(ctx, id)
}

// sync mirrors a stored schedule into the registry. A registration
// failure leaves the store as the truth; the next reload retries it.
func (s *Service) sync(sched schedule.Schedule) {
	if err := s.registry.UpdateSchedule(sched); err != nil {
		s.logger.Error("engine: cannot sync schedule with registry", "schedule", sched.ID, "error", err)
	}
}

// CreateArtifact captures target on demand. The artifact has no schedule.
func (s *Service) CreateArtifact(ctx context.Context, target string, kind artifact.Kind, description string) (artifact.Artifact, error) {
	a, err := s.createArtifact(ctx, target, kind, description)
	s.emit(ctx, "artifact.create", "server", target, map[string]any{"kind": string(kind), "artifactId": a.ID}, err)
	return a, err
}

func (s *Service) createArtifact(ctx context.Context, target string, kind artifact.Kind, description string) (artifact.Artifact, error) {
	kind, err := artifact.ParseKind(string(kind))
	if err != nil {
		return artifact.Artifact{}, err
	}
	t, ok := s.targets.Lookup(target)
	if !ok {
		return artifact.Artifact{}, errdefs.NotFound("target", target)
	}
	act, err := s.actions.For(kind)
	if err != nil {
		return artifact.Artifact{}, err
	}
	if err := act.Precheck(t); err != nil {
		return artifact.Artifact{}, errdefs.Validationf("%s", err.Error())
	}
	out, err := act.Produce(ctx, action.Request{Target: t, Description: description, Now: s.now()})
	if err != nil {
		if isNoChanges(err) {
			return artifact.Artifact{}, fmt.Errorf("engine: %w", action.ErrNoChanges)
		}
		return artifact.Artifact{}, err
	}
	if err := s.artifacts.Create(ctx, out.Artifact); err != nil {
		_ = act.Discard(ctx, out.Artifact)
		return artifact.Artifact{}, err
	}
	return out.Artifact, nil
}

// ListArtifacts returns the artifacts of target, newest first.
func (s *Service) ListArtifacts(ctx context.Context, target string) ([]artifact.Artifact, error) {
	return s.artifacts.FindByTarget(ctx, target)
}

// GetArtifact returns an artifact owned by target.
func (s *Service) GetArtifact(ctx context.Context, target, id string) (artifact.Artifact, error) {
	a, err := s.artifacts.FindByID(ctx, id)
	if err != nil {
		return artifact.Artifact{}, err
	}
	if a.Target != target {
		return artifact.Artifact{}, errdefs.NotFound("artifact", id)
	}
	return a, nil
}

// DeleteArtifact removes an artifact owned by target, content first.
func (s *Service) DeleteArtifact(ctx context.Context, target, id string) error {
	a, err := s.GetArtifact(ctx, target, id)
	if err == nil {
		err = s.deleteArtifact(ctx, a)
	}
	s.emit(ctx, "artifact.delete", "server", target, map[string]any{"artifactId": id}, err)
	return err
}

// RestoreOptions tunes Restore.
type RestoreOptions struct {
	// SkipSafetyArtifact restores without capturing the current state first.
	SkipSafetyArtifact bool

	// Force restores even when the target reports running.
	Force bool
}

// RestoreResult reports what Restore did.
type RestoreResult struct {
	ArtifactID string

	// SafetyArtifactID is the capture taken before restoring, empty when
	// skipped or when there was nothing new to capture.
	SafetyArtifactID string
}

// Restore writes artifact id back onto target.
func (s *Service) Restore(ctx context.Context, target, id string, opts RestoreOptions) (RestoreResult, error) {
	ctx, span := s.tracer.Start(ctx, "engine.restore", trace.WithAttributes(
		attribute.String("artifact.id", id),
		attribute.String("target", target),
		attribute.Bool("restore.force", opts.Force),
	))
	defer span.End()

	res, err := s.restore(ctx, target, id, opts)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	}
	s.emit(ctx, "artifact.restore", "server", target, map[string]any{
		"artifactId":       id,
		"safetyArtifactId": res.SafetyArtifactID,
		"force":            opts.Force,
	}, err)
	return res, err
}

func (s *Service) restore(ctx context.Context, target, id string, opts RestoreOptions) (RestoreResult, error) {
	a, err := s.GetArtifact(ctx, target, id)
	if err != nil {
		return RestoreResult{}, err
	}
	t, ok := s.targets.Lookup(target)
	if !ok {
		return RestoreResult{}, errdefs.NotFound("target", target)
	}
	act, err := s.actions.For(a.Kind)
	if err != nil {
		return RestoreResult{}, err
	}

	if !opts.Force {
		running, err := s.isRunning(ctx, t)
		if err != nil {
			return RestoreResult{}, err
		}
		if running {
			return RestoreResult{}, fmt.Errorf("%w: %s", ErrTargetRunning, target)
		}
	}

	res := RestoreResult{ArtifactID: a.ID}
	if !opts.SkipSafetyArtifact {
		safety, err := s.createArtifact(ctx, target, a.Kind, SafetyDescription)
		switch {
		case errors.Is(err, action.ErrNoChanges):
		case err != nil:
			return RestoreResult{}, fmt.Errorf("engine: safety snapshot: %w", err)
		default:
			res.SafetyArtifactID = safety.ID
		}
	}

	if err := act.Restore(ctx, t, a); err != nil {
		return res, err
	}
	s.logger.Info("engine: artifact restored", "target", target, "artifact", a.ID, "safety", res.SafetyArtifactID)
	return res, nil
}

// Diff compares two artifacts of the same kind.
func (s *Service) Diff(ctx context.Context, baseID, compareID string) (diff.Result, error) {
	base, err := s.artifacts.FindByID(ctx, baseID)
	if err != nil {
		return diff.Result{}, err
	}
	compare, err := s.artifacts.FindByID(ctx, compareID)
	if err != nil {
		return diff.Result{}, err
	}
	if base.Kind != compare.Kind {
		return diff.Result{}, errdefs.Validationf("cannot compare %s artifact with %s artifact", base.Kind, compare.Kind)
	}
	act, err := s.actions.For(base.Kind)
	if err != nil {
		return diff.Result{}, err
	}

	baseSide, err := s.side(ctx, act, base)
	if err != nil {
		return diff.Result{}, err
	}
	compareSide, err := s.side(ctx, act, compare)
	if err != nil {
		return diff.Result{}, err
	}
	return diff.Compute(baseSide, compareSide), nil
}

func (s *Service) side(ctx context.Context, act action.Action, a artifact.Artifact) (diff.Side, error) {
	t, ok := s.targets.Lookup(a.Target)
	if !ok {
		if a.Kind == artifact.KindVersionedPush {
			return diff.Side{}, errdefs.NotFound("target", a.Target)
		}
		t = action.Target{Name: a.Target}
	}
	hashes, err := act.Tree(ctx, t, a)
	if err != nil {
		return diff.Side{}, err
	}
	content, err := act.Content(ctx, t, a)
	if err != nil {
		s.logger.Warn("engine: artifact content unavailable for diff", "artifact", a.ID, "error", err)
		content = nil
	}
	return diff.Side{ID: a.ID, Hashes: hashes, Content: content}, nil
}
