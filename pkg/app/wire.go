package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/flemzord/snapkeep/internal/action"
	"github.com/flemzord/snapkeep/internal/artifact"
	"github.com/flemzord/snapkeep/internal/blobstore"
	"github.com/flemzord/snapkeep/internal/collect"
	"github.com/flemzord/snapkeep/internal/config"
	"github.com/flemzord/snapkeep/internal/core"
	"github.com/flemzord/snapkeep/internal/cron"
	"github.com/flemzord/snapkeep/internal/engine"
	"github.com/flemzord/snapkeep/internal/metrics"
	"github.com/flemzord/snapkeep/internal/runner"
	"github.com/flemzord/snapkeep/internal/schedule"
	"github.com/flemzord/snapkeep/modules/telemetry/otlp"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/flemzord/snapkeep/internal/engine"

// schedulerModule wraps a *cron.Scheduler so it participates in the App
// lifecycle. It is appended last and therefore stopped first.
type schedulerModule struct {
	scheduler *cron.Scheduler
}

func (m *schedulerModule) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{ID: "engine.scheduler"}
}

func (m *schedulerModule) Start() error {
	return m.scheduler.Initialize(context.Background())
}

func (m *schedulerModule) Stop(ctx context.Context) error {
	return m.scheduler.Shutdown(ctx)
}

// targetTable resolves target names against the latest loaded config.
type targetTable struct {
	current atomic.Pointer[engine.StaticTargets]
}

var _ engine.Targets = (*targetTable)(nil)

func newTargetTable(targets map[string]config.Target) *targetTable {
	t := &targetTable{}
	t.set(targets)
	return t
}

func (t *targetTable) Lookup(name string) (action.Target, bool) {
	return t.current.Load().Lookup(name)
}

func (t *targetTable) set(targets map[string]config.Target) {
	table := make(engine.StaticTargets, len(targets))
	for name, ct := range targets {
		configDir, worldsDir, backupRepo := ct.Dirs()
		table[name] = action.Target{
			Name:         name,
			ConfigDir:    configDir,
			WorldsDir:    worldsDir,
			BackupRepo:   backupRepo,
			RunningCheck: ct.RunningCheck,
		}
	}
	t.current.Store(&table)
}

// runtime holds the components wired around the engine.
type runtime struct {
	service   *engine.Service
	scheduler *cron.Scheduler
	metrics   *metrics.Metrics
	targets   *targetTable
	logger    *slog.Logger
}

// reload swaps the target table and re-reads schedules from the store.
func (rt *runtime) reload(ctx context.Context, cfg *config.Config) error {
	rt.targets.set(cfg.Targets)
	rt.scheduler.Reload(ctx)
	rt.logger.Info("engine: reloaded", "targets", len(cfg.Targets), "active_tasks", rt.scheduler.ActiveTaskCount())
	return nil
}

// wire builds the engine, its scheduler and the maintenance jobs, registers
// them as services, and appends the scheduler to the app lifecycle. Must be
// called after LoadModules and before Start.
func wire(app *core.App, appCtx *core.AppContext, cfg *config.Config, audit engine.AuditSink) (*runtime, error) {
	logger := appCtx.Logger

	timeout, err := cfg.Engine.Timeout()
	if err != nil {
		return nil, fmt.Errorf("engine: command_timeout: %w", err)
	}
	maxAge, err := cfg.Engine.MaxTempAge()
	if err != nil {
		return nil, fmt.Errorf("engine: sweep_max_age: %w", err)
	}

	exec := runner.NewExecRunner(timeout, logger)
	blobs := blobstore.New(cfg.Engine.SnapshotPath(appCtx.DataDir), logger)
	actions := action.NewSet(
		&action.FileSet{Collector: collect.FSCollector{}, Blobs: blobs, Logger: logger},
		&action.Push{Runner: exec, Root: cfg.Engine.Root, Timeout: timeout, Logger: logger},
	)

	schedules, artifacts := repositories(appCtx)
	targets := newTargetTable(cfg.Targets)
	m := metrics.New()

	e := engine.New(engine.Deps{
		Schedules: schedules,
		Artifacts: artifacts,
		Actions:   actions,
		Targets:   targets,
		Runner:    exec,
		Audit:     audit,
		Metrics:   m,
		Tracer:    tracer(appCtx),
		Logger:    logger,
	})

	scheduler := cron.NewScheduler(schedules, e, cron.WithLogger(logger), cron.WithMetrics(m))
	jobs := []cron.Job{
		&cron.SweepJob{Store: blobs, MaxAge: maxAge, Logger: logger, ScheduleExpr: cfg.Engine.Sweep()},
		&cron.ReconcileJob{Scheduler: scheduler, Logger: logger, ScheduleExpr: cfg.Engine.Reconcile()},
	}
	for _, j := range jobs {
		if err := scheduler.RegisterJob(j); err != nil {
			return nil, err
		}
	}

	svc := engine.NewService(e, scheduler)
	appCtx.RegisterService(engine.ServiceName, svc)
	appCtx.RegisterService(cron.ServiceName, scheduler)
	appCtx.RegisterService(metrics.ServiceName, m)

	app.AppendModule("engine.scheduler", &schedulerModule{scheduler: scheduler})

	return &runtime{
		service:   svc,
		scheduler: scheduler,
		metrics:   m,
		targets:   targets,
		logger:    logger,
	}, nil
}

// repositories returns the stores registered by a store module, falling
// back to in-memory stores when none is configured.
func repositories(appCtx *core.AppContext) (schedule.Repository, artifact.Repository) {
	schedules, errS := core.Service[schedule.Repository](appCtx, schedule.ServiceName)
	artifacts, errA := core.Service[artifact.Repository](appCtx, artifact.ServiceName)
	if errS == nil && errA == nil {
		return schedules, artifacts
	}
	appCtx.Logger.Warn("engine: no store module configured, schedules and artifacts are kept in memory")
	return schedule.NewInMemoryRepository(), artifact.NewInMemoryRepository()
}

func tracer(appCtx *core.AppContext) trace.Tracer {
	tp, err := core.Service[trace.TracerProvider](appCtx, otlp.ServiceTracerProvider)
	if err != nil {
		return nil
	}
	return tp.Tracer(tracerName)
}
