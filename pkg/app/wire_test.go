package app

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/flemzord/snapkeep/internal/artifact"
	"github.com/flemzord/snapkeep/internal/config"
	"github.com/flemzord/snapkeep/internal/core"
	"github.com/flemzord/snapkeep/internal/cron"
	"github.com/flemzord/snapkeep/internal/engine"
	"github.com/flemzord/snapkeep/internal/metrics"
	"github.com/flemzord/snapkeep/internal/schedule"
	"github.com/flemzord/snapkeep/internal/security"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testConfig(root string) *config.Config {
	return &config.Config{
		Version: "1",
		Targets: map[string]config.Target{
			"survival": {Root: root, RunningCheck: []string{"docker", "inspect", "survival"}},
		},
	}
}

func TestTargetTable(t *testing.T) {
	table := newTargetTable(testConfig("/srv/survival").Targets)

	got, ok := table.Lookup("survival")
	if !ok {
		t.Fatal("survival not found")
	}
	if got.Name != "survival" || got.ConfigDir != "/srv/survival" ||
		got.WorldsDir != filepath.Join("/srv/survival", "worlds") || got.BackupRepo != "/srv/survival" {
		t.Errorf("target = %+v", got)
	}

	table.set(map[string]config.Target{"creative": {Root: "/srv/creative"}})
	if _, ok := table.Lookup("survival"); ok {
		t.Error("survival still resolvable after swap")
	}
	if _, ok := table.Lookup("creative"); !ok {
		t.Error("creative not found after swap")
	}
}

func TestWire_RegistersServices(t *testing.T) {
	appCtx := core.NewAppContext(testLogger(), t.TempDir())
	app := core.NewApp(appCtx)
	audit := security.NewAuditLogger(security.AuditLoggerConfig{})

	rt, err := wire(app, appCtx, testConfig(t.TempDir()), audit)
	if err != nil {
		t.Fatalf("wire: %v", err)
	}

	if svc, err := core.Service[*engine.Service](appCtx, engine.ServiceName); err != nil || svc != rt.service {
		t.Errorf("engine service = %v, %v", svc, err)
	}
	if s, err := core.Service[*cron.Scheduler](appCtx, cron.ServiceName); err != nil || s != rt.scheduler {
		t.Errorf("scheduler service = %v, %v", s, err)
	}
	if m, err := core.Service[*metrics.Metrics](appCtx, metrics.ServiceName); err != nil || m != rt.metrics {
		t.Errorf("metrics service = %v, %v", m, err)
	}
	if _, ok := app.Module("engine.scheduler"); !ok {
		t.Error("scheduler module not appended")
	}
}

func TestWire_InvalidTimeout(t *testing.T) {
	appCtx := core.NewAppContext(testLogger(), t.TempDir())
	cfg := testConfig(t.TempDir())
	cfg.Engine.CommandTimeout = "soon"

	if _, err := wire(core.NewApp(appCtx), appCtx, cfg, nil); err == nil {
		t.Error("expected error for invalid command_timeout")
	}
}

func TestWire_LifecycleAndReload(t *testing.T) {
	appCtx := core.NewAppContext(testLogger(), t.TempDir())
	app := core.NewApp(appCtx)

	rt, err := wire(app, appCtx, testConfig(t.TempDir()), nil)
	if err != nil {
		t.Fatalf("wire: %v", err)
	}
	if err := app.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(app.Stop)

	ctx := context.Background()
	if _, err := rt.service.CreateSchedule(ctx, schedule.NewParams{
		Target:         "survival",
		Name:           "nightly",
		Kind:           artifact.KindFileSet,
		CronExpression: "0 3 * * *",
	}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if n := rt.scheduler.ActiveTaskCount(); n != 1 {
		t.Errorf("active tasks = %d, want 1", n)
	}

	next := testConfig(t.TempDir())
	next.Targets["creative"] = config.Target{Root: t.TempDir()}
	if err := rt.reload(ctx, next); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if _, ok := rt.targets.Lookup("creative"); !ok {
		t.Error("reload did not pick up the new target")
	}
	if n := rt.scheduler.ActiveTaskCount(); n != 1 {
		t.Errorf("active tasks after reload = %d, want 1", n)
	}
}

func TestRepositories_PrefersRegisteredStores(t *testing.T) {
	appCtx := core.NewAppContext(testLogger(), t.TempDir())
	schedules := schedule.NewInMemoryRepository()
	artifacts := artifact.NewInMemoryRepository()
	appCtx.RegisterService(schedule.ServiceName, schedule.Repository(schedules))
	appCtx.RegisterService(artifact.ServiceName, artifact.Repository(artifacts))

	s, a := repositories(appCtx)
	if s != schedule.Repository(schedules) || a != artifact.Repository(artifacts) {
		t.Error("registered stores not used")
	}
}

func TestRepositories_FallsBackToMemory(t *testing.T) {
	appCtx := core.NewAppContext(testLogger(), t.TempDir())
	s, a := repositories(appCtx)
	if _, ok := s.(*schedule.InMemoryRepository); !ok {
		t.Errorf("schedules = %T", s)
	}
	if _, ok := a.(*artifact.InMemoryRepository); !ok {
		t.Errorf("artifacts = %T", a)
	}
}
