package engine

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/flemzord/snapkeep/internal/action"
	"github.com/flemzord/snapkeep/internal/artifact"
	"github.com/flemzord/snapkeep/internal/blobstore"
	"github.com/flemzord/snapkeep/internal/collect"
	"github.com/flemzord/snapkeep/internal/cron"
	"github.com/flemzord/snapkeep/internal/runner"
	"github.com/flemzord/snapkeep/internal/runner/runnertest"
	"github.com/flemzord/snapkeep/internal/schedule"
	"github.com/flemzord/snapkeep/internal/security"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fixture struct {
	svc       *Service
	scheduler *cron.Scheduler
	schedules *schedule.InMemoryRepository
	artifacts *artifact.InMemoryRepository
	blobs     *blobstore.Store
	rec       *runnertest.Recorder
	clock     *clock
	target    action.Target
	running   atomic.Bool

	// onCommand, when set, runs before every recorded command.
	onCommand func(c runner.Command)

	mu     sync.Mutex
	events []security.AuditEvent
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	dir := filepath.Join(t.TempDir(), "survival")
	writeFile(t, filepath.Join(dir, "server.properties"), "motd=hello")
	writeFile(t, filepath.Join(dir, "ops.json"), "[]")
	if err := os.MkdirAll(filepath.Join(dir, "worlds"), 0o750); err != nil {
		t.Fatal(err)
	}

	f := &fixture{
		schedules: schedule.NewInMemoryRepository(),
		artifacts: artifact.NewInMemoryRepository(),
		blobs:     blobstore.New(t.TempDir(), nil),
		clock:     &clock{t: time.Date(2026, 3, 1, 3, 0, 0, 0, time.UTC)},
		target: action.Target{
			Name:         "survival",
			ConfigDir:    dir,
			WorldsDir:    filepath.Join(dir, "worlds"),
			BackupRepo:   dir,
			RunningCheck: []string{"docker", "inspect", "survival"},
		},
	}
	f.rec = &runnertest.Recorder{RunFunc: func(c runner.Command) (runner.Result, error) {
		if f.onCommand != nil {
			f.onCommand(c)
		}
		if c.Program == "docker" {
			if f.running.Load() {
				return runner.Result{Stdout: "true"}, nil
			}
			return runner.Result{}, runnertest.Fail("docker", "", 1)
		}
		if slices.Contains(c.Args, "rev-parse") {
			return runner.Result{Stdout: "abc1234\n"}, nil
		}
		return runner.Result{}, nil
	}}

	audit := security.NewAuditLogger(security.AuditLoggerConfig{
		OnEvent: func(ev security.AuditEvent) {
			f.mu.Lock()
			f.events = append(f.events, ev)
			f.mu.Unlock()
		},
	})

	e := New(Deps{
		Schedules: f.schedules,
		Artifacts: f.artifacts,
		Actions: action.NewSet(
			&action.FileSet{Collector: collect.FSCollector{}, Blobs: f.blobs},
			&action.Push{Runner: f.rec, Root: "/srv"},
		),
		Targets: StaticTargets{"survival": f.target},
		Runner:  f.rec,
		Audit:   audit,
		Now:     f.clock.Now,
	})
	f.scheduler = cron.NewScheduler(f.schedules, e)
	t.Cleanup(func() { _ = f.scheduler.Shutdown(context.Background()) })
	f.svc = NewService(e, f.scheduler)
	return f
}

func writeFile(t *testing.T, p, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(p), 0o750); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(content), 0o640); err != nil {
		t.Fatal(err)
	}
}

func (f *fixture) auditActions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.events))
	for i, ev := range f.events {
		out[i] = ev.Action + ":" + string(ev.Status)
	}
	return out
}

func (f *fixture) createSchedule(t *testing.T, p schedule.NewParams) schedule.Schedule {
	t.Helper()
	if p.Target == "" {
		p.Target = "survival"
	}
	if p.Name == "" {
		p.Name = "nightly"
	}
	if p.CronExpression == "" {
		p.CronExpression = "0 3 * * *"
	}
	s, err := f.svc.CreateSchedule(context.Background(), p)
	if err != nil {
		t.Fatalf("create schedule: %v", err)
	}
	return s
}

func (f *fixture) mustSchedule(t *testing.T, id string) schedule.Schedule {
	t.Helper()
	s, err := f.schedules.FindByID(context.Background(), id)
	if err != nil {
		t.Fatalf("find schedule: %v", err)
	}
	return s
}

func intPtr(n int) *int { return &n }
