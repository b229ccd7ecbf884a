package schedule

import (
	"context"
	"testing"
	"time"

	"github.com/flemzord/snapkeep/internal/errdefs"
)

func newTestSchedule(t *testing.T, target string, enabled bool) Schedule {
	t.Helper()
	s, err := New(NewParams{Target: target, Name: "job", CronExpression: "0 3 * * *", Enabled: &enabled}, time.Now())
	if err != nil {
		t.Fatalf("new schedule: %v", err)
	}
	return s
}

func TestInMemoryRepository_Queries(t *testing.T) {
	t.Parallel()

	repo := NewInMemoryRepository()
	ctx := context.Background()

	a := newTestSchedule(t, "alpha", true)
	b := newTestSchedule(t, "alpha", false)
	c := newTestSchedule(t, "beta", true)
	for _, s := range []Schedule{a, b, c} {
		if err := repo.Create(ctx, s); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	all, _ := repo.FindAll(ctx)
	if len(all) != 3 {
		t.Errorf("FindAll = %d, want 3", len(all))
	}
	byTarget, _ := repo.FindByTarget(ctx, "alpha")
	if len(byTarget) != 2 {
		t.Errorf("FindByTarget = %d, want 2", len(byTarget))
	}
	enabled, _ := repo.FindAllEnabled(ctx)
	if len(enabled) != 2 {
		t.Errorf("FindAllEnabled = %d, want 2", len(enabled))
	}
}

func TestInMemoryRepository_UpdateMissing(t *testing.T) {
	t.Parallel()

	repo := NewInMemoryRepository()
	s := newTestSchedule(t, "alpha", true)

	if err := repo.Update(context.Background(), s); !errdefs.IsNotFound(err) {
		t.Errorf("err = %v, want not found", err)
	}
}

func TestInMemoryRepository_Delete(t *testing.T) {
	t.Parallel()

	repo := NewInMemoryRepository()
	ctx := context.Background()
	s := newTestSchedule(t, "alpha", true)
	_ = repo.Create(ctx, s)

	if err := repo.Delete(ctx, s.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := repo.FindByID(ctx, s.ID); !errdefs.IsNotFound(err) {
		t.Errorf("err = %v, want not found", err)
	}
	if err := repo.Delete(ctx, s.ID); !errdefs.IsNotFound(err) {
		t.Errorf("second delete err = %v, want not found", err)
	}
}

func TestInMemoryRepository_RecordRunKeepsOtherFields(t *testing.T) {
	t.Parallel()

	repo := NewInMemoryRepository()
	ctx := context.Background()
	s := newTestSchedule(t, "alpha", true)
	if err := repo.Create(ctx, s); err != nil {
		t.Fatal(err)
	}
	at := time.Date(2026, 3, 1, 3, 0, 0, 0, time.UTC)
	if err := repo.Update(ctx, s.WithEnabled(false, at)); err != nil {
		t.Fatal(err)
	}

	if err := repo.RecordRun(ctx, s.ID, StatusSuccess, "Snapshot created (2 files)", at.Add(time.Minute)); err != nil {
		t.Fatal(err)
	}
	got, _ := repo.FindByID(ctx, s.ID)
	if got.Enabled {
		t.Error("RecordRun re-enabled the schedule")
	}
	if got.LastRunStatus != StatusSuccess || got.LastRunMessage != "Snapshot created (2 files)" ||
		got.LastRunAt == nil || !got.LastRunAt.Equal(at.Add(time.Minute)) || !got.UpdatedAt.Equal(at.Add(time.Minute)) {
		t.Errorf("run state = %+v", got)
	}

	if err := repo.RecordRun(ctx, "missing", StatusFailure, "", at); !errdefs.IsNotFound(err) {
		t.Errorf("err = %v, want not found", err)
	}
}
