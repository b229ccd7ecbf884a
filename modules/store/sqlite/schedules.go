package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/flemzord/snapkeep/internal/artifact"
	"github.com/flemzord/snapkeep/internal/errdefs"
	"github.com/flemzord/snapkeep/internal/schedule"
)

const scheduleColumns = `id, kind, target, name, cron_expression, enabled,
	retention_count, retention_days, last_run_at, last_run_status,
	last_run_message, created_at, updated_at`

// ScheduleStore implements schedule.Repository.
type ScheduleStore struct {
	db *sql.DB
}

// NewScheduleStore returns a repository over an opened database.
func NewScheduleStore(db *sql.DB) *ScheduleStore {
	return &ScheduleStore{db: db}
}

// Create implements schedule.Repository.
func (s *ScheduleStore) Create(ctx context.Context, sc schedule.Schedule) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO schedules (`+scheduleColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		scheduleArgs(sc)...,
	)
	if err != nil {
		return errdefs.Storage("sqlite: create schedule", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errdefs.Validationf("schedule %q already exists", sc.ID)
	}
	return nil
}

// FindAll implements schedule.Repository.
func (s *ScheduleStore) FindAll(ctx context.Context) ([]schedule.Schedule, error) {
	return s.query(ctx, `SELECT `+scheduleColumns+` FROM schedules ORDER BY created_at, id`)
}

// FindByID implements schedule.Repository.
func (s *ScheduleStore) FindByID(ctx context.Context, id string) (schedule.Schedule, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+scheduleColumns+` FROM schedules WHERE id = ?`, id)
	sc, err := scanSchedule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return schedule.Schedule{}, errdefs.NotFound("schedule", id)
	}
	if err != nil {
		return schedule.Schedule{}, errdefs.Storage("sqlite: find schedule", err)
	}
	return sc, nil
}

// FindByTarget implements schedule.Repository.
func (s *ScheduleStore) FindByTarget(ctx context.Context, target string) ([]schedule.Schedule, error) {
	return s.query(ctx, `SELECT `+scheduleColumns+` FROM schedules WHERE target = ? ORDER BY created_at, id`, target)
}

// FindAllEnabled implements schedule.Repository.
func (s *ScheduleStore) FindAllEnabled(ctx context.Context) ([]schedule.Schedule, error) {
	return s.query(ctx, `SELECT `+scheduleColumns+` FROM schedules WHERE enabled = 1 ORDER BY created_at, id`)
}

// Update implements schedule.Repository.
func (s *ScheduleStore) Update(ctx context.Context, sc schedule.Schedule) error {
	args := scheduleArgs(sc)
	res, err := s.db.ExecContext(ctx, `
		UPDATE schedules SET
			kind = ?, target = ?, name = ?, cron_expression = ?, enabled = ?,
			retention_count = ?, retention_days = ?, last_run_at = ?,
			last_run_status = ?, last_run_message = ?, created_at = ?, updated_at = ?
		WHERE id = ?`,
		append(args[1:], sc.ID)...,
	)
	if err != nil {
		return errdefs.Storage("sqlite: update schedule", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errdefs.NotFound("schedule", sc.ID)
	}
	return nil
}

// RecordRun implements schedule.Repository.
func (s *ScheduleStore) RecordRun(ctx context.Context, id string, status schedule.RunStatus, message string, at time.Time) error {
	stamp := formatTime(at)
	res, err := s.db.ExecContext(ctx, `
		UPDATE schedules SET
			last_run_at = ?, last_run_status = ?, last_run_message = ?, updated_at = ?
		WHERE id = ?`,
		stamp, string(status), message, stamp, id,
	)
	if err != nil {
		return errdefs.Storage("sqlite: record run", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errdefs.NotFound("schedule", id)
	}
	return nil
}

// Delete implements schedule.Repository.
func (s *ScheduleStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM schedules WHERE id = ?`, id)
	if err != nil {
		return errdefs.Storage("sqlite: delete schedule", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errdefs.NotFound("schedule", id)
	}
	return nil
}

func (s *ScheduleStore) query(ctx context.Context, q string, args ...any) ([]schedule.Schedule, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, errdefs.Storage("sqlite: query schedules", err)
	}
	defer func() { _ = rows.Close() }()

	var out []schedule.Schedule
	for rows.Next() {
		sc, err := scanSchedule(rows)
		if err != nil {
			return nil, errdefs.Storage("sqlite: scan schedule", err)
		}
		out = append(out, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, errdefs.Storage("sqlite: iterate schedules", err)
	}
	return out, nil
}

func scheduleArgs(sc schedule.Schedule) []any {
	var lastRun any
	if sc.LastRunAt != nil {
		lastRun = formatTime(*sc.LastRunAt)
	}
	return []any{
		sc.ID,
		string(sc.Kind),
		sc.Target,
		sc.Name,
		sc.Cron.String(),
		sc.Enabled,
		sc.Retention.MaxCount,
		sc.Retention.MaxAgeDays,
		lastRun,
		string(sc.LastRunStatus),
		sc.LastRunMessage,
		formatTime(sc.CreatedAt),
		formatTime(sc.UpdatedAt),
	}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSchedule(row scanner) (schedule.Schedule, error) {
	var (
		sc                   schedule.Schedule
		kind, expr, status   string
		lastRun              sql.NullString
		createdAt, updatedAt string
	)
	err := row.Scan(&sc.ID, &kind, &sc.Target, &sc.Name, &expr, &sc.Enabled,
		&sc.Retention.MaxCount, &sc.Retention.MaxAgeDays, &lastRun, &status,
		&sc.LastRunMessage, &createdAt, &updatedAt)
	if err != nil {
		return schedule.Schedule{}, err
	}

	if sc.Kind, err = artifact.ParseKind(kind); err != nil {
		return schedule.Schedule{}, fmt.Errorf("schedule %s: %w", sc.ID, err)
	}
	if sc.Cron, err = schedule.ParseCron(expr); err != nil {
		return schedule.Schedule{}, fmt.Errorf("schedule %s: %w", sc.ID, err)
	}
	sc.LastRunStatus = schedule.RunStatus(status)
	if lastRun.Valid {
		t, err := parseTime(lastRun.String)
		if err != nil {
			return schedule.Schedule{}, err
		}
		sc.LastRunAt = &t
	}
	if sc.CreatedAt, err = parseTime(createdAt); err != nil {
		return schedule.Schedule{}, err
	}
	if sc.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return schedule.Schedule{}, err
	}
	return sc, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeFormat, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t, nil
}
