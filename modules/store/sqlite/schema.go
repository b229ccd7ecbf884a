package sqlite

import (
	"context"
	"database/sql"
	"fmt"
)

const schemaVersion = 1

// timeFormat is fixed width so text columns sort chronologically.
const timeFormat = "2006-01-02T15:04:05.000000000Z"

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS schedules (
		id               TEXT PRIMARY KEY,
		kind             TEXT    NOT NULL,
		target           TEXT    NOT NULL,
		name             TEXT    NOT NULL,
		cron_expression  TEXT    NOT NULL,
		enabled          INTEGER NOT NULL DEFAULT 1,
		retention_count  INTEGER NOT NULL DEFAULT 0,
		retention_days   INTEGER NOT NULL DEFAULT 0,
		last_run_at      TEXT,
		last_run_status  TEXT    NOT NULL DEFAULT '',
		last_run_message TEXT    NOT NULL DEFAULT '',
		created_at       TEXT    NOT NULL,
		updated_at       TEXT    NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_schedules_target ON schedules(target)`,

	`CREATE TABLE IF NOT EXISTS artifacts (
		id          TEXT PRIMARY KEY,
		kind        TEXT NOT NULL,
		target      TEXT NOT NULL,
		schedule_id TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		version     TEXT NOT NULL DEFAULT '',
		created_at  TEXT NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_artifacts_target ON artifacts(target, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_artifacts_schedule ON artifacts(schedule_id, created_at)`,

	`CREATE TABLE IF NOT EXISTS artifact_entries (
		artifact_id TEXT    NOT NULL REFERENCES artifacts(id) ON DELETE CASCADE,
		seq         INTEGER NOT NULL,
		path        TEXT    NOT NULL,
		hash        TEXT    NOT NULL,
		size        INTEGER NOT NULL,
		PRIMARY KEY (artifact_id, seq)
	)`,
}

// migrate creates or updates the database schema to the latest version.
// All DDL uses IF NOT EXISTS, making migration idempotent.
func migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY)"); err != nil {
		return fmt.Errorf("sqlite: create schema_version: %w", err)
	}

	var current int
	if err := db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&current); err != nil {
		return fmt.Errorf("sqlite: read schema version: %w", err)
	}
	if current >= schemaVersion {
		return nil
	}

	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlite: migrate: %w\nstatement: %s", err, stmt)
		}
	}
	if _, err := db.ExecContext(ctx, "INSERT OR REPLACE INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("sqlite: record schema version: %w", err)
	}
	return nil
}
