package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/flemzord/snapkeep/internal/artifact"
	"github.com/flemzord/snapkeep/internal/errdefs"
)

const artifactColumns = `id, kind, target, schedule_id, description, version, created_at`

// ArtifactStore implements artifact.Repository. Entries live in their own
// table and are written in the same transaction as the artifact row.
type ArtifactStore struct {
	db *sql.DB
}

// NewArtifactStore returns a repository over an opened database.
func NewArtifactStore(db *sql.DB) *ArtifactStore {
	return &ArtifactStore{db: db}
}

// Create implements artifact.Repository.
func (s *ArtifactStore) Create(ctx context.Context, a artifact.Artifact) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errdefs.Storage("sqlite: begin", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO artifacts (`+artifactColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		a.ID, string(a.Kind), a.Target, a.ScheduleID, a.Description, a.Version, formatTime(a.CreatedAt),
	)
	if err != nil {
		return errdefs.Storage("sqlite: create artifact", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errdefs.Validationf("artifact %q already exists", a.ID)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO artifact_entries (artifact_id, seq, path, hash, size)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return errdefs.Storage("sqlite: prepare entries", err)
	}
	defer func() { _ = stmt.Close() }()

	for i, e := range a.Entries {
		if _, err = stmt.ExecContext(ctx, a.ID, i, e.Path, e.Hash, e.Size); err != nil {
			return errdefs.Storage("sqlite: insert entry", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return errdefs.Storage("sqlite: commit artifact", err)
	}
	return nil
}

// FindByID implements artifact.Repository.
func (s *ArtifactStore) FindByID(ctx context.Context, id string) (artifact.Artifact, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+artifactColumns+` FROM artifacts WHERE id = ?`, id)
	a, err := scanArtifact(row)
	if errors.Is(err, sql.ErrNoRows) {
		return artifact.Artifact{}, errdefs.NotFound("artifact", id)
	}
	if err != nil {
		return artifact.Artifact{}, errdefs.Storage("sqlite: find artifact", err)
	}
	if a.Entries, err = s.entries(ctx, a.ID); err != nil {
		return artifact.Artifact{}, err
	}
	return a, nil
}

// FindByTarget implements artifact.Repository.
func (s *ArtifactStore) FindByTarget(ctx context.Context, target string) ([]artifact.Artifact, error) {
	return s.query(ctx, `SELECT `+artifactColumns+` FROM artifacts
		WHERE target = ? ORDER BY created_at DESC, id DESC`, target)
}

// FindBySchedule implements artifact.Repository.
func (s *ArtifactStore) FindBySchedule(ctx context.Context, scheduleID string) ([]artifact.Artifact, error) {
	return s.query(ctx, `SELECT `+artifactColumns+` FROM artifacts
		WHERE schedule_id = ? ORDER BY created_at DESC, id DESC`, scheduleID)
}

// Delete implements artifact.Repository. Entries go with the row.
func (s *ArtifactStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM artifacts WHERE id = ?`, id)
	if err != nil {
		return errdefs.Storage("sqlite: delete artifact", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errdefs.NotFound("artifact", id)
	}
	return nil
}

func (s *ArtifactStore) query(ctx context.Context, q string, args ...any) ([]artifact.Artifact, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, errdefs.Storage("sqlite: query artifacts", err)
	}

	var out []artifact.Artifact
	for rows.Next() {
		a, err := scanArtifact(rows)
		if err != nil {
			_ = rows.Close()
			return nil, errdefs.Storage("sqlite: scan artifact", err)
		}
		out = append(out, a)
	}
	err = rows.Err()
	_ = rows.Close()
	if err != nil {
		return nil, errdefs.Storage("sqlite: iterate artifacts", err)
	}

	// Entries are loaded after the cursor is closed: the pool holds a
	// single connection.
	for i := range out {
		if out[i].Entries, err = s.entries(ctx, out[i].ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *ArtifactStore) entries(ctx context.Context, id string) ([]artifact.Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT path, hash, size FROM artifact_entries
		WHERE artifact_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, errdefs.Storage("sqlite: query entries", err)
	}
	defer func() { _ = rows.Close() }()

	var out []artifact.Entry
	for rows.Next() {
		var e artifact.Entry
		if err := rows.Scan(&e.Path, &e.Hash, &e.Size); err != nil {
			return nil, errdefs.Storage("sqlite: scan entry", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errdefs.Storage("sqlite: iterate entries", err)
	}
	return out, nil
}

func scanArtifact(row scanner) (artifact.Artifact, error) {
	var (
		a         artifact.Artifact
		kind      string
		createdAt string
	)
	if err := row.Scan(&a.ID, &kind, &a.Target, &a.ScheduleID, &a.Description, &a.Version, &createdAt); err != nil {
		return artifact.Artifact{}, err
	}
	var err error
	if a.Kind, err = artifact.ParseKind(kind); err != nil {
		return artifact.Artifact{}, fmt.Errorf("artifact %s: %w", a.ID, err)
	}
	if a.CreatedAt, err = parseTime(createdAt); err != nil {
		return artifact.Artifact{}, err
	}
	return a, nil
}
