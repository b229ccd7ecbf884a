// Package blobstore keeps the file content of file-set snapshots on disk,
// laid out as <base>/<target>/<artifact-id>/<path>.
package blobstore

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/flemzord/snapkeep/internal/errdefs"
	"github.com/flemzord/snapkeep/internal/security"
	"github.com/google/uuid"
)

const tmpPrefix = ".tmp-"

// Store writes snapshot content atomically: files land in a temporary
// directory that is renamed into place once complete.
type Store struct {
	base   string
	logger *slog.Logger
	now    func() time.Time
}

// New creates a store rooted at base.
func New(base string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{base: base, logger: logger, now: time.Now}
}

// Base returns the root directory.
func (s *Store) Base() string { return s.base }

// Save writes files under target/id. On any error the partial copy is
// removed and existing snapshots are untouched.
func (s *Store) Save(target, id string, files map[string][]byte) (err error) {
	targetDir, err := s.targetDir(target)
	if err != nil {
		return err
	}
	final, err := security.ResolveWithin(targetDir, id)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(targetDir, 0o750); err != nil {
		return errdefs.Storage("create target directory", err)
	}
	if _, statErr := os.Stat(final); statErr == nil {
		return errdefs.Storage("save snapshot", fmt.Errorf("%s: %w", id, fs.ErrExist))
	}

	tmp := filepath.Join(targetDir, tmpPrefix+uuid.NewString())
	if err := os.Mkdir(tmp, 0o750); err != nil {
		return errdefs.Storage("create temporary directory", err)
	}
	defer func() {
		if err != nil {
			if rmErr := os.RemoveAll(tmp); rmErr != nil {
				s.logger.Warn("blobstore: cleanup failed", "path", tmp, "error", rmErr)
			}
		}
	}()

	for rel, data := range files {
		dst, err := security.ResolveWithin(tmp, rel)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
			return errdefs.Storage("create directory for "+rel, err)
		}
		if err := os.WriteFile(dst, data, 0o640); err != nil {
			return errdefs.Storage("write "+rel, err)
		}
	}

	if err := os.Rename(tmp, final); err != nil {
		return errdefs.Storage("commit snapshot", err)
	}
	return nil
}

// Load returns every stored file of target/id keyed by slash path.
func (s *Store) Load(target, id string) (map[string][]byte, error) {
	dir, err := s.snapshotDir(target, id)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
		return nil, errdefs.NotFound("snapshot content", id)
	}

	out := make(map[string][]byte)
	err = filepath.WalkDir(dir, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		out[filepath.ToSlash(rel)] = data
		return nil
	})
	if err != nil {
		return nil, errdefs.Storage("read snapshot "+id, err)
	}
	return out, nil
}

// Delete removes target/id. Missing content is not an error.
func (s *Store) Delete(target, id string) error {
	dir, err := s.snapshotDir(target, id)
	if err != nil {
		return err
	}
	return errdefs.Storage("delete snapshot "+id, os.RemoveAll(dir))
}

// Sweep removes temporary directories older than maxAge left behind by
// interrupted saves, returning how many were removed.
func (s *Store) Sweep(maxAge time.Duration) (int, error) {
	targets, err := os.ReadDir(s.base)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, errdefs.Storage("list targets", err)
	}

	cutoff := s.now().Add(-maxAge)
	removed := 0
	var errs []error
	for _, t := range targets {
		if !t.IsDir() {
			continue
		}
		entries, err := os.ReadDir(filepath.Join(s.base, t.Name()))
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for _, e := range entries {
			if !e.IsDir() || !strings.HasPrefix(e.Name(), tmpPrefix) {
				continue
			}
			info, err := e.Info()
			if err != nil || info.ModTime().After(cutoff) {
				continue
			}
			p := filepath.Join(s.base, t.Name(), e.Name())
			if err := os.RemoveAll(p); err != nil {
				errs = append(errs, err)
				continue
			}
			removed++
			s.logger.Info("blobstore: removed abandoned temporary directory", "path", p)
		}
	}
	return removed, errdefs.Storage("sweep", errors.Join(errs...))
}

func (s *Store) targetDir(target string) (string, error) {
	if target == "" || strings.HasPrefix(target, ".") {
		return "", errdefs.Security(target, s.base)
	}
	return security.ResolveWithin(s.base, target)
}

func (s *Store) snapshotDir(target, id string) (string, error) {
	targetDir, err := s.targetDir(target)
	if err != nil {
		return "", err
	}
	if id == "" || strings.HasPrefix(id, ".") {
		return "", errdefs.Security(id, targetDir)
	}
	return security.ResolveWithin(targetDir, id)
}
