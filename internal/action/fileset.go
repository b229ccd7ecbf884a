package action

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/flemzord/snapkeep/internal/artifact"
	"github.com/flemzord/snapkeep/internal/collect"
	"github.com/flemzord/snapkeep/internal/errdefs"
	"github.com/flemzord/snapkeep/internal/security"
	"github.com/google/uuid"
)

// BlobStore persists file-set content. *blobstore.Store satisfies it.
type BlobStore interface {
	Save(target, id string, files map[string][]byte) error
	Load(target, id string) (map[string][]byte, error)
	Delete(target, id string) error
}

// FileSet captures the configuration files of a target.
type FileSet struct {
	Collector collect.Collector
	Blobs     BlobStore
	Logger    *slog.Logger
}

// Compile-time interface check.
var _ Action = (*FileSet)(nil)

// Kind implements Action.
func (f *FileSet) Kind() artifact.Kind { return artifact.KindFileSet }

// Precheck implements Action.
func (f *FileSet) Precheck(t Target) error {
	if !isDir(t.ConfigDir) {
		return &PreconditionError{Subject: "Config directory"}
	}
	return nil
}

// Produce implements Action.
func (f *FileSet) Produce(ctx context.Context, req Request) (Outcome, error) {
	files, err := f.Collector.Collect(ctx, req.Target.ConfigDir)
	if err != nil {
		return Outcome{}, fmt.Errorf("action: collect %s: %w", req.Target.Name, err)
	}

	id := req.ArtifactID
	if id == "" {
		id = uuid.NewString()
	}

	entries := make([]artifact.Entry, 0, len(files))
	content := make(map[string][]byte, len(files))
	for _, file := range files {
		entries = append(entries, artifact.Entry{Path: file.Path, Hash: file.Hash, Size: file.Size})
		content[file.Path] = file.Data
	}

	if err := f.Blobs.Save(req.Target.Name, id, content); err != nil {
		return Outcome{}, fmt.Errorf("action: store snapshot: %w", err)
	}

	a := artifact.Artifact{
		ID:          id,
		Kind:        artifact.KindFileSet,
		Target:      req.Target.Name,
		ScheduleID:  req.ScheduleID,
		Description: req.Description,
		CreatedAt:   req.Now.UTC(),
		Entries:     entries,
	}
	f.logger().Info("action: snapshot stored",
		"target", a.Target,
		"artifact", a.ID,
		"files", len(entries),
		"size", humanize.Bytes(uint64(a.TotalSize())),
	)
	return Outcome{
		Artifact: a,
		Message:  fmt.Sprintf("Snapshot created (%d files)", len(entries)),
	}, nil
}

// Tree implements Action.
func (f *FileSet) Tree(_ context.Context, _ Target, a artifact.Artifact) (map[string]string, error) {
	out := make(map[string]string, len(a.Entries))
	for _, e := range a.Entries {
		out[e.Path] = e.Hash
	}
	return out, nil
}

// Content implements Action.
func (f *FileSet) Content(_ context.Context, _ Target, a artifact.Artifact) (map[string][]byte, error) {
	return f.Blobs.Load(a.Target, a.ID)
}

// Restore implements Action. Every destination is resolved before the
// first write, so a single escaping path leaves the target untouched.
func (f *FileSet) Restore(_ context.Context, t Target, a artifact.Artifact) error {
	content, err := f.Blobs.Load(a.Target, a.ID)
	if err != nil {
		return err
	}
	if len(content) == 0 {
		return errdefs.Validationf("snapshot %s has no files to restore", a.ID)
	}

	dests := make(map[string]string, len(content))
	for rel := range content {
		dst, err := security.ResolveWithin(t.ConfigDir, rel)
		if err != nil {
			return err
		}
		dests[rel] = dst
	}

	for rel, dst := range dests {
		if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
			return errdefs.Storage("create directory for "+rel, err)
		}
		if err := os.WriteFile(dst, content[rel], 0o640); err != nil {
			return errdefs.Storage("restore "+rel, err)
		}
	}
	f.logger().Info("action: snapshot restored", "target", t.Name, "artifact", a.ID, "files", len(dests))
	return nil
}

// Discard implements Action.
func (f *FileSet) Discard(_ context.Context, a artifact.Artifact) error {
	return f.Blobs.Delete(a.Target, a.ID)
}

func (f *FileSet) logger() *slog.Logger {
	if f.Logger == nil {
		return slog.Default()
	}
	return f.Logger
}

func isDir(p string) bool {
	if p == "" {
		return false
	}
	info, err := os.Stat(p)
	return err == nil && info.IsDir()
}
