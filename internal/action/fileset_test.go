package action

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/flemzord/snapkeep/internal/artifact"
	"github.com/flemzord/snapkeep/internal/blobstore"
	"github.com/flemzord/snapkeep/internal/collect"
	"github.com/flemzord/snapkeep/internal/errdefs"
)

func newFileSet(t *testing.T) (*FileSet, Target) {
	t.Helper()
	cfg := t.TempDir()
	writeFile(t, filepath.Join(cfg, "server.properties"), "motd=hello")
	writeFile(t, filepath.Join(cfg, "config", "paper-global.yml"), "a: 1")

	f := &FileSet{
		Collector: collect.FSCollector{},
		Blobs:     blobstore.New(t.TempDir(), nil),
	}
	return f, Target{Name: "survival", ConfigDir: cfg}
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

func TestFileSet_Precheck(t *testing.T) {
	t.Parallel()

	f, target := newFileSet(t)
	if err := f.Precheck(target); err != nil {
		t.Fatalf("precheck: %v", err)
	}

	err := f.Precheck(Target{Name: "x", ConfigDir: filepath.Join(target.ConfigDir, "missing")})
	var pe *PreconditionError
	if !errors.As(err, &pe) || err.Error() != "Config directory not found" {
		t.Errorf("err = %v, want Config directory not found", err)
	}
}

func TestFileSet_ProduceAndRestore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f, target := newFileSet(t)
	now := time.Date(2026, 3, 1, 3, 0, 0, 0, time.UTC)

	out, err := f.Produce(ctx, Request{
		Target:      target,
		ArtifactID:  "snap-1",
		ScheduleID:  "sched-1",
		Description: "Scheduled: nightly [2026-03-01T03:00:00Z]",
		Now:         now,
	})
	if err != nil {
		t.Fatalf("produce: %v", err)
	}
	if out.Message != "Snapshot created (2 files)" {
		t.Errorf("message = %q", out.Message)
	}
	a := out.Artifact
	if a.Kind != artifact.KindFileSet || a.ScheduleID != "sched-1" || !a.CreatedAt.Equal(now) {
		t.Errorf("artifact = %+v", a)
	}
	if len(a.Entries) != 2 || a.Entries[0].Path != "config/paper-global.yml" {
		t.Errorf("entries = %+v", a.Entries)
	}

	tree, _ := f.Tree(ctx, target, a)
	if tree["server.properties"] != collect.Hash([]byte("motd=hello")) {
		t.Errorf("tree = %v", tree)
	}

	writeFile(t, filepath.Join(target.ConfigDir, "server.properties"), "motd=changed")
	if err := os.RemoveAll(filepath.Join(target.ConfigDir, "config")); err != nil {
		t.Fatal(err)
	}

	if err := f.Restore(ctx, target, a); err != nil {
		t.Fatalf("restore: %v", err)
	}
	got, _ := os.ReadFile(filepath.Join(target.ConfigDir, "server.properties"))
	if string(got) != "motd=hello" {
		t.Errorf("server.properties = %q", got)
	}
	got, _ = os.ReadFile(filepath.Join(target.ConfigDir, "config", "paper-global.yml"))
	if string(got) != "a: 1" {
		t.Errorf("paper-global.yml = %q", got)
	}

	if err := f.Discard(ctx, a); err != nil {
		t.Fatalf("discard: %v", err)
	}
	if _, err := f.Content(ctx, target, a); !errdefs.IsNotFound(err) {
		t.Errorf("content after discard err = %v", err)
	}
}

// escapingBlobs returns a stored path that climbs out of the target.
type escapingBlobs struct{}

func (escapingBlobs) Save(string, string, map[string][]byte) error { return nil }
func (escapingBlobs) Delete(string, string) error                  { return nil }
func (escapingBlobs) Load(string, string) (map[string][]byte, error) {
	return map[string][]byte{
		"server.properties": []byte("ok"),
		"../../etc/passwd":  []byte("pwned"),
	}, nil
}

func TestFileSet_Restore_RejectsEscapingPaths(t *testing.T) {
	t.Parallel()

	cfg := t.TempDir()
	f := &FileSet{Collector: collect.FSCollector{}, Blobs: escapingBlobs{}}

	err := f.Restore(context.Background(), Target{Name: "t", ConfigDir: cfg}, artifact.Artifact{ID: "a", Target: "t"})
	if !errdefs.IsSecurity(err) {
		t.Fatalf("err = %v, want security violation", err)
	}
	if _, err := os.Stat(filepath.Join(cfg, "server.properties")); !os.IsNotExist(err) {
		t.Error("a file was written before the violation was detected")
	}
}

func TestSet_For(t *testing.T) {
	t.Parallel()

	set := NewSet(&FileSet{}, &Push{})
	if a, err := set.For(artifact.KindVersionedPush); err != nil || a.Kind() != artifact.KindVersionedPush {
		t.Errorf("For(push) = %v, %v", a, err)
	}
	if _, err := NewSet().For(artifact.KindFileSet); err == nil {
		t.Error("expected error for unregistered kind")
	}
}
