// Package artifact defines the immutable snapshot records produced by the
// engine and the repository contract used to persist them.
package artifact

import (
	"context"
	"time"

	"github.com/flemzord/snapkeep/internal/errdefs"
)

// Kind selects how an artifact is produced, compared, and restored.
type Kind string

const (
	// KindFileSet is a set of captured files with per-path content hashes.
	KindFileSet Kind = "file-set"

	// KindVersionedPush is a commit pushed from a versioned working copy.
	KindVersionedPush Kind = "versioned-push"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k == KindFileSet || k == KindVersionedPush
}

// ParseKind validates a kind string. An empty string means KindFileSet.
func ParseKind(s string) (Kind, error) {
	if s == "" {
		return KindFileSet, nil
	}
	k := Kind(s)
	if !k.Valid() {
		return "", errdefs.Validationf("unknown artifact kind %q", s)
	}
	return k, nil
}

// Entry is one captured file inside a file-set artifact.
type Entry struct {
	Path string `json:"path"`
	Hash string `json:"hash"`
	Size int64  `json:"size"`
}

// Artifact is an immutable, timestamped capture of one target.
type Artifact struct {
	ID          string    `json:"id"`
	Kind        Kind      `json:"kind"`
	Target      string    `json:"target"`
	ScheduleID  string    `json:"scheduleId,omitempty"`
	Description string    `json:"description,omitempty"`
	Version     string    `json:"version,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	Entries     []Entry   `json:"entries,omitempty"`
}

// TotalSize sums the size of every entry.
func (a Artifact) TotalSize() int64 {
	var n int64
	for _, e := range a.Entries {
		n += e.Size
	}
	return n
}

// ServiceName is the AppContext service key of the configured Repository.
const ServiceName = "artifact.repository"

// Repository persists artifact metadata. Content lives elsewhere.
// Implementations must be safe for concurrent use.
type Repository interface {
	// Create stores a new artifact. Artifacts are never updated.
	Create(ctx context.Context, a Artifact) error

	// FindByID returns the artifact or an errdefs.ErrNotFound error.
	FindByID(ctx context.Context, id string) (Artifact, error)

	// FindByTarget returns artifacts for a target, newest first.
	FindByTarget(ctx context.Context, target string) ([]Artifact, error)

	// FindBySchedule returns artifacts produced by a schedule, newest first.
	FindBySchedule(ctx context.Context, scheduleID string) ([]Artifact, error)

	// Delete removes the artifact record or returns errdefs.ErrNotFound.
	Delete(ctx context.Context, id string) error
}
