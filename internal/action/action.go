// Package action implements the per-kind work behind a snapshot: how an
// artifact is produced from a target, listed for comparison, and restored.
package action

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/flemzord/snapkeep/internal/artifact"
)

// ErrNoChanges is returned by Produce when the target has nothing new to
// capture. The engine records it as a successful run.
var ErrNoChanges = errors.New("action: nothing to commit")

// Target locates the directories of one managed server.
type Target struct {
	Name string

	// ConfigDir holds the files captured by file-set snapshots.
	ConfigDir string

	// WorldsDir must exist before a versioned push runs.
	WorldsDir string

	// BackupRepo is the git working copy pushed by versioned-push.
	BackupRepo string

	// RunningCheck is an argv command that exits zero when the target is
	// running. Empty means the target is never considered running.
	RunningCheck []string
}

// PreconditionError reports a missing directory before any work started.
type PreconditionError struct {
	Subject string
}

func (e *PreconditionError) Error() string {
	return e.Subject + " not found"
}

// Request describes one production run.
type Request struct {
	Target      Target
	ArtifactID  string
	ScheduleID  string
	Description string
	Now         time.Time
}

// Outcome is a successful production.
type Outcome struct {
	Artifact artifact.Artifact
	Message  string
}

// Action produces, compares and restores artifacts of one kind.
type Action interface {
	Kind() artifact.Kind

	// Precheck verifies the target before Produce. Failures are
	// *PreconditionError values.
	Precheck(t Target) error

	// Produce captures the target. It returns ErrNoChanges, possibly
	// wrapped, when there is nothing to capture.
	Produce(ctx context.Context, req Request) (Outcome, error)

	// Tree lists the artifact as path to content hash.
	Tree(ctx context.Context, t Target, a artifact.Artifact) (map[string]string, error)

	// Content returns stored file content keyed by path, or nil when the
	// kind keeps no content of its own.
	Content(ctx context.Context, t Target, a artifact.Artifact) (map[string][]byte, error)

	// Restore writes the artifact back onto the target.
	Restore(ctx context.Context, t Target, a artifact.Artifact) error

	// Discard removes stored content ahead of deleting the record.
	Discard(ctx context.Context, a artifact.Artifact) error
}

// Set dispatches on artifact kind.
type Set map[artifact.Kind]Action

// NewSet indexes actions by their kind.
func NewSet(actions ...Action) Set {
	s := make(Set, len(actions))
	for _, a := range actions {
		s[a.Kind()] = a
	}
	return s
}

// For returns the action handling kind.
func (s Set) For(kind artifact.Kind) (Action, error) {
	a, ok := s[kind]
	if !ok {
		return nil, fmt.Errorf("action: no action registered for kind %q", kind)
	}
	return a, nil
}
