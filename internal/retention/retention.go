// Package retention prunes the artifact history of a schedule down to its
// retention policy.
package retention

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/flemzord/snapkeep/internal/artifact"
	"github.com/flemzord/snapkeep/internal/schedule"
)

const day = 24 * time.Hour

// Plan returns the artifacts that fall outside policy, oldest first. The
// count and age bounds apply independently; an artifact beyond either is
// selected. The artifact with id keepID is never selected.
func Plan(history []artifact.Artifact, policy schedule.RetentionPolicy, keepID string, now time.Time) []artifact.Artifact {
	if policy.IsZero() || len(history) == 0 {
		return nil
	}

	sorted := slices.Clone(history)
	artifact.SortNewestFirst(sorted)

	var cutoff time.Time
	if policy.MaxAgeDays > 0 {
		cutoff = now.Add(-time.Duration(policy.MaxAgeDays) * day)
	}

	// The kept artifact holds one count slot wherever it sorts, so ties on
	// CreatedAt cannot push the total over MaxCount.
	slots := policy.MaxCount
	if slices.ContainsFunc(sorted, func(a artifact.Artifact) bool { return a.ID == keepID }) {
		slots--
	}

	var (
		doomed []artifact.Artifact
		rank   int
	)
	for _, a := range sorted {
		if a.ID == keepID {
			continue
		}
		overCount := policy.MaxCount > 0 && rank >= slots
		overAge := !cutoff.IsZero() && a.CreatedAt.Before(cutoff)
		if overCount || overAge {
			doomed = append(doomed, a)
		}
		rank++
	}
	slices.Reverse(doomed)
	return doomed
}

// DeleteFunc removes one artifact, content first, then its record.
type DeleteFunc func(ctx context.Context, a artifact.Artifact) error

// Pruner applies a schedule's policy to the artifacts it produced.
type Pruner struct {
	Artifacts artifact.Repository
	Delete    DeleteFunc
	Logger    *slog.Logger
	Now       func() time.Time
}

// Prune deletes the artifacts of s that fall outside its policy, never
// touching keepID. It keeps going past individual failures and returns
// how many were deleted along with every error met.
func (p *Pruner) Prune(ctx context.Context, s schedule.Schedule, keepID string) (int, error) {
	if s.Retention.IsZero() {
		return 0, nil
	}

	history, err := p.Artifacts.FindBySchedule(ctx, s.ID)
	if err != nil {
		return 0, fmt.Errorf("retention: list artifacts of %s: %w", s.ID, err)
	}

	now := time.Now
	if p.Now != nil {
		now = p.Now
	}

	var (
		deleted int
		errs    []error
	)
	for _, a := range Plan(history, s.Retention, keepID, now()) {
		if a.Target != s.Target {
			continue
		}
		if err := p.Delete(ctx, a); err != nil {
			errs = append(errs, fmt.Errorf("retention: delete %s: %w", a.ID, err))
			continue
		}
		deleted++
	}

	if deleted > 0 {
		p.logger().Info("retention: pruned artifacts",
			"schedule", s.ID,
			"target", s.Target,
			"deleted", deleted,
		)
	}
	return deleted, errors.Join(errs...)
}

func (p *Pruner) logger() *slog.Logger {
	if p.Logger == nil {
		return slog.Default()
	}
	return p.Logger
}
