package artifact

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/flemzord/snapkeep/internal/errdefs"
)

// InMemoryRepository is a thread-safe, in-memory implementation of Repository.
type InMemoryRepository struct {
	mu        sync.RWMutex
	artifacts map[string]Artifact
}

// NewInMemoryRepository creates an empty repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{artifacts: make(map[string]Artifact)}
}

// Compile-time interface check.
var _ Repository = (*InMemoryRepository)(nil)

// Create implements Repository.
func (r *InMemoryRepository) Create(_ context.Context, a Artifact) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.artifacts[a.ID]; exists {
		return errdefs.Validationf("artifact %q already exists", a.ID)
	}
	a.Entries = slices.Clone(a.Entries)
	r.artifacts[a.ID] = a
	return nil
}

// FindByID implements Repository.
func (r *InMemoryRepository) FindByID(_ context.Context, id string) (Artifact, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.artifacts[id]
	if !ok {
		return Artifact{}, errdefs.NotFound("artifact", id)
	}
	a.Entries = slices.Clone(a.Entries)
	return a, nil
}

// FindByTarget implements Repository.
func (r *InMemoryRepository) FindByTarget(_ context.Context, target string) ([]Artifact, error) {
	return r.filter(func(a Artifact) bool { return a.Target == target }), nil
}

// FindBySchedule implements Repository.
func (r *InMemoryRepository) FindBySchedule(_ context.Context, scheduleID string) ([]Artifact, error) {
	return r.filter(func(a Artifact) bool { return a.ScheduleID == scheduleID }), nil
}

// Delete implements Repository.
func (r *InMemoryRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.artifacts[id]; !ok {
		return errdefs.NotFound("artifact", id)
	}
	delete(r.artifacts, id)
	return nil
}

// Len returns the number of stored artifacts.
func (r *InMemoryRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.artifacts)
}

func (r *InMemoryRepository) filter(keep func(Artifact) bool) []Artifact {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Artifact
	for _, a := range r.artifacts {
		if keep(a) {
			a.Entries = slices.Clone(a.Entries)
			out = append(out, a)
		}
	}
	SortNewestFirst(out)
	return out
}

// SortNewestFirst orders artifacts by creation time descending, breaking
// ties by id so the order is stable.
func SortNewestFirst(as []Artifact) {
	slices.SortFunc(as, func(a, b Artifact) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
}
