package schedule

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/flemzord/snapkeep/internal/errdefs"
)

// InMemoryRepository is a thread-safe, in-memory implementation of Repository.
type InMemoryRepository struct {
	mu        sync.RWMutex
	schedules map[string]Schedule
}

// NewInMemoryRepository creates an empty repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{schedules: make(map[string]Schedule)}
}

// Compile-time interface check.
var _ Repository = (*InMemoryRepository)(nil)

// Create implements Repository.
func (r *InMemoryRepository) Create(_ context.Context, s Schedule) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.schedules[s.ID]; exists {
		return errdefs.Validationf("schedule %q already exists", s.ID)
	}
	r.schedules[s.ID] = s
	return nil
}

// FindAll implements Repository.
func (r *InMemoryRepository) FindAll(_ context.Context) ([]Schedule, error) {
	return r.filter(func(Schedule) bool { return true }), nil
}

// FindByID implements Repository.
func (r *InMemoryRepository) FindByID(_ context.Context, id string) (Schedule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.schedules[id]
	if !ok {
		return Schedule{}, errdefs.NotFound("schedule", id)
	}
	return s, nil
}

// FindByTarget implements Repository.
func (r *InMemoryRepository) FindByTarget(_ context.Context, target string) ([]Schedule, error) {
	return r.filter(func(s Schedule) bool { return s.Target == target }), nil
}

// FindAllEnabled implements Repository.
func (r *InMemoryRepository) FindAllEnabled(_ context.Context) ([]Schedule, error) {
	return r.filter(func(s Schedule) bool { return s.Enabled }), nil
}

// Update implements Repository.
func (r *InMemoryRepository) Update(_ context.Context, s Schedule) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.schedules[s.ID]; !ok {
		return errdefs.NotFound("schedule", s.ID)
	}
	r.schedules[s.ID] = s
	return nil
}

// RecordRun implements Repository.
func (r *InMemoryRepository) RecordRun(_ context.Context, id string, status RunStatus, message string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.schedules[id]
	if !ok {
		return errdefs.NotFound("schedule", id)
	}
	r.schedules[id] = s.WithRun(status, message, at)
	return nil
}

// Delete implements Repository.
func (r *InMemoryRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.schedules[id]; !ok {
		return errdefs.NotFound("schedule", id)
	}
	delete(r.schedules, id)
	return nil
}

func (r *InMemoryRepository) filter(keep func(Schedule) bool) []Schedule {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Schedule
	for _, s := range r.schedules {
		if keep(s) {
			out = append(out, s)
		}
	}
	slices.SortFunc(out, func(a, b Schedule) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}
