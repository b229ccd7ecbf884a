// Package crontest provides test doubles for the cron package.
package crontest

import (
	"context"
	"sync"

	"github.com/flemzord/snapkeep/internal/schedule"
)

// Source is a cron.ScheduleSource returning a fixed list or an error.
type Source struct {
	mu        sync.Mutex
	schedules []schedule.Schedule
	err       error
	calls     int
}

// Set replaces the schedules and error returned by FindAllEnabled.
func (s *Source) Set(schedules []schedule.Schedule, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schedules = schedules
	s.err = err
}

// Calls returns how many times FindAllEnabled was called.
func (s *Source) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// FindAllEnabled implements cron.ScheduleSource.
func (s *Source) FindAllEnabled(context.Context) ([]schedule.Schedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	var out []schedule.Schedule
	for _, sc := range s.schedules {
		if sc.Enabled {
			out = append(out, sc)
		}
	}
	return out, nil
}

// Executor records executed schedule ids. When Block is non-nil each
// execution waits on it before returning.
type Executor struct {
	Block chan struct{}
	Err   error

	mu      sync.Mutex
	started chan string
	ids     []string
}

// NewExecutor returns an executor whose Started channel reports every
// execution as it begins.
func NewExecutor() *Executor {
	return &Executor{started: make(chan string, 64)}
}

// Started reports ids as executions begin.
func (e *Executor) Started() <-chan string { return e.started }

// Execute implements cron.Executor.
func (e *Executor) Execute(ctx context.Context, id string) error {
	e.mu.Lock()
	e.ids = append(e.ids, id)
	e.mu.Unlock()
	if e.started != nil {
		select {
		case e.started <- id:
		default:
		}
	}
	if e.Block != nil {
		select {
		case <-e.Block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return e.Err
}

// IDs returns the executed ids in order.
func (e *Executor) IDs() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.ids...)
}
