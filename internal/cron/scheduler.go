package cron

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/flemzord/snapkeep/internal/metrics"
	"github.com/flemzord/snapkeep/internal/schedule"
	"github.com/robfig/cron/v3"
)

// ServiceName is the AppContext service key of the running Scheduler.
const ServiceName = "cron.scheduler"

// ErrAlreadyRunning is returned by RunNow while a firing of the same
// schedule is in flight.
var ErrAlreadyRunning = errors.New("cron: execution already in progress")

// Scheduler owns one cron timer per enabled schedule plus the registered
// maintenance jobs. Every schedule and job is protected by its own mutex
// so a firing that overlaps the previous one is skipped (TryLock is
// atomic, no race).
type Scheduler struct {
	mu       sync.Mutex
	cron     *cron.Cron
	source   ScheduleSource
	executor Executor
	tasks    map[string]cron.EntryID
	jobs     []Job
	names    map[string]struct{}
	degraded bool
	started  bool

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex

	// runCtx outlives Shutdown's caller so in-flight executions can finish
	// and record their outcome.
	runCtx    context.Context
	cancelRun context.CancelFunc

	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics records registry size and skipped firings.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// NewScheduler creates a scheduler. Maintenance jobs must be registered
// before Initialize.
func NewScheduler(source ScheduleSource, executor Executor, opts ...Option) *Scheduler {
	runCtx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		cron:      cron.New(cron.WithParser(Parser)),
		source:    source,
		executor:  executor,
		tasks:     make(map[string]cron.EntryID),
		names:     make(map[string]struct{}),
		locks:     make(map[string]*sync.Mutex),
		runCtx:    runCtx,
		cancelRun: cancel,
		logger:    slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// RegisterJob adds a maintenance job. Must be called before Initialize.
// Returns an error if a job with the same name is already registered.
func (s *Scheduler) RegisterJob(j Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("cron: job %q registered after start", j.Name())
	}
	name := j.Name()
	if _, exists := s.names[name]; exists {
		return fmt.Errorf("cron: duplicate job name %q", name)
	}
	s.names[name] = struct{}{}
	s.jobs = append(s.jobs, j)
	return nil
}

// Initialize adds the maintenance jobs, loads every enabled schedule,
// and starts the cron runner. An unreadable store leaves the scheduler
// degraded with an empty registry; RunNow keeps working. An invalid job
// schedule is returned as an error.
func (s *Scheduler) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	for _, j := range s.jobs {
		job := j
		if _, err := s.cron.AddFunc(job.Schedule(), s.guarded("job:"+job.Name(), func(ctx context.Context) {
			if err := job.Run(ctx); err != nil {
				s.logger.Error("cron: job failed", "job", job.Name(), "error", err)
			}
		})); err != nil {
			return fmt.Errorf("cron: invalid schedule for job %q: %w", job.Name(), err)
		}
	}

	s.loadLocked(ctx)
	s.cron.Start()
	s.started = true
	s.logger.Info("cron: scheduler initialized",
		"schedules", len(s.tasks),
		"jobs", len(s.jobs),
		"degraded", s.degraded,
	)
	return nil
}

// RegisterTask adds a timer for sched, replacing any existing one.
func (s *Scheduler) RegisterTask(sched schedule.Schedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registerLocked(sched)
}

// UnregisterTask removes the timer for id. Unknown ids are ignored.
func (s *Scheduler) UnregisterTask(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unregisterLocked(id)
	s.metrics.SetActiveTasks(len(s.tasks))
	s.dropLock(id)
}

// UpdateSchedule brings the registry in line with sched: disabled
// schedules are unregistered, enabled ones (re)registered.
func (s *Scheduler) UpdateSchedule(sched schedule.Schedule) error {
	if !sched.Enabled {
		s.UnregisterTask(sched.ID)
		return nil
	}
	return s.RegisterTask(sched)
}

// Reload drops every schedule timer and rebuilds the registry from the
// store. Maintenance jobs are kept.
func (s *Scheduler) Reload(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id := range s.tasks {
		s.unregisterLocked(id)
	}
	s.loadLocked(ctx)
	s.logger.Info("cron: scheduler reloaded", "schedules", len(s.tasks), "degraded", s.degraded)
}

// Shutdown unregisters every schedule and stops the cron runner, waiting
// for in-flight executions until ctx expires. Executions still running
// at that point are cancelled.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	for id := range s.tasks {
		s.unregisterLocked(id)
	}
	s.metrics.SetActiveTasks(0)
	stopped := s.cron.Stop()
	s.started = false
	s.mu.Unlock()

	defer s.cancelRun()
	select {
	case <-stopped.Done():
		s.logger.Info("cron: scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("cron: shutdown interrupted with executions in flight: %w", ctx.Err())
	}
}

// ActiveTaskCount returns the number of registered schedules.
func (s *Scheduler) ActiveTaskCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// Degraded reports whether the last load from the store failed.
func (s *Scheduler) Degraded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.degraded
}

// RunNow executes id immediately on the caller's goroutine, sharing the
// overlap guard with scheduled firings.
func (s *Scheduler) RunNow(ctx context.Context, id string) error {
	release, ok := s.acquire(id)
	if !ok {
		return ErrAlreadyRunning
	}
	defer release()
	return s.executor.Execute(ctx, id)
}

func (s *Scheduler) loadLocked(ctx context.Context) {
	schedules, err := s.source.FindAllEnabled(ctx)
	if err != nil {
		s.degraded = true
		s.logger.Warn("cron: cannot load schedules, running degraded", "error", err)
		s.metrics.SetActiveTasks(len(s.tasks))
		return
	}
	s.degraded = false
	for _, sched := range schedules {
		if err := s.registerLocked(sched); err != nil {
			s.logger.Error("cron: cannot register schedule", "schedule", sched.ID, "error", err)
		}
	}
}

func (s *Scheduler) registerLocked(sched schedule.Schedule) error {
	s.unregisterLocked(sched.ID)

	id := sched.ID
	entry, err := s.cron.AddFunc(sched.Cron.Spec(), s.guarded(id, func(ctx context.Context) {
		if err := s.executor.Execute(ctx, id); err != nil {
			s.logger.Error("cron: execution failed", "schedule", id, "error", err)
		}
	}))
	if err != nil {
		return fmt.Errorf("cron: register schedule %s: %w", id, err)
	}
	s.tasks[id] = entry
	s.metrics.SetActiveTasks(len(s.tasks))
	s.logger.Debug("cron: schedule registered", "schedule", id, "cron", sched.Cron.String())
	return nil
}

func (s *Scheduler) unregisterLocked(id string) {
	entry, ok := s.tasks[id]
	if !ok {
		return
	}
	s.cron.Remove(entry)
	delete(s.tasks, id)
}

// guarded wraps fn with the per-key overlap guard.
func (s *Scheduler) guarded(key string, fn func(ctx context.Context)) func() {
	return func() {
		release, ok := s.acquire(key)
		if !ok {
			s.metrics.IncSkipped()
			s.logger.Warn("cron: previous firing still running, skipping", "key", key)
			return
		}
		defer release()
		fn(s.runCtx)
	}
}

// acquire takes the overlap lock of key without waiting.
func (s *Scheduler) acquire(key string) (release func(), ok bool) {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, found := s.locks[key]
	if !found {
		l = &sync.Mutex{}
		s.locks[key] = l
	}
	if !l.TryLock() {
		return nil, false
	}
	return l.Unlock, true
}

// dropLock forgets the overlap lock of key unless an execution holds it.
// Lookups and TryLock both happen under locksMu, so a dropped lock can
// never be handed out again.
func (s *Scheduler) dropLock(key string) {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	if l, ok := s.locks[key]; ok && l.TryLock() {
		delete(s.locks, key)
		l.Unlock()
	}
}
