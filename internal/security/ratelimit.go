package security

import (
	"errors"
	"sync"
	"time"
)

// ErrRateLimited is returned when a key exceeds its allowance.
var ErrRateLimited = errors.New("rate limit exceeded")

// Default allowance for RateLimitConfig zero values.
const (
	DefaultRateLimit  = 10
	DefaultRateWindow = time.Minute
)

// RateLimitConfig bounds how many events one key may record per window.
type RateLimitConfig struct {
	Limit  int           `yaml:"limit"`
	Window time.Duration `yaml:"window"`
}

// RateLimiter is a sliding-window limiter keyed by an arbitrary string,
// typically a client address. Idle keys are forgotten once their window
// is empty.
type RateLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	buckets map[string][]time.Time
	now     func() time.Time
}

// NewRateLimiter creates a limiter. Zero fields take the defaults.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	if cfg.Limit <= 0 {
		cfg.Limit = DefaultRateLimit
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultRateWindow
	}
	return &RateLimiter{
		limit:   cfg.Limit,
		window:  cfg.Window,
		buckets: make(map[string][]time.Time),
		now:     time.Now,
	}
}

// Allow records one event for key. It returns ErrRateLimited, without
// recording, when key already used its allowance in the current window.
func (rl *RateLimiter) Allow(key string) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	events := evict(rl.buckets[key], now.Add(-rl.window))
	if len(events) >= rl.limit {
		rl.buckets[key] = events
		return ErrRateLimited
	}
	rl.buckets[key] = append(events, now)
	rl.gc(now)
	return nil
}

// Len returns the number of keys currently tracked.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.buckets)
}

// gc drops keys whose events all fell out of the window.
func (rl *RateLimiter) gc(now time.Time) {
	cutoff := now.Add(-rl.window)
	for k, events := range rl.buckets {
		if len(evict(events, cutoff)) == 0 {
			delete(rl.buckets, k)
		}
	}
}

// evict returns the suffix of events, which are chronological, that is
// not before cutoff.
func evict(events []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(events) && events[i].Before(cutoff) {
		i++
	}
	return events[i:]
}
