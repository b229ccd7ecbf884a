package security

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func TestRateLimiter_AllowWithinLimit(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(RateLimitConfig{Limit: 5})
	for i := range 5 {
		if err := rl.Allow("10.0.0.1"); err != nil {
			t.Fatalf("Allow(%d) returned error: %v", i, err)
		}
	}
	if err := rl.Allow("10.0.0.1"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if err := rl.Allow("10.0.0.2"); err != nil {
		t.Fatalf("keys must not share an allowance: %v", err)
	}
}

func TestRateLimiter_SlidingWindow(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(RateLimitConfig{Limit: 2, Window: time.Minute})
	rl.now = func() time.Time { return now }

	_ = rl.Allow("k")
	_ = rl.Allow("k")
	if err := rl.Allow("k"); !errors.Is(err, ErrRateLimited) {
		t.Fatal("expected rate limit")
	}

	now = now.Add(61 * time.Second)
	if err := rl.Allow("k"); err != nil {
		t.Fatalf("expected allow after window, got %v", err)
	}
}

func TestRateLimiter_ForgetsIdleKeys(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(RateLimitConfig{Limit: 1, Window: time.Minute})
	rl.now = func() time.Time { return now }

	_ = rl.Allow("a")
	_ = rl.Allow("b")
	if rl.Len() != 2 {
		t.Fatalf("Len = %d, want 2", rl.Len())
	}

	now = now.Add(2 * time.Minute)
	_ = rl.Allow("c")
	if rl.Len() != 1 {
		t.Errorf("Len = %d, want 1 after idle keys expire", rl.Len())
	}
}

func TestRateLimiter_Defaults(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(RateLimitConfig{})
	if rl.limit != DefaultRateLimit || rl.window != DefaultRateWindow {
		t.Errorf("limit = %d window = %v", rl.limit, rl.window)
	}
}

func TestRateLimiter_Concurrent(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(RateLimitConfig{Limit: 100})
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for range 200 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if rl.Allow("k") == nil {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if allowed != 100 {
		t.Errorf("allowed = %d, want 100", allowed)
	}
}
