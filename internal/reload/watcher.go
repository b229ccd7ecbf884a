// Package reload applies a changed configuration file to the running
// process. Changes arrive from the polling Watcher, SIGHUP or the gateway
// API, and all of them go through Handler.
package reload

import (
	"context"
	"crypto/sha256"
	"os"
	"sync"
	"time"
)

const defaultPollInterval = 5 * time.Second

// WatcherConfig configures a Watcher.
type WatcherConfig struct {
	ConfigPath string

	// PollInterval defaults to five seconds.
	PollInterval time.Duration
}

// EventType names what happened to the watched file.
type EventType string

// EventModified is sent when the file content changed.
const EventModified EventType = "modified"

// Event is sent on the Events channel.
type Event struct {
	Type       EventType
	ConfigPath string
}

type digest = [sha256.Size]byte

// Watcher polls one file and reports content changes. A change is reported
// once two polls in a row read the same new content, so an editor caught
// halfway through a write does not trigger a reload. Touching a file or
// rewriting it unchanged reports nothing, and an unreadable file is
// treated as unchanged.
type Watcher struct {
	path     string
	interval time.Duration
	events   chan Event

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewWatcher returns a Watcher that is not polling yet.
func NewWatcher(cfg WatcherConfig) *Watcher {
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	return &Watcher{
		path:     cfg.ConfigPath,
		interval: interval,
		events:   make(chan Event, 1),
	}
}

// Start begins polling until ctx is done or Stop is called. Calls after
// the first are no-ops.
func (w *Watcher) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.done != nil {
		return
	}
	ctx, w.cancel = context.WithCancel(ctx)
	w.done = make(chan struct{})
	go w.run(ctx)
}

// Events delivers change notifications. At most one is buffered, so a
// burst of edits collapses into a single reload.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Stop ends polling and waits for the goroutine to exit. It may be called
// any number of times, before or after Start.
func (w *Watcher) Stop() {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.mu.Unlock()
	if done == nil {
		return
	}
	cancel()
	<-done
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.done)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	current, _ := w.read()
	var pending *digest
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		seen, ok := w.read()
		switch {
		case !ok || seen == current:
			pending = nil
		case pending == nil || *pending != seen:
			pending = &seen
		default:
			current, pending = seen, nil
			select {
			case w.events <- Event{Type: EventModified, ConfigPath: w.path}:
			default:
			}
		}
	}
}

func (w *Watcher) read() (digest, bool) {
	data, err := os.ReadFile(w.path)
	if err != nil {
		return digest{}, false
	}
	return sha256.Sum256(data), true
}
