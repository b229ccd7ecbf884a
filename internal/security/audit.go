// Package security provides the audit sink, secret redaction, path
// containment, credential collection and subprocess environment hygiene
// used by the engine.
package security

import (
	"encoding/json"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

// AuditServiceName is the AppContext service key of the process AuditLogger.
const AuditServiceName = "security.audit"

// AuditStatus is the outcome recorded on an audit event.
type AuditStatus string

// Audit statuses.
const (
	AuditSuccess AuditStatus = "success"
	AuditFailure AuditStatus = "failure"
)

// AuditEvent is a single audit log entry.
type AuditEvent struct {
	Timestamp    time.Time      `json:"timestamp"`
	Action       string         `json:"action"`
	Actor        string         `json:"actor"`
	TargetType   string         `json:"targetType"`
	TargetName   string         `json:"targetName"`
	Status       AuditStatus    `json:"status"`
	Details      map[string]any `json:"details,omitempty"`
	ErrorMessage string         `json:"errorMessage,omitempty"`
}

// AuditLoggerConfig configures the audit logger.
type AuditLoggerConfig struct {
	// Writer is the destination for JSONL output. If nil, events are only
	// dispatched to OnEvent.
	Writer io.Writer

	// Redactor, if non-nil, is applied to ErrorMessage and string Details.
	Redactor *Redactor

	// OnEvent, if non-nil, is called for every event.
	OnEvent func(AuditEvent)

	// Now overrides time.Now for testing.
	Now func() time.Time
}

// AuditLogger writes audit events as JSONL.
type AuditLogger struct {
	writer      io.Writer
	redactor    *Redactor
	onEvent     func(AuditEvent)
	now         func() time.Time
	mu          sync.Mutex
	writeErrors atomic.Int64
}

// NewAuditLogger creates an audit logger with the given configuration.
func NewAuditLogger(cfg AuditLoggerConfig) *AuditLogger {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &AuditLogger{
		writer:   cfg.Writer,
		redactor: cfg.Redactor,
		onEvent:  cfg.OnEvent,
		now:      now,
	}
}

// Log records an event. The timestamp is set automatically and the
// caller's Details map is copied, never mutated.
func (l *AuditLogger) Log(event AuditEvent) {
	event.Timestamp = l.now().UTC()

	if len(event.Details) > 0 {
		cp := make(map[string]any, len(event.Details))
		for k, v := range event.Details {
			if s, ok := v.(string); ok && l.redactor != nil {
				v = l.redactor.Redact(s)
			}
			cp[k] = v
		}
		event.Details = cp
	}
	if l.redactor != nil {
		event.ErrorMessage = l.redactor.Redact(event.ErrorMessage)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.onEvent != nil {
		l.onEvent(event)
	}
	if l.writer != nil {
		if err := json.NewEncoder(l.writer).Encode(event); err != nil {
			l.writeErrors.Add(1)
		}
	}
}

// WriteErrors returns the number of events that could not be written.
func (l *AuditLogger) WriteErrors() int64 {
	return l.writeErrors.Load()
}
