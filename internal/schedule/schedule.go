// Package schedule defines cron-triggered snapshot schedules, their
// validation rules, and the repository contract used to persist them.
package schedule

import (
	"encoding/json"
	"regexp"
	"strings"
	"time"

	"github.com/flemzord/snapkeep/internal/artifact"
	"github.com/flemzord/snapkeep/internal/errdefs"
	"github.com/google/uuid"
)

// Retention bounds.
const (
	MinRetentionCount     = 1
	MaxRetentionCount     = 100
	DefaultRetentionCount = 10
)

// targetPattern restricts target names to a single safe path segment.
var targetPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,63}$`)

// RunStatus is the outcome of the most recent execution.
type RunStatus string

// Run statuses. The zero value means the schedule never ran.
const (
	StatusNone    RunStatus = ""
	StatusSuccess RunStatus = "success"
	StatusFailure RunStatus = "failure"
)

// RetentionPolicy bounds the artifact history of a schedule. Zero fields
// are unset; a policy with both unset retains everything.
type RetentionPolicy struct {
	MaxCount   int `json:"maxCount,omitempty"`
	MaxAgeDays int `json:"maxAgeDays,omitempty"`
}

// IsZero reports whether neither bound is set.
func (p RetentionPolicy) IsZero() bool {
	return p.MaxCount == 0 && p.MaxAgeDays == 0
}

// Schedule is a persisted cron-triggered job definition for one target.
type Schedule struct {
	ID             string
	Kind           artifact.Kind
	Target         string
	Name           string
	Cron           Cron
	Enabled        bool
	Retention      RetentionPolicy
	LastRunAt      *time.Time
	LastRunStatus  RunStatus
	LastRunMessage string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NewParams holds the inputs accepted when creating a schedule.
type NewParams struct {
	Kind           artifact.Kind
	Target         string
	Name           string
	CronExpression string
	Enabled        *bool
	MaxCount       *int
	MaxAgeDays     *int
}

// UpdateParams holds the editable fields. Nil fields are left unchanged.
type UpdateParams struct {
	Name           *string
	CronExpression *string
	MaxCount       *int
	MaxAgeDays     *int
}

// New validates p and builds a schedule with a fresh id.
func New(p NewParams, now time.Time) (Schedule, error) {
	kind, err := artifact.ParseKind(string(p.Kind))
	if err != nil {
		return Schedule{}, err
	}
	if err := ValidateTarget(p.Target); err != nil {
		return Schedule{}, err
	}
	name, err := validateName(p.Name)
	if err != nil {
		return Schedule{}, err
	}
	cron, err := ParseCron(p.CronExpression)
	if err != nil {
		return Schedule{}, err
	}
	policy, err := applyRetention(RetentionPolicy{}, p.MaxCount, p.MaxAgeDays)
	if err != nil {
		return Schedule{}, err
	}
	if policy.IsZero() && kind == artifact.KindFileSet {
		policy.MaxCount = DefaultRetentionCount
	}

	enabled := true
	if p.Enabled != nil {
		enabled = *p.Enabled
	}

	now = now.UTC()
	return Schedule{
		ID:        uuid.NewString(),
		Kind:      kind,
		Target:    p.Target,
		Name:      name,
		Cron:      cron,
		Enabled:   enabled,
		Retention: policy,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Apply returns a copy of s with the non-nil fields of p applied and
// re-validated. s itself is never modified.
func (s Schedule) Apply(p UpdateParams, now time.Time) (Schedule, error) {
	out := s
	if p.Name != nil {
		name, err := validateName(*p.Name)
		if err != nil {
			return Schedule{}, err
		}
		out.Name = name
	}
	if p.CronExpression != nil {
		cron, err := ParseCron(*p.CronExpression)
		if err != nil {
			return Schedule{}, err
		}
		out.Cron = cron
	}
	policy, err := applyRetention(s.Retention, p.MaxCount, p.MaxAgeDays)
	if err != nil {
		return Schedule{}, err
	}
	out.Retention = policy
	out.UpdatedAt = now.UTC()
	return out, nil
}

// WithEnabled returns a copy of s toggled to enabled.
func (s Schedule) WithEnabled(enabled bool, now time.Time) Schedule {
	s.Enabled = enabled
	s.UpdatedAt = now.UTC()
	return s
}

// WithRun returns a copy of s carrying the outcome of an execution.
func (s Schedule) WithRun(status RunStatus, message string, at time.Time) Schedule {
	at = at.UTC()
	s.LastRunAt = &at
	s.LastRunStatus = status
	s.LastRunMessage = message
	s.UpdatedAt = at
	return s
}

// ValidateTarget checks that a target name is a single safe path segment.
func ValidateTarget(target string) error {
	if target == "" {
		return errdefs.Validationf("target cannot be empty")
	}
	if !targetPattern.MatchString(target) || strings.Contains(target, "..") {
		return errdefs.Validationf("invalid target name %q", target)
	}
	return nil
}

func validateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errdefs.Validationf("name cannot be empty")
	}
	return name, nil
}

func applyRetention(p RetentionPolicy, maxCount, maxAgeDays *int) (RetentionPolicy, error) {
	if maxCount != nil {
		if *maxCount < MinRetentionCount || *maxCount > MaxRetentionCount {
			return RetentionPolicy{}, errdefs.Validationf(
				"retention count must be between %d and %d, got %d",
				MinRetentionCount, MaxRetentionCount, *maxCount)
		}
		p.MaxCount = *maxCount
	}
	if maxAgeDays != nil {
		if *maxAgeDays < 1 {
			return RetentionPolicy{}, errdefs.Validationf("retention max age must be at least 1 day, got %d", *maxAgeDays)
		}
		p.MaxAgeDays = *maxAgeDays
	}
	return p, nil
}

// Record is the flat, JSON-serializable form of a schedule.
type Record struct {
	ID                  string     `json:"id"`
	Kind                string     `json:"kind"`
	Target              string     `json:"target"`
	Name                string     `json:"name"`
	CronExpression      string     `json:"cronExpression"`
	CronHumanReadable   string     `json:"cronHumanReadable"`
	Enabled             bool       `json:"enabled"`
	RetentionCount      *int       `json:"retentionCount"`
	RetentionMaxAgeDays *int       `json:"retentionMaxAgeDays"`
	LastRunAt           *time.Time `json:"lastRunAt"`
	LastRunStatus       *string    `json:"lastRunStatus"`
	LastRunMessage      *string    `json:"lastRunMessage"`
	CreatedAt           time.Time  `json:"createdAt"`
	UpdatedAt           time.Time  `json:"updatedAt"`
}

// Record flattens s into its persisted shape.
func (s Schedule) Record() Record {
	r := Record{
		ID:                s.ID,
		Kind:              string(s.Kind),
		Target:            s.Target,
		Name:              s.Name,
		CronExpression:    s.Cron.String(),
		CronHumanReadable: s.Cron.HumanReadable(),
		Enabled:           s.Enabled,
		LastRunAt:         s.LastRunAt,
		CreatedAt:         s.CreatedAt,
		UpdatedAt:         s.UpdatedAt,
	}
	if s.Retention.MaxCount > 0 {
		n := s.Retention.MaxCount
		r.RetentionCount = &n
	}
	if s.Retention.MaxAgeDays > 0 {
		n := s.Retention.MaxAgeDays
		r.RetentionMaxAgeDays = &n
	}
	if s.LastRunStatus != StatusNone {
		st := string(s.LastRunStatus)
		r.LastRunStatus = &st
	}
	if s.LastRunMessage != "" {
		m := s.LastRunMessage
		r.LastRunMessage = &m
	}
	return r
}

// MarshalJSON encodes the flat record form.
func (s Schedule) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Record())
}
