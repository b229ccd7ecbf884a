package schedule

import (
	"context"
	"time"
)

// ServiceName is the AppContext service key of the configured Repository.
const ServiceName = "schedule.repository"

// Repository persists schedules. All writes are visible to subsequent reads
// by the time the call returns. Implementations must be safe for concurrent use.
type Repository interface {
	// Create stores a new schedule.
	Create(ctx context.Context, s Schedule) error

	// FindAll returns every schedule ordered by creation time.
	FindAll(ctx context.Context) ([]Schedule, error)

	// FindByID returns the schedule or an errdefs.ErrNotFound error.
	FindByID(ctx context.Context, id string) (Schedule, error)

	// FindByTarget returns the schedules of one target.
	FindByTarget(ctx context.Context, target string) ([]Schedule, error)

	// FindAllEnabled returns every enabled schedule.
	FindAllEnabled(ctx context.Context) ([]Schedule, error)

	// Update replaces a stored schedule or returns errdefs.ErrNotFound.
	Update(ctx context.Context, s Schedule) error

	// RecordRun sets only the last-run fields and updatedAt of a stored
	// schedule, leaving edits made concurrently intact. It returns
	// errdefs.ErrNotFound when the schedule is gone.
	RecordRun(ctx context.Context, id string, status RunStatus, message string, at time.Time) error

	// Delete removes a schedule or returns errdefs.ErrNotFound.
	Delete(ctx context.Context, id string) error
}
