package attendance

import (
	"context"
	"time"

	"github.com/ekklesia/commhub/internal/domain"
)

// Repository defines the data access contract for attendance records.
type Repository interface {
	// Create inserts a record. Returns ErrDuplicate when the contact already
	// has a record for the same service type on the same calendar date.
	Create(ctx context.Context, a *domain.Attendance) error
	List(ctx context.Context, f ListFilter) ([]domain.Attendance, int, error)
	Summary(ctx context.Context, from, to *time.Time) (*domain.AttendanceSummary, error)
	Delete(ctx context.Context, id string) error
}

// ContactLookup resolves the contact an attendance record belongs to.
type ContactLookup interface {
	// Find returns nil, nil when no contact has the id.
	Find(ctx context.Context, id string) (*domain.Contact, error)
}

// ListFilter holds query parameters for listing attendance. Zero values are
// ignored; a zero Limit returns every match. Results are ordered by service
// date, newest first.
type ListFilter struct {
	From        *time.Time
	To          *time.Time
	ServiceType domain.ServiceType
	ContactID   string
	Limit       int
	Offset      int
}
