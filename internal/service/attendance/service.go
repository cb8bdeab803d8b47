package attendance

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ekklesia/commhub/internal/domain"
	"github.com/ekklesia/commhub/internal/pkg/logger"
)

// Service implements attendance business logic.
type Service struct {
	repo     Repository
	contacts ContactLookup
	now      func() time.Time
}

// NewService creates an attendance service.
func NewService(repo Repository, contacts ContactLookup) *Service {
	return &Service{repo: repo, contacts: contacts, now: func() time.Time { return time.Now().UTC() }}
}

// RecordInput holds the fields accepted when recording attendance.
// ServiceDate is YYYY-MM-DD or RFC 3339; empty means today.
type RecordInput struct {
	ContactID   string             `json:"contact_id"`
	ServiceType domain.ServiceType `json:"service_type"`
	ServiceDate string             `json:"service_date"`
	RecordedBy  string             `json:"-"`
}

// ParseDate accepts YYYY-MM-DD or RFC 3339 and returns the calendar date at
// UTC midnight.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date %q must be YYYY-MM-DD", ErrValidation, s)
	}
	return day(t), nil
}

func day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Record stores one attendance, snapshotting the contact's current phone.
func (s *Service) Record(ctx context.Context, in RecordInput) (*domain.Attendance, error) {
	if in.ContactID == "" {
		return nil, fmt.Errorf("%w: contact_id is required", ErrValidation)
	}
	if !in.ServiceType.Valid() {
		return nil, fmt.Errorf("%w: unknown service type %q", ErrValidation, in.ServiceType)
	}
	date := day(s.now())
	if in.ServiceDate != "" {
		d, err := ParseDate(in.ServiceDate)
		if err != nil {
			return nil, err
		}
		date = d
	}

	c, err := s.contacts.Find(ctx, in.ContactID)
	if err != nil {
		return nil, fmt.Errorf("load contact: %w", err)
	}
	if c == nil {
		return nil, ErrContactNotFound
	}

	a := &domain.Attendance{
		ID:          uuid.New().String(),
		ContactID:   c.ID,
		Phone:       c.Phone,
		ServiceType: in.ServiceType,
		ServiceDate: date,
		RecordedBy:  in.RecordedBy,
		RecordedAt:  s.now(),
	}
	if err := s.repo.Create(ctx, a); err != nil {
		return nil, err
	}
	name := c.DisplayName()
	a.ContactName = &name
	logger.Debug("attendance recorded", "contact_id", c.ID, "service_type", string(a.ServiceType), "date", date.Format("2006-01-02"))
	return a, nil
}

// List returns attendance records matching f, newest service date first.
func (s *Service) List(ctx context.Context, f ListFilter) ([]domain.Attendance, int, error) {
	if f.ServiceType != "" && !f.ServiceType.Valid() {
		return nil, 0, fmt.Errorf("%w: unknown service type %q", ErrValidation, f.ServiceType)
	}
	if f.From != nil && f.To != nil && f.To.Before(*f.From) {
		return nil, 0, fmt.Errorf("%w: date_to is before date_from", ErrValidation)
	}
	return s.repo.List(ctx, f)
}

// Summary counts attendance in the date range, in total and per service type.
func (s *Service) Summary(ctx context.Context, from, to *time.Time) (*domain.AttendanceSummary, error) {
	sum, err := s.repo.Summary(ctx, from, to)
	if err != nil {
		return nil, err
	}
	if sum.ByServiceType == nil {
		sum.ByServiceType = map[string]int{}
	}
	return sum, nil
}

// ByContact returns every record for one contact, newest first.
func (s *Service) ByContact(ctx context.Context, contactID string) ([]domain.Attendance, error) {
	out, _, err := s.repo.List(ctx, ListFilter{ContactID: contactID})
	return out, err
}

// Delete removes an attendance record.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}
