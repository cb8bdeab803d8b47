package contact

import (
	"context"
	"encoding/json"
	"io"

	"github.com/ekklesia/commhub/internal/domain"
)

// Repository defines the data access contract for contacts.
// Implementations must be safe for concurrent use.
type Repository interface {
	// Get returns a single contact. Returns ErrNotFound if it doesn't exist.
	Get(ctx context.Context, id string) (*domain.Contact, error)

	// List returns contacts matching the filter ordered by name, and the
	// total number of matches.
	List(ctx context.Context, filter ListFilter) ([]domain.Contact, int, error)

	// All returns every contact ordered by name.
	All(ctx context.Context) ([]domain.Contact, error)

	// Create inserts a contact. Returns ErrDuplicatePhone if the phone is taken.
	Create(ctx context.Context, c *domain.Contact) error

	// Update modifies a contact. Nil fields are not applied.
	Update(ctx context.Context, id string, u UpdateFields) error

	// Delete removes a contact. Returns ErrNotFound if it doesn't exist.
	Delete(ctx context.Context, id string) error

	// DeleteMany removes the listed contacts and returns how many existed.
	DeleteMany(ctx context.Context, ids []string) (int, error)
}

// Archive stores exported files and lists them.
type Archive interface {
	Save(ctx context.Context, rec domain.ExportRecord, contentType string, data []byte) (domain.ExportRecord, error)
	List(ctx context.Context, limit int) ([]domain.ExportRecord, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// ListFilter controls pagination and filtering for contact lists.
type ListFilter struct {
	Search string // matches name or phone
	Status string
	Tag    string
	Limit  int
	Offset int
}

// UpdateFields holds the mutable fields of a contact.
// Nil fields are not applied.
type UpdateFields struct {
	Name           *string
	Phone          *string
	Status         *string
	OptOutSMS      *bool
	OptOutWhatsApp *bool
	Tags           *domain.Tags
	Metadata       json.RawMessage
}
