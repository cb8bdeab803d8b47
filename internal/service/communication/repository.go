package communication

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ekklesia/commhub/internal/domain"
)

// Repository defines the data access contract for communications.
// Implementations must be safe for concurrent use.
type Repository interface {
	// Get returns a single communication. Returns ErrNotFound if it doesn't exist.
	Get(ctx context.Context, id string) (*domain.Communication, error)

	// List returns communications matching the filter, newest first, and the
	// total number of matches.
	List(ctx context.Context, filter ListFilter) ([]domain.Communication, int, error)

	// Create inserts a new communication.
	Create(ctx context.Context, c *domain.Communication) error

	// Update modifies a draft. Returns ErrNotFound if it doesn't exist and
	// ErrAlreadySent if it is no longer a draft.
	Update(ctx context.Context, id string, u UpdateFields) error

	// Delete removes a communication.
	Delete(ctx context.Context, id string) error

	// Dispatch locks the communication row, passes it to fn and stores the
	// returned tally with status sent, all in one transaction. The write only
	// applies while the row is still a draft; otherwise ErrAlreadySent is
	// returned. An error from fn rolls the transaction back.
	Dispatch(ctx context.Context, id string, fn DispatchFunc) (*domain.Communication, error)
}

// DispatchFunc delivers a locked communication and reports the tally to store.
type DispatchFunc func(ctx context.Context, c *domain.Communication) (*domain.DispatchTally, error)

// ContactSource supplies recipient candidates. Implementations may filter in
// the query; the resolver filters again in memory.
type ContactSource interface {
	// Reachable returns every contact not opted out of ch.
	Reachable(ctx context.Context, ch domain.Channel) ([]domain.Contact, error)

	// ReachableByTags returns contacts not opted out of ch whose tags overlap tags.
	ReachableByTags(ctx context.Context, tags domain.Tags, ch domain.Channel) ([]domain.Contact, error)
}

// ListFilter controls pagination and filtering for communication lists.
type ListFilter struct {
	Status      string
	MessageType string
	Limit       int
	Offset      int
}

// UpdateFields holds the mutable fields of a draft.
// Nil fields are not applied.
type UpdateFields struct {
	MessageType    *domain.Channel
	RecipientGroup *domain.RecipientGroup
	TagFilter      *domain.Tags
	Subject        *string
	Message        *string
	ScheduledAt    *time.Time
	Metadata       json.RawMessage
}
