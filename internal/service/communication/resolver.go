package communication

import (
	"context"
	"fmt"

	"github.com/ekklesia/commhub/internal/domain"
)

// Resolver turns a recipient selector into the contacts to message.
type Resolver struct {
	contacts ContactSource
}

// NewResolver creates a resolver backed by src.
func NewResolver(src ContactSource) *Resolver {
	return &Resolver{contacts: src}
}

// Resolve returns the contacts selected by group for channel ch.
// Opted-out contacts are never returned, and an empty tag filter selects
// nobody.
func (r *Resolver) Resolve(ctx context.Context, group domain.RecipientGroup, filter domain.Tags, ch domain.Channel) ([]domain.Contact, error) {
	var (
		found []domain.Contact
		err   error
	)
	switch group {
	case domain.GroupAllContacts:
		found, err = r.contacts.Reachable(ctx, ch)
	case domain.GroupTagged:
		if len(filter) == 0 {
			return nil, nil
		}
		found, err = r.contacts.ReachableByTags(ctx, filter, ch)
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidRecipientGroup, group)
	}
	if err != nil {
		return nil, fmt.Errorf("resolve recipients: %w", err)
	}

	out := make([]domain.Contact, 0, len(found))
	for _, c := range found {
		if c.OptedOut(ch) {
			continue
		}
		if group == domain.GroupTagged && !c.Tags.Intersects(filter) {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}
