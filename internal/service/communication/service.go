package communication

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ekklesia/commhub/internal/domain"
)

// Service implements communication business logic on top of a Repository
// and a Dispatcher. All public methods are safe for concurrent use if the
// underlying repository is concurrency-safe.
type Service struct {
	repo       Repository
	dispatcher *Dispatcher
	templates  *Personalizer
}

// NewService creates a communication service.
func NewService(repo Repository, dispatcher *Dispatcher) *Service {
	return &Service{repo: repo, dispatcher: dispatcher, templates: dispatcher.templates}
}

// CreateInput holds the fields accepted when creating a communication.
type CreateInput struct {
	MessageType    domain.Channel        `json:"message_type"`
	RecipientGroup domain.RecipientGroup `json:"recipient_group"`
	TagFilter      []string              `json:"tag_filter"`
	Subject        *string               `json:"subject"`
	Message        string                `json:"message"`
	ScheduledAt    *time.Time            `json:"scheduled_at"`
	Metadata       json.RawMessage       `json:"metadata"`
	CreatedBy      string                `json:"-"`
}

// StatusReport is the delivery summary of one communication.
type StatusReport struct {
	ID          string                     `json:"id"`
	Status      domain.CommunicationStatus `json:"status"`
	SentCount   int                        `json:"sent_count"`
	FailedCount int                        `json:"failed_count"`
	Cost        decimal.Decimal            `json:"cost"`
	Provider    *string                    `json:"provider"`
	SentAt      *time.Time                 `json:"sent_at"`
}

// Get returns a single communication.
func (s *Service) Get(ctx context.Context, id string) (*domain.Communication, error) {
	return s.repo.Get(ctx, id)
}

// List returns communications matching the filter.
func (s *Service) List(ctx context.Context, f ListFilter) ([]domain.Communication, int, error) {
	return s.repo.List(ctx, f)
}

// Create validates and persists a new draft.
func (s *Service) Create(ctx context.Context, in CreateInput) (*domain.Communication, error) {
	if in.MessageType == "" {
		in.MessageType = domain.ChannelSMS
	}
	if err := validChannel(in.MessageType); err != nil {
		return nil, err
	}
	if !in.RecipientGroup.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRecipientGroup, in.RecipientGroup)
	}
	if strings.TrimSpace(in.Message) == "" {
		return nil, fmt.Errorf("%w: message is required", ErrValidation)
	}
	if err := s.templates.Validate(in.Message); err != nil {
		return nil, err
	}

	tags := domain.NewTags(in.TagFilter...)
	if len(tags) == 0 {
		tags = domain.TagsFromMetadata(in.Metadata)
	}

	now := time.Now().UTC()
	c := &domain.Communication{
		ID:             uuid.New().String(),
		MessageType:    in.MessageType,
		RecipientGroup: in.RecipientGroup,
		TagFilter:      tags,
		Subject:        in.Subject,
		Message:        in.Message,
		ScheduledAt:    in.ScheduledAt,
		Status:         domain.CommunicationDraft,
		Cost:           decimal.Zero,
		Metadata:       in.Metadata,
		CreatedBy:      in.CreatedBy,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.repo.Create(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Update modifies a draft.
func (s *Service) Update(ctx context.Context, id string, u UpdateFields) (*domain.Communication, error) {
	if u.MessageType != nil {
		if err := validChannel(*u.MessageType); err != nil {
			return nil, err
		}
	}
	if u.RecipientGroup != nil && !u.RecipientGroup.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRecipientGroup, *u.RecipientGroup)
	}
	if u.Message != nil {
		if strings.TrimSpace(*u.Message) == "" {
			return nil, fmt.Errorf("%w: message is required", ErrValidation)
		}
		if err := s.templates.Validate(*u.Message); err != nil {
			return nil, err
		}
	}
	if u.TagFilter != nil {
		t := domain.NewTags(*u.TagFilter...)
		u.TagFilter = &t
	}
	if err := s.repo.Update(ctx, id, u); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, id)
}

// Delete removes a communication.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}

// Status returns the delivery summary.
func (s *Service) Status(ctx context.Context, id string) (*StatusReport, error) {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &StatusReport{
		ID:          c.ID,
		Status:      c.Status,
		SentCount:   c.SentCount,
		FailedCount: c.FailedCount,
		Cost:        c.Cost,
		Provider:    c.Provider,
		SentAt:      c.SentAt,
	}, nil
}

// Send delivers a draft to its recipient group.
func (s *Service) Send(ctx context.Context, id, provider string) (*domain.Communication, error) {
	return s.dispatcher.Send(ctx, id, provider)
}

// SendToNumbers delivers a draft to an explicit list of numbers.
func (s *Service) SendToNumbers(ctx context.Context, id string, phones []string, provider string) (*domain.Communication, error) {
	if len(phones) == 0 {
		return nil, fmt.Errorf("%w: phone_numbers is required", ErrValidation)
	}
	return s.dispatcher.SendToNumbers(ctx, id, phones, provider)
}

// Providers lists the configured SMS providers in preference order.
func (s *Service) Providers() []string {
	if s.dispatcher.providers == nil {
		return []string{}
	}
	names := s.dispatcher.providers.Names()
	if names == nil {
		return []string{}
	}
	return names
}

func validChannel(ch domain.Channel) error {
	switch ch {
	case domain.ChannelSMS, domain.ChannelWhatsApp:
		return nil
	default:
		return fmt.Errorf("%w: unknown message type %q", ErrValidation, ch)
	}
}
