package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// CommunicationStatus enumerates the lifecycle states of a broadcast.
type CommunicationStatus string

const (
	CommunicationDraft     CommunicationStatus = "draft"
	CommunicationScheduled CommunicationStatus = "scheduled"
	CommunicationSent      CommunicationStatus = "sent"
	CommunicationFailed    CommunicationStatus = "failed"
)

// RecipientGroup selects which contacts a communication targets.
type RecipientGroup string

const (
	GroupAllContacts RecipientGroup = "all_contacts"
	GroupTagged      RecipientGroup = "tagged"
)

// Valid reports whether g is a known selector.
func (g RecipientGroup) Valid() bool {
	return g == GroupAllContacts || g == GroupTagged
}

// Communication is a single broadcast definition and its delivery record.
type Communication struct {
	ID             string              `json:"id" db:"id"`
	MessageType    Channel             `json:"message_type" db:"message_type"`
	RecipientGroup RecipientGroup      `json:"recipient_group" db:"recipient_group"`
	TagFilter      Tags                `json:"tag_filter" db:"tag_filter"`
	Subject        *string             `json:"subject" db:"subject"`
	Message        string              `json:"message" db:"message"`
	ScheduledAt    *time.Time          `json:"scheduled_at" db:"scheduled_at"`
	Status         CommunicationStatus `json:"status" db:"status"`
	SentCount      int                 `json:"sent_count" db:"sent_count"`
	FailedCount    int                 `json:"failed_count" db:"failed_count"`
	Cost           decimal.Decimal     `json:"cost" db:"cost"`
	Provider       *string             `json:"provider" db:"provider"`
	SentAt         *time.Time          `json:"sent_at" db:"sent_at"`
	Metadata       json.RawMessage     `json:"metadata,omitempty" db:"metadata"`
	CreatedBy      string              `json:"created_by" db:"created_by"`
	CreatedAt      time.Time           `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at" db:"updated_at"`
}

// DispatchTally is the folded result of a send, written back onto the
// communication in the same transaction that claimed it.
type DispatchTally struct {
	Provider    string          `json:"provider"`
	SentCount   int             `json:"sent_count"`
	FailedCount int             `json:"failed_count"`
	Cost        decimal.Decimal `json:"cost"`
}
