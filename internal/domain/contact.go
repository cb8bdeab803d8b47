package domain

import (
	"encoding/json"
	"time"
)

// ContactStatusActive is the default lifecycle label for a new contact.
const ContactStatusActive = "active"

// Channel identifies a messaging channel a contact can opt out of.
type Channel string

const (
	ChannelSMS      Channel = "sms"
	ChannelWhatsApp Channel = "whatsapp"
)

// Contact is a person the church can reach. Phone is always canonical
// (+27 followed by nine digits) once stored.
type Contact struct {
	ID             string          `json:"id" db:"id"`
	Name           *string         `json:"name" db:"name"`
	Phone          string          `json:"phone" db:"phone"`
	Status         string          `json:"status" db:"status"`
	OptOutSMS      bool            `json:"opt_out_sms" db:"opt_out_sms"`
	OptOutWhatsApp bool            `json:"opt_out_whatsapp" db:"opt_out_whatsapp"`
	Tags           Tags            `json:"tags" db:"tags"`
	Metadata       json.RawMessage `json:"metadata,omitempty" db:"metadata"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at" db:"updated_at"`
}

// DisplayName returns the contact's name, falling back to the phone number.
func (c Contact) DisplayName() string {
	if c.Name != nil && *c.Name != "" {
		return *c.Name
	}
	return c.Phone
}

// OptedOut reports whether the contact refuses messages on ch.
func (c Contact) OptedOut(ch Channel) bool {
	switch ch {
	case ChannelWhatsApp:
		return c.OptOutWhatsApp
	default:
		return c.OptOutSMS
	}
}

// LocationTags are the congregation locations used to tag contacts.
var LocationTags = []string{"kanana", "majaneng", "mashemong", "soshanguve", "kekana"}
