package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ProviderName identifies an SMS gateway adapter.
type ProviderName string

const (
	ProviderTwilio         ProviderName = "twilio"
	ProviderAfricasTalking ProviderName = "africastalking"
	ProviderSMSPortal      ProviderName = "smsportal"
	ProviderBulkSMS        ProviderName = "bulksms"
	ProviderClickatell     ProviderName = "clickatell"
	ProviderWinSMS         ProviderName = "winsms"
)

// SendResult is returned by an SMS adapter for one recipient.
type SendResult struct {
	Success   bool            `json:"success"`
	MessageID string          `json:"message_id,omitempty"`
	Status    string          `json:"status"`
	Error     string          `json:"error,omitempty"`
	Phone     string          `json:"phone"`
	Provider  ProviderName    `json:"provider"`
	Cost      decimal.Decimal `json:"cost"`
	SentAt    time.Time       `json:"sent_at"`
}

// OutcomeKind discriminates SendOutcome.
type OutcomeKind int

const (
	OutcomePerRecipient OutcomeKind = iota + 1
	OutcomeAggregate
)

// AggregateCounts is what gateways that only report totals return.
type AggregateCounts struct {
	Sent   int             `json:"sent_count"`
	Failed int             `json:"failed_count"`
	Cost   decimal.Decimal `json:"cost"`
}

// SendOutcome is the result of a bulk send: either one SendResult per
// recipient (in input order) or provider-reported aggregate counts.
// Build it with PerRecipient or Aggregate; the zero value is invalid.
type SendOutcome struct {
	kind      OutcomeKind
	results   []SendResult
	aggregate AggregateCounts
	provider  ProviderName
}

// PerRecipient wraps per-recipient results.
func PerRecipient(provider ProviderName, results []SendResult) SendOutcome {
	return SendOutcome{kind: OutcomePerRecipient, results: results, provider: provider}
}

// Aggregate wraps provider-reported totals.
func Aggregate(provider ProviderName, counts AggregateCounts) SendOutcome {
	return SendOutcome{kind: OutcomeAggregate, aggregate: counts, provider: provider}
}

// Kind returns which variant o holds.
func (o SendOutcome) Kind() OutcomeKind { return o.kind }

// Provider returns the adapter that produced o.
func (o SendOutcome) Provider() ProviderName { return o.provider }

// Results returns the per-recipient results. Only meaningful for OutcomePerRecipient.
func (o SendOutcome) Results() []SendResult { return o.results }

// Counts returns the aggregate totals. Only meaningful for OutcomeAggregate.
func (o SendOutcome) Counts() AggregateCounts { return o.aggregate }
