package sms

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ekklesia/commhub/internal/config"
	"github.com/ekklesia/commhub/internal/domain"
	"github.com/ekklesia/commhub/internal/phone"
	"github.com/ekklesia/commhub/internal/pkg/httpretry"
	"github.com/ekklesia/commhub/internal/pkg/logger"
)

const smsPortalDefaultURL = "https://rest.smsportal.com/BulkMessages"

// SMSPortal sends through the SMSPortal BulkMessages endpoint.
// Bulk sends come back as totals, so SendBulk returns an aggregate outcome.
type SMSPortal struct {
	apiKey   string
	clientID string
	testMode bool
	url      string
	maxBatch int
	client   httpretry.HTTPDoer
}

// NewSMSPortal creates an SMSPortal adapter. A nil client gets a 30s default.
func NewSMSPortal(cfg config.SMSPortalConfig, client httpretry.HTTPDoer) (*SMSPortal, error) {
	if cfg.APIKey == "" || cfg.ClientID == "" {
		return nil, missing(domain.ProviderSMSPortal, "SMSPORTAL_API_KEY", "SMSPORTAL_CLIENT_ID")
	}
	u := cfg.BaseURL
	if u == "" {
		u = smsPortalDefaultURL
	}
	return &SMSPortal{
		apiKey:   cfg.APIKey,
		clientID: cfg.ClientID,
		testMode: cfg.TestMode,
		url:      u,
		maxBatch: 500,
		client:   defaultClient(client, 30*time.Second),
	}, nil
}

func (p *SMSPortal) Name() domain.ProviderName { return domain.ProviderSMSPortal }

// MaxBatchSize returns the maximum recipients per request.
func (p *SMSPortal) MaxBatchSize() int { return p.maxBatch }

type smsPortalMessage struct {
	Content     string `json:"content"`
	Destination string `json:"destination"`
}

type smsPortalRequest struct {
	Messages []smsPortalMessage `json:"messages"`
	TestMode bool               `json:"testMode"`
}

type smsPortalResponse struct {
	Cost        decimal.Decimal `json:"cost"`
	EventID     json.RawMessage `json:"eventId"`
	Messages    json.RawMessage `json:"messages"`
	ErrorReport struct {
		Faults []json.RawMessage `json:"faults"`
	} `json:"errorReport"`
}

type smsPortalStatus struct {
	Status    string `json:"status"`
	MessageID string `json:"messageId"`
}

// accepted returns how many messages the gateway took and, when it reported
// per-message entries, the first entry.
func (r smsPortalResponse) accepted() (int, *smsPortalStatus) {
	var list []smsPortalStatus
	if err := json.Unmarshal(r.Messages, &list); err == nil {
		n := 0
		for _, m := range list {
			if isAccepted(m.Status) {
				n++
			}
		}
		if len(list) > 0 {
			return n, &list[0]
		}
		return 0, nil
	}
	var total int
	if err := json.Unmarshal(r.Messages, &total); err == nil {
		n := total - len(r.ErrorReport.Faults)
		if n < 0 {
			n = 0
		}
		return n, nil
	}
	return 0, nil
}

func (r smsPortalResponse) eventID() string {
	return strings.Trim(string(r.EventID), `"`)
}

func (p *SMSPortal) send(ctx context.Context, phones []string, message string) (int, []byte, smsPortalResponse, error) {
	req := smsPortalRequest{TestMode: p.testMode, Messages: make([]smsPortalMessage, len(phones))}
	for i, ph := range phones {
		req.Messages[i] = smsPortalMessage{Content: message, Destination: phone.Vendor(ph)}
	}
	var resp smsPortalResponse
	code, raw, err := doJSON(ctx, p.client, p.url, req, nil, p.apiKey, p.clientID)
	if err != nil {
		return 0, nil, resp, fmt.Errorf("smsportal: %w", err)
	}
	if code < 400 {
		// A body we cannot read counts as nothing accepted.
		_ = json.Unmarshal(raw, &resp)
	}
	return code, raw, resp, nil
}

// SendOne sends a single message.
func (p *SMSPortal) SendOne(ctx context.Context, to, message string) (domain.SendResult, error) {
	code, raw, resp, err := p.send(ctx, []string{to}, message)
	if err != nil {
		return domain.SendResult{}, err
	}
	if code >= 400 {
		return failed(p.Name(), to, "failed", httpError(p.Name(), code, raw)), nil
	}

	n, first := resp.accepted()
	if n == 0 {
		status := "failed"
		if first != nil && first.Status != "" {
			status = first.Status
		}
		return failed(p.Name(), to, status, "smsportal: message not accepted"), nil
	}
	id := resp.eventID()
	status := "Accepted"
	if first != nil {
		status = first.Status
		if first.MessageID != "" {
			id = first.MessageID
		}
	}
	return domain.SendResult{
		Success:   true,
		MessageID: id,
		Status:    status,
		Phone:     to,
		Provider:  p.Name(),
		Cost:      resp.Cost,
		SentAt:    time.Now().UTC(),
	}, nil
}

// SendBulk sends one message to many recipients and reports totals.
func (p *SMSPortal) SendBulk(ctx context.Context, phones []string, message string) (domain.SendOutcome, error) {
	code, raw, resp, err := p.send(ctx, phones, message)
	if err != nil {
		return domain.SendOutcome{}, err
	}
	if code >= 400 {
		logger.Warn("smsportal bulk send rejected", "error", httpError(p.Name(), code, raw), "recipients", len(phones))
		return domain.Aggregate(p.Name(), domain.AggregateCounts{Failed: len(phones)}), nil
	}
	sent, _ := resp.accepted()
	if sent > len(phones) {
		sent = len(phones)
	}
	return domain.Aggregate(p.Name(), domain.AggregateCounts{
		Sent:   sent,
		Failed: len(phones) - sent,
		Cost:   resp.Cost,
	}), nil
}
