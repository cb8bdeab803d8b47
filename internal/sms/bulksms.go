package sms

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ekklesia/commhub/internal/config"
	"github.com/ekklesia/commhub/internal/domain"
	"github.com/ekklesia/commhub/internal/phone"
	"github.com/ekklesia/commhub/internal/pkg/httpretry"
)

const bulkSMSDefaultURL = "https://api.bulksms.com/v1/messages"

// BulkSMS sends through the BulkSMS JSON REST API.
// One request carries up to maxBatch recipients and the response lists one
// entry per recipient in request order.
type BulkSMS struct {
	username string
	password string
	url      string
	maxBatch int
	client   httpretry.HTTPDoer
}

// NewBulkSMS creates a BulkSMS adapter. A nil client gets a 30s default.
func NewBulkSMS(cfg config.BulkSMSConfig, client httpretry.HTTPDoer) (*BulkSMS, error) {
	if cfg.Username == "" || cfg.Password == "" {
		return nil, missing(domain.ProviderBulkSMS, "BULKSMS_USERNAME", "BULKSMS_PASSWORD")
	}
	url := strings.TrimRight(cfg.URL, "/")
	if url == "" {
		url = bulkSMSDefaultURL
	}
	// An API root such as https://api.bulksms.com/v1 still works.
	if !strings.HasSuffix(url, "/messages") {
		url += "/messages"
	}
	return &BulkSMS{
		username: cfg.Username,
		password: cfg.Password,
		url:      url,
		maxBatch: 1000,
		client:   defaultClient(client, 30*time.Second),
	}, nil
}

func (p *BulkSMS) Name() domain.ProviderName { return domain.ProviderBulkSMS }

// MaxBatchSize returns the maximum recipients per request.
func (p *BulkSMS) MaxBatchSize() int { return p.maxBatch }

type bulkSMSRequest struct {
	To                  []string `json:"to"`
	Body                string   `json:"body"`
	Encoding            string   `json:"encoding"`
	LongMessageMaxParts string   `json:"longMessageMaxParts"`
}

type bulkSMSMessage struct {
	ID     string          `json:"id"`
	To     string          `json:"to"`
	Status json.RawMessage `json:"status"`
}

// status reads either the documented {"type":"ACCEPTED",...} object or a
// bare string.
func (m bulkSMSMessage) status() string {
	var s string
	if err := json.Unmarshal(m.Status, &s); err == nil {
		return s
	}
	var obj struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(m.Status, &obj); err == nil {
		return obj.Type
	}
	return ""
}

// SendOne sends a single message.
func (p *BulkSMS) SendOne(ctx context.Context, to, message string) (domain.SendResult, error) {
	results, err := p.send(ctx, []string{to}, message)
	if err != nil {
		return domain.SendResult{}, err
	}
	return results[0], nil
}

// SendBulk sends one message to many recipients in one request.
func (p *BulkSMS) SendBulk(ctx context.Context, phones []string, message string) (domain.SendOutcome, error) {
	results, err := p.send(ctx, phones, message)
	if err != nil {
		return domain.SendOutcome{}, err
	}
	return domain.PerRecipient(p.Name(), results), nil
}

func (p *BulkSMS) send(ctx context.Context, phones []string, message string) ([]domain.SendResult, error) {
	to := make([]string, len(phones))
	for i, ph := range phones {
		to[i] = phone.Vendor(ph)
	}
	payload := bulkSMSRequest{
		To:                  to,
		Body:                message,
		Encoding:            "UNICODE",
		LongMessageMaxParts: "30",
	}

	code, raw, err := doJSON(ctx, p.client, p.url, payload, nil, p.username, p.password)
	if err != nil {
		return nil, fmt.Errorf("bulksms: %w", err)
	}
	if code >= 400 {
		return failAll(p.Name(), phones, httpError(p.Name(), code, raw)), nil
	}

	var msgs []bulkSMSMessage
	if err := json.Unmarshal(raw, &msgs); err != nil {
		return failAll(p.Name(), phones, "bulksms: unexpected response: "+err.Error()), nil
	}

	now := time.Now().UTC()
	results := make([]domain.SendResult, len(phones))
	for i, ph := range phones {
		if i >= len(msgs) {
			results[i] = failed(p.Name(), ph, "unknown", "bulksms: no status returned for recipient")
			continue
		}
		status := msgs[i].status()
		if strings.EqualFold(status, "ACCEPTED") || strings.EqualFold(status, "SENT") {
			results[i] = domain.SendResult{
				Success:   true,
				MessageID: msgs[i].ID,
				Status:    status,
				Phone:     ph,
				Provider:  p.Name(),
				SentAt:    now,
			}
			continue
		}
		results[i] = failed(p.Name(), ph, status, "bulksms: message not accepted: "+status)
	}
	return results, nil
}
