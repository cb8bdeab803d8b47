package sms

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ekklesia/commhub/internal/config"
	"github.com/ekklesia/commhub/internal/domain"
	"github.com/ekklesia/commhub/internal/pkg/httpretry"
)

const africasTalkingDefaultURL = "https://api.africastalking.com/version1/messaging/bulk"

// AfricasTalking sends through the Africa's Talking bulk messaging API.
// Recipients are reported individually and matched back by number.
type AfricasTalking struct {
	apiKey   string
	username string
	senderID string
	url      string
	maxBatch int
	client   httpretry.HTTPDoer
}

// NewAfricasTalking creates an Africa's Talking adapter. A nil client gets a
// 30s default.
func NewAfricasTalking(cfg config.AfricasTalkingConfig, client httpretry.HTTPDoer) (*AfricasTalking, error) {
	if cfg.APIKey == "" || cfg.Username == "" {
		return nil, missing(domain.ProviderAfricasTalking, "AFRICASTALKING_API_KEY", "AFRICASTALKING_USERNAME")
	}
	u := cfg.BaseURL
	if u == "" {
		u = africasTalkingDefaultURL
	}
	return &AfricasTalking{
		apiKey:   cfg.APIKey,
		username: cfg.Username,
		senderID: cfg.SenderID,
		url:      u,
		maxBatch: 1000,
		client:   defaultClient(client, 30*time.Second),
	}, nil
}

func (p *AfricasTalking) Name() domain.ProviderName { return domain.ProviderAfricasTalking }

// MaxBatchSize returns the maximum recipients per request.
func (p *AfricasTalking) MaxBatchSize() int { return p.maxBatch }

type africasTalkingRequest struct {
	Username     string   `json:"username"`
	Message      string   `json:"message"`
	PhoneNumbers []string `json:"phoneNumbers"`
	SenderID     string   `json:"senderId,omitempty"`
}

type africasTalkingRecipient struct {
	StatusCode int    `json:"statusCode"`
	Number     string `json:"number"`
	Status     string `json:"status"`
	Cost       string `json:"cost"`
	MessageID  string `json:"messageId"`
}

type africasTalkingResponse struct {
	SMSMessageData struct {
		Message    string                    `json:"Message"`
		Recipients []africasTalkingRecipient `json:"Recipients"`
	} `json:"SMSMessageData"`
}

func (r africasTalkingRecipient) ok() bool {
	switch r.StatusCode {
	case 100, 101, 102:
		return true
	}
	return isAccepted(r.Status)
}

// SendOne sends a single message.
func (p *AfricasTalking) SendOne(ctx context.Context, to, message string) (domain.SendResult, error) {
	results, err := p.send(ctx, []string{to}, message)
	if err != nil {
		return domain.SendResult{}, err
	}
	return results[0], nil
}

// SendBulk sends one message to many recipients in one request.
func (p *AfricasTalking) SendBulk(ctx context.Context, phones []string, message string) (domain.SendOutcome, error) {
	results, err := p.send(ctx, phones, message)
	if err != nil {
		return domain.SendOutcome{}, err
	}
	return domain.PerRecipient(p.Name(), results), nil
}

func (p *AfricasTalking) send(ctx context.Context, phones []string, message string) ([]domain.SendResult, error) {
	payload := africasTalkingRequest{
		Username:     p.username,
		Message:      message,
		PhoneNumbers: phones,
		SenderID:     p.senderID,
	}
	code, raw, err := doJSON(ctx, p.client, p.url, payload, map[string]string{"apiKey": p.apiKey}, "", "")
	if err != nil {
		return nil, fmt.Errorf("africastalking: %w", err)
	}
	if code >= 400 {
		return failAll(p.Name(), phones, httpError(p.Name(), code, raw)), nil
	}

	var resp africasTalkingResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return failAll(p.Name(), phones, "africastalking: unexpected response: "+err.Error()), nil
	}

	byNumber := make(map[string]africasTalkingRecipient, len(resp.SMSMessageData.Recipients))
	for _, r := range resp.SMSMessageData.Recipients {
		byNumber[r.Number] = r
	}

	now := time.Now().UTC()
	results := make([]domain.SendResult, len(phones))
	for i, ph := range phones {
		r, found := byNumber[ph]
		switch {
		case !found:
			msg := resp.SMSMessageData.Message
			if msg == "" {
				msg = "no status returned for recipient"
			}
			results[i] = failed(p.Name(), ph, "unknown", "africastalking: "+msg)
		case r.ok():
			results[i] = domain.SendResult{
				Success:   true,
				MessageID: r.MessageID,
				Status:    r.Status,
				Phone:     ph,
				Provider:  p.Name(),
				Cost:      parseCost(r.Cost),
				SentAt:    now,
			}
		default:
			res := failed(p.Name(), ph, r.Status, fmt.Sprintf("africastalking: %s (code %d)", r.Status, r.StatusCode))
			res.MessageID = r.MessageID
			results[i] = res
		}
	}
	return results, nil
}
