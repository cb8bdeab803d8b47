package sms

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ekklesia/commhub/internal/config"
	"github.com/ekklesia/commhub/internal/domain"
	"github.com/ekklesia/commhub/internal/phone"
	"github.com/ekklesia/commhub/internal/pkg/httpretry"
	"github.com/ekklesia/commhub/internal/pkg/logger"
)

const winSMSDefaultURL = "https://api.winsms.co.za/api/rest/v1/sms/outgoing/send"

// WinSMS sends through the WinSMS REST API. Bulk sends report totals.
type WinSMS struct {
	apiKey   string
	url      string
	maxBatch int
	client   httpretry.HTTPDoer
}

// NewWinSMS creates a WinSMS adapter. A nil client gets a 30s default.
func NewWinSMS(cfg config.WinSMSConfig, client httpretry.HTTPDoer) (*WinSMS, error) {
	if cfg.APIKey == "" {
		return nil, missing(domain.ProviderWinSMS, "WINSMS_API_KEY")
	}
	u := cfg.BaseURL
	if u == "" {
		u = winSMSDefaultURL
	}
	return &WinSMS{
		apiKey:   cfg.APIKey,
		url:      u,
		maxBatch: 500,
		client:   defaultClient(client, 30*time.Second),
	}, nil
}

func (p *WinSMS) Name() domain.ProviderName { return domain.ProviderWinSMS }

// MaxBatchSize returns the maximum recipients per request.
func (p *WinSMS) MaxBatchSize() int { return p.maxBatch }

type winSMSRecipient struct {
	MobileNumber string `json:"mobileNumber"`
}

type winSMSRequest struct {
	Message     string            `json:"message"`
	Recipients  []winSMSRecipient `json:"recipients"`
	MaxSegments int               `json:"maxSegments"`
}

type winSMSStatus struct {
	StatusCode   int    `json:"statusCode"`
	MobileNumber string `json:"mobileNumber"`
	APIMessageID string `json:"apiMessageId"`
	ErrorMessage string `json:"errorMessage"`
}

// send returns the per-number statuses, or a rejection message when the
// gateway refused the whole request.
func (p *WinSMS) send(ctx context.Context, phones []string, message string) ([]winSMSStatus, string, error) {
	req := winSMSRequest{Message: message, MaxSegments: 1, Recipients: make([]winSMSRecipient, len(phones))}
	for i, ph := range phones {
		req.Recipients[i] = winSMSRecipient{MobileNumber: phone.Vendor(ph)}
	}
	code, raw, err := doJSON(ctx, p.client, p.url, req, map[string]string{"Authorization": p.apiKey}, "", "")
	if err != nil {
		return nil, "", fmt.Errorf("winsms: %w", err)
	}
	if code >= 400 {
		return nil, httpError(p.Name(), code, raw), nil
	}
	var statuses []winSMSStatus
	if err := json.Unmarshal(raw, &statuses); err != nil {
		var single winSMSStatus
		if json.Unmarshal(raw, &single) == nil && single.ErrorMessage != "" {
			return nil, "winsms: " + single.ErrorMessage, nil
		}
		return nil, "winsms: unexpected response: " + err.Error(), nil
	}
	return statuses, "", nil
}

// SendOne sends a single message.
func (p *WinSMS) SendOne(ctx context.Context, to, message string) (domain.SendResult, error) {
	statuses, rejected, err := p.send(ctx, []string{to}, message)
	if err != nil {
		return domain.SendResult{}, err
	}
	if rejected != "" {
		return failed(p.Name(), to, "failed", rejected), nil
	}
	if len(statuses) == 0 {
		return failed(p.Name(), to, "unknown", "winsms: no status returned for recipient"), nil
	}
	st := statuses[0]
	if st.StatusCode != 0 {
		msg := st.ErrorMessage
		if msg == "" {
			msg = fmt.Sprintf("status code %d", st.StatusCode)
		}
		return failed(p.Name(), to, "rejected", "winsms: "+msg), nil
	}
	return domain.SendResult{
		Success:   true,
		MessageID: st.APIMessageID,
		Status:    "accepted",
		Phone:     to,
		Provider:  p.Name(),
		SentAt:    time.Now().UTC(),
	}, nil
}

// SendBulk sends one message to many recipients and reports totals.
func (p *WinSMS) SendBulk(ctx context.Context, phones []string, message string) (domain.SendOutcome, error) {
	statuses, rejected, err := p.send(ctx, phones, message)
	if err != nil {
		return domain.SendOutcome{}, err
	}
	if rejected != "" {
		logger.Warn("winsms bulk send rejected", "error", rejected, "recipients", len(phones))
		return domain.Aggregate(p.Name(), domain.AggregateCounts{Failed: len(phones)}), nil
	}
	sent := 0
	for _, st := range statuses {
		if st.StatusCode == 0 {
			sent++
		}
	}
	if sent > len(phones) {
		sent = len(phones)
	}
	return domain.Aggregate(p.Name(), domain.AggregateCounts{Sent: sent, Failed: len(phones) - sent}), nil
}
