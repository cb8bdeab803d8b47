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

const clickatellDefaultURL = "https://platform.clickatell.com/v1/message"

// Clickatell sends through the Clickatell Platform API, one recipient per call.
type Clickatell struct {
	apiKey string
	url    string
	client httpretry.HTTPDoer
}

// NewClickatell creates a Clickatell adapter. A nil client gets a 10s default.
func NewClickatell(cfg config.ClickatellConfig, client httpretry.HTTPDoer) (*Clickatell, error) {
	if cfg.APIKey == "" {
		return nil, missing(domain.ProviderClickatell, "CLICKATEL_API_KEY")
	}
	u := cfg.BaseURL
	if u == "" {
		u = clickatellDefaultURL
	}
	return &Clickatell{
		apiKey: cfg.APIKey,
		url:    u,
		client: defaultClient(client, 10*time.Second),
	}, nil
}

func (p *Clickatell) Name() domain.ProviderName { return domain.ProviderClickatell }

type clickatellMessage struct {
	Channel string `json:"channel"`
	To      string `json:"to"`
	Content string `json:"content"`
}

type clickatellResponse struct {
	Messages []struct {
		APIMessageID string      `json:"apiMessageId"`
		Accepted     bool        `json:"accepted"`
		To           string      `json:"to"`
		Error        interface{} `json:"error"`
	} `json:"messages"`
	Error interface{} `json:"error"`
}

// SendOne sends a single message.
func (p *Clickatell) SendOne(ctx context.Context, to, message string) (domain.SendResult, error) {
	payload := map[string][]clickatellMessage{
		"messages": {{Channel: "sms", To: phone.Vendor(to), Content: message}},
	}
	code, raw, err := doJSON(ctx, p.client, p.url, payload, map[string]string{"Authorization": p.apiKey}, "", "")
	if err != nil {
		return domain.SendResult{}, fmt.Errorf("clickatell: %w", err)
	}
	if code >= 400 {
		return failed(p.Name(), to, "failed", httpError(p.Name(), code, raw)), nil
	}

	var resp clickatellResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return failed(p.Name(), to, "failed", "clickatell: unexpected response: "+err.Error()), nil
	}
	if len(resp.Messages) == 0 {
		return failed(p.Name(), to, "failed", "clickatell: "+describe(resp.Error, "no messages in response")), nil
	}
	m := resp.Messages[0]
	if !m.Accepted {
		return failed(p.Name(), to, "rejected", "clickatell: "+describe(m.Error, "message not accepted")), nil
	}
	return domain.SendResult{
		Success:   true,
		MessageID: m.APIMessageID,
		Status:    "accepted",
		Phone:     to,
		Provider:  p.Name(),
		SentAt:    time.Now().UTC(),
	}, nil
}

// describe renders a vendor error field that may be a string, an object or null.
func describe(v interface{}, fallback string) string {
	switch e := v.(type) {
	case nil:
		return fallback
	case string:
		if strings.TrimSpace(e) == "" {
			return fallback
		}
		return e
	default:
		b, err := json.Marshal(e)
		if err != nil {
			return fallback
		}
		return string(b)
	}
}
