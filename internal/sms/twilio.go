package sms

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ekklesia/commhub/internal/config"
	"github.com/ekklesia/commhub/internal/domain"
	"github.com/ekklesia/commhub/internal/pkg/httpretry"
)

const twilioDefaultURL = "https://api.twilio.com"

// Twilio sends through the Twilio Messages API, one recipient per call.
type Twilio struct {
	accountSID string
	authToken  string
	from       string
	baseURL    string
	client     httpretry.HTTPDoer
}

// NewTwilio creates a Twilio adapter. A nil client gets a 30s default.
func NewTwilio(cfg config.TwilioConfig, client httpretry.HTTPDoer) (*Twilio, error) {
	if cfg.AccountSID == "" || cfg.AuthToken == "" || cfg.FromNumber == "" {
		return nil, missing(domain.ProviderTwilio, "TWILIO_ACCOUNT_SID", "TWILIO_AUTH_TOKEN", "TWILIO_FROM_NUMBER")
	}
	base := cfg.BaseURL
	if base == "" {
		base = twilioDefaultURL
	}
	return &Twilio{
		accountSID: cfg.AccountSID,
		authToken:  cfg.AuthToken,
		from:       cfg.FromNumber,
		baseURL:    strings.TrimRight(base, "/"),
		client:     defaultClient(client, 30*time.Second),
	}, nil
}

func (p *Twilio) Name() domain.ProviderName { return domain.ProviderTwilio }

type twilioMessage struct {
	SID          string  `json:"sid"`
	Status       string  `json:"status"`
	Price        *string `json:"price"`
	ErrorMessage *string `json:"error_message"`
}

type twilioError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// SendOne sends a single message.
func (p *Twilio) SendOne(ctx context.Context, to, message string) (domain.SendResult, error) {
	form := url.Values{}
	form.Set("To", to)
	form.Set("From", p.from)
	form.Set("Body", message)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", p.baseURL, p.accountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return domain.SendResult{}, fmt.Errorf("twilio: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.SetBasicAuth(p.accountSID, p.authToken)

	code, raw, err := do(p.client, req)
	if err != nil {
		return domain.SendResult{}, fmt.Errorf("twilio: %w", err)
	}
	if code >= 400 {
		var te twilioError
		if json.Unmarshal(raw, &te) == nil && te.Message != "" {
			return failed(p.Name(), to, "failed", fmt.Sprintf("twilio error %d: %s", te.Code, te.Message)), nil
		}
		return failed(p.Name(), to, "failed", httpError(p.Name(), code, raw)), nil
	}

	var msg twilioMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return failed(p.Name(), to, "failed", "twilio: unexpected response: "+err.Error()), nil
	}
	if !isAccepted(msg.Status) {
		errMsg := "twilio: message status " + msg.Status
		if msg.ErrorMessage != nil && *msg.ErrorMessage != "" {
			errMsg = "twilio: " + *msg.ErrorMessage
		}
		r := failed(p.Name(), to, msg.Status, errMsg)
		r.MessageID = msg.SID
		return r, nil
	}

	res := domain.SendResult{
		Success:   true,
		MessageID: msg.SID,
		Status:    msg.Status,
		Phone:     to,
		Provider:  p.Name(),
		SentAt:    time.Now().UTC(),
	}
	if msg.Price != nil {
		res.Cost = parseCost(*msg.Price)
	}
	return res, nil
}
