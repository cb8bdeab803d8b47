package sms

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ekklesia/commhub/internal/domain"
	"github.com/ekklesia/commhub/internal/pkg/httpretry"
)

// Sentinel errors for adapter construction and registry lookup.
var (
	ErrMissingCredentials   = errors.New("missing credentials")
	ErrNoProvidersAvailable = errors.New("no sms providers available")
)

// Provider sends one SMS through a gateway. Implementations hold only
// immutable configuration and are safe for concurrent use.
type Provider interface {
	Name() domain.ProviderName
	SendOne(ctx context.Context, phone, message string) (domain.SendResult, error)
}

// BulkProvider is implemented by adapters whose gateway accepts many
// recipients in one request.
type BulkProvider interface {
	Provider
	SendBulk(ctx context.Context, phones []string, message string) (domain.SendOutcome, error)
	MaxBatchSize() int
}

func missing(provider domain.ProviderName, what ...string) error {
	return fmt.Errorf("%s: %w: %s", provider, ErrMissingCredentials, strings.Join(what, ", "))
}

func defaultClient(client httpretry.HTTPDoer, timeout time.Duration) httpretry.HTTPDoer {
	if client != nil {
		return client
	}
	return &http.Client{Timeout: timeout}
}

// doJSON posts payload as JSON and returns the status code and raw body.
// A non-nil error means the gateway was not reached or the body was unreadable.
func doJSON(ctx context.Context, client httpretry.HTTPDoer, url string, payload interface{}, headers map[string]string, basicUser, basicPass string) (int, []byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if basicUser != "" {
		req.SetBasicAuth(basicUser, basicPass)
	}
	return do(client, req)
}

func do(client httpretry.HTTPDoer, req *http.Request) (int, []byte, error) {
	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, raw, nil
}

// acceptedStatuses is the success vocabulary shared by every gateway.
var acceptedStatuses = map[string]bool{
	"accepted":  true,
	"queued":    true,
	"sending":   true,
	"sent":      true,
	"delivered": true,
	"success":   true,
	"submitted": true,
	"scheduled": true,
}

// isAccepted reports whether a gateway status string means the message was
// taken for delivery.
func isAccepted(status string) bool {
	return acceptedStatuses[strings.ToLower(strings.TrimSpace(status))]
}

func httpError(provider domain.ProviderName, code int, body []byte) string {
	msg := strings.TrimSpace(string(body))
	if len(msg) > 300 {
		msg = msg[:300] + "..."
	}
	return fmt.Sprintf("%s error %d: %s", provider, code, msg)
}

func failed(provider domain.ProviderName, phone, status, errMsg string) domain.SendResult {
	return domain.SendResult{Success: false, Status: status, Error: errMsg, Phone: phone, Provider: provider}
}

func failAll(provider domain.ProviderName, phones []string, errMsg string) []domain.SendResult {
	out := make([]domain.SendResult, len(phones))
	for i, p := range phones {
		out[i] = failed(provider, p, "failed", errMsg)
	}
	return out
}

// parseCost reads amounts like "ZAR 0.3500", "-0.0075" or "0.35".
// Gateways report some charges as negatives; the magnitude is what we bill.
func parseCost(s string) decimal.Decimal {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(fields[len(fields)-1])
	if err != nil {
		return decimal.Zero
	}
	return d.Abs()
}
