package sms

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ekklesia/commhub/internal/config"
	"github.com/ekklesia/commhub/internal/domain"
	"github.com/ekklesia/commhub/internal/pkg/httpretry"
	"github.com/ekklesia/commhub/internal/pkg/logger"
)

// Registry is the set of configured providers, in preference order.
// It is read-only after construction.
type Registry struct {
	providers map[domain.ProviderName]Provider
	order     []domain.ProviderName
}

type registryOptions struct {
	client httpretry.HTTPDoer
}

// RegistryOption configures NewRegistry.
type RegistryOption func(*registryOptions)

// WithHTTPClient makes every adapter use client instead of its own
// timeout-bounded default.
func WithHTTPClient(client httpretry.HTTPDoer) RegistryOption {
	return func(o *registryOptions) { o.client = client }
}

type factory struct {
	name    domain.ProviderName
	timeout time.Duration
	build   func(cfg config.SMSConfig, client httpretry.HTTPDoer) (Provider, error)
}

// factories lists every adapter in default preference order.
var factories = []factory{
	{domain.ProviderTwilio, 0, func(c config.SMSConfig, h httpretry.HTTPDoer) (Provider, error) { return NewTwilio(c.Twilio, h) }},
	{domain.ProviderAfricasTalking, 0, func(c config.SMSConfig, h httpretry.HTTPDoer) (Provider, error) {
		return NewAfricasTalking(c.AfricasTalking, h)
	}},
	{domain.ProviderSMSPortal, 0, func(c config.SMSConfig, h httpretry.HTTPDoer) (Provider, error) { return NewSMSPortal(c.SMSPortal, h) }},
	{domain.ProviderBulkSMS, 0, func(c config.SMSConfig, h httpretry.HTTPDoer) (Provider, error) { return NewBulkSMS(c.BulkSMS, h) }},
	{domain.ProviderClickatell, 10 * time.Second, func(c config.SMSConfig, h httpretry.HTTPDoer) (Provider, error) {
		return NewClickatell(c.Clickatell, h)
	}},
	{domain.ProviderWinSMS, 0, func(c config.SMSConfig, h httpretry.HTTPDoer) (Provider, error) { return NewWinSMS(c.WinSMS, h) }},
}

// NewRegistry builds every adapter whose credentials are present.
// Adapters with missing credentials are skipped with a warning. When
// cfg.Enabled is set only those providers are tried, in that order.
func NewRegistry(cfg config.SMSConfig, opts ...RegistryOption) (*Registry, error) {
	var o registryOptions
	for _, opt := range opts {
		opt(&o)
	}

	candidates := factories
	if len(cfg.Enabled) > 0 {
		candidates = nil
		for _, name := range cfg.Enabled {
			f, ok := lookupFactory(canonicalName(name))
			if !ok {
				logger.Warn("unknown sms provider in enabled list", "provider", name)
				continue
			}
			candidates = append(candidates, f)
		}
	}

	r := &Registry{providers: make(map[domain.ProviderName]Provider)}
	for _, f := range candidates {
		if _, dup := r.providers[f.name]; dup {
			continue
		}
		p, err := f.build(cfg, clientFor(cfg, f, o.client))
		if err != nil {
			if errors.Is(err, ErrMissingCredentials) {
				logger.Warn("sms provider not configured", "provider", string(f.name), "error", err)
				continue
			}
			return nil, fmt.Errorf("build %s: %w", f.name, err)
		}
		r.add(p)
	}

	if len(r.order) == 0 {
		return nil, ErrNoProvidersAvailable
	}
	logger.Info("sms providers configured", "providers", strings.Join(r.Names(), ","))
	return r, nil
}

// NewRegistryFrom builds a registry from already constructed providers.
func NewRegistryFrom(providers ...Provider) (*Registry, error) {
	r := &Registry{providers: make(map[domain.ProviderName]Provider)}
	for _, p := range providers {
		if p == nil {
			continue
		}
		if _, dup := r.providers[p.Name()]; dup {
			continue
		}
		r.add(p)
	}
	if len(r.order) == 0 {
		return nil, ErrNoProvidersAvailable
	}
	return r, nil
}

func (r *Registry) add(p Provider) {
	r.providers[p.Name()] = p
	r.order = append(r.order, p.Name())
}

// Get returns the named provider.
func (r *Registry) Get(name string) (Provider, bool) {
	if r == nil {
		return nil, false
	}
	p, ok := r.providers[canonicalName(name)]
	return p, ok
}

// Default returns the first configured provider.
func (r *Registry) Default() (Provider, bool) {
	if r == nil || len(r.order) == 0 {
		return nil, false
	}
	return r.providers[r.order[0]], true
}

// Names returns the configured provider names in preference order.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	names := make([]string, len(r.order))
	for i, n := range r.order {
		names[i] = string(n)
	}
	return names
}

// Len returns how many providers are configured.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.order)
}

func lookupFactory(name domain.ProviderName) (factory, bool) {
	for _, f := range factories {
		if f.name == name {
			return f, true
		}
	}
	return factory{}, false
}

// canonicalName accepts the legacy "clickatel" spelling used by the
// credential variable.
func canonicalName(name string) domain.ProviderName {
	n := strings.ToLower(strings.TrimSpace(name))
	n = strings.ReplaceAll(n, "_", "")
	if n == "clickatel" {
		n = string(domain.ProviderClickatell)
	}
	return domain.ProviderName(n)
}

func clientFor(cfg config.SMSConfig, f factory, shared httpretry.HTTPDoer) httpretry.HTTPDoer {
	client := shared
	if client == nil {
		timeout := f.timeout
		if timeout == 0 {
			timeout = cfg.Timeout()
		}
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	if cfg.RetryAttempts > 0 {
		client = httpretry.NewRetryClient(client, cfg.RetryAttempts)
	}
	return client
}
