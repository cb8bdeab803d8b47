package communication

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ekklesia/commhub/internal/domain"
	"github.com/ekklesia/commhub/internal/phone"
	"github.com/ekklesia/commhub/internal/pkg/distlock"
	"github.com/ekklesia/commhub/internal/pkg/logger"
	"github.com/ekklesia/commhub/internal/sms"
	"github.com/ekklesia/commhub/internal/telemetry"
)

// Providers is the part of the SMS registry the dispatcher uses.
// A nil *sms.Registry satisfies it and has no providers.
type Providers interface {
	Get(name string) (sms.Provider, bool)
	Default() (sms.Provider, bool)
	Names() []string
}

// Locker serializes work on a key across instances. *distlock.Factory
// implements it.
type Locker interface {
	Do(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

// Dispatcher delivers draft communications through an SMS provider.
type Dispatcher struct {
	repo      Repository
	resolver  *Resolver
	providers Providers
	locks     Locker
	templates *Personalizer
	tel       *telemetry.Provider
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithLocker adds a fast-fail lock in front of the row lock.
func WithLocker(l Locker) DispatcherOption {
	return func(d *Dispatcher) { d.locks = l }
}

// WithTelemetry records spans and gateway metrics on t.
func WithTelemetry(t *telemetry.Provider) DispatcherOption {
	return func(d *Dispatcher) {
		if t != nil {
			d.tel = t
		}
	}
}

// WithPersonalizer shares a template cache with the caller.
func WithPersonalizer(p *Personalizer) DispatcherOption {
	return func(d *Dispatcher) {
		if p != nil {
			d.templates = p
		}
	}
}

// NewDispatcher creates a dispatcher. providers may be nil when no SMS
// gateway is configured; every send then fails with ErrNoProviderAvailable.
func NewDispatcher(repo Repository, resolver *Resolver, providers Providers, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		repo:      repo,
		resolver:  resolver,
		providers: providers,
		templates: NewPersonalizer(),
		tel:       telemetry.Noop(),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// LockKey is the lock taken around a send of communication id.
func LockKey(id string) string { return "communication-send:" + id }

type recipient struct {
	phone   string
	contact *domain.Contact
}

// Send delivers communication id to its resolved recipients. provider names
// the gateway; empty means the registry default.
func (d *Dispatcher) Send(ctx context.Context, id, provider string) (*domain.Communication, error) {
	ctx, span := d.tel.Start(ctx, "communication.send", attribute.String("communication.id", id))
	c, err := d.locked(ctx, id, func(ctx context.Context) (*domain.Communication, error) {
		return d.repo.Dispatch(ctx, id, func(ctx context.Context, c *domain.Communication) (*domain.DispatchTally, error) {
			if err := sendable(c); err != nil {
				return nil, err
			}
			contacts, err := d.resolver.Resolve(ctx, c.RecipientGroup, c.TagFilter, c.MessageType)
			if err != nil {
				return nil, err
			}
			if len(contacts) == 0 {
				return nil, ErrNoRecipients
			}
			p, err := d.provider(provider)
			if err != nil {
				return nil, err
			}

			rcpts := make([]recipient, len(contacts))
			for i := range contacts {
				rcpts[i] = recipient{phone: contacts[i].Phone, contact: &contacts[i]}
			}
			t := d.deliver(ctx, p, c.Message, rcpts, false)
			return t.result(p.Name()), nil
		})
	})
	d.finish(ctx, span, id, c, err)
	return c, err
}

// SendToNumbers delivers communication id to an explicit list of numbers
// instead of its recipient group. Numbers that do not normalize are counted
// as failed without a gateway call.
func (d *Dispatcher) SendToNumbers(ctx context.Context, id string, phones []string, provider string) (*domain.Communication, error) {
	ctx, span := d.tel.Start(ctx, "communication.send_bulk",
		attribute.String("communication.id", id), attribute.Int("recipients.requested", len(phones)))

	var (
		rcpts   []recipient
		invalid int
		seen    = make(map[string]bool, len(phones))
	)
	for _, raw := range phones {
		p, err := phone.Normalize(raw)
		if err != nil {
			logger.Debug("skipping invalid number", "phone", raw, "error", err)
			invalid++
			continue
		}
		if seen[p] {
			continue
		}
		seen[p] = true
		rcpts = append(rcpts, recipient{phone: p})
	}

	c, err := d.locked(ctx, id, func(ctx context.Context) (*domain.Communication, error) {
		return d.repo.Dispatch(ctx, id, func(ctx context.Context, c *domain.Communication) (*domain.DispatchTally, error) {
			if err := sendable(c); err != nil {
				return nil, err
			}
			if len(rcpts) == 0 {
				return nil, ErrNoRecipients
			}
			p, err := d.provider(provider)
			if err != nil {
				return nil, err
			}
			t := d.deliver(ctx, p, c.Message, rcpts, true)
			t.failed += invalid
			return t.result(p.Name()), nil
		})
	})
	d.finish(ctx, span, id, c, err)
	return c, err
}

func (d *Dispatcher) locked(ctx context.Context, id string, fn func(ctx context.Context) (*domain.Communication, error)) (*domain.Communication, error) {
	if d.locks == nil {
		return fn(ctx)
	}
	var out *domain.Communication
	err := d.locks.Do(ctx, LockKey(id), func(ctx context.Context) error {
		var err error
		out, err = fn(ctx)
		return err
	})
	if errors.Is(err, distlock.ErrNotAcquired) {
		return nil, ErrSendInProgress
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

func sendable(c *domain.Communication) error {
	if c.Status != domain.CommunicationDraft {
		return ErrAlreadySent
	}
	if c.MessageType != domain.ChannelSMS {
		return fmt.Errorf("%w: %s", ErrChannelNotSupported, c.MessageType)
	}
	return nil
}

func (d *Dispatcher) provider(name string) (sms.Provider, error) {
	if d.providers == nil {
		return nil, ErrNoProviderAvailable
	}
	if name != "" {
		p, ok := d.providers.Get(name)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
		}
		return p, nil
	}
	p, ok := d.providers.Default()
	if !ok {
		return nil, ErrNoProviderAvailable
	}
	return p, nil
}

// deliver sends message to every recipient and folds the outcomes.
// Personalized messages always go one by one.
func (d *Dispatcher) deliver(ctx context.Context, p sms.Provider, message string, rcpts []recipient, preferBulk bool) tally {
	var t tally
	name := string(p.Name())

	bp, isBulk := p.(sms.BulkProvider)
	if isBulk && !d.templates.IsTemplate(message) && (preferBulk || len(rcpts) > 1) {
		phones := make([]string, len(rcpts))
		for i, r := range rcpts {
			phones[i] = r.phone
		}
		for _, chunk := range chunk(phones, bp.MaxBatchSize()) {
			start := time.Now()
			out, err := bp.SendBulk(ctx, chunk, message)
			if err != nil {
				logger.Warn("bulk send failed", "provider", name, "recipients", len(chunk), "error", err)
				t.failed += len(chunk)
				d.tel.RecordGatewayCall(ctx, name, 0, len(chunk), time.Since(start))
				continue
			}
			sent, failed := t.add(out)
			d.tel.RecordGatewayCall(ctx, name, sent, failed, time.Since(start))
		}
		return t
	}

	results := make([]domain.SendResult, 0, len(rcpts))
	for _, r := range rcpts {
		results = append(results, d.sendOne(ctx, p, message, r))
	}
	t.add(domain.PerRecipient(p.Name(), results))
	return t
}

func (d *Dispatcher) sendOne(ctx context.Context, p sms.Provider, message string, r recipient) domain.SendResult {
	body, err := d.templates.Render(message, r.phone, r.contact)
	if err != nil {
		return domain.SendResult{Phone: r.phone, Provider: p.Name(), Status: "failed", Error: err.Error()}
	}

	start := time.Now()
	res, err := p.SendOne(ctx, r.phone, body)
	if err != nil {
		logger.Warn("sms send failed", "provider", string(p.Name()), "phone", r.phone, "error", err)
		res = domain.SendResult{Phone: r.phone, Provider: p.Name(), Status: "failed", Error: err.Error()}
	}
	sent, failed := 0, 1
	if res.Success {
		sent, failed = 1, 0
	}
	d.tel.RecordGatewayCall(ctx, string(p.Name()), sent, failed, time.Since(start))
	return res
}

func (d *Dispatcher) finish(ctx context.Context, span trace.Span, id string, c *domain.Communication, err error) {
	defer telemetry.EndSpan(span, err)
	if err != nil {
		d.tel.RecordDispatch(ctx, outcomeClass(err))
		return
	}
	d.tel.RecordDispatch(ctx, "sent")
	provider := ""
	if c.Provider != nil {
		provider = *c.Provider
	}
	span.SetAttributes(
		attribute.String("sms.provider", provider),
		attribute.Int("sms.sent", c.SentCount),
		attribute.Int("sms.failed", c.FailedCount),
	)
	logger.Info("communication sent", "communication_id", id, "provider", provider,
		"sent", c.SentCount, "failed", c.FailedCount, "cost", c.Cost.String())
}

func outcomeClass(err error) string {
	switch {
	case errors.Is(err, ErrAlreadySent):
		return "already_sent"
	case errors.Is(err, ErrSendInProgress):
		return "in_progress"
	case errors.Is(err, ErrNoRecipients):
		return "no_recipients"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrUnknownProvider), errors.Is(err, ErrNoProviderAvailable):
		return "no_provider"
	default:
		return "error"
	}
}

// tally folds send outcomes into counters.
type tally struct {
	sent   int
	failed int
	cost   decimal.Decimal
}

// add folds o into t and returns the counts o contributed.
func (t *tally) add(o domain.SendOutcome) (sent, failed int) {
	switch o.Kind() {
	case domain.OutcomePerRecipient:
		for _, r := range o.Results() {
			if r.Success {
				sent++
			} else {
				failed++
			}
			t.cost = t.cost.Add(r.Cost)
		}
	case domain.OutcomeAggregate:
		c := o.Counts()
		sent, failed = c.Sent, c.Failed
		t.cost = t.cost.Add(c.Cost)
	default:
		panic(fmt.Sprintf("communication: unhandled send outcome kind %d", o.Kind()))
	}
	t.sent += sent
	t.failed += failed
	return sent, failed
}

func (t tally) result(provider domain.ProviderName) *domain.DispatchTally {
	return &domain.DispatchTally{
		Provider:    string(provider),
		SentCount:   t.sent,
		FailedCount: t.failed,
		Cost:        t.cost,
	}
}

func chunk(phones []string, size int) [][]string {
	if size <= 0 || len(phones) <= size {
		return [][]string{phones}
	}
	var out [][]string
	for len(phones) > size {
		out = append(out, phones[:size])
		phones = phones[size:]
	}
	return append(out, phones)
}
