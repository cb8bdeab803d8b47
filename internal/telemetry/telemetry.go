// Package telemetry wires OpenTelemetry tracing and metrics for SMS dispatch.
// When disabled, the provider hands out the global no-op tracer and meter so
// call sites never need nil checks.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/ekklesia/commhub/internal/config"
)

const instrumentationName = "github.com/ekklesia/commhub"

// Provider owns the tracer, meter and dispatch instruments.
type Provider struct {
	cfg           config.TelemetryConfig
	tracer        trace.Tracer
	meter         metric.Meter
	traceProvider *sdktrace.TracerProvider

	messagesSent   metric.Int64Counter
	messagesFailed metric.Int64Counter
	dispatches     metric.Int64Counter
	sendDuration   metric.Float64Histogram
}

// New builds a Provider. With cfg.Enabled false it returns a no-op provider.
func New(ctx context.Context, cfg config.TelemetryConfig) (*Provider, error) {
	p := &Provider{cfg: cfg}

	if cfg.Enabled {
		if err := p.initTracing(ctx); err != nil {
			return nil, fmt.Errorf("init tracing: %w", err)
		}
	}
	p.tracer = otel.Tracer(instrumentationName)
	p.meter = otel.Meter(instrumentationName, metric.WithSchemaURL(semconv.SchemaURL))

	if err := p.initMetrics(); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}
	return p, nil
}

// Noop returns a provider backed by the global (no-op unless configured)
// tracer and meter.
func Noop() *Provider {
	p, err := New(context.Background(), config.TelemetryConfig{})
	if err != nil {
		// instrument creation on the no-op meter cannot fail
		panic(err)
	}
	return p
}

func (p *Provider) initTracing(ctx context.Context) error {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(p.cfg.ServiceName),
			semconv.DeploymentEnvironment(p.cfg.Environment),
		),
	)
	if err != nil {
		return fmt.Errorf("create resource: %w", err)
	}

	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(p.cfg.OTLPEndpoint)}
	if len(p.cfg.OTLPHeaders) > 0 {
		opts = append(opts, otlptracehttp.WithHeaders(p.cfg.OTLPHeaders))
	}
	exporter, err := otlptrace.New(ctx, otlptracehttp.NewClient(opts...))
	if err != nil {
		return fmt.Errorf("create exporter: %w", err)
	}

	p.traceProvider = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(p.cfg.SampleRate))),
	)
	otel.SetTracerProvider(p.traceProvider)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	return nil
}

func (p *Provider) initMetrics() error {
	var err error
	p.messagesSent, err = p.meter.Int64Counter("commhub_sms_sent_total",
		metric.WithDescription("SMS messages accepted by a gateway"))
	if err != nil {
		return fmt.Errorf("create sms_sent counter: %w", err)
	}
	p.messagesFailed, err = p.meter.Int64Counter("commhub_sms_failed_total",
		metric.WithDescription("SMS messages rejected or not delivered to a gateway"))
	if err != nil {
		return fmt.Errorf("create sms_failed counter: %w", err)
	}
	p.dispatches, err = p.meter.Int64Counter("commhub_dispatches_total",
		metric.WithDescription("Communication send attempts by outcome"))
	if err != nil {
		return fmt.Errorf("create dispatches counter: %w", err)
	}
	p.sendDuration, err = p.meter.Float64Histogram("commhub_gateway_call_seconds",
		metric.WithDescription("Duration of gateway send calls"),
		metric.WithUnit("s"))
	if err != nil {
		return fmt.Errorf("create send_duration histogram: %w", err)
	}
	return nil
}

// Start opens a span named op.
func (p *Provider) Start(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return p.tracer.Start(ctx, op, trace.WithAttributes(attrs...))
}

// RecordGatewayCall records one adapter call's duration and per-message counts.
func (p *Provider) RecordGatewayCall(ctx context.Context, provider string, sent, failed int, d time.Duration) {
	attrs := metric.WithAttributes(attribute.String("provider", provider))
	if sent > 0 {
		p.messagesSent.Add(ctx, int64(sent), attrs)
	}
	if failed > 0 {
		p.messagesFailed.Add(ctx, int64(failed), attrs)
	}
	p.sendDuration.Record(ctx, d.Seconds(), attrs)
}

// RecordDispatch counts a dispatch attempt. outcome is "sent" or an error class.
func (p *Provider) RecordDispatch(ctx context.Context, outcome string) {
	p.dispatches.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// EndSpan records err on span (if any) and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// Shutdown flushes pending spans.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.traceProvider == nil {
		return nil
	}
	return p.traceProvider.Shutdown(ctx)
}
