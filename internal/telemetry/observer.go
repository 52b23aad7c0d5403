// ABOUTME: Records API, tool and webhook signals into OpenTelemetry metrics and spans
// ABOUTME: A nil *Observer is valid and records nothing

package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Metric names.
const (
	MetricAPIAttempts   = "knowledge_api.attempts"
	MetricAPIFailures   = "knowledge_api.failures"
	MetricAPIDuration   = "knowledge_api.duration"
	MetricToolCalls     = "tools.calls"
	MetricToolErrors    = "tools.errors"
	MetricWebhookEvents = "webhook.events"
)

var noopTracer = noop.NewTracerProvider().Tracer("knowledge-bridge")

// Observer is shared by the API client, the router and the webhook receiver.
type Observer struct {
	tracer trace.Tracer

	apiAttempts   metric.Int64Counter
	apiFailures   metric.Int64Counter
	apiDuration   metric.Float64Histogram
	toolCalls     metric.Int64Counter
	toolErrors    metric.Int64Counter
	webhookEvents metric.Int64Counter
}

// NewObserver creates an observer bound to the provided meter/tracer.
func NewObserver(meter metric.Meter, tracer trace.Tracer) (*Observer, error) {
	apiAttempts, err := meter.Int64Counter(
		MetricAPIAttempts,
		metric.WithDescription("HTTP attempts made against the knowledge API"),
	)
	if err != nil {
		return nil, err
	}
	apiFailures, err := meter.Int64Counter(
		MetricAPIFailures,
		metric.WithDescription("Knowledge API requests that failed after all retries"),
	)
	if err != nil {
		return nil, err
	}
	apiDuration, err := meter.Float64Histogram(
		MetricAPIDuration,
		metric.WithDescription("Knowledge API attempt latency in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}
	toolCalls, err := meter.Int64Counter(
		MetricToolCalls,
		metric.WithDescription("Tool invocations through the router"),
	)
	if err != nil {
		return nil, err
	}
	toolErrors, err := meter.Int64Counter(
		MetricToolErrors,
		metric.WithDescription("Tool invocations that returned an error envelope"),
	)
	if err != nil {
		return nil, err
	}
	webhookEvents, err := meter.Int64Counter(
		MetricWebhookEvents,
		metric.WithDescription("Webhook deliveries by outcome"),
	)
	if err != nil {
		return nil, err
	}

	if tracer == nil {
		tracer = noopTracer
	}

	return &Observer{
		tracer:        tracer,
		apiAttempts:   apiAttempts,
		apiFailures:   apiFailures,
		apiDuration:   apiDuration,
		toolCalls:     toolCalls,
		toolErrors:    toolErrors,
		webhookEvents: webhookEvents,
	}, nil
}

// Start opens a span. It works on a nil observer.
func (o *Observer) Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if o == nil {
		return noopTracer.Start(ctx, name)
	}
	return o.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// ObserveAPIAttempt records one HTTP attempt. status is 0 when no response arrived.
func (o *Observer) ObserveAPIAttempt(ctx context.Context, method, path string, attempt, status int, elapsed time.Duration) {
	if o == nil {
		return
	}
	options := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("path", path),
		attribute.Int("attempt", attempt),
		attribute.Int("status", status),
	)
	o.apiAttempts.Add(ctx, 1, options)
	o.apiDuration.Record(ctx, elapsed.Seconds(), options)
}

// ObserveAPIFailure records a request that exhausted its retries.
func (o *Observer) ObserveAPIFailure(ctx context.Context, method, path string, status int) {
	if o == nil {
		return
	}
	o.apiFailures.Add(ctx, 1, metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("path", path),
		attribute.Int("status", status),
	))
}

// ObserveToolCall records one routed tool call and closes span with its outcome.
func (o *Observer) ObserveToolCall(ctx context.Context, span trace.Span, tool string, isError bool, reason string) {
	if span != nil {
		if isError {
			span.SetStatus(codes.Error, reason)
		} else {
			span.SetStatus(codes.Ok, "")
		}
	}
	if o == nil {
		return
	}
	options := metric.WithAttributes(attribute.String("tool_name", tool))
	o.toolCalls.Add(ctx, 1, options)
	if isError {
		o.toolErrors.Add(ctx, 1, options)
	}
}

// ObserveWebhook records one delivery. outcome is accepted, duplicate, rejected or invalid.
func (o *Observer) ObserveWebhook(ctx context.Context, kind, outcome string) {
	if o == nil {
		return
	}
	o.webhookEvents.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event", kind),
		attribute.String("outcome", outcome),
	))
}
