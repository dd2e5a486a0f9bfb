package metrics

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Operation statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Token lifecycle events counted by RecordTokenEvent.
const (
	TokenIssued          = "issued"
	TokenRateLimited     = "rate_limited"
	TokenConsumed        = "consumed"
	TokenAlreadyConsumed = "already_consumed"
)

// BusinessMetrics records what the identity domains do.
type BusinessMetrics interface {
	// RecordOperation counts a use case call. Domains are "token", "recovery" and "outbox".
	RecordOperation(ctx context.Context, domain, operation, status string)

	// RecordDuration records how long a use case call took.
	RecordDuration(ctx context.Context, domain, operation string, duration time.Duration, status string)

	// RecordTokenEvent counts a lifecycle event for a token kind.
	RecordTokenEvent(ctx context.Context, kind, event string)

	// RecordRelayCycle records how many messages one relay cycle fetched, published and
	// left pending after a failure.
	RecordRelayCycle(ctx context.Context, fetched, published, failed int)
}

type businessMetrics struct {
	operations    metric.Int64Counter
	durations     metric.Float64Histogram
	tokenEvents   metric.Int64Counter
	relayMessages metric.Int64Counter
	relayBatches  metric.Int64Histogram
}

// NewBusinessMetrics creates the domain instruments on provider.
func NewBusinessMetrics(provider *Provider) (BusinessMetrics, error) {
	meter := provider.Meter()
	prefix := provider.Namespace() + "_"

	operations, opErr := meter.Int64Counter(
		prefix+"operations_total",
		metric.WithDescription("Use case calls by domain, operation and status"),
		metric.WithUnit("{operation}"),
	)
	// Argon2id hashing and notification dispatch dominate; both sit between 10ms and a few seconds.
	durations, durErr := meter.Float64Histogram(
		prefix+"operation_duration_seconds",
		metric.WithDescription("Use case duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
	)
	tokenEvents, tokenErr := meter.Int64Counter(
		prefix+"token_events_total",
		metric.WithDescription("Secure token lifecycle events by kind"),
		metric.WithUnit("{event}"),
	)
	relayMessages, relayErr := meter.Int64Counter(
		prefix+"outbox_messages_total",
		metric.WithDescription("Outbox messages handled by the relay by result"),
		metric.WithUnit("{message}"),
	)
	relayBatches, batchErr := meter.Int64Histogram(
		prefix+"outbox_relay_batch_messages",
		metric.WithDescription("Messages fetched per relay cycle"),
		metric.WithUnit("{message}"),
		metric.WithExplicitBucketBoundaries(0, 1, 5, 10, 25, 50, 100, 250, 500),
	)
	if err := errors.Join(opErr, durErr, tokenErr, relayErr, batchErr); err != nil {
		return nil, err
	}

	return &businessMetrics{
		operations:    operations,
		durations:     durations,
		tokenEvents:   tokenEvents,
		relayMessages: relayMessages,
		relayBatches:  relayBatches,
	}, nil
}

func operationAttributes(domain, operation, status string) metric.MeasurementOption {
	return metric.WithAttributes(
		attribute.String("domain", domain),
		attribute.String("operation", operation),
		attribute.String("status", status),
	)
}

func (b *businessMetrics) RecordOperation(ctx context.Context, domain, operation, status string) {
	b.operations.Add(ctx, 1, operationAttributes(domain, operation, status))
}

func (b *businessMetrics) RecordDuration(
	ctx context.Context,
	domain, operation string,
	duration time.Duration,
	status string,
) {
	b.durations.Record(ctx, duration.Seconds(), operationAttributes(domain, operation, status))
}

func (b *businessMetrics) RecordTokenEvent(ctx context.Context, kind, event string) {
	b.tokenEvents.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("event", event),
	))
}

func (b *businessMetrics) RecordRelayCycle(ctx context.Context, fetched, published, failed int) {
	b.relayBatches.Record(ctx, int64(fetched))
	if published > 0 {
		b.relayMessages.Add(ctx, int64(published), metric.WithAttributes(attribute.String("result", "published")))
	}
	if failed > 0 {
		b.relayMessages.Add(ctx, int64(failed), metric.WithAttributes(attribute.String("result", "failed")))
	}
}

// NoOpBusinessMetrics discards everything. The container uses it when metrics are disabled.
type NoOpBusinessMetrics struct{}

// NewNoOpBusinessMetrics creates a NoOpBusinessMetrics.
func NewNoOpBusinessMetrics() BusinessMetrics {
	return &NoOpBusinessMetrics{}
}

func (n *NoOpBusinessMetrics) RecordOperation(ctx context.Context, domain, operation, status string) {
}

func (n *NoOpBusinessMetrics) RecordDuration(
	ctx context.Context,
	domain, operation string,
	duration time.Duration,
	status string,
) {
}

func (n *NoOpBusinessMetrics) RecordTokenEvent(ctx context.Context, kind, event string) {}

func (n *NoOpBusinessMetrics) RecordRelayCycle(ctx context.Context, fetched, published, failed int) {}
