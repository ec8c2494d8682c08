package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "teamline"

// Metrics holds all Teamline metric instruments.
type Metrics struct {
	SeatsGranted      metric.Int64Counter
	SeatsRevoked      metric.Int64Counter
	SeatLimitRejected metric.Int64Counter
	SyncAttempts      metric.Int64Counter
	SyncFailures      metric.Int64Counter
	SyncDuration      metric.Float64Histogram
	WebhooksReceived  metric.Int64Counter
	WebhooksDuplicate metric.Int64Counter
	WebhooksApplied   metric.Int64Counter
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.SeatsGranted, err = meter.Int64Counter("teamline.seats.granted",
		metric.WithDescription("Number of seats granted"))
	if err != nil {
		return nil, err
	}

	m.SeatsRevoked, err = meter.Int64Counter("teamline.seats.revoked",
		metric.WithDescription("Number of seats revoked"))
	if err != nil {
		return nil, err
	}

	m.SeatLimitRejected, err = meter.Int64Counter("teamline.seats.limit_rejected",
		metric.WithDescription("Number of seat grants rejected at the seat limit"))
	if err != nil {
		return nil, err
	}

	m.SyncAttempts, err = meter.Int64Counter("teamline.billing.sync_attempts",
		metric.WithDescription("Number of billing reconciliation attempts"))
	if err != nil {
		return nil, err
	}

	m.SyncFailures, err = meter.Int64Counter("teamline.billing.sync_failures",
		metric.WithDescription("Number of failed billing reconciliations"))
	if err != nil {
		return nil, err
	}

	m.SyncDuration, err = meter.Float64Histogram("teamline.billing.sync_duration_seconds",
		metric.WithDescription("Billing reconciliation duration in seconds"))
	if err != nil {
		return nil, err
	}

	m.WebhooksReceived, err = meter.Int64Counter("teamline.webhooks.received",
		metric.WithDescription("Number of webhook deliveries received"))
	if err != nil {
		return nil, err
	}

	m.WebhooksDuplicate, err = meter.Int64Counter("teamline.webhooks.duplicate",
		metric.WithDescription("Number of duplicate webhook deliveries skipped"))
	if err != nil {
		return nil, err
	}

	m.WebhooksApplied, err = meter.Int64Counter("teamline.webhooks.applied",
		metric.WithDescription("Number of webhook events applied"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
