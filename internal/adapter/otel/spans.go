package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "teamline"

// StartSyncSpan starts a span for one tenant billing sync.
func StartSyncSpan(ctx context.Context, tenantID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "billing.sync",
		trace.WithAttributes(
			attribute.String("tenant.id", tenantID),
		),
	)
}

// StartWebhookSpan starts a span for processing one provider event delivery.
func StartWebhookSpan(ctx context.Context, eventID, eventType string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "webhook.event",
		trace.WithAttributes(
			attribute.String("event.id", eventID),
			attribute.String("event.type", eventType),
		),
	)
}
