package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/teamline/teamline/internal/adapter/otel"
	"github.com/teamline/teamline/internal/domain/billing"
	"github.com/teamline/teamline/internal/port/billingprovider"
	"github.com/teamline/teamline/internal/port/database"
)

// WebhookService ingests billing provider deliveries: verify the signature,
// record the event id, then apply. Recording happens before applying, so a
// concurrently redelivered event is dropped; a failed application releases
// the record again so the next redelivery retries. Application itself is
// idempotent to cover the half-applied case.
type WebhookService struct {
	store      database.Store
	provider   billingprovider.Provider
	reconciler *ReconcilerService
	metrics    *otel.Metrics
	logger     *slog.Logger
}

// NewWebhookService creates a new WebhookService.
func NewWebhookService(store database.Store, provider billingprovider.Provider, reconciler *ReconcilerService, metrics *otel.Metrics, logger *slog.Logger) *WebhookService {
	return &WebhookService{store: store, provider: provider, reconciler: reconciler, metrics: metrics, logger: logger}
}

// HandleDelivery processes one raw webhook delivery. It returns
// domain.ErrSignatureInvalid for unauthenticated payloads; every other
// outcome acknowledges the delivery so the provider stops retrying.
func (s *WebhookService) HandleDelivery(ctx context.Context, payload []byte, signatureHeader string) error {
	s.metrics.WebhooksReceived.Add(ctx, 1)

	ev, err := s.provider.VerifyWebhook(payload, signatureHeader)
	if err != nil {
		return err
	}

	ctx, span := otel.StartWebhookSpan(ctx, ev.ID, string(ev.Type))
	defer span.End()

	fresh, err := s.store.RecordEvent(ctx, ev.ID, string(ev.Type))
	if err != nil {
		return fmt.Errorf("record event %s: %w", ev.ID, err)
	}
	if !fresh {
		s.metrics.WebhooksDuplicate.Add(ctx, 1)
		s.logger.Info("duplicate webhook delivery skipped", "event_id", ev.ID, "type", ev.Type)
		return nil
	}

	if ev.Type == billing.EventUnknown {
		// Authenticated but out of scope; recorded and acknowledged.
		s.logger.Debug("unhandled webhook event type", "event_id", ev.ID)
		return nil
	}

	if err := s.reconciler.ApplyProviderEvent(ctx, ev); err != nil {
		// Release the recorded id so the provider's redelivery is applied
		// instead of hitting the dedup fast path.
		if delErr := s.store.DeleteEvent(ctx, ev.ID); delErr != nil {
			s.logger.Error("release webhook event after failed apply", "event_id", ev.ID, "error", delErr)
		}
		return fmt.Errorf("apply event %s: %w", ev.ID, err)
	}
	s.metrics.WebhooksApplied.Add(ctx, 1)
	return nil
}
