package http

import (
	"errors"
	"io"
	"net/http"

	"github.com/teamline/teamline/internal/domain"
	"github.com/teamline/teamline/internal/middleware"
)

// GetSubscription handles GET /api/v1/tenant/subscription
func (h *Handlers) GetSubscription(w http.ResponseWriter, r *http.Request) {
	p := middleware.PrincipalFromContext(r.Context())
	sub, err := h.Reconciler.Subscription(r.Context(), p.TenantID)
	if err != nil {
		writeDomainError(w, err, "no subscription")
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

// SyncBilling handles POST /api/v1/tenant/billing/sync. The sync runs
// synchronously so the caller sees the outcome; a transient provider failure
// leaves the subscription flagged pending for the background queue.
func (h *Handlers) SyncBilling(w http.ResponseWriter, r *http.Request) {
	p := middleware.PrincipalFromContext(r.Context())
	if err := h.Reconciler.SyncTenant(r.Context(), p.TenantID); err != nil {
		writeDomainError(w, err, "sync failed")
		return
	}

	sub, err := h.Reconciler.Subscription(r.Context(), p.TenantID)
	if err != nil {
		writeDomainError(w, err, "no subscription")
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

// BillingWebhook handles POST /api/v1/webhooks/billing. Unauthenticated,
// verified by provider signature. 2xx acknowledges; the provider retries
// anything else, so only signature failures and malformed payloads are
// rejected permanently.
func (h *Handlers) BillingWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBodySize))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "payload too large")
		return
	}

	err = h.Webhooks.HandleDelivery(r.Context(), payload, r.Header.Get("Stripe-Signature"))
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{"status": "received"})
	case errors.Is(err, domain.ErrSignatureInvalid):
		writeError(w, http.StatusBadRequest, "invalid signature")
	default:
		h.logger.Error("webhook processing failed", "error", err)
		writeError(w, http.StatusInternalServerError, "processing failed")
	}
}
