package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/teamline/teamline/internal/service"
)

// Handlers bundles the services behind the HTTP API.
type Handlers struct {
	Auth       *service.AuthService
	Tenants    *service.TenantService
	Seats      *service.SeatService
	Reconciler *service.ReconcilerService
	Webhooks   *service.WebhookService

	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewHandlers creates the handler set.
func NewHandlers(auth *service.AuthService, tenants *service.TenantService, seats *service.SeatService, reconciler *service.ReconcilerService, webhooks *service.WebhookService, pool *pgxpool.Pool, logger *slog.Logger) *Handlers {
	return &Handlers{
		Auth:       auth,
		Tenants:    tenants,
		Seats:      seats,
		Reconciler: reconciler,
		Webhooks:   webhooks,
		pool:       pool,
		logger:     logger,
	}
}

// Health handles GET /health (liveness).
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Ready handles GET /health/ready (readiness, checks the database).
func (h *Handlers) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()
	if err := h.pool.Ping(ctx); err != nil {
		h.logger.Error("readiness check failed", "error", err)
		writeError(w, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
