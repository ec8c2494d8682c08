package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/teamline/teamline/internal/adapter/otel"
	"github.com/teamline/teamline/internal/config"
	"github.com/teamline/teamline/internal/domain/authz"
	"github.com/teamline/teamline/internal/middleware"
)

const readinessTimeout = 2 * time.Second

// NewRouter builds the chi router with the full middleware stack and all API
// routes. idempotencyKV may be nil, which disables request idempotency.
func NewRouter(h *Handlers, cfg *config.Config, limiter *middleware.RateLimiter, idempotencyKV jetstream.KeyValue) chi.Router {
	r := chi.NewRouter()

	r.Use(chimw.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(otel.HTTPMiddleware(cfg.Logging.Service))
	r.Use(limiter.Handler)
	r.Use(corsHandler(cfg.Server.CORSOrigin))

	r.Get("/health", h.Health)
	r.Get("/health/ready", h.Ready)

	// Billing webhooks sit outside auth; authenticity comes from the
	// provider signature over the raw body.
	r.Post("/api/v1/webhooks/billing", h.BillingWebhook)

	r.Route("/api/v1", func(r chi.Router) {
		// Public
		r.Post("/tenants", h.OnboardTenant)
		r.Post("/auth/login", h.Login)
		r.Post("/auth/refresh", h.Refresh)

		// Authenticated
		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(h.Auth))
			if idempotencyKV != nil {
				r.Use(middleware.Idempotency(idempotencyKV))
			}

			r.Post("/auth/logout", h.Logout)
			r.Get("/auth/me", h.Me)

			r.With(middleware.RequirePermission(authz.ResourceTenant, authz.ActionRead)).
				Get("/tenant", h.GetTenant)
			r.With(middleware.RequirePermission(authz.ResourceTenant, authz.ActionWrite)).
				Patch("/tenant", h.UpdateTenant)
			r.With(middleware.RequirePermission(authz.ResourceTenant, authz.ActionWrite)).
				Delete("/tenant", h.TeardownTenant)

			r.With(middleware.RequirePermission(authz.ResourceMembers, authz.ActionRead)).
				Get("/tenant/members", h.ListMembers)
			r.With(middleware.RequirePermission(authz.ResourceMembers, authz.ActionWrite)).
				Post("/tenant/members", h.GrantSeat)
			r.With(middleware.RequirePermission(authz.ResourceMembers, authz.ActionWrite)).
				Patch("/tenant/members/{id}", h.UpdateMember)
			r.With(middleware.RequirePermission(authz.ResourceMembers, authz.ActionWrite)).
				Delete("/tenant/members/{id}", h.RevokeSeat)

			r.With(middleware.RequirePermission(authz.ResourceBilling, authz.ActionRead)).
				Get("/tenant/subscription", h.GetSubscription)
			r.With(middleware.RequirePermission(authz.ResourceBilling, authz.ActionWrite)).
				Post("/tenant/billing/sync", h.SyncBilling)
		})
	})

	return r
}

// corsHandler allows the configured frontend origin.
func corsHandler(origin string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, Idempotency-Key, X-Request-ID")
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
