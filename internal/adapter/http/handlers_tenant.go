package http

import (
	"net/http"

	"github.com/teamline/teamline/internal/domain/principal"
	"github.com/teamline/teamline/internal/domain/tenant"
	"github.com/teamline/teamline/internal/middleware"
)

// onboardResponse is returned from tenant signup. The caller logs in with the
// owner credentials afterwards.
type onboardResponse struct {
	Tenant *tenant.Tenant       `json:"tenant"`
	Owner  *principal.Principal `json:"owner"`
}

// OnboardTenant handles POST /api/v1/tenants (public signup).
func (h *Handlers) OnboardTenant(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[tenant.CreateRequest](w, r)
	if !ok {
		return
	}

	t, owner, err := h.Tenants.Onboard(r.Context(), req)
	if err != nil {
		writeDomainError(w, err, "tenant not created")
		return
	}
	writeJSON(w, http.StatusCreated, onboardResponse{Tenant: t, Owner: owner})
}

// GetTenant handles GET /api/v1/tenant (the caller's own tenant).
func (h *Handlers) GetTenant(w http.ResponseWriter, r *http.Request) {
	p := middleware.PrincipalFromContext(r.Context())
	t, err := h.Tenants.Get(r.Context(), p.TenantID)
	if err != nil {
		writeDomainError(w, err, "tenant not found")
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// UpdateTenant handles PATCH /api/v1/tenant
func (h *Handlers) UpdateTenant(w http.ResponseWriter, r *http.Request) {
	p := middleware.PrincipalFromContext(r.Context())
	req, ok := readJSON[tenant.UpdateRequest](w, r)
	if !ok {
		return
	}

	t, err := h.Tenants.Update(r.Context(), p.TenantID, req)
	if err != nil {
		writeDomainError(w, err, "tenant not found")
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// TeardownTenant handles DELETE /api/v1/tenant. Owner only: removing the
// tenant removes every member including the caller.
func (h *Handlers) TeardownTenant(w http.ResponseWriter, r *http.Request) {
	p := middleware.PrincipalFromContext(r.Context())
	if p.Role != principal.RoleOwner {
		writeError(w, http.StatusForbidden, "only the owner can remove the tenant")
		return
	}

	if err := h.Tenants.Teardown(r.Context(), p.TenantID); err != nil {
		writeDomainError(w, err, "tenant not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
