package http

import (
	"net/http"

	"github.com/teamline/teamline/internal/domain/principal"
	"github.com/teamline/teamline/internal/middleware"
)

// memberResponse pairs a principal with the tenant's seat count after a
// ledger change.
type memberResponse struct {
	Member    *principal.Principal `json:"member"`
	SeatCount int                  `json:"seat_count"`
}

// ListMembers handles GET /api/v1/tenant/members
func (h *Handlers) ListMembers(w http.ResponseWriter, r *http.Request) {
	p := middleware.PrincipalFromContext(r.Context())
	members, err := h.Seats.ListMembers(r.Context(), p.TenantID)
	if err != nil {
		writeDomainError(w, err, "members not found")
		return
	}
	if members == nil {
		members = []principal.Principal{}
	}
	writeJSON(w, http.StatusOK, members)
}

// GrantSeat handles POST /api/v1/tenant/members
func (h *Handlers) GrantSeat(w http.ResponseWriter, r *http.Request) {
	p := middleware.PrincipalFromContext(r.Context())
	req, ok := readJSON[principal.CreateRequest](w, r)
	if !ok {
		return
	}

	member, seatCount, err := h.Seats.Grant(r.Context(), p.TenantID, req)
	if err != nil {
		writeDomainError(w, err, "seat not granted")
		return
	}
	writeJSON(w, http.StatusCreated, memberResponse{Member: member, SeatCount: seatCount})
}

// UpdateMember handles PATCH /api/v1/tenant/members/{id}
func (h *Handlers) UpdateMember(w http.ResponseWriter, r *http.Request) {
	p := middleware.PrincipalFromContext(r.Context())
	req, ok := readJSON[principal.UpdateRequest](w, r)
	if !ok {
		return
	}

	member, err := h.Seats.UpdateMember(r.Context(), p.TenantID, urlParam(r, "id"), req)
	if err != nil {
		writeDomainError(w, err, "member not found")
		return
	}
	writeJSON(w, http.StatusOK, member)
}

// RevokeSeat handles DELETE /api/v1/tenant/members/{id}
func (h *Handlers) RevokeSeat(w http.ResponseWriter, r *http.Request) {
	p := middleware.PrincipalFromContext(r.Context())
	seatCount, err := h.Seats.Revoke(r.Context(), p.TenantID, urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "member not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"seat_count": seatCount})
}
