package middleware

import (
	"net/http"

	"github.com/teamline/teamline/internal/domain/authz"
)

// RequirePermission returns middleware that rejects requests whose principal
// may not perform action on resource. Auth must run first; a request without
// a principal is unauthorized, not forbidden.
func RequirePermission(resource authz.Resource, action authz.Action) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := PrincipalFromContext(r.Context())
			if p == nil {
				http.Error(w, `{"error":"authorization required"}`, http.StatusUnauthorized)
				return
			}

			if !authz.CanPerform(p.Role, resource, action) {
				http.Error(w, `{"error":"permission denied"}`, http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
