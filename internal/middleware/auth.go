package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/teamline/teamline/internal/domain/principal"
)

// PrincipalResolver validates access tokens and resolves the current principal
// row. Resolution goes through a short-TTL cache so role changes and
// suspensions take effect within the cache window, not at token expiry.
type PrincipalResolver interface {
	ValidateAccessToken(token string) (principalID string, err error)
	ResolvePrincipal(ctx context.Context, principalID string) (*principal.Principal, error)
}

// Auth returns middleware that validates the Bearer token, re-resolves the
// principal, and installs it with its tenant scope in the request context.
// Suspended principals and principals of disabled tenants are rejected here,
// before any authorization check runs.
func Auth(resolver PrincipalResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, `{"error":"authorization required"}`, http.StatusUnauthorized)
				return
			}

			token := strings.TrimPrefix(authHeader, "Bearer ")
			if token == authHeader {
				http.Error(w, `{"error":"invalid authorization header"}`, http.StatusUnauthorized)
				return
			}

			principalID, err := resolver.ValidateAccessToken(token)
			if err != nil {
				http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
				return
			}

			p, err := resolver.ResolvePrincipal(r.Context(), principalID)
			if err != nil {
				http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
				return
			}
			if !p.Active() {
				http.Error(w, `{"error":"account suspended"}`, http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}
