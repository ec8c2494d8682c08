package middleware

import (
	"context"

	"github.com/teamline/teamline/internal/domain/principal"
)

type principalCtxKey struct{}
type tenantCtxKey struct{}

// WithPrincipal returns a context carrying the authenticated principal and its
// tenant scope. The scope is always derived from the principal row, never from
// request headers.
func WithPrincipal(ctx context.Context, p *principal.Principal) context.Context {
	ctx = context.WithValue(ctx, principalCtxKey{}, p)
	return context.WithValue(ctx, tenantCtxKey{}, p.TenantID)
}

// PrincipalFromContext returns the authenticated principal, or nil if the
// request is unauthenticated.
func PrincipalFromContext(ctx context.Context) *principal.Principal {
	p, _ := ctx.Value(principalCtxKey{}).(*principal.Principal)
	return p
}

// WithTenantScope returns a context scoped to the given tenant without an
// authenticated principal. Used by background workers acting on behalf of a
// tenant (reconciliation, webhook application).
func WithTenantScope(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, tenantCtxKey{}, tenantID)
}

// TenantIDFromContext returns the tenant scope stored in ctx, or "" when the
// context is unscoped (system-level callers such as webhook routing, which
// must resolve the tenant from provider references first).
func TenantIDFromContext(ctx context.Context) string {
	if tid, ok := ctx.Value(tenantCtxKey{}).(string); ok {
		return tid
	}
	return ""
}
