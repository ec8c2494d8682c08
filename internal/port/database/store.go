// Package database defines the port interface for persistent storage.
package database

import (
	"context"
	"time"

	"github.com/teamline/teamline/internal/domain/billing"
	"github.com/teamline/teamline/internal/domain/principal"
	"github.com/teamline/teamline/internal/domain/tenant"
)

// Store is the persistence port. Implementations must apply the tenant scope
// carried by the context to every query on tenant-owned data (principals,
// subscriptions); tenant-level operations take the id explicitly.
type Store interface {
	// Tenants
	CreateTenant(ctx context.Context, t *tenant.Tenant) error
	GetTenant(ctx context.Context, id string) (*tenant.Tenant, error)
	GetTenantByCustomerRef(ctx context.Context, customerRef string) (*tenant.Tenant, error)
	ListTenants(ctx context.Context) ([]tenant.Tenant, error)
	UpdateTenant(ctx context.Context, t *tenant.Tenant) error
	DeleteTenant(ctx context.Context, id string) error
	// SetBillingCustomerRef persists the provider customer reference exactly
	// once; a second call with a different ref fails so a retried create can
	// never orphan a remote customer silently.
	SetBillingCustomerRef(ctx context.Context, tenantID, customerRef string) error

	// Seat ledger. GrantSeat inserts the principal and increments seat_count
	// in one transaction with the limit check; RevokeSeat deletes the
	// principal and decrements seat_count floored at zero. Both return the
	// committed seat count.
	GrantSeat(ctx context.Context, tenantID string, p *principal.Principal) (int, error)
	RevokeSeat(ctx context.Context, tenantID, principalID string) (int, error)

	// Principals
	GetPrincipal(ctx context.Context, id string) (*principal.Principal, error)
	GetPrincipalByEmail(ctx context.Context, email string) (*principal.Principal, error)
	ListPrincipals(ctx context.Context, tenantID string) ([]principal.Principal, error)
	UpdatePrincipal(ctx context.Context, p *principal.Principal) error

	// Subscriptions
	GetSubscription(ctx context.Context, tenantID string) (*billing.Subscription, error)
	GetSubscriptionByProviderRef(ctx context.Context, providerSubID string) (*billing.Subscription, error)
	UpsertSubscription(ctx context.Context, sub *billing.Subscription) error
	MarkSyncPending(ctx context.Context, tenantID string, syncErr string) error

	// Webhook events. RecordEvent returns false when the event id was already
	// recorded (duplicate delivery). DeleteEvent releases a recorded id so a
	// redelivery is processed again after a failed application.
	// PurgeEventsBefore trims old records.
	RecordEvent(ctx context.Context, eventID, eventType string) (bool, error)
	DeleteEvent(ctx context.Context, eventID string) error
	PurgeEventsBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// Refresh tokens
	CreateRefreshToken(ctx context.Context, rt *principal.RefreshToken) error
	GetRefreshTokenByHash(ctx context.Context, tokenHash string) (*principal.RefreshToken, error)
	RotateRefreshToken(ctx context.Context, oldID string, newRT *principal.RefreshToken) error
	DeleteRefreshTokensByPrincipal(ctx context.Context, principalID string) error
	DeleteExpiredRefreshTokens(ctx context.Context, before time.Time) (int64, error)
}
