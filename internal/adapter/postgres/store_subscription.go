package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/teamline/teamline/internal/domain/billing"
)

const subscriptionColumns = `id, tenant_id, status, tier, quantity, provider_sub_id,
	current_period_start, current_period_end, trial_ends_at,
	sync_pending, last_sync_at, COALESCE(last_sync_error, ''), created_at, updated_at`

func (s *Store) GetSubscription(ctx context.Context, tenantID string) (*billing.Subscription, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions WHERE tenant_id = $1 AND ($2 = '' OR tenant_id = $2::uuid)`,
		tenantID, tenantFromCtx(ctx))
	sub, err := scanSubscription(row)
	if err != nil {
		return nil, notFoundWrap(err, "get subscription for tenant %s", tenantID)
	}
	return sub, nil
}

// GetSubscriptionByProviderRef is unscoped: webhook deliveries identify the
// subscription by the provider's id before the owning tenant is known.
func (s *Store) GetSubscriptionByProviderRef(ctx context.Context, providerSubID string) (*billing.Subscription, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions WHERE provider_sub_id = $1`, providerSubID)
	sub, err := scanSubscription(row)
	if err != nil {
		return nil, notFoundWrap(err, "get subscription by provider ref %s", providerSubID)
	}
	return sub, nil
}

// UpsertSubscription writes the full subscription row keyed by tenant. Each
// tenant has at most one subscription, so the tenant_id unique constraint is
// the conflict target.
func (s *Store) UpsertSubscription(ctx context.Context, sub *billing.Subscription) error {
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO subscriptions (id, tenant_id, status, tier, quantity, provider_sub_id,
			current_period_start, current_period_end, trial_ends_at,
			sync_pending, last_sync_at, last_sync_error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NULLIF($12, ''))
		ON CONFLICT (tenant_id) DO UPDATE SET
			status = EXCLUDED.status,
			tier = EXCLUDED.tier,
			quantity = EXCLUDED.quantity,
			provider_sub_id = EXCLUDED.provider_sub_id,
			current_period_start = EXCLUDED.current_period_start,
			current_period_end = EXCLUDED.current_period_end,
			trial_ends_at = EXCLUDED.trial_ends_at,
			sync_pending = EXCLUDED.sync_pending,
			last_sync_at = EXCLUDED.last_sync_at,
			last_sync_error = EXCLUDED.last_sync_error,
			updated_at = now()
		RETURNING id, created_at, updated_at`,
		sub.ID, sub.TenantID, sub.Status, sub.Tier, sub.Quantity, sub.ProviderSubID,
		nullTime(sub.CurrentPeriodStart), nullTime(sub.CurrentPeriodEnd), nullTime(sub.TrialEndsAt),
		sub.SyncPending, nullTime(sub.LastSyncAt), sub.LastSyncError,
	).Scan(&sub.ID, &sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		return conflictWrap(err, "upsert subscription for tenant %s", sub.TenantID)
	}
	return nil
}

// MarkSyncPending flags the tenant's subscription as needing reconciliation
// and records the failure that caused it. A tenant without a subscription row
// yet gets a placeholder so the pending flag survives restarts.
func (s *Store) MarkSyncPending(ctx context.Context, tenantID string, syncErr string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO subscriptions (id, tenant_id, status, tier, quantity, sync_pending, last_sync_error)
		VALUES ($1, $2, $3, $4, 0, TRUE, NULLIF($5, ''))
		ON CONFLICT (tenant_id) DO UPDATE SET
			sync_pending = TRUE,
			last_sync_error = NULLIF($5, ''),
			updated_at = now()`,
		uuid.NewString(), tenantID, billing.SubPastDue, billing.TierStarter, syncErr)
	if err != nil {
		return conflictWrap(err, "mark sync pending for tenant %s", tenantID)
	}
	return nil
}

func scanSubscription(row pgx.Row) (*billing.Subscription, error) {
	var sub billing.Subscription
	var periodStart, periodEnd, trialEnd, lastSync *time.Time
	err := row.Scan(&sub.ID, &sub.TenantID, &sub.Status, &sub.Tier, &sub.Quantity, &sub.ProviderSubID,
		&periodStart, &periodEnd, &trialEnd,
		&sub.SyncPending, &lastSync, &sub.LastSyncError, &sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		return nil, err
	}
	scanNullTime(&sub.CurrentPeriodStart, periodStart)
	scanNullTime(&sub.CurrentPeriodEnd, periodEnd)
	scanNullTime(&sub.TrialEndsAt, trialEnd)
	scanNullTime(&sub.LastSyncAt, lastSync)
	return &sub, nil
}
