// Package billing defines the subscription domain model and the seat-count
// to price-tier mapping.
package billing

import "time"

// SubStatus is the internal subscription lifecycle status.
type SubStatus string

const (
	SubTrialing SubStatus = "trialing"
	SubActive   SubStatus = "active"
	SubPastDue  SubStatus = "past_due"
	SubCanceled SubStatus = "canceled"
)

// Subscription mirrors the billing provider's subscription for one tenant.
// Quantity reflects the seat count at the last successful sync; SyncPending is
// set while a reconciliation is in flight or has failed, since local callers
// and asynchronous webhooks update this row independently.
type Subscription struct {
	ID                 string    `json:"id"`
	TenantID           string    `json:"tenant_id"`
	Status             SubStatus `json:"status"`
	Tier               Tier      `json:"tier"`
	Quantity           int       `json:"quantity"`
	ProviderSubID      string    `json:"provider_sub_id"`
	CurrentPeriodStart time.Time `json:"current_period_start,omitzero"`
	CurrentPeriodEnd   time.Time `json:"current_period_end,omitzero"`
	TrialEndsAt        time.Time `json:"trial_ends_at,omitzero"`
	SyncPending        bool      `json:"sync_pending"`
	LastSyncAt         time.Time `json:"last_sync_at,omitzero"`
	LastSyncError      string    `json:"last_sync_error,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// ParseStatus maps a provider status string onto the internal status set.
// Unknown provider statuses degrade to past_due so the tenant surfaces as
// "billing needs attention" rather than silently staying active.
func ParseStatus(s string) SubStatus {
	switch s {
	case "trialing":
		return SubTrialing
	case "active":
		return SubActive
	case "past_due", "unpaid", "incomplete", "incomplete_expired":
		return SubPastDue
	case "canceled":
		return SubCanceled
	default:
		return SubPastDue
	}
}
