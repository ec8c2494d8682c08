// Package notifier defines the port interface for operator alerts.
package notifier

import "context"

// Alert kinds surfaced to operators and tenant owners.
const (
	KindBillingSyncFailed = "billing_sync_failed"
	KindSeatLimitReached  = "seat_limit_reached"
	KindProviderRejected  = "provider_rejected"
)

// Alert is an operator-visible event.
type Alert struct {
	Kind     string `json:"kind"`
	TenantID string `json:"tenant_id"`
	Detail   string `json:"detail,omitempty"`
}

// Notifier records alerts best-effort. Implementations must never block the
// caller's operation; errors are logged, not propagated into core flows.
type Notifier interface {
	Notify(ctx context.Context, alert Alert)
}
