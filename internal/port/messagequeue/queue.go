// Package messagequeue defines the port interface for durable messaging.
package messagequeue

import "context"

// Canonical subjects.
const (
	// SubjectSyncTenant carries reconciliation requests; the payload is a
	// SyncRequest. Failed deliveries are redelivered up to the consumer's
	// max-attempts with backoff.
	SubjectSyncTenant = "billing.sync"
	// SubjectAlerts carries operator alerts from the notifier.
	SubjectAlerts = "audit.alerts"
)

// SyncRequest is the payload on SubjectSyncTenant.
type SyncRequest struct {
	TenantID string `json:"tenant_id"`
	Reason   string `json:"reason,omitempty"`
}

// Handler processes a message. A non-nil error triggers redelivery, bounded
// by the consumer's max-attempts configuration.
type Handler func(subject string, data []byte) error

// Queue is the messaging port used for the billing sync retry queue and the
// audit event stream.
type Queue interface {
	Publish(ctx context.Context, subject string, data []byte) error
	// Subscribe registers a handler and returns a stop function.
	Subscribe(ctx context.Context, subject string, handler Handler) (func(), error)
}
