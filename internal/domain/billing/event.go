package billing

import "time"

// EventType classifies a normalized provider webhook event.
type EventType string

const (
	EventSubscriptionCreated EventType = "subscription.created"
	EventSubscriptionUpdated EventType = "subscription.updated"
	EventSubscriptionDeleted EventType = "subscription.deleted"
	EventUnknown             EventType = "unknown"
)

// ProviderEvent is a normalized billing provider webhook event. The payload
// fields are authoritative over locally computed state: the provider can apply
// out-of-band changes (portal, dunning) the reconciler never initiated.
type ProviderEvent struct {
	ID              string // external event id, used for deduplication
	Type            EventType
	SubscriptionRef string // external subscription id
	CustomerRef     string // external customer id
	Status          string // provider status vocabulary, raw
	Quantity        int
	PeriodStart     time.Time
	PeriodEnd       time.Time
	TrialEnd        time.Time
	ReceivedAt      time.Time
}
