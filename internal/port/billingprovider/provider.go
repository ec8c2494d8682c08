// Package billingprovider defines the port interface for the external
// subscription billing provider.
package billingprovider

import (
	"context"
	"time"

	"github.com/teamline/teamline/internal/domain/billing"
)

// ProrationPolicy controls how mid-cycle quantity and price changes are billed.
type ProrationPolicy string

const (
	// ProrateInvoiceNow bills the difference immediately. Used for seat
	// increases: capacity in active use is never deferred to the next cycle.
	ProrateInvoiceNow ProrationPolicy = "always_invoice"
	// ProrateNextCycle accrues a proration credit applied to the next
	// invoice. Used for seat decreases.
	ProrateNextCycle ProrationPolicy = "create_prorations"
)

// CreateSubscriptionParams are the inputs for creating a remote subscription.
type CreateSubscriptionParams struct {
	CustomerRef string
	PriceID     string
	Quantity    int
	TrialDays   int
	TenantID    string // carried in provider metadata for traceability
}

// UpdateSubscriptionParams are the inputs for updating a remote subscription.
// An empty PriceID leaves the price unchanged (quantity-only update).
type UpdateSubscriptionParams struct {
	PriceID   string
	Quantity  int
	Proration ProrationPolicy
}

// Subscription is the provider's view of a subscription after a mutation.
type Subscription struct {
	ProviderSubID string
	Status        string // provider vocabulary; mapped by the caller
	Quantity      int
	PeriodStart   time.Time
	PeriodEnd     time.Time
	TrialEnd      time.Time
}

// Provider is the billing provider port. Call failures are classified by the
// adapter into domain.ErrProviderUnavailable (transient) or
// domain.ErrProviderRejected (permanent) so the reconciler can decide whether
// to retry.
type Provider interface {
	CreateCustomer(ctx context.Context, tenantID, name, email string) (customerRef string, err error)
	CreateSubscription(ctx context.Context, params CreateSubscriptionParams) (*Subscription, error)
	UpdateSubscription(ctx context.Context, providerSubID string, params UpdateSubscriptionParams) (*Subscription, error)

	// VerifyWebhook authenticates a raw delivery against the shared secret
	// and normalizes it. Returns domain.ErrSignatureInvalid on authenticity
	// failure; unknown event types are returned with Type EventUnknown, never
	// an error.
	VerifyWebhook(payload []byte, signatureHeader string) (*billing.ProviderEvent, error)
}
