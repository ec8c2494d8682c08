// Package stripe implements the billing provider port against the Stripe API.
package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v83"
	"github.com/stripe/stripe-go/v83/customer"
	"github.com/stripe/stripe-go/v83/subscription"
	"github.com/stripe/stripe-go/v83/webhook"

	"github.com/teamline/teamline/internal/domain"
	"github.com/teamline/teamline/internal/domain/billing"
	"github.com/teamline/teamline/internal/port/billingprovider"
)

// Provider implements billingprovider.Provider using Stripe.
type Provider struct {
	webhookSecret string
}

var _ billingprovider.Provider = (*Provider)(nil)

// New creates a Stripe-backed provider. The API key is installed globally in
// the SDK; one Stripe account serves all tenants, with tenant_id carried in
// object metadata.
func New(apiKey, webhookSecret string) *Provider {
	stripe.Key = apiKey
	return &Provider{webhookSecret: webhookSecret}
}

func (p *Provider) CreateCustomer(ctx context.Context, tenantID, name, email string) (string, error) {
	params := &stripe.CustomerParams{
		Name:  stripe.String(name),
		Email: stripe.String(email),
	}
	params.Context = ctx
	params.AddMetadata("tenant_id", tenantID)
	// Retried tenant onboarding reuses the same key so at most one remote
	// customer exists per tenant.
	params.IdempotencyKey = stripe.String("customer-create-" + tenantID)

	c, err := customer.New(params)
	if err != nil {
		return "", classify(err, "create customer")
	}
	return c.ID, nil
}

func (p *Provider) CreateSubscription(ctx context.Context, in billingprovider.CreateSubscriptionParams) (*billingprovider.Subscription, error) {
	params := &stripe.SubscriptionParams{
		Customer: stripe.String(in.CustomerRef),
		Items: []*stripe.SubscriptionItemsParams{{
			Price:    stripe.String(in.PriceID),
			Quantity: stripe.Int64(int64(in.Quantity)),
		}},
	}
	params.Context = ctx
	params.AddMetadata("tenant_id", in.TenantID)
	if in.TrialDays > 0 {
		params.TrialPeriodDays = stripe.Int64(int64(in.TrialDays))
	}
	params.IdempotencyKey = stripe.String("subscription-create-" + in.TenantID)

	sub, err := subscription.New(params)
	if err != nil {
		return nil, classify(err, "create subscription")
	}
	return mapSubscription(sub), nil
}

func (p *Provider) UpdateSubscription(ctx context.Context, providerSubID string, in billingprovider.UpdateSubscriptionParams) (*billingprovider.Subscription, error) {
	// Quantity and price changes address the subscription item, so the
	// current item id has to be fetched first.
	getParams := &stripe.SubscriptionParams{}
	getParams.Context = ctx
	current, err := subscription.Get(providerSubID, getParams)
	if err != nil {
		return nil, classify(err, "get subscription")
	}
	if current.Items == nil || len(current.Items.Data) == 0 {
		return nil, fmt.Errorf("update subscription %s: no items: %w", providerSubID, domain.ErrProviderRejected)
	}

	item := &stripe.SubscriptionItemsParams{
		ID:       stripe.String(current.Items.Data[0].ID),
		Quantity: stripe.Int64(int64(in.Quantity)),
	}
	if in.PriceID != "" {
		item.Price = stripe.String(in.PriceID)
	}
	params := &stripe.SubscriptionParams{
		Items:             []*stripe.SubscriptionItemsParams{item},
		ProrationBehavior: stripe.String(string(in.Proration)),
	}
	params.Context = ctx

	sub, err := subscription.Update(providerSubID, params)
	if err != nil {
		return nil, classify(err, "update subscription")
	}
	return mapSubscription(sub), nil
}

// VerifyWebhook authenticates the delivery and normalizes subscription
// lifecycle events. Event types outside the subscription lifecycle come back
// as EventUnknown so the caller can acknowledge without acting.
func (p *Provider) VerifyWebhook(payload []byte, signatureHeader string) (*billing.ProviderEvent, error) {
	if len(payload) == 0 || signatureHeader == "" {
		return nil, fmt.Errorf("verify webhook: %w", domain.ErrSignatureInvalid)
	}

	// Stripe CLI and dashboard replays may carry a different API version;
	// signature verification is unaffected.
	event, err := webhook.ConstructEventWithOptions(payload, signatureHeader, p.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("verify webhook: %w", domain.ErrSignatureInvalid)
	}

	pe := &billing.ProviderEvent{
		ID:         event.ID,
		Type:       mapEventType(string(event.Type)),
		ReceivedAt: time.Unix(event.Created, 0).UTC(),
	}
	if pe.Type == billing.EventUnknown {
		return pe, nil
	}

	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return nil, fmt.Errorf("decode subscription event %s: %w", event.ID, err)
	}
	pe.SubscriptionRef = sub.ID
	if sub.Customer != nil {
		pe.CustomerRef = sub.Customer.ID
	}
	pe.Status = string(sub.Status)
	if sub.TrialEnd > 0 {
		pe.TrialEnd = time.Unix(sub.TrialEnd, 0).UTC()
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 {
		item := sub.Items.Data[0]
		pe.Quantity = int(item.Quantity)
		if item.CurrentPeriodStart > 0 {
			pe.PeriodStart = time.Unix(item.CurrentPeriodStart, 0).UTC()
		}
		if item.CurrentPeriodEnd > 0 {
			pe.PeriodEnd = time.Unix(item.CurrentPeriodEnd, 0).UTC()
		}
	}
	return pe, nil
}

func mapEventType(t string) billing.EventType {
	switch t {
	case "customer.subscription.created":
		return billing.EventSubscriptionCreated
	case "customer.subscription.updated":
		return billing.EventSubscriptionUpdated
	case "customer.subscription.deleted":
		return billing.EventSubscriptionDeleted
	default:
		return billing.EventUnknown
	}
}

func mapSubscription(sub *stripe.Subscription) *billingprovider.Subscription {
	out := &billingprovider.Subscription{
		ProviderSubID: sub.ID,
		Status:        string(sub.Status),
	}
	if sub.TrialEnd > 0 {
		out.TrialEnd = time.Unix(sub.TrialEnd, 0).UTC()
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 {
		item := sub.Items.Data[0]
		out.Quantity = int(item.Quantity)
		if item.CurrentPeriodStart > 0 {
			out.PeriodStart = time.Unix(item.CurrentPeriodStart, 0).UTC()
		}
		if item.CurrentPeriodEnd > 0 {
			out.PeriodEnd = time.Unix(item.CurrentPeriodEnd, 0).UTC()
		}
	}
	return out
}

// classify maps Stripe SDK errors onto the transient/permanent split the
// reconciler retries on. Anything that is not provably a bad request counts
// as transient.
func classify(err error, op string) error {
	var sErr *stripe.Error
	if errors.As(err, &sErr) {
		switch {
		case sErr.HTTPStatusCode == http.StatusTooManyRequests,
			sErr.HTTPStatusCode >= http.StatusInternalServerError:
			return fmt.Errorf("%s: %s: %w", op, sErr.Code, domain.ErrProviderUnavailable)
		case sErr.Type == stripe.ErrorTypeInvalidRequest,
			sErr.Type == stripe.ErrorTypeCard,
			sErr.Type == stripe.ErrorTypeIdempotency:
			return fmt.Errorf("%s: %s: %w", op, sErr.Code, domain.ErrProviderRejected)
		default:
			return fmt.Errorf("%s: %s: %w", op, sErr.Code, domain.ErrProviderUnavailable)
		}
	}
	// Network-level failures never reach the Stripe error type.
	return fmt.Errorf("%s: %v: %w", op, err, domain.ErrProviderUnavailable)
}
