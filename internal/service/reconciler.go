package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/teamline/teamline/internal/adapter/otel"
	"github.com/teamline/teamline/internal/config"
	"github.com/teamline/teamline/internal/domain"
	"github.com/teamline/teamline/internal/domain/billing"
	"github.com/teamline/teamline/internal/domain/principal"
	"github.com/teamline/teamline/internal/middleware"
	"github.com/teamline/teamline/internal/port/billingprovider"
	"github.com/teamline/teamline/internal/port/database"
	"github.com/teamline/teamline/internal/port/messagequeue"
	"github.com/teamline/teamline/internal/port/notifier"
	"github.com/teamline/teamline/internal/resilience"
)

// ReconcilerService drives the tenant's remote subscription to match its
// seat ledger. Sync requests arrive over the queue; each attempt re-derives
// the desired state from the current seat count, so stale requests converge
// instead of replaying history.
type ReconcilerService struct {
	store    database.Store
	provider billingprovider.Provider
	queue    messagequeue.Queue
	notify   notifier.Notifier
	metrics  *otel.Metrics
	breaker  *resilience.Breaker
	retry    resilience.RetryPolicy
	cfg      *config.Billing
	logger   *slog.Logger
}

// NewReconcilerService creates a new ReconcilerService.
func NewReconcilerService(store database.Store, provider billingprovider.Provider, queue messagequeue.Queue, notify notifier.Notifier, metrics *otel.Metrics, breaker *resilience.Breaker, cfg *config.Billing, logger *slog.Logger) *ReconcilerService {
	return &ReconcilerService{
		store:    store,
		provider: provider,
		queue:    queue,
		notify:   notify,
		metrics:  metrics,
		breaker:  breaker,
		retry:    resilience.DefaultRetry(retryableProviderErr),
		cfg:      cfg,
		logger:   logger,
	}
}

// HandleSyncMessage is the queue handler for sync requests. A transient
// provider failure returns an error so the message is redelivered; permanent
// failures are absorbed after marking the subscription pending.
func (s *ReconcilerService) HandleSyncMessage(subject string, data []byte) error {
	var req messagequeue.SyncRequest
	if err := json.Unmarshal(data, &req); err != nil {
		// Malformed payloads never become valid; drop instead of redeliver.
		s.logger.Error("malformed sync request", "subject", subject, "error", err)
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.CallTimeout+10*time.Second)
	defer cancel()
	ctx = middleware.WithTenantScope(ctx, req.TenantID)

	err := s.SyncTenant(ctx, req.TenantID)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrProviderUnavailable):
		return err // redeliver with backoff
	default:
		return nil
	}
}

// SyncTenant reconciles one tenant with the billing provider:
//
//  1. ensure a provider customer exists,
//  2. ensure a subscription exists sized to the current seat count,
//  3. update quantity and tier when they differ,
//  4. persist the provider's resulting view locally.
//
// The desired quantity is read at sync time, so any number of queued requests
// for the same tenant collapse into the same outcome.
func (s *ReconcilerService) SyncTenant(ctx context.Context, tenantID string) error {
	ctx, span := otel.StartSyncSpan(ctx, tenantID)
	defer span.End()

	s.metrics.SyncAttempts.Add(ctx, 1)
	start := time.Now()
	defer func() {
		s.metrics.SyncDuration.Record(ctx, time.Since(start).Seconds())
	}()

	t, err := s.store.GetTenant(ctx, tenantID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// Tenant removed while the request was queued.
			return nil
		}
		return fmt.Errorf("get tenant: %w", err)
	}

	if err := s.syncTenant(ctx, t.ID, t.SeatCount, t.Name, t.BillingCustomerID, t.HasBillingCustomer()); err != nil {
		s.metrics.SyncFailures.Add(ctx, 1)
		if markErr := s.store.MarkSyncPending(ctx, tenantID, err.Error()); markErr != nil {
			s.logger.Error("mark sync pending", "tenant_id", tenantID, "error", markErr)
		}
		if errors.Is(err, domain.ErrProviderRejected) {
			s.notify.Notify(ctx, notifier.Alert{
				Kind:     notifier.KindProviderRejected,
				TenantID: tenantID,
				Detail:   err.Error(),
			})
		} else {
			s.notify.Notify(ctx, notifier.Alert{
				Kind:     notifier.KindBillingSyncFailed,
				TenantID: tenantID,
				Detail:   err.Error(),
			})
		}
		return err
	}
	return nil
}

func (s *ReconcilerService) syncTenant(ctx context.Context, tenantID string, seatCount int, name, customerRef string, hasCustomer bool) error {
	if !hasCustomer {
		ref, err := s.callCreateCustomer(ctx, tenantID, name, s.ownerEmail(ctx, tenantID))
		if err != nil {
			return err
		}
		if err := s.store.SetBillingCustomerRef(ctx, tenantID, ref); err != nil {
			return fmt.Errorf("bind customer ref: %w", err)
		}
		customerRef = ref
	}

	tier := billing.SelectTier(seatCount)
	priceID := s.priceFor(tier)

	sub, err := s.store.GetSubscription(ctx, tenantID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("get subscription: %w", err)
	}

	if sub == nil || sub.ProviderSubID == "" {
		remote, err := s.callCreateSubscription(ctx, billingprovider.CreateSubscriptionParams{
			CustomerRef: customerRef,
			PriceID:     priceID,
			Quantity:    seatCount,
			TrialDays:   s.cfg.TrialDays,
			TenantID:    tenantID,
		})
		if err != nil {
			return err
		}
		return s.persistRemote(ctx, tenantID, tier, remote)
	}

	if sub.Status == billing.SubCanceled {
		// A canceled subscription is never resurrected by quantity drift;
		// reactivation is an explicit operator action on the provider side.
		return s.clearPending(ctx, sub)
	}

	if sub.Quantity == seatCount && sub.Tier == tier && !sub.SyncPending {
		return nil
	}
	if sub.Quantity == seatCount && sub.Tier == tier {
		return s.clearPending(ctx, sub)
	}

	params := billingprovider.UpdateSubscriptionParams{
		Quantity:  seatCount,
		Proration: billingprovider.ProrateNextCycle,
	}
	if seatCount > sub.Quantity {
		// Added capacity bills immediately; freed capacity credits the next
		// invoice.
		params.Proration = billingprovider.ProrateInvoiceNow
	}
	if sub.Tier != tier {
		params.PriceID = priceID
	}

	remote, err := s.callUpdateSubscription(ctx, sub.ProviderSubID, params)
	if err != nil {
		return err
	}
	return s.persistRemote(ctx, tenantID, tier, remote)
}

// Subscription returns the tenant's local subscription mirror.
func (s *ReconcilerService) Subscription(ctx context.Context, tenantID string) (*billing.Subscription, error) {
	return s.store.GetSubscription(ctx, tenantID)
}

// ApplyProviderEvent folds a verified provider event into local state. The
// provider is authoritative for subscription status, quantity, and periods:
// out-of-band changes (billing portal, dunning) arrive only through events.
// When the provider's quantity disagrees with the seat ledger, a sync is
// requested so the ledger wins eventually.
func (s *ReconcilerService) ApplyProviderEvent(ctx context.Context, ev *billing.ProviderEvent) error {
	t, err := s.store.GetTenantByCustomerRef(ctx, ev.CustomerRef)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// Event for a customer this system never created (or a tenant
			// already torn down). Acknowledged, not applied.
			s.logger.Warn("provider event for unknown customer", "event_id", ev.ID, "customer_ref", ev.CustomerRef)
			return nil
		}
		return fmt.Errorf("resolve tenant for event %s: %w", ev.ID, err)
	}
	ctx = middleware.WithTenantScope(ctx, t.ID)

	sub, err := s.store.GetSubscription(ctx, t.ID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("get subscription: %w", err)
	}
	if sub == nil {
		sub = &billing.Subscription{TenantID: t.ID}
	}

	sub.ProviderSubID = ev.SubscriptionRef
	sub.Quantity = ev.Quantity
	sub.Tier = billing.SelectTier(ev.Quantity)
	if !ev.PeriodStart.IsZero() {
		sub.CurrentPeriodStart = ev.PeriodStart
	}
	if !ev.PeriodEnd.IsZero() {
		sub.CurrentPeriodEnd = ev.PeriodEnd
	}
	sub.TrialEndsAt = ev.TrialEnd

	if ev.Type == billing.EventSubscriptionDeleted {
		sub.Status = billing.SubCanceled
	} else {
		sub.Status = billing.ParseStatus(ev.Status)
	}
	sub.LastSyncAt = time.Now().UTC()
	sub.LastSyncError = ""
	sub.SyncPending = false

	if err := s.store.UpsertSubscription(ctx, sub); err != nil {
		return fmt.Errorf("apply event %s: %w", ev.ID, err)
	}
	s.logger.Info("provider event applied", "event_id", ev.ID, "tenant_id", t.ID, "type", ev.Type, "status", sub.Status)

	// Ledger drift: the provider's quantity is not the desired one.
	if sub.Status != billing.SubCanceled && ev.Quantity != t.SeatCount {
		s.requestSync(ctx, t.ID, "provider quantity drift")
	}
	return nil
}

// RepairPending sweeps tenants whose subscription is flagged pending and
// re-enqueues them. Run periodically to recover from lost sync requests.
func (s *ReconcilerService) RepairPending(ctx context.Context) error {
	tenants, err := s.store.ListTenants(ctx)
	if err != nil {
		return fmt.Errorf("list tenants: %w", err)
	}
	for _, t := range tenants {
		scoped := middleware.WithTenantScope(ctx, t.ID)
		sub, err := s.store.GetSubscription(scoped, t.ID)
		if err != nil {
			continue
		}
		if sub.SyncPending {
			s.requestSync(scoped, t.ID, "pending repair sweep")
		}
	}
	return nil
}

func (s *ReconcilerService) persistRemote(ctx context.Context, tenantID string, tier billing.Tier, remote *billingprovider.Subscription) error {
	sub, err := s.store.GetSubscription(ctx, tenantID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("get subscription: %w", err)
	}
	if sub == nil {
		sub = &billing.Subscription{TenantID: tenantID}
	}
	sub.ProviderSubID = remote.ProviderSubID
	sub.Status = billing.ParseStatus(remote.Status)
	sub.Tier = tier
	sub.Quantity = remote.Quantity
	sub.CurrentPeriodStart = remote.PeriodStart
	sub.CurrentPeriodEnd = remote.PeriodEnd
	sub.TrialEndsAt = remote.TrialEnd
	sub.SyncPending = false
	sub.LastSyncAt = time.Now().UTC()
	sub.LastSyncError = ""

	if err := s.store.UpsertSubscription(ctx, sub); err != nil {
		return fmt.Errorf("persist subscription: %w", err)
	}
	s.logger.Info("tenant synced", "tenant_id", tenantID, "tier", tier, "quantity", sub.Quantity, "status", sub.Status)
	return nil
}

func (s *ReconcilerService) clearPending(ctx context.Context, sub *billing.Subscription) error {
	sub.SyncPending = false
	sub.LastSyncAt = time.Now().UTC()
	sub.LastSyncError = ""
	if err := s.store.UpsertSubscription(ctx, sub); err != nil {
		return fmt.Errorf("clear pending: %w", err)
	}
	return nil
}

// callCreateCustomer and friends wrap provider calls with the retry policy,
// the circuit breaker, and the per-call timeout. Transient failures are
// retried in-request; an open breaker surfaces as a transient failure so the
// queue keeps the request alive.

func (s *ReconcilerService) callCreateCustomer(ctx context.Context, tenantID, name, email string) (string, error) {
	var ref string
	err := s.execute(ctx, func() error {
		cctx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
		defer cancel()
		var err error
		ref, err = s.provider.CreateCustomer(cctx, tenantID, name, email)
		return err
	})
	return ref, err
}

func (s *ReconcilerService) callCreateSubscription(ctx context.Context, params billingprovider.CreateSubscriptionParams) (*billingprovider.Subscription, error) {
	var remote *billingprovider.Subscription
	err := s.execute(ctx, func() error {
		cctx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
		defer cancel()
		var err error
		remote, err = s.provider.CreateSubscription(cctx, params)
		return err
	})
	return remote, err
}

func (s *ReconcilerService) callUpdateSubscription(ctx context.Context, providerSubID string, params billingprovider.UpdateSubscriptionParams) (*billingprovider.Subscription, error) {
	var remote *billingprovider.Subscription
	err := s.execute(ctx, func() error {
		cctx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
		defer cancel()
		var err error
		remote, err = s.provider.UpdateSubscription(cctx, providerSubID, params)
		return err
	})
	return remote, err
}

func (s *ReconcilerService) execute(ctx context.Context, fn func() error) error {
	err := s.retry.Do(ctx, func() error {
		return s.breaker.Execute(fn)
	})
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return fmt.Errorf("billing provider circuit open: %w", domain.ErrProviderUnavailable)
	}
	return err
}

// retryableProviderErr limits in-request retries to transient provider
// failures. An open breaker is not retried here; redelivery through the
// queue waits out the breaker timeout instead.
func retryableProviderErr(err error) bool {
	return errors.Is(err, domain.ErrProviderUnavailable) && !errors.Is(err, resilience.ErrCircuitOpen)
}

func (s *ReconcilerService) priceFor(tier billing.Tier) string {
	if id, ok := s.cfg.PriceIDs[string(tier)]; ok && id != "" {
		return id
	}
	return billing.DefaultPriceIDs[tier]
}

// ownerEmail returns the tenant owner's email for the provider customer
// record, or empty when unavailable.
func (s *ReconcilerService) ownerEmail(ctx context.Context, tenantID string) string {
	members, err := s.store.ListPrincipals(ctx, tenantID)
	if err != nil {
		return ""
	}
	for _, m := range members {
		if m.Role == principal.RoleOwner {
			return m.Email
		}
	}
	return ""
}

func (s *ReconcilerService) requestSync(ctx context.Context, tenantID, reason string) {
	data, err := json.Marshal(messagequeue.SyncRequest{TenantID: tenantID, Reason: reason})
	if err != nil {
		s.logger.Error("marshal sync request", "tenant_id", tenantID, "error", err)
		return
	}
	if err := s.queue.Publish(ctx, messagequeue.SubjectSyncTenant, data); err != nil {
		s.logger.Error("enqueue billing sync", "tenant_id", tenantID, "error", err)
	}
}
