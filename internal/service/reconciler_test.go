package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/teamline/teamline/internal/config"
	"github.com/teamline/teamline/internal/domain"
	"github.com/teamline/teamline/internal/domain/billing"
	"github.com/teamline/teamline/internal/domain/tenant"
	"github.com/teamline/teamline/internal/port/billingprovider"
	"github.com/teamline/teamline/internal/port/messagequeue"
	"github.com/teamline/teamline/internal/port/notifier"
	"github.com/teamline/teamline/internal/resilience"
)

type reconcilerFixture struct {
	store    *mockStore
	provider *mockProvider
	queue    *mockQueue
	notify   *mockNotifier
	svc      *ReconcilerService
}

func newReconcilerFixture(seatCount int, customerRef string) *reconcilerFixture {
	store := &mockStore{
		tenants: []tenant.Tenant{{
			ID:                "tenant-1",
			Name:              "Acme",
			Slug:              "acme",
			SeatCount:         seatCount,
			MaxSeats:          50,
			BillingCustomerID: customerRef,
			Enabled:           true,
		}},
	}
	provider := &mockProvider{}
	queue := &mockQueue{}
	notify := &mockNotifier{}
	cfg := config.Billing{
		TrialDays:       14,
		CallTimeout:     time.Second,
		SyncMaxAttempts: 8,
	}
	svc := NewReconcilerService(store, provider, queue, notify, testMetrics(),
		resilience.NewBreaker(5, time.Minute), &cfg, testLogger())
	svc.retry = resilience.RetryPolicy{MaxAttempts: 1}
	return &reconcilerFixture{store: store, provider: provider, queue: queue, notify: notify, svc: svc}
}

func (f *reconcilerFixture) seedSubscription(sub billing.Subscription) {
	sub.TenantID = "tenant-1"
	f.store.subscriptions = append(f.store.subscriptions, sub)
}

func TestReconciler_FirstSyncCreatesCustomerAndSubscription(t *testing.T) {
	f := newReconcilerFixture(3, "")
	ctx := context.Background()

	if err := f.svc.SyncTenant(ctx, "tenant-1"); err != nil {
		t.Fatalf("sync: %v", err)
	}

	if f.provider.createCustomerCalls != 1 {
		t.Errorf("customer creates = %d, want 1", f.provider.createCustomerCalls)
	}
	if f.store.tenants[0].BillingCustomerID != "cus_tenant-1" {
		t.Errorf("customer ref = %q, want cus_tenant-1", f.store.tenants[0].BillingCustomerID)
	}
	if f.provider.createSubCalls != 1 {
		t.Fatalf("subscription creates = %d, want 1", f.provider.createSubCalls)
	}
	if got := f.provider.lastCreateParams; got.Quantity != 3 || got.TrialDays != 14 {
		t.Errorf("create params = %+v, want quantity 3 and trial 14", got)
	}

	sub, err := f.store.GetSubscription(ctx, "tenant-1")
	if err != nil {
		t.Fatalf("get subscription: %v", err)
	}
	if sub.Quantity != 3 || sub.Tier != billing.TierStarter || sub.Status != billing.SubTrialing {
		t.Errorf("subscription = %+v", sub)
	}
	if sub.SyncPending {
		t.Error("sync_pending should be cleared after a successful sync")
	}
}

func TestReconciler_SyncIsIdempotentWhenInSync(t *testing.T) {
	f := newReconcilerFixture(3, "cus_tenant-1")
	f.seedSubscription(billing.Subscription{
		ProviderSubID: "sub_tenant-1",
		Status:        billing.SubActive,
		Tier:          billing.TierStarter,
		Quantity:      3,
	})
	ctx := context.Background()

	if err := f.svc.SyncTenant(ctx, "tenant-1"); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if f.provider.createCustomerCalls+f.provider.createSubCalls+f.provider.updateSubCalls != 0 {
		t.Error("in-sync tenant must not touch the provider")
	}
}

func TestReconciler_SeatIncreaseBillsImmediately(t *testing.T) {
	f := newReconcilerFixture(4, "cus_tenant-1")
	f.seedSubscription(billing.Subscription{
		ProviderSubID: "sub_tenant-1",
		Status:        billing.SubActive,
		Tier:          billing.TierStarter,
		Quantity:      3,
	})
	ctx := context.Background()

	if err := f.svc.SyncTenant(ctx, "tenant-1"); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if f.provider.updateSubCalls != 1 {
		t.Fatalf("updates = %d, want 1", f.provider.updateSubCalls)
	}
	got := f.provider.lastUpdateParams
	if got.Quantity != 4 {
		t.Errorf("quantity = %d, want 4", got.Quantity)
	}
	if got.Proration != billingprovider.ProrateInvoiceNow {
		t.Errorf("proration = %q, want always_invoice for an increase", got.Proration)
	}
	if got.PriceID != "" {
		t.Errorf("price id = %q, want empty for a same-tier update", got.PriceID)
	}
}

func TestReconciler_SeatDecreaseCreditsNextCycle(t *testing.T) {
	f := newReconcilerFixture(2, "cus_tenant-1")
	f.seedSubscription(billing.Subscription{
		ProviderSubID: "sub_tenant-1",
		Status:        billing.SubActive,
		Tier:          billing.TierStarter,
		Quantity:      3,
	})
	ctx := context.Background()

	if err := f.svc.SyncTenant(ctx, "tenant-1"); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if got := f.provider.lastUpdateParams.Proration; got != billingprovider.ProrateNextCycle {
		t.Errorf("proration = %q, want create_prorations for a decrease", got)
	}
}

func TestReconciler_TierCrossingChangesPrice(t *testing.T) {
	f := newReconcilerFixture(6, "cus_tenant-1")
	f.seedSubscription(billing.Subscription{
		ProviderSubID: "sub_tenant-1",
		Status:        billing.SubActive,
		Tier:          billing.TierStarter,
		Quantity:      5,
	})
	ctx := context.Background()

	if err := f.svc.SyncTenant(ctx, "tenant-1"); err != nil {
		t.Fatalf("sync: %v", err)
	}
	got := f.provider.lastUpdateParams
	if got.PriceID != billing.DefaultPriceIDs[billing.TierGrowth] {
		t.Errorf("price id = %q, want growth tier price", got.PriceID)
	}

	sub, err := f.store.GetSubscription(ctx, "tenant-1")
	if err != nil {
		t.Fatalf("get subscription: %v", err)
	}
	if sub.Tier != billing.TierGrowth {
		t.Errorf("tier = %q, want growth", sub.Tier)
	}
}

func TestReconciler_CanceledSubscriptionNotResurrected(t *testing.T) {
	f := newReconcilerFixture(4, "cus_tenant-1")
	f.seedSubscription(billing.Subscription{
		ProviderSubID: "sub_tenant-1",
		Status:        billing.SubCanceled,
		Tier:          billing.TierStarter,
		Quantity:      3,
		SyncPending:   true,
	})
	ctx := context.Background()

	if err := f.svc.SyncTenant(ctx, "tenant-1"); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if f.provider.updateSubCalls+f.provider.createSubCalls != 0 {
		t.Error("canceled subscription must not trigger provider calls")
	}
	sub, _ := f.store.GetSubscription(ctx, "tenant-1")
	if sub.SyncPending {
		t.Error("pending flag should be cleared on a canceled subscription")
	}
}

func TestReconciler_TransientFailureMarksPendingAndPropagates(t *testing.T) {
	f := newReconcilerFixture(3, "cus_tenant-1")
	f.provider.createSubErr = domain.ErrProviderUnavailable
	ctx := context.Background()

	err := f.svc.SyncTenant(ctx, "tenant-1")
	if !errors.Is(err, domain.ErrProviderUnavailable) {
		t.Fatalf("err = %v, want ErrProviderUnavailable", err)
	}
	if len(f.store.markPendingCalls) != 1 {
		t.Errorf("mark pending calls = %d, want 1", len(f.store.markPendingCalls))
	}
	if len(f.notify.alerts) != 1 || f.notify.alerts[0].Kind != notifier.KindBillingSyncFailed {
		t.Errorf("alerts = %+v, want one billing_sync_failed", f.notify.alerts)
	}
}

func TestReconciler_TransientFailureRetriedInRequest(t *testing.T) {
	f := newReconcilerFixture(3, "cus_tenant-1")
	f.provider.createSubErr = domain.ErrProviderUnavailable
	f.svc.retry = resilience.RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		MaxDelay:    time.Millisecond,
		Retryable:   retryableProviderErr,
	}

	err := f.svc.SyncTenant(context.Background(), "tenant-1")
	if !errors.Is(err, domain.ErrProviderUnavailable) {
		t.Fatalf("err = %v, want ErrProviderUnavailable", err)
	}
	if f.provider.createSubCalls != 3 {
		t.Errorf("create subscription calls = %d, want 3", f.provider.createSubCalls)
	}
}

func TestReconciler_RejectionAlertsOperator(t *testing.T) {
	f := newReconcilerFixture(3, "cus_tenant-1")
	f.provider.createSubErr = domain.ErrProviderRejected
	ctx := context.Background()

	err := f.svc.SyncTenant(ctx, "tenant-1")
	if !errors.Is(err, domain.ErrProviderRejected) {
		t.Fatalf("err = %v, want ErrProviderRejected", err)
	}
	if len(f.notify.alerts) != 1 || f.notify.alerts[0].Kind != notifier.KindProviderRejected {
		t.Errorf("alerts = %+v, want one provider_rejected", f.notify.alerts)
	}
}

func TestReconciler_SyncUnknownTenantIsNoop(t *testing.T) {
	f := newReconcilerFixture(3, "")
	if err := f.svc.SyncTenant(context.Background(), "gone"); err != nil {
		t.Fatalf("sync of deleted tenant should succeed, got %v", err)
	}
	if f.provider.createCustomerCalls != 0 {
		t.Error("deleted tenant must not touch the provider")
	}
}

func TestReconciler_HandleSyncMessage(t *testing.T) {
	validReq, _ := json.Marshal(messagequeue.SyncRequest{TenantID: "tenant-1", Reason: "test"})

	t.Run("malformed payload dropped", func(t *testing.T) {
		f := newReconcilerFixture(3, "cus_tenant-1")
		if err := f.svc.HandleSyncMessage(messagequeue.SubjectSyncTenant, []byte("{not json")); err != nil {
			t.Errorf("malformed payload must be dropped, got %v", err)
		}
	})

	t.Run("transient failure redelivered", func(t *testing.T) {
		f := newReconcilerFixture(3, "cus_tenant-1")
		f.provider.createSubErr = domain.ErrProviderUnavailable
		if err := f.svc.HandleSyncMessage(messagequeue.SubjectSyncTenant, validReq); err == nil {
			t.Error("transient failure must propagate for redelivery")
		}
	})

	t.Run("permanent failure absorbed", func(t *testing.T) {
		f := newReconcilerFixture(3, "cus_tenant-1")
		f.provider.createSubErr = domain.ErrProviderRejected
		if err := f.svc.HandleSyncMessage(messagequeue.SubjectSyncTenant, validReq); err != nil {
			t.Errorf("permanent failure must be absorbed, got %v", err)
		}
	})

	t.Run("success", func(t *testing.T) {
		f := newReconcilerFixture(3, "cus_tenant-1")
		if err := f.svc.HandleSyncMessage(messagequeue.SubjectSyncTenant, validReq); err != nil {
			t.Errorf("handle: %v", err)
		}
	})
}

func TestReconciler_OpenBreakerIsTransient(t *testing.T) {
	f := newReconcilerFixture(3, "cus_tenant-1")
	f.provider.createSubErr = errors.New("connection reset")

	breaker := resilience.NewBreaker(1, time.Minute)
	f.svc.breaker = breaker
	ctx := context.Background()

	// First attempt trips the breaker.
	if err := f.svc.SyncTenant(ctx, "tenant-1"); err == nil {
		t.Fatal("expected provider failure")
	}
	// Second attempt fails fast with the breaker open.
	err := f.svc.SyncTenant(ctx, "tenant-1")
	if !errors.Is(err, domain.ErrProviderUnavailable) {
		t.Fatalf("err = %v, want ErrProviderUnavailable while breaker open", err)
	}
	if f.provider.createSubCalls != 1 {
		t.Errorf("provider calls = %d, want 1 (breaker must short-circuit)", f.provider.createSubCalls)
	}
}

func TestReconciler_ApplyProviderEvent(t *testing.T) {
	periodStart := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	periodEnd := periodStart.AddDate(0, 1, 0)

	t.Run("updates local mirror", func(t *testing.T) {
		f := newReconcilerFixture(3, "cus_tenant-1")
		f.seedSubscription(billing.Subscription{
			ProviderSubID: "sub_tenant-1",
			Status:        billing.SubTrialing,
			Tier:          billing.TierStarter,
			Quantity:      3,
		})
		err := f.svc.ApplyProviderEvent(context.Background(), &billing.ProviderEvent{
			ID:              "evt_1",
			Type:            billing.EventSubscriptionUpdated,
			SubscriptionRef: "sub_tenant-1",
			CustomerRef:     "cus_tenant-1",
			Status:          "active",
			Quantity:        3,
			PeriodStart:     periodStart,
			PeriodEnd:       periodEnd,
		})
		if err != nil {
			t.Fatalf("apply: %v", err)
		}
		sub, _ := f.store.GetSubscription(context.Background(), "tenant-1")
		if sub.Status != billing.SubActive {
			t.Errorf("status = %q, want active", sub.Status)
		}
		if !sub.CurrentPeriodStart.Equal(periodStart) || !sub.CurrentPeriodEnd.Equal(periodEnd) {
			t.Errorf("period = %v..%v", sub.CurrentPeriodStart, sub.CurrentPeriodEnd)
		}
		if len(f.queue.published) != 0 {
			t.Error("in-sync event must not request a sync")
		}
	})

	t.Run("deleted event cancels", func(t *testing.T) {
		f := newReconcilerFixture(3, "cus_tenant-1")
		f.seedSubscription(billing.Subscription{
			ProviderSubID: "sub_tenant-1",
			Status:        billing.SubActive,
			Tier:          billing.TierStarter,
			Quantity:      3,
		})
		err := f.svc.ApplyProviderEvent(context.Background(), &billing.ProviderEvent{
			ID:              "evt_2",
			Type:            billing.EventSubscriptionDeleted,
			SubscriptionRef: "sub_tenant-1",
			CustomerRef:     "cus_tenant-1",
			Status:          "canceled",
			Quantity:        3,
		})
		if err != nil {
			t.Fatalf("apply: %v", err)
		}
		sub, _ := f.store.GetSubscription(context.Background(), "tenant-1")
		if sub.Status != billing.SubCanceled {
			t.Errorf("status = %q, want canceled", sub.Status)
		}
	})

	t.Run("quantity drift requests sync", func(t *testing.T) {
		f := newReconcilerFixture(3, "cus_tenant-1")
		f.seedSubscription(billing.Subscription{
			ProviderSubID: "sub_tenant-1",
			Status:        billing.SubActive,
			Tier:          billing.TierStarter,
			Quantity:      3,
		})
		err := f.svc.ApplyProviderEvent(context.Background(), &billing.ProviderEvent{
			ID:              "evt_3",
			Type:            billing.EventSubscriptionUpdated,
			SubscriptionRef: "sub_tenant-1",
			CustomerRef:     "cus_tenant-1",
			Status:          "active",
			Quantity:        7, // ledger says 3
		})
		if err != nil {
			t.Fatalf("apply: %v", err)
		}
		if len(f.queue.published) != 1 {
			t.Fatalf("sync requests = %d, want 1 for drift", len(f.queue.published))
		}
	})

	t.Run("unknown customer acknowledged", func(t *testing.T) {
		f := newReconcilerFixture(3, "cus_tenant-1")
		err := f.svc.ApplyProviderEvent(context.Background(), &billing.ProviderEvent{
			ID:          "evt_4",
			Type:        billing.EventSubscriptionUpdated,
			CustomerRef: "cus_stranger",
			Status:      "active",
		})
		if err != nil {
			t.Errorf("unknown customer must be acknowledged, got %v", err)
		}
	})
}

func TestReconciler_RepairPendingEnqueues(t *testing.T) {
	f := newReconcilerFixture(3, "cus_tenant-1")
	f.seedSubscription(billing.Subscription{
		ProviderSubID: "sub_tenant-1",
		Status:        billing.SubActive,
		Tier:          billing.TierStarter,
		Quantity:      3,
		SyncPending:   true,
	})

	if err := f.svc.RepairPending(context.Background()); err != nil {
		t.Fatalf("repair: %v", err)
	}
	if len(f.queue.published) != 1 {
		t.Fatalf("sync requests = %d, want 1", len(f.queue.published))
	}
	var req messagequeue.SyncRequest
	if err := json.Unmarshal(f.queue.published[0].data, &req); err != nil {
		t.Fatalf("unmarshal request: %v", err)
	}
	if req.TenantID != "tenant-1" {
		t.Errorf("tenant id = %q, want tenant-1", req.TenantID)
	}
}
