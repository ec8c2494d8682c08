package service

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/teamline/teamline/internal/adapter/otel"
	"github.com/teamline/teamline/internal/domain"
	"github.com/teamline/teamline/internal/domain/billing"
	"github.com/teamline/teamline/internal/domain/principal"
	"github.com/teamline/teamline/internal/domain/tenant"
	"github.com/teamline/teamline/internal/port/billingprovider"
	"github.com/teamline/teamline/internal/port/database"
	"github.com/teamline/teamline/internal/port/messagequeue"
	"github.com/teamline/teamline/internal/port/notifier"
)

// mockStore is an in-memory database.Store for service tests. The mutex
// covers the paths exercised concurrently (seat grants).
type mockStore struct {
	mu            sync.Mutex
	tenants       []tenant.Tenant
	principals    []principal.Principal
	subscriptions []billing.Subscription
	events        map[string]string
	refreshTokens []principal.RefreshToken

	// Error hooks. Set these to inject failures.
	getTenantErr    error
	grantSeatErr    error
	revokeSeatErr   error
	upsertSubErr    error
	recordEventErr  error
	markPendingErr  error
	setCustomerErr  error
	updatePrincErr  error
	rotateTokenErr  error
	createTokenErr  error
	deleteTokensErr error

	markPendingCalls []string
}

var _ database.Store = (*mockStore)(nil)

func (m *mockStore) CreateTenant(_ context.Context, t *tenant.Tenant) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	t.CreatedAt = time.Now()
	t.UpdatedAt = t.CreatedAt
	m.tenants = append(m.tenants, *t)
	return nil
}

func (m *mockStore) GetTenant(_ context.Context, id string) (*tenant.Tenant, error) {
	if m.getTenantErr != nil {
		return nil, m.getTenantErr
	}
	for i := range m.tenants {
		if m.tenants[i].ID == id {
			t := m.tenants[i]
			return &t, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockStore) GetTenantByCustomerRef(_ context.Context, ref string) (*tenant.Tenant, error) {
	for i := range m.tenants {
		if m.tenants[i].BillingCustomerID == ref {
			t := m.tenants[i]
			return &t, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockStore) ListTenants(_ context.Context) ([]tenant.Tenant, error) {
	return m.tenants, nil
}

func (m *mockStore) UpdateTenant(_ context.Context, t *tenant.Tenant) error {
	for i := range m.tenants {
		if m.tenants[i].ID == t.ID {
			if t.MaxSeats < m.tenants[i].SeatCount {
				return domain.ErrValidation
			}
			t.SeatCount = m.tenants[i].SeatCount
			m.tenants[i] = *t
			return nil
		}
	}
	return domain.ErrNotFound
}

func (m *mockStore) DeleteTenant(_ context.Context, id string) error {
	for i := range m.tenants {
		if m.tenants[i].ID == id {
			m.tenants = append(m.tenants[:i], m.tenants[i+1:]...)
			return nil
		}
	}
	return domain.ErrNotFound
}

func (m *mockStore) SetBillingCustomerRef(_ context.Context, tenantID, ref string) error {
	if m.setCustomerErr != nil {
		return m.setCustomerErr
	}
	for i := range m.tenants {
		if m.tenants[i].ID == tenantID {
			if m.tenants[i].BillingCustomerID != "" && m.tenants[i].BillingCustomerID != ref {
				return domain.ErrConflict
			}
			m.tenants[i].BillingCustomerID = ref
			return nil
		}
	}
	return domain.ErrNotFound
}

func (m *mockStore) GrantSeat(_ context.Context, tenantID string, p *principal.Principal) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.grantSeatErr != nil {
		return 0, m.grantSeatErr
	}
	for i := range m.tenants {
		if m.tenants[i].ID != tenantID {
			continue
		}
		if !m.tenants[i].Enabled {
			return 0, domain.ErrValidation
		}
		if m.tenants[i].SeatCount >= m.tenants[i].MaxSeats {
			return 0, domain.ErrSeatLimit
		}
		for j := range m.principals {
			if strings.EqualFold(m.principals[j].Email, p.Email) {
				return 0, domain.ErrConflict
			}
		}
		if p.ID == "" {
			p.ID = uuid.NewString()
		}
		p.TenantID = tenantID
		m.principals = append(m.principals, *p)
		m.tenants[i].SeatCount++
		return m.tenants[i].SeatCount, nil
	}
	return 0, domain.ErrNotFound
}

func (m *mockStore) RevokeSeat(_ context.Context, tenantID, principalID string) (int, error) {
	if m.revokeSeatErr != nil {
		return 0, m.revokeSeatErr
	}
	for j := range m.principals {
		if m.principals[j].ID == principalID && m.principals[j].TenantID == tenantID {
			m.principals = append(m.principals[:j], m.principals[j+1:]...)
			for i := range m.tenants {
				if m.tenants[i].ID == tenantID {
					if m.tenants[i].SeatCount > 0 {
						m.tenants[i].SeatCount--
					}
					return m.tenants[i].SeatCount, nil
				}
			}
			return 0, domain.ErrNotFound
		}
	}
	return 0, domain.ErrNotFound
}

func (m *mockStore) GetPrincipal(_ context.Context, id string) (*principal.Principal, error) {
	for i := range m.principals {
		if m.principals[i].ID == id {
			p := m.principals[i]
			return &p, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockStore) GetPrincipalByEmail(_ context.Context, email string) (*principal.Principal, error) {
	for i := range m.principals {
		if strings.EqualFold(m.principals[i].Email, email) {
			p := m.principals[i]
			return &p, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockStore) ListPrincipals(_ context.Context, tenantID string) ([]principal.Principal, error) {
	var out []principal.Principal
	for i := range m.principals {
		if m.principals[i].TenantID == tenantID {
			out = append(out, m.principals[i])
		}
	}
	return out, nil
}

func (m *mockStore) UpdatePrincipal(_ context.Context, p *principal.Principal) error {
	if m.updatePrincErr != nil {
		return m.updatePrincErr
	}
	for i := range m.principals {
		if m.principals[i].ID == p.ID {
			m.principals[i] = *p
			return nil
		}
	}
	return domain.ErrNotFound
}

func (m *mockStore) GetSubscription(_ context.Context, tenantID string) (*billing.Subscription, error) {
	for i := range m.subscriptions {
		if m.subscriptions[i].TenantID == tenantID {
			sub := m.subscriptions[i]
			return &sub, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockStore) GetSubscriptionByProviderRef(_ context.Context, providerSubID string) (*billing.Subscription, error) {
	for i := range m.subscriptions {
		if m.subscriptions[i].ProviderSubID == providerSubID {
			sub := m.subscriptions[i]
			return &sub, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockStore) UpsertSubscription(_ context.Context, sub *billing.Subscription) error {
	if m.upsertSubErr != nil {
		return m.upsertSubErr
	}
	for i := range m.subscriptions {
		if m.subscriptions[i].TenantID == sub.TenantID {
			sub.ID = m.subscriptions[i].ID
			m.subscriptions[i] = *sub
			return nil
		}
	}
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	m.subscriptions = append(m.subscriptions, *sub)
	return nil
}

func (m *mockStore) MarkSyncPending(_ context.Context, tenantID string, syncErr string) error {
	if m.markPendingErr != nil {
		return m.markPendingErr
	}
	m.markPendingCalls = append(m.markPendingCalls, tenantID)
	for i := range m.subscriptions {
		if m.subscriptions[i].TenantID == tenantID {
			m.subscriptions[i].SyncPending = true
			m.subscriptions[i].LastSyncError = syncErr
			return nil
		}
	}
	m.subscriptions = append(m.subscriptions, billing.Subscription{
		ID:            uuid.NewString(),
		TenantID:      tenantID,
		Status:        billing.SubPastDue,
		Tier:          billing.TierStarter,
		SyncPending:   true,
		LastSyncError: syncErr,
	})
	return nil
}

func (m *mockStore) RecordEvent(_ context.Context, eventID, eventType string) (bool, error) {
	if m.recordEventErr != nil {
		return false, m.recordEventErr
	}
	if m.events == nil {
		m.events = make(map[string]string)
	}
	if _, seen := m.events[eventID]; seen {
		return false, nil
	}
	m.events[eventID] = eventType
	return true, nil
}

func (m *mockStore) DeleteEvent(_ context.Context, eventID string) error {
	delete(m.events, eventID)
	return nil
}

func (m *mockStore) PurgeEventsBefore(_ context.Context, _ time.Time) (int64, error) {
	return 0, nil
}

func (m *mockStore) CreateRefreshToken(_ context.Context, rt *principal.RefreshToken) error {
	if m.createTokenErr != nil {
		return m.createTokenErr
	}
	m.refreshTokens = append(m.refreshTokens, *rt)
	return nil
}

func (m *mockStore) GetRefreshTokenByHash(_ context.Context, hash string) (*principal.RefreshToken, error) {
	for i := range m.refreshTokens {
		if m.refreshTokens[i].TokenHash == hash {
			rt := m.refreshTokens[i]
			return &rt, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockStore) RotateRefreshToken(_ context.Context, oldID string, newRT *principal.RefreshToken) error {
	if m.rotateTokenErr != nil {
		return m.rotateTokenErr
	}
	for i := range m.refreshTokens {
		if m.refreshTokens[i].ID == oldID {
			m.refreshTokens[i] = *newRT
			return nil
		}
	}
	return domain.ErrNotFound
}

func (m *mockStore) DeleteRefreshTokensByPrincipal(_ context.Context, principalID string) error {
	if m.deleteTokensErr != nil {
		return m.deleteTokensErr
	}
	kept := m.refreshTokens[:0]
	for i := range m.refreshTokens {
		if m.refreshTokens[i].PrincipalID != principalID {
			kept = append(kept, m.refreshTokens[i])
		}
	}
	m.refreshTokens = kept
	return nil
}

func (m *mockStore) DeleteExpiredRefreshTokens(_ context.Context, before time.Time) (int64, error) {
	var n int64
	kept := m.refreshTokens[:0]
	for i := range m.refreshTokens {
		if m.refreshTokens[i].ExpiresAt.After(before) {
			kept = append(kept, m.refreshTokens[i])
		} else {
			n++
		}
	}
	m.refreshTokens = kept
	return n, nil
}

// mockQueue records published messages.
type mockQueue struct {
	mu         sync.Mutex
	published  []publishedMsg
	publishErr error
}

type publishedMsg struct {
	subject string
	data    []byte
}

var _ messagequeue.Queue = (*mockQueue)(nil)

func (m *mockQueue) Publish(_ context.Context, subject string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.publishErr != nil {
		return m.publishErr
	}
	m.published = append(m.published, publishedMsg{subject: subject, data: data})
	return nil
}

func (m *mockQueue) Subscribe(_ context.Context, _ string, _ messagequeue.Handler) (func(), error) {
	return func() {}, nil
}

// mockNotifier records alerts.
type mockNotifier struct {
	mu     sync.Mutex
	alerts []notifier.Alert
}

var _ notifier.Notifier = (*mockNotifier)(nil)

func (m *mockNotifier) Notify(_ context.Context, alert notifier.Alert) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts = append(m.alerts, alert)
}

// mockProvider is a scriptable billing provider.
type mockProvider struct {
	createCustomerErr error
	createSubErr      error
	updateSubErr      error

	createCustomerCalls int
	createSubCalls      int
	updateSubCalls      int

	lastCreateParams billingprovider.CreateSubscriptionParams
	lastUpdateParams billingprovider.UpdateSubscriptionParams
	lastUpdateSubID  string

	remoteStatus string

	verifyEvent *billing.ProviderEvent
	verifyErr   error
}

var _ billingprovider.Provider = (*mockProvider)(nil)

func (m *mockProvider) CreateCustomer(_ context.Context, tenantID, _, _ string) (string, error) {
	m.createCustomerCalls++
	if m.createCustomerErr != nil {
		return "", m.createCustomerErr
	}
	return "cus_" + tenantID, nil
}

func (m *mockProvider) CreateSubscription(_ context.Context, params billingprovider.CreateSubscriptionParams) (*billingprovider.Subscription, error) {
	m.createSubCalls++
	if m.createSubErr != nil {
		return nil, m.createSubErr
	}
	m.lastCreateParams = params
	status := m.remoteStatus
	if status == "" {
		status = "trialing"
	}
	return &billingprovider.Subscription{
		ProviderSubID: "sub_" + params.TenantID,
		Status:        status,
		Quantity:      params.Quantity,
	}, nil
}

func (m *mockProvider) UpdateSubscription(_ context.Context, providerSubID string, params billingprovider.UpdateSubscriptionParams) (*billingprovider.Subscription, error) {
	m.updateSubCalls++
	if m.updateSubErr != nil {
		return nil, m.updateSubErr
	}
	m.lastUpdateSubID = providerSubID
	m.lastUpdateParams = params
	status := m.remoteStatus
	if status == "" {
		status = "active"
	}
	return &billingprovider.Subscription{
		ProviderSubID: providerSubID,
		Status:        status,
		Quantity:      params.Quantity,
	}, nil
}

func (m *mockProvider) VerifyWebhook(_ []byte, _ string) (*billing.ProviderEvent, error) {
	if m.verifyErr != nil {
		return nil, m.verifyErr
	}
	return m.verifyEvent, nil
}

// mockCache is a map-backed cache.Cache ignoring TTLs.
type mockCache struct {
	data map[string][]byte
}

func newMockCache() *mockCache {
	return &mockCache{data: make(map[string][]byte)}
}

func (m *mockCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *mockCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.data[key] = value
	return nil
}

func (m *mockCache) Delete(_ context.Context, key string) error {
	delete(m.data, key)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testMetrics() *otel.Metrics {
	m, err := otel.NewMetrics()
	if err != nil {
		panic(err)
	}
	return m
}
