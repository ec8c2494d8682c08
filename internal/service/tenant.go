package service

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/teamline/teamline/internal/domain"
	"github.com/teamline/teamline/internal/domain/principal"
	"github.com/teamline/teamline/internal/domain/tenant"
	"github.com/teamline/teamline/internal/port/database"
)

// TenantService manages tenant lifecycle. Seat membership is handled by
// SeatService; onboarding creates the owner's seat through the same ledger
// path so the first seat is counted like every later one.
type TenantService struct {
	store  database.Store
	auth   *AuthService
	seats  *SeatService
	logger *slog.Logger
}

// NewTenantService creates a new TenantService.
func NewTenantService(store database.Store, auth *AuthService, seats *SeatService, logger *slog.Logger) *TenantService {
	return &TenantService{store: store, auth: auth, seats: seats, logger: logger}
}

var slugRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{1,62}[a-z0-9]$`)

// Onboard creates a tenant together with its owner principal. The owner
// occupies the first seat via the seat ledger, then a billing sync is
// requested so the provider sees the new tenant.
func (s *TenantService) Onboard(ctx context.Context, req tenant.CreateRequest) (*tenant.Tenant, *principal.Principal, error) {
	if err := validateOnboard(req); err != nil {
		return nil, nil, fmt.Errorf("%w: %s", domain.ErrValidation, err)
	}

	hash, err := s.auth.HashPassword(req.OwnerPassword)
	if err != nil {
		return nil, nil, err
	}

	t := &tenant.Tenant{
		Name:     req.Name,
		Slug:     req.Slug,
		MaxSeats: req.MaxSeats,
		Enabled:  true,
	}
	if err := s.store.CreateTenant(ctx, t); err != nil {
		return nil, nil, err
	}

	owner := &principal.Principal{
		Email:        req.OwnerEmail,
		Name:         req.OwnerName,
		PasswordHash: hash,
		Role:         principal.RoleOwner,
		Status:       principal.StatusActive,
	}
	seatCount, err := s.store.GrantSeat(ctx, t.ID, owner)
	if err != nil {
		// Roll back the tenant row; a tenant without an owner is unusable.
		if delErr := s.store.DeleteTenant(ctx, t.ID); delErr != nil {
			s.logger.Error("delete tenant after failed owner grant", "tenant_id", t.ID, "error", delErr)
		}
		return nil, nil, fmt.Errorf("create owner: %w", err)
	}
	t.SeatCount = seatCount

	s.seats.requestSync(ctx, t.ID, "tenant onboarded")

	s.logger.Info("tenant onboarded", "tenant_id", t.ID, "slug", t.Slug, "owner_id", owner.ID)
	return t, owner, nil
}

// Get returns a tenant by ID.
func (s *TenantService) Get(ctx context.Context, id string) (*tenant.Tenant, error) {
	return s.store.GetTenant(ctx, id)
}

// List returns all tenants.
func (s *TenantService) List(ctx context.Context) ([]tenant.Tenant, error) {
	return s.store.ListTenants(ctx)
}

// Update applies the provided fields. Shrinking max_seats below the occupied
// seat count is rejected by the store; disabling a tenant locks its
// principals out at the next cache refresh.
func (s *TenantService) Update(ctx context.Context, id string, req tenant.UpdateRequest) (*tenant.Tenant, error) {
	t, err := s.store.GetTenant(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Name != nil {
		if *req.Name == "" {
			return nil, fmt.Errorf("%w: tenant name is required", domain.ErrValidation)
		}
		t.Name = *req.Name
	}
	if req.MaxSeats != nil {
		if *req.MaxSeats < 1 {
			return nil, fmt.Errorf("%w: max_seats must be at least 1", domain.ErrValidation)
		}
		t.MaxSeats = *req.MaxSeats
	}
	if req.Enabled != nil {
		t.Enabled = *req.Enabled
	}
	if err := s.store.UpdateTenant(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// Teardown removes a tenant and everything owned by it. Principals,
// subscriptions, and refresh tokens cascade in the database. The remote
// subscription is left to the provider's dunning flow; the provider customer
// keeps the tenant id in metadata for manual cleanup.
func (s *TenantService) Teardown(ctx context.Context, id string) error {
	if err := s.store.DeleteTenant(ctx, id); err != nil {
		return err
	}
	s.logger.Info("tenant removed", "tenant_id", id)
	return nil
}

func validateOnboard(req tenant.CreateRequest) error {
	if req.Name == "" {
		return fmt.Errorf("tenant name is required")
	}
	if !slugRegex.MatchString(req.Slug) {
		return fmt.Errorf("invalid slug %q: must be 3-64 lowercase alphanumeric characters or hyphens", req.Slug)
	}
	if req.MaxSeats < 1 {
		return fmt.Errorf("max_seats must be at least 1")
	}
	owner := principal.CreateRequest{
		Email:    req.OwnerEmail,
		Name:     req.OwnerName,
		Password: req.OwnerPassword,
		Role:     principal.RoleMember, // role field checked separately; owner is implied
	}
	if err := owner.Validate(); err != nil {
		return fmt.Errorf("owner: %s", err)
	}
	return nil
}
