package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/teamline/teamline/internal/adapter/otel"
	"github.com/teamline/teamline/internal/domain"
	"github.com/teamline/teamline/internal/domain/principal"
	"github.com/teamline/teamline/internal/port/database"
	"github.com/teamline/teamline/internal/port/messagequeue"
	"github.com/teamline/teamline/internal/port/notifier"
)

// SeatService is the seat ledger: granting and revoking membership, with the
// seat count mutation and the principal row change committed in one
// transaction by the store. Every committed change requests a billing sync.
type SeatService struct {
	store   database.Store
	queue   messagequeue.Queue
	notify  notifier.Notifier
	auth    *AuthService
	metrics *otel.Metrics
	logger  *slog.Logger
}

// NewSeatService creates a new SeatService.
func NewSeatService(store database.Store, queue messagequeue.Queue, notify notifier.Notifier, auth *AuthService, metrics *otel.Metrics, logger *slog.Logger) *SeatService {
	return &SeatService{store: store, queue: queue, notify: notify, auth: auth, metrics: metrics, logger: logger}
}

// Grant adds a member to the tenant, occupying one seat. At the seat limit
// the grant fails with domain.ErrSeatLimit and an operator alert; nothing is
// written. Owner seats cannot be granted here.
func (s *SeatService) Grant(ctx context.Context, tenantID string, req principal.CreateRequest) (*principal.Principal, int, error) {
	if err := req.Validate(); err != nil {
		return nil, 0, fmt.Errorf("%w: %s", domain.ErrValidation, err)
	}

	hash, err := s.auth.HashPassword(req.Password)
	if err != nil {
		return nil, 0, err
	}

	p := &principal.Principal{
		Email:        req.Email,
		Name:         req.Name,
		PasswordHash: hash,
		Role:         req.Role,
		Status:       principal.StatusActive,
	}
	seatCount, err := s.store.GrantSeat(ctx, tenantID, p)
	if err != nil {
		if errors.Is(err, domain.ErrSeatLimit) {
			s.metrics.SeatLimitRejected.Add(ctx, 1)
			s.notify.Notify(ctx, notifier.Alert{
				Kind:     notifier.KindSeatLimitReached,
				TenantID: tenantID,
				Detail:   "seat grant rejected at limit",
			})
		}
		return nil, 0, err
	}

	s.metrics.SeatsGranted.Add(ctx, 1)
	s.requestSync(ctx, tenantID, "seat granted")

	s.logger.Info("seat granted", "tenant_id", tenantID, "principal_id", p.ID, "role", p.Role, "seat_count", seatCount)
	return p, seatCount, nil
}

// Revoke removes a member and frees its seat. The owner's seat cannot be
// revoked; ownership ends only with tenant teardown.
func (s *SeatService) Revoke(ctx context.Context, tenantID, principalID string) (int, error) {
	p, err := s.store.GetPrincipal(ctx, principalID)
	if err != nil {
		return 0, err
	}
	if p.TenantID != tenantID {
		return 0, fmt.Errorf("revoke seat: principal %s: %w", principalID, domain.ErrNotFound)
	}
	if p.Role == principal.RoleOwner {
		return 0, fmt.Errorf("%w: owner seat cannot be revoked", domain.ErrValidation)
	}

	seatCount, err := s.store.RevokeSeat(ctx, tenantID, principalID)
	if err != nil {
		return 0, err
	}

	// Refresh tokens cascade with the principal row; the cached principal
	// must be dropped so in-flight tokens stop resolving within the TTL.
	s.auth.InvalidatePrincipal(ctx, principalID)

	s.metrics.SeatsRevoked.Add(ctx, 1)
	s.requestSync(ctx, tenantID, "seat revoked")

	s.logger.Info("seat revoked", "tenant_id", tenantID, "principal_id", principalID, "seat_count", seatCount)
	return seatCount, nil
}

// UpdateMember applies name, role, or status changes to a member. Role
// changes to or from owner are rejected.
func (s *SeatService) UpdateMember(ctx context.Context, tenantID, principalID string, req principal.UpdateRequest) (*principal.Principal, error) {
	p, err := s.store.GetPrincipal(ctx, principalID)
	if err != nil {
		return nil, err
	}
	if p.TenantID != tenantID {
		return nil, fmt.Errorf("update member: principal %s: %w", principalID, domain.ErrNotFound)
	}

	if req.Name != nil {
		if *req.Name == "" {
			return nil, fmt.Errorf("%w: name is required", domain.ErrValidation)
		}
		p.Name = *req.Name
	}
	if req.Role != nil && *req.Role != p.Role {
		if p.Role == principal.RoleOwner || !principal.GrantableRoles[*req.Role] {
			return nil, fmt.Errorf("%w: role change to or from owner is not allowed", domain.ErrValidation)
		}
		p.Role = *req.Role
	}
	if req.Status != nil {
		if *req.Status != principal.StatusActive && *req.Status != principal.StatusSuspended {
			return nil, fmt.Errorf("%w: invalid status", domain.ErrValidation)
		}
		if p.Role == principal.RoleOwner && *req.Status == principal.StatusSuspended {
			return nil, fmt.Errorf("%w: owner cannot be suspended", domain.ErrValidation)
		}
		p.Status = *req.Status
	}

	if err := s.store.UpdatePrincipal(ctx, p); err != nil {
		return nil, err
	}
	s.auth.InvalidatePrincipal(ctx, principalID)
	return p, nil
}

// ListMembers returns the tenant's principals.
func (s *SeatService) ListMembers(ctx context.Context, tenantID string) ([]principal.Principal, error) {
	return s.store.ListPrincipals(ctx, tenantID)
}

// requestSync enqueues a billing reconciliation for the tenant. Fire and
// forget: a publish failure is logged and the subscription row is flagged
// pending so the periodic repair sweep picks the tenant up.
func (s *SeatService) requestSync(ctx context.Context, tenantID, reason string) {
	data, err := json.Marshal(messagequeue.SyncRequest{TenantID: tenantID, Reason: reason})
	if err != nil {
		s.logger.Error("marshal sync request", "tenant_id", tenantID, "error", err)
		return
	}
	if err := s.queue.Publish(ctx, messagequeue.SubjectSyncTenant, data); err != nil {
		s.logger.Error("enqueue billing sync", "tenant_id", tenantID, "error", err)
		if markErr := s.store.MarkSyncPending(ctx, tenantID, "enqueue failed: "+err.Error()); markErr != nil {
			s.logger.Error("mark sync pending", "tenant_id", tenantID, "error", markErr)
		}
	}
}
