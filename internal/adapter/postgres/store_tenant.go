package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/teamline/teamline/internal/domain"
	"github.com/teamline/teamline/internal/domain/principal"
	"github.com/teamline/teamline/internal/domain/tenant"
)

// --- Tenant CRUD ---

func (s *Store) CreateTenant(ctx context.Context, t *tenant.Tenant) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO tenants (id, name, slug, seat_count, max_seats, enabled)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`,
		t.ID, t.Name, t.Slug, t.SeatCount, t.MaxSeats, t.Enabled,
	).Scan(&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return conflictWrap(err, "create tenant %s", t.Slug)
	}
	return nil
}

func (s *Store) GetTenant(ctx context.Context, id string) (*tenant.Tenant, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, name, slug, seat_count, max_seats, COALESCE(billing_customer_id, ''), enabled, created_at, updated_at
		FROM tenants WHERE id = $1`, id)
	t, err := scanTenant(row)
	if err != nil {
		return nil, notFoundWrap(err, "get tenant %s", id)
	}
	return t, nil
}

func (s *Store) GetTenantByCustomerRef(ctx context.Context, customerRef string) (*tenant.Tenant, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, name, slug, seat_count, max_seats, COALESCE(billing_customer_id, ''), enabled, created_at, updated_at
		FROM tenants WHERE billing_customer_id = $1`, customerRef)
	t, err := scanTenant(row)
	if err != nil {
		return nil, notFoundWrap(err, "get tenant by customer ref %s", customerRef)
	}
	return t, nil
}

func (s *Store) ListTenants(ctx context.Context) ([]tenant.Tenant, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, slug, seat_count, max_seats, COALESCE(billing_customer_id, ''), enabled, created_at, updated_at
		FROM tenants ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	defer rows.Close()

	var tenants []tenant.Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, fmt.Errorf("scan tenant: %w", err)
		}
		tenants = append(tenants, *t)
	}
	return tenants, rows.Err()
}

func (s *Store) UpdateTenant(ctx context.Context, t *tenant.Tenant) error {
	// max_seats may not drop below the current seat count; revocation is the
	// only way to free seats.
	tag, err := s.pool.Exec(ctx, `
		UPDATE tenants SET name = $2, max_seats = $3, enabled = $4, updated_at = now()
		WHERE id = $1 AND $3 >= seat_count`,
		t.ID, t.Name, t.MaxSeats, t.Enabled)
	if err != nil {
		return fmt.Errorf("update tenant %s: %w", t.ID, err)
	}
	if tag.RowsAffected() == 0 {
		if _, getErr := s.GetTenant(ctx, t.ID); getErr != nil {
			return fmt.Errorf("update tenant %s: %w", t.ID, domain.ErrNotFound)
		}
		return fmt.Errorf("update tenant %s: max_seats below occupied seats: %w", t.ID, domain.ErrValidation)
	}
	return nil
}

func (s *Store) DeleteTenant(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM tenants WHERE id = $1`, id)
	return execExpectOne(tag, err, "delete tenant %s", id)
}

// SetBillingCustomerRef records the provider customer reference the first time
// billing is set up for a tenant. Re-setting the same ref is a no-op so a
// retried customer create converges; a different ref is a conflict.
func (s *Store) SetBillingCustomerRef(ctx context.Context, tenantID, customerRef string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE tenants SET billing_customer_id = $2, updated_at = now()
		WHERE id = $1 AND (billing_customer_id IS NULL OR billing_customer_id = $2)`,
		tenantID, customerRef)
	if err != nil {
		return fmt.Errorf("set billing customer ref: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, getErr := s.GetTenant(ctx, tenantID); getErr != nil {
			return fmt.Errorf("set billing customer ref: %w", domain.ErrNotFound)
		}
		return fmt.Errorf("set billing customer ref: tenant %s already bound to another customer: %w", tenantID, domain.ErrConflict)
	}
	return nil
}

// --- Seat ledger ---

// GrantSeat increments the tenant's seat count and inserts the principal in a
// single transaction. The guarded UPDATE carries the limit check, so two
// concurrent grants for the last seat serialize on the tenant row and exactly
// one succeeds.
func (s *Store) GrantSeat(ctx context.Context, tenantID string, p *principal.Principal) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var seatCount int
	err = tx.QueryRow(ctx, `
		UPDATE tenants SET seat_count = seat_count + 1, updated_at = now()
		WHERE id = $1 AND enabled AND seat_count < max_seats
		RETURNING seat_count`, tenantID,
	).Scan(&seatCount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, s.classifySeatDenial(ctx, tenantID)
		}
		return 0, fmt.Errorf("increment seat count: %w", err)
	}

	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.TenantID = tenantID
	err = tx.QueryRow(ctx, `
		INSERT INTO principals (id, tenant_id, email, name, password_hash, role, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`,
		p.ID, p.TenantID, p.Email, p.Name, p.PasswordHash, p.Role, p.Status,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return 0, conflictWrap(err, "insert principal %s", p.Email)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit grant: %w", err)
	}
	return seatCount, nil
}

// classifySeatDenial distinguishes why the guarded seat increment matched no
// row: missing tenant, disabled tenant, or a full ledger.
func (s *Store) classifySeatDenial(ctx context.Context, tenantID string) error {
	t, err := s.GetTenant(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("grant seat: %w", domain.ErrNotFound)
	}
	if !t.Enabled {
		return fmt.Errorf("grant seat: tenant %s disabled: %w", tenantID, domain.ErrValidation)
	}
	return fmt.Errorf("grant seat: tenant %s at %d/%d seats: %w", tenantID, t.SeatCount, t.MaxSeats, domain.ErrSeatLimit)
}

// RevokeSeat deletes the principal and decrements the seat count in one
// transaction. The decrement is floored at zero so a drifted counter can never
// go negative.
func (s *Store) RevokeSeat(ctx context.Context, tenantID, principalID string) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		DELETE FROM principals WHERE id = $1 AND tenant_id = $2`,
		principalID, tenantID)
	if err != nil {
		return 0, fmt.Errorf("delete principal %s: %w", principalID, err)
	}
	if tag.RowsAffected() == 0 {
		return 0, fmt.Errorf("revoke seat: principal %s: %w", principalID, domain.ErrNotFound)
	}

	var seatCount int
	err = tx.QueryRow(ctx, `
		UPDATE tenants SET seat_count = GREATEST(seat_count - 1, 0), updated_at = now()
		WHERE id = $1
		RETURNING seat_count`, tenantID,
	).Scan(&seatCount)
	if err != nil {
		return 0, fmt.Errorf("decrement seat count: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit revoke: %w", err)
	}
	return seatCount, nil
}

func scanTenant(row pgx.Row) (*tenant.Tenant, error) {
	var t tenant.Tenant
	err := row.Scan(&t.ID, &t.Name, &t.Slug, &t.SeatCount, &t.MaxSeats, &t.BillingCustomerID, &t.Enabled, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
