package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/teamline/teamline/internal/domain/principal"
)

const principalColumns = `id, tenant_id, email, name, password_hash, role, status, created_at, updated_at`

// GetPrincipal fetches a principal by id. The tenant scope from the context is
// applied when present; token validation runs before a scope exists and passes
// an unscoped context.
func (s *Store) GetPrincipal(ctx context.Context, id string) (*principal.Principal, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+principalColumns+`
		FROM principals WHERE id = $1 AND ($2 = '' OR tenant_id = $2::uuid)`,
		id, tenantFromCtx(ctx))
	p, err := scanPrincipal(row)
	if err != nil {
		return nil, notFoundWrap(err, "get principal %s", id)
	}
	return p, nil
}

// GetPrincipalByEmail is unscoped: email is unique across tenants and login
// happens before any tenant scope is established.
func (s *Store) GetPrincipalByEmail(ctx context.Context, email string) (*principal.Principal, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+principalColumns+`
		FROM principals WHERE lower(email) = lower($1)`, email)
	p, err := scanPrincipal(row)
	if err != nil {
		return nil, notFoundWrap(err, "get principal by email")
	}
	return p, nil
}

func (s *Store) ListPrincipals(ctx context.Context, tenantID string) ([]principal.Principal, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+principalColumns+`
		FROM principals
		WHERE tenant_id = $1 AND ($2 = '' OR tenant_id = $2::uuid)
		ORDER BY created_at ASC`,
		tenantID, tenantFromCtx(ctx))
	if err != nil {
		return nil, fmt.Errorf("list principals: %w", err)
	}
	defer rows.Close()

	var principals []principal.Principal
	for rows.Next() {
		p, err := scanPrincipal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan principal: %w", err)
		}
		principals = append(principals, *p)
	}
	return principals, rows.Err()
}

func (s *Store) UpdatePrincipal(ctx context.Context, p *principal.Principal) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE principals SET name = $2, role = $3, status = $4, password_hash = $5, updated_at = now()
		WHERE id = $1 AND tenant_id = $6 AND ($7 = '' OR tenant_id = $7::uuid)`,
		p.ID, p.Name, p.Role, p.Status, p.PasswordHash, p.TenantID, tenantFromCtx(ctx))
	return execExpectOne(tag, err, "update principal %s", p.ID)
}

func scanPrincipal(row pgx.Row) (*principal.Principal, error) {
	var p principal.Principal
	err := row.Scan(&p.ID, &p.TenantID, &p.Email, &p.Name, &p.PasswordHash, &p.Role, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}
