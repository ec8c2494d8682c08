package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/teamline/teamline/internal/domain/principal"
)

func (s *Store) CreateRefreshToken(ctx context.Context, rt *principal.RefreshToken) error {
	rt.CreatedAt = time.Now().UTC()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO refresh_tokens (id, principal_id, token_hash, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		rt.ID, rt.PrincipalID, rt.TokenHash, rt.ExpiresAt, rt.CreatedAt)
	if err != nil {
		return fmt.Errorf("create refresh token: %w", err)
	}
	return nil
}

func (s *Store) GetRefreshTokenByHash(ctx context.Context, tokenHash string) (*principal.RefreshToken, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, principal_id, token_hash, expires_at, created_at
		FROM refresh_tokens WHERE token_hash = $1`, tokenHash)

	var rt principal.RefreshToken
	err := row.Scan(&rt.ID, &rt.PrincipalID, &rt.TokenHash, &rt.ExpiresAt, &rt.CreatedAt)
	if err != nil {
		return nil, notFoundWrap(err, "get refresh token")
	}
	return &rt, nil
}

// RotateRefreshToken atomically locks the old token, deletes it, and creates
// the replacement in one transaction. The SELECT ... FOR UPDATE serializes
// concurrent refreshes with the same token so only one rotation wins.
func (s *Store) RotateRefreshToken(ctx context.Context, oldID string, newRT *principal.RefreshToken) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var lockedID string
	err = tx.QueryRow(ctx, `
		SELECT id FROM refresh_tokens WHERE id = $1 FOR UPDATE`, oldID,
	).Scan(&lockedID)
	if err != nil {
		return notFoundWrap(err, "lock refresh token")
	}

	if _, err := tx.Exec(ctx, `DELETE FROM refresh_tokens WHERE id = $1`, lockedID); err != nil {
		return fmt.Errorf("delete old refresh token: %w", err)
	}

	newRT.CreatedAt = time.Now().UTC()
	_, err = tx.Exec(ctx, `
		INSERT INTO refresh_tokens (id, principal_id, token_hash, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		newRT.ID, newRT.PrincipalID, newRT.TokenHash, newRT.ExpiresAt, newRT.CreatedAt)
	if err != nil {
		return fmt.Errorf("create new refresh token: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit rotation: %w", err)
	}
	return nil
}

func (s *Store) DeleteRefreshTokensByPrincipal(ctx context.Context, principalID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM refresh_tokens WHERE principal_id = $1`, principalID)
	if err != nil {
		return fmt.Errorf("delete refresh tokens by principal: %w", err)
	}
	return nil
}

func (s *Store) DeleteExpiredRefreshTokens(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM refresh_tokens WHERE expires_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("delete expired refresh tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}
