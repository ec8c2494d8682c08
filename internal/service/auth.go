// Package service implements the application services on top of the domain
// packages and ports.
package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/teamline/teamline/internal/config"
	"github.com/teamline/teamline/internal/domain"
	"github.com/teamline/teamline/internal/domain/principal"
	"github.com/teamline/teamline/internal/port/cache"
	"github.com/teamline/teamline/internal/port/database"
)

const jwtIssuer = "teamline"

// ErrInvalidCredentials is returned for any authentication failure at login
// so callers cannot distinguish an unknown email from a wrong password.
var ErrInvalidCredentials = errors.New("invalid credentials")

// AuthService handles authentication, JWT issuance, and principal resolution.
type AuthService struct {
	store  database.Store
	cache  cache.Cache
	cfg    *config.Auth
	secret []byte
}

// NewAuthService creates a new authentication service.
func NewAuthService(store database.Store, c cache.Cache, cfg *config.Auth) *AuthService {
	return &AuthService{
		store:  store,
		cache:  c,
		cfg:    cfg,
		secret: []byte(cfg.JWTSecret),
	}
}

// accessClaims is the access token claim set. The token carries identity
// only; role and status are re-read from the store on every request so a
// role change or suspension does not have to wait for token expiry.
type accessClaims struct {
	jwt.RegisteredClaims
	TenantID string `json:"tenant_id"`
}

// Login authenticates a principal and returns the response plus the raw
// refresh token (stored only as a hash).
func (s *AuthService) Login(ctx context.Context, req principal.LoginRequest) (*principal.LoginResponse, string, error) {
	if err := req.Validate(); err != nil {
		return nil, "", fmt.Errorf("%w: %s", domain.ErrValidation, err)
	}

	p, err := s.store.GetPrincipalByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, "", ErrInvalidCredentials
		}
		return nil, "", fmt.Errorf("get principal: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(p.PasswordHash), []byte(req.Password)); err != nil {
		return nil, "", ErrInvalidCredentials
	}

	if !p.Active() {
		return nil, "", errors.New("account suspended")
	}
	if err := s.checkTenantEnabled(ctx, p.TenantID); err != nil {
		return nil, "", err
	}

	return s.issueTokens(ctx, p)
}

// RefreshTokens validates a refresh token, atomically rotates it, and issues
// a new access token. Concurrent refreshes with the same token race on the
// rotation; the loser gets an invalid-token error.
func (s *AuthService) RefreshTokens(ctx context.Context, rawToken string) (*principal.LoginResponse, string, error) {
	rt, err := s.store.GetRefreshTokenByHash(ctx, hashSHA256(rawToken))
	if err != nil {
		return nil, "", errors.New("invalid refresh token")
	}

	if time.Now().After(rt.ExpiresAt) {
		_ = s.store.DeleteRefreshTokensByPrincipal(ctx, rt.PrincipalID)
		return nil, "", errors.New("refresh token expired")
	}

	p, err := s.store.GetPrincipal(ctx, rt.PrincipalID)
	if err != nil {
		return nil, "", errors.New("invalid refresh token")
	}
	if !p.Active() {
		return nil, "", errors.New("account suspended")
	}
	if err := s.checkTenantEnabled(ctx, p.TenantID); err != nil {
		return nil, "", err
	}

	accessToken, err := s.signJWT(p)
	if err != nil {
		return nil, "", fmt.Errorf("sign jwt: %w", err)
	}

	newRaw, err := generateRandomToken(32)
	if err != nil {
		return nil, "", fmt.Errorf("generate refresh token: %w", err)
	}
	newRT := &principal.RefreshToken{
		ID:          uuid.NewString(),
		PrincipalID: p.ID,
		TokenHash:   hashSHA256(newRaw),
		ExpiresAt:   time.Now().Add(s.cfg.RefreshTokenExpiry),
	}
	if err := s.store.RotateRefreshToken(ctx, rt.ID, newRT); err != nil {
		return nil, "", fmt.Errorf("rotate refresh token: %w", err)
	}

	resp := &principal.LoginResponse{
		AccessToken: accessToken,
		ExpiresIn:   int(s.cfg.AccessTokenExpiry.Seconds()),
		Principal:   *p,
	}
	return resp, newRaw, nil
}

// Logout deletes all refresh tokens for a principal.
func (s *AuthService) Logout(ctx context.Context, principalID string) error {
	return s.store.DeleteRefreshTokensByPrincipal(ctx, principalID)
}

// ValidateAccessToken verifies the JWT signature and expiry and returns the
// subject principal id.
func (s *AuthService) ValidateAccessToken(tokenStr string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &accessClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithIssuer(jwtIssuer), jwt.WithExpirationRequired())
	if err != nil {
		return "", err
	}
	claims, ok := token.Claims.(*accessClaims)
	if !ok || !token.Valid || claims.Subject == "" {
		return "", errors.New("invalid token")
	}
	return claims.Subject, nil
}

// ResolvePrincipal returns the current principal row, via a short-TTL cache.
// The TTL bounds how long a revoked role or a suspension can keep acting.
// Principals of disabled tenants resolve to an error.
func (s *AuthService) ResolvePrincipal(ctx context.Context, principalID string) (*principal.Principal, error) {
	key := "principal:" + principalID
	if data, ok, _ := s.cache.Get(ctx, key); ok {
		var p principal.Principal
		if err := json.Unmarshal(data, &p); err == nil {
			return &p, nil
		}
	}

	p, err := s.store.GetPrincipal(ctx, principalID)
	if err != nil {
		return nil, err
	}
	if err := s.checkTenantEnabled(ctx, p.TenantID); err != nil {
		return nil, err
	}

	if data, err := json.Marshal(p); err == nil {
		_ = s.cache.Set(ctx, key, data, s.cfg.PrincipalCacheTTL)
	}
	return p, nil
}

// InvalidatePrincipal drops the cached principal row after a role change,
// suspension, or revocation.
func (s *AuthService) InvalidatePrincipal(ctx context.Context, principalID string) {
	_ = s.cache.Delete(ctx, "principal:"+principalID)
}

// HashPassword hashes a password with the configured bcrypt cost.
func (s *AuthService) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cfg.BcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

func (s *AuthService) checkTenantEnabled(ctx context.Context, tenantID string) error {
	t, err := s.store.GetTenant(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("get tenant: %w", err)
	}
	if !t.Enabled {
		return errors.New("tenant disabled")
	}
	return nil
}

func (s *AuthService) issueTokens(ctx context.Context, p *principal.Principal) (*principal.LoginResponse, string, error) {
	accessToken, err := s.signJWT(p)
	if err != nil {
		return nil, "", fmt.Errorf("sign jwt: %w", err)
	}

	rawToken, err := generateRandomToken(32)
	if err != nil {
		return nil, "", fmt.Errorf("generate refresh token: %w", err)
	}
	rt := &principal.RefreshToken{
		ID:          uuid.NewString(),
		PrincipalID: p.ID,
		TokenHash:   hashSHA256(rawToken),
		ExpiresAt:   time.Now().Add(s.cfg.RefreshTokenExpiry),
	}
	if err := s.store.CreateRefreshToken(ctx, rt); err != nil {
		return nil, "", fmt.Errorf("store refresh token: %w", err)
	}

	resp := &principal.LoginResponse{
		AccessToken: accessToken,
		ExpiresIn:   int(s.cfg.AccessTokenExpiry.Seconds()),
		Principal:   *p,
	}
	return resp, rawToken, nil
}

func (s *AuthService) signJWT(p *principal.Principal) (string, error) {
	now := time.Now()
	claims := accessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.ID,
			Issuer:    jwtIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.AccessTokenExpiry)),
			ID:        uuid.NewString(),
		},
		TenantID: p.TenantID,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// generateRandomToken returns a URL-safe random token of n bytes entropy.
func generateRandomToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func hashSHA256(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
