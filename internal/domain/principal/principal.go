// Package principal defines the user identity domain model for
// authentication and tenant-scoped authorization.
package principal

import (
	"errors"
	"net/mail"
	"time"
)

// Role represents the authorization level of a principal within its tenant.
type Role string

const (
	RoleOwner   Role = "owner"
	RoleAdmin   Role = "admin"
	RoleManager Role = "manager"
	RoleMember  Role = "member"
)

// ValidRoles is the set of all valid principal roles.
var ValidRoles = map[Role]bool{
	RoleOwner:   true,
	RoleAdmin:   true,
	RoleManager: true,
	RoleMember:  true,
}

// GrantableRoles are the roles a seat grant may assign. Owner is excluded:
// exactly one owner exists per tenant, created at onboarding, and the owner
// role is immutable afterwards.
var GrantableRoles = map[Role]bool{
	RoleAdmin:   true,
	RoleManager: true,
	RoleMember:  true,
}

// Status represents the account state of a principal.
type Status string

const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
)

// Principal represents a user occupying one seat within a tenant.
type Principal struct {
	ID           string    `json:"id"`
	TenantID     string    `json:"tenant_id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"` // never serialized
	Role         Role      `json:"role"`
	Status       Status    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Active reports whether the principal may authenticate and act.
func (p *Principal) Active() bool {
	return p.Status == StatusActive
}

// CreateRequest is the input for granting a seat to a new principal.
type CreateRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"` //nolint:gosec // request field, not a hardcoded secret
	Role     Role   `json:"role"`
}

// Validate checks that the CreateRequest has all required fields.
func (r *CreateRequest) Validate() error {
	if r.Email == "" {
		return errors.New("email is required")
	}
	if _, err := mail.ParseAddress(r.Email); err != nil {
		return errors.New("invalid email format")
	}
	if r.Name == "" {
		return errors.New("name is required")
	}
	if r.Password == "" {
		return errors.New("password is required")
	}
	if len(r.Password) < 8 {
		return errors.New("password must be at least 8 characters")
	}
	if !GrantableRoles[r.Role] {
		return errors.New("invalid role: must be admin, manager, or member")
	}
	return nil
}

// UpdateRequest enumerates the updatable principal fields. Pointer fields
// distinguish "not provided" from an explicit value. Role changes to or from
// owner are rejected in the service layer.
type UpdateRequest struct {
	Name   *string `json:"name,omitempty"`
	Role   *Role   `json:"role,omitempty"`
	Status *Status `json:"status,omitempty"`
}

// LoginRequest is the input for principal authentication.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"` //nolint:gosec // request field, not a hardcoded secret
}

// Validate checks that the LoginRequest has all required fields.
func (r *LoginRequest) Validate() error {
	if r.Email == "" {
		return errors.New("email is required")
	}
	if r.Password == "" {
		return errors.New("password is required")
	}
	return nil
}

// LoginResponse is returned after successful authentication.
type LoginResponse struct {
	AccessToken string    `json:"access_token"` //nolint:gosec // response field, not a hardcoded secret
	ExpiresIn   int       `json:"expires_in"`   // seconds until access token expires
	Principal   Principal `json:"principal"`
}

// RefreshToken represents a stored, rotated refresh token.
type RefreshToken struct {
	ID          string    `json:"id"`
	PrincipalID string    `json:"principal_id"`
	TokenHash   string    `json:"-"`
	ExpiresAt   time.Time `json:"expires_at"`
	CreatedAt   time.Time `json:"created_at"`
}
