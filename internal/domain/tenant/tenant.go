// Package tenant defines the tenant domain model for multi-tenancy.
package tenant

import "time"

// Tenant represents an isolated customer organization. SeatCount is the
// authoritative number of occupied seats and is only ever mutated through the
// seat ledger's transactional store operations.
type Tenant struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	Slug              string    `json:"slug"`
	SeatCount         int       `json:"seat_count"`
	MaxSeats          int       `json:"max_seats"`
	BillingCustomerID string    `json:"billing_customer_id,omitempty"` // empty until first billing interaction
	Enabled           bool      `json:"enabled"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// HasBillingCustomer reports whether the tenant has been registered with the
// billing provider.
func (t *Tenant) HasBillingCustomer() bool {
	return t.BillingCustomerID != ""
}

// CreateRequest holds the fields required to onboard a new tenant.
// OwnerEmail/OwnerName/OwnerPassword create the initial owner principal, which
// occupies the first seat.
type CreateRequest struct {
	Name          string `json:"name"`
	Slug          string `json:"slug"`
	MaxSeats      int    `json:"max_seats"`
	OwnerEmail    string `json:"owner_email"`
	OwnerName     string `json:"owner_name"`
	OwnerPassword string `json:"owner_password"`
}

// UpdateRequest enumerates every updatable tenant field. Pointer fields
// distinguish "not provided" from an explicit value.
type UpdateRequest struct {
	Name     *string `json:"name,omitempty"`
	MaxSeats *int    `json:"max_seats,omitempty"`
	Enabled  *bool   `json:"enabled,omitempty"`
}
