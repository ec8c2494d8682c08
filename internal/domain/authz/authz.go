// Package authz implements role-based authorization over a static permission
// table, and tenant scoping for data access.
package authz

import "github.com/teamline/teamline/internal/domain/principal"

// Resource names the protected surfaces of the system.
type Resource string

const (
	ResourceTenant   Resource = "tenant"
	ResourceMembers  Resource = "members"
	ResourceBilling  Resource = "billing"
	ResourceReports  Resource = "reports"
	ResourceSettings Resource = "settings"
)

// Action is what a principal attempts against a resource.
type Action string

const (
	ActionRead  Action = "read"
	ActionWrite Action = "write"

	// ActionAny in a permission entry grants every action on the resource.
	ActionAny Action = "*"
)

// permission is one (resource, action) grant.
type permission struct {
	resource Resource
	action   Action
}

// permissionTable maps each non-owner role to its grants. Owner is not listed:
// it holds blanket access and is special-cased in CanPerform. The table is
// package-level immutable state, loaded once.
var permissionTable = map[principal.Role][]permission{
	principal.RoleAdmin: {
		{ResourceTenant, ActionAny},
		{ResourceMembers, ActionAny},
		{ResourceBilling, ActionAny},
		{ResourceReports, ActionRead},
		{ResourceSettings, ActionAny},
	},
	principal.RoleManager: {
		{ResourceTenant, ActionRead},
		{ResourceMembers, ActionAny},
		{ResourceBilling, ActionRead},
		{ResourceReports, ActionRead},
	},
	principal.RoleMember: {
		{ResourceTenant, ActionRead},
		{ResourceMembers, ActionRead},
		{ResourceReports, ActionRead},
	},
}

// CanPerform reports whether the role may perform action on resource.
// Deterministic and side-effect free. Owner always passes. Every other
// combination passes only on an exact or wildcard-action match; unknown roles,
// resources, and actions fail closed.
func CanPerform(role principal.Role, resource Resource, action Action) bool {
	if role == principal.RoleOwner {
		return true
	}
	for _, p := range permissionTable[role] {
		if p.resource != resource {
			continue
		}
		if p.action == ActionAny || p.action == action {
			return true
		}
	}
	return false
}

// Scope is the tenant-isolation constraint applied to every read and write of
// tenant-owned data. It is not an optimization: omitting it on any query path
// is a cross-tenant leak.
type Scope struct {
	TenantID string
}

// ScopeFor returns the data-access scope for a principal. There are no
// exceptions; callers with no principal get an empty scope which matches no
// tenant rows.
func ScopeFor(p *principal.Principal) Scope {
	if p == nil {
		return Scope{}
	}
	return Scope{TenantID: p.TenantID}
}
