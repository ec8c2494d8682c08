package authz

import (
	"testing"

	"github.com/teamline/teamline/internal/domain/principal"
)

func TestCanPerform(t *testing.T) {
	tests := []struct {
		name     string
		role     principal.Role
		resource Resource
		action   Action
		want     bool
	}{
		{"owner blanket access", principal.RoleOwner, ResourceBilling, ActionWrite, true},
		{"owner unknown resource", principal.RoleOwner, Resource("anything"), ActionWrite, true},

		{"admin writes members", principal.RoleAdmin, ResourceMembers, ActionWrite, true},
		{"admin writes billing", principal.RoleAdmin, ResourceBilling, ActionWrite, true},
		{"admin reads reports", principal.RoleAdmin, ResourceReports, ActionRead, true},
		{"admin writes reports denied", principal.RoleAdmin, ResourceReports, ActionWrite, false},

		{"manager writes members", principal.RoleManager, ResourceMembers, ActionWrite, true},
		{"manager reads billing", principal.RoleManager, ResourceBilling, ActionRead, true},
		{"manager writes billing denied", principal.RoleManager, ResourceBilling, ActionWrite, false},
		{"manager writes tenant denied", principal.RoleManager, ResourceTenant, ActionWrite, false},
		{"manager settings denied", principal.RoleManager, ResourceSettings, ActionRead, false},

		{"member reads tenant", principal.RoleMember, ResourceTenant, ActionRead, true},
		{"member reads members", principal.RoleMember, ResourceMembers, ActionRead, true},
		{"member writes members denied", principal.RoleMember, ResourceMembers, ActionWrite, false},
		{"member billing denied", principal.RoleMember, ResourceBilling, ActionRead, false},

		{"unknown role fails closed", principal.Role("superuser"), ResourceTenant, ActionRead, false},
		{"unknown resource fails closed", principal.RoleAdmin, Resource("secrets"), ActionRead, false},
		{"unknown action fails closed", principal.RoleMember, ResourceTenant, Action("delete"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanPerform(tt.role, tt.resource, tt.action); got != tt.want {
				t.Errorf("CanPerform(%q, %q, %q) = %v, want %v", tt.role, tt.resource, tt.action, got, tt.want)
			}
		})
	}
}

func TestScopeFor(t *testing.T) {
	p := &principal.Principal{ID: "p1", TenantID: "t1"}
	if got := ScopeFor(p); got.TenantID != "t1" {
		t.Errorf("TenantID = %q, want t1", got.TenantID)
	}
	if got := ScopeFor(nil); got.TenantID != "" {
		t.Errorf("nil principal scope = %q, want empty", got.TenantID)
	}
}
