package rbac

import (
	"fmt"
	"sort"
	"strings"
)

// Role is a named grant bundle assigned to a user within a tenant.
type Role string

const (
	// RolePlatformOwner is the operator super-role. It is not subject
	// to the policy table; every permission check passes.
	RolePlatformOwner Role = "platform_owner"

	RoleTenantOwner       Role = "tenant_owner"
	RoleAgentUser         Role = "agent_user"
	RoleAuditor           Role = "auditor"
	RoleComplianceOfficer Role = "compliance_officer"
)

var knownRoles = map[Role]struct{}{
	RolePlatformOwner:     {},
	RoleTenantOwner:       {},
	RoleAgentUser:         {},
	RoleAuditor:           {},
	RoleComplianceOfficer: {},
}

// ParseRole validates a stored role string. Unknown roles are
// rejected rather than silently ignored so a bad migration surfaces
// as an error, not as missing permissions.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := knownRoles[r]; !ok {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// Action is what a principal wants to do to a resource type.
type Action string

const (
	ActionRead   Action = "read"
	ActionWrite  Action = "write"
	ActionDelete Action = "delete"
	ActionAdmin  Action = "admin"
)

// Permission pairs a resource type with an action.
type Permission struct {
	Resource string
	Action   Action
}

func (p Permission) String() string {
	return p.Resource + ":" + string(p.Action)
}

// PermissionSet supports constant-time membership checks. The
// zero value grants nothing.
type PermissionSet map[Permission]struct{}

// Allows reports whether the set covers resource/action, honoring
// the wildcard resource and admin-implies-all semantics baked in at
// derivation time.
func (s PermissionSet) Allows(resource string, action Action) bool {
	if _, ok := s[Permission{Resource: resource, Action: action}]; ok {
		return true
	}
	_, ok := s[Permission{Resource: "*", Action: action}]
	return ok
}

// Missing returns the required pairs the set does not cover, sorted
// for stable log output.
func (s PermissionSet) Missing(required []Permission) []Permission {
	var missing []Permission
	for _, p := range required {
		if !s.Allows(p.Resource, p.Action) {
			missing = append(missing, p)
		}
	}
	sort.Slice(missing, func(i, j int) bool {
		return missing[i].String() < missing[j].String()
	})
	return missing
}
