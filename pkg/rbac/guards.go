package rbac

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// DenialError is returned when a guard rejects a request. The Reason
// is machine-readable for audit payloads; the message is safe to show
// to clients.
type DenialError struct {
	Guard   string
	Reason  string
	Details map[string]interface{}
}

func (e *DenialError) Error() string {
	return fmt.Sprintf("%s guard: %s", e.Guard, e.Reason)
}

// Subject is the slice of a resolved principal that guards need.
// Defined here so this package does not depend on the authentication
// layer.
type Subject struct {
	UserID      uuid.UUID
	TenantID    uuid.UUID
	Roles       []Role
	Permissions PermissionSet
}

func (s *Subject) hasRole(role Role) bool {
	for _, r := range s.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// CheckRoles passes when the subject holds at least one of the
// required roles. The super-role always passes.
func CheckRoles(s *Subject, required ...Role) error {
	if s.hasRole(RolePlatformOwner) {
		return nil
	}
	for _, r := range required {
		if s.hasRole(r) {
			return nil
		}
	}
	requiredNames := make([]string, len(required))
	for i, r := range required {
		requiredNames[i] = string(r)
	}
	heldNames := make([]string, len(s.Roles))
	for i, r := range s.Roles {
		heldNames[i] = string(r)
	}
	return &DenialError{
		Guard:  "role",
		Reason: "none of the required roles held",
		Details: map[string]interface{}{
			"required_roles": strings.Join(requiredNames, ","),
			"held_roles":     strings.Join(heldNames, ","),
		},
	}
}

// CheckPermissions passes only when the subject's set covers every
// required pair. The denial names exactly which pairs are missing so
// operators can trace a 403 back to the policy table.
func CheckPermissions(s *Subject, required ...Permission) error {
	if s.hasRole(RolePlatformOwner) {
		return nil
	}
	missing := s.Permissions.Missing(required)
	if len(missing) == 0 {
		return nil
	}
	names := make([]string, len(missing))
	for i, p := range missing {
		names[i] = p.String()
	}
	return &DenialError{
		Guard:  "permission",
		Reason: "missing required permissions",
		Details: map[string]interface{}{
			"missing_permissions": strings.Join(names, ","),
		},
	}
}

// OwnershipChecker answers record-level access questions against the
// backing store. Implementations are per resource type.
type OwnershipChecker interface {
	// BelongsToTenant reports whether the resource is scoped to the
	// tenant.
	BelongsToTenant(ctx context.Context, resourceType string, resourceID, tenantID uuid.UUID) (bool, error)

	// OwnedByUser reports whether the resource was created by or is
	// assigned to the user.
	OwnedByUser(ctx context.Context, resourceType string, resourceID, userID uuid.UUID) (bool, error)
}

// CheckOwnership applies the three-tier record access rule: the
// super-role always passes, tenant owners pass when the record is
// scoped to their tenant, and everyone else passes only when the
// store says they own the record.
func CheckOwnership(ctx context.Context, s *Subject, checker OwnershipChecker, resourceType string, resourceID uuid.UUID) error {
	if s.hasRole(RolePlatformOwner) {
		return nil
	}

	deny := &DenialError{
		Guard:  "ownership",
		Reason: "resource access denied",
		Details: map[string]interface{}{
			"resource_type": resourceType,
			"resource_id":   resourceID.String(),
		},
	}

	if s.hasRole(RoleTenantOwner) {
		ok, err := checker.BelongsToTenant(ctx, resourceType, resourceID, s.TenantID)
		if err != nil {
			return fmt.Errorf("ownership check for %s %s: %w", resourceType, resourceID, err)
		}
		if ok {
			return nil
		}
		return deny
	}

	ok, err := checker.OwnedByUser(ctx, resourceType, resourceID, s.UserID)
	if err != nil {
		return fmt.Errorf("ownership check for %s %s: %w", resourceType, resourceID, err)
	}
	if !ok {
		return deny
	}
	return nil
}
