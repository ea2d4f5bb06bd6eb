package authn

import (
	"context"

	"github.com/google/uuid"

	"github.com/tessergrc/authcore/pkg/rbac"
)

// User is an account row keyed by the identity provider's subject.
// One user may belong to several tenants with different roles in each.
type User struct {
	ID       uuid.UUID
	Subject  string
	Email    string
	Name     string
	IsActive bool

	// HomeTenantID is the user's primary tenant, recorded in audit
	// events when the user attempts access to some other tenant.
	HomeTenantID *uuid.UUID
}

// UserStore loads accounts and per-tenant role assignments.
type UserStore interface {
	// GetUserBySubject returns the user mapped to the identity
	// provider subject, or ErrUserNotFound.
	GetUserBySubject(ctx context.Context, subject string) (*User, error)

	// GetUserRoles returns the roles granted to the user within the
	// given tenant. An empty slice means membership without grants.
	GetUserRoles(ctx context.Context, userID, tenantID uuid.UUID) ([]rbac.Role, error)
}

// Principal is the fully resolved request identity: verified claims
// joined with the account record and the permissions derived from its
// roles in the target tenant. Built once per request and treated as
// read-only afterwards.
type Principal struct {
	UserID      uuid.UUID
	Subject     string
	Email       string
	Name        string
	TenantID    uuid.UUID
	Roles       []rbac.Role
	Permissions rbac.PermissionSet
}

// HasRole reports whether the principal holds the given role in the
// resolved tenant.
func (p *Principal) HasRole(role rbac.Role) bool {
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}
