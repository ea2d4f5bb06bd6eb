package tenants

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Tier represents subscription plan tiers
type Tier string

const (
	TierFree       Tier = "free"
	TierPro        Tier = "pro"
	TierEnterprise Tier = "enterprise"
)

// Status represents tenant lifecycle status
type Status string

const (
	StatusActive    Status = "active"
	StatusInactive  Status = "inactive"
	StatusSuspended Status = "suspended"
)

// Tenant is an isolated customer namespace. This layer reads tenants;
// provisioning and lifecycle changes happen elsewhere.
type Tenant struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Tier      Tier      `json:"tier"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Active reports whether requests on behalf of this tenant should be
// admitted at all.
func (t *Tenant) Active() bool {
	return t.Status == StatusActive
}

// Quota is the per-tenant limit configuration. A zero limit means
// the dimension is unlimited.
type Quota struct {
	TenantID         uuid.UUID `json:"tenant_id"`
	DailyAPICalls    int64     `json:"daily_api_calls"`
	MonthlyTokens    int64     `json:"monthly_tokens"`
	StorageGB        int64     `json:"storage_gb"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// StorageBytes converts the configured gigabyte limit for comparison
// against tracked byte usage.
func (q *Quota) StorageBytes() int64 {
	return q.StorageGB * 1024 * 1024 * 1024
}

// ErrTenantNotFound is returned by stores when no tenant row exists.
// Resolvers deliberately collapse it into the same client-facing
// denial as a membership failure.
var ErrTenantNotFound = errors.New("tenant not found")

// Store loads tenants and membership facts.
type Store interface {
	// GetTenant returns the tenant or ErrTenantNotFound.
	GetTenant(ctx context.Context, id uuid.UUID) (*Tenant, error)

	// HasMember reports whether the user has a membership record for
	// the tenant.
	HasMember(ctx context.Context, tenantID, userID uuid.UUID) (bool, error)

	// GetQuota returns the tenant's quota configuration.
	GetQuota(ctx context.Context, tenantID uuid.UUID) (*Quota, error)
}
