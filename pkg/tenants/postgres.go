package tenants

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("authcore/tenants")

// PostgresStore implements Store against the platform database.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a Postgres-backed tenant store
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// GetTenant loads one tenant row.
func (s *PostgresStore) GetTenant(ctx context.Context, id uuid.UUID) (*Tenant, error) {
	ctx, span := tracer.Start(ctx, "TenantStore.GetTenant",
		trace.WithAttributes(attribute.String("tenant.id", id.String())),
	)
	defer span.End()

	query := `
	SELECT id, name, tier, status, created_at, updated_at
	FROM tenants
	WHERE id = $1`

	var t Tenant
	var tier, status string
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&t.ID, &t.Name, &tier, &status, &t.CreatedAt, &t.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTenantNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "query failed")
		return nil, fmt.Errorf("loading tenant %s: %w", id, err)
	}
	t.Tier = Tier(tier)
	t.Status = Status(status)
	return &t, nil
}

// HasMember checks the membership relation.
func (s *PostgresStore) HasMember(ctx context.Context, tenantID, userID uuid.UUID) (bool, error) {
	ctx, span := tracer.Start(ctx, "TenantStore.HasMember",
		trace.WithAttributes(
			attribute.String("tenant.id", tenantID.String()),
			attribute.String("user.id", userID.String()),
		),
	)
	defer span.End()

	query := `
	SELECT EXISTS (
		SELECT 1 FROM tenant_members
		WHERE tenant_id = $1 AND user_id = $2
	)`

	var exists bool
	if err := s.db.QueryRowContext(ctx, query, tenantID, userID).Scan(&exists); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "query failed")
		return false, fmt.Errorf("checking membership for user %s in tenant %s: %w", userID, tenantID, err)
	}
	return exists, nil
}

// GetQuota loads the tenant's quota configuration.
func (s *PostgresStore) GetQuota(ctx context.Context, tenantID uuid.UUID) (*Quota, error) {
	ctx, span := tracer.Start(ctx, "TenantStore.GetQuota",
		trace.WithAttributes(attribute.String("tenant.id", tenantID.String())),
	)
	defer span.End()

	query := `
	SELECT tenant_id, daily_api_calls, monthly_tokens, storage_gb, updated_at
	FROM tenant_quotas
	WHERE tenant_id = $1`

	var q Quota
	err := s.db.QueryRowContext(ctx, query, tenantID).Scan(
		&q.TenantID, &q.DailyAPICalls, &q.MonthlyTokens, &q.StorageGB, &q.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTenantNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "query failed")
		return nil, fmt.Errorf("loading quota for tenant %s: %w", tenantID, err)
	}
	return &q, nil
}
