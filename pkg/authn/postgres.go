package authn

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

	"github.com/tessergrc/authcore/pkg/rbac"
)

var tracer = otel.Tracer("authcore/authn")

// PostgresUserStore implements UserStore against the platform
// database.
type PostgresUserStore struct {
	db *sql.DB
}

// NewPostgresUserStore creates a Postgres-backed user store
func NewPostgresUserStore(db *sql.DB) *PostgresUserStore {
	return &PostgresUserStore{db: db}
}

// GetUserBySubject maps an identity provider subject to an account.
func (s *PostgresUserStore) GetUserBySubject(ctx context.Context, subject string) (*User, error) {
	ctx, span := tracer.Start(ctx, "UserStore.GetUserBySubject")
	defer span.End()

	query := `
	SELECT id, provider_subject, email, display_name, is_active, home_tenant_id
	FROM users
	WHERE provider_subject = $1`

	var u User
	var homeTenant sql.NullString
	err := s.db.QueryRowContext(ctx, query, subject).Scan(
		&u.ID, &u.Subject, &u.Email, &u.Name, &u.IsActive, &homeTenant,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "query failed")
		return nil, fmt.Errorf("loading user by subject: %w", err)
	}
	if homeTenant.Valid {
		if id, perr := uuid.Parse(homeTenant.String); perr == nil {
			u.HomeTenantID = &id
		}
	}
	return &u, nil
}

// GetUserRoles loads the roles granted to the user within the tenant.
// Unknown role strings in the table are an error, not a silent skip.
func (s *PostgresUserStore) GetUserRoles(ctx context.Context, userID, tenantID uuid.UUID) ([]rbac.Role, error) {
	ctx, span := tracer.Start(ctx, "UserStore.GetUserRoles",
		trace.WithAttributes(
			attribute.String("user.id", userID.String()),
			attribute.String("tenant.id", tenantID.String()),
		),
	)
	defer span.End()

	query := `
	SELECT role
	FROM user_tenant_roles
	WHERE user_id = $1 AND tenant_id = $2`

	rows, err := s.db.QueryContext(ctx, query, userID, tenantID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "query failed")
		return nil, fmt.Errorf("loading roles for user %s in tenant %s: %w", userID, tenantID, err)
	}
	defer rows.Close()

	var roles []rbac.Role
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scanning role row: %w", err)
		}
		role, err := rbac.ParseRole(raw)
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("role table for user %s: %w", userID, err)
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}
