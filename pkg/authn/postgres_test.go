package authn

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessergrc/authcore/pkg/rbac"
)

func TestPostgresGetUserBySubject(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	userID := uuid.New()
	homeTenant := uuid.New()
	mock.ExpectQuery("SELECT id, provider_subject, email, display_name, is_active, home_tenant_id").
		WithArgs("auth0|abc123").
		WillReturnRows(sqlmock.NewRows([]string{"id", "provider_subject", "email", "display_name", "is_active", "home_tenant_id"}).
			AddRow(userID.String(), "auth0|abc123", "ada@example.com", "Ada", true, homeTenant.String()))

	store := NewPostgresUserStore(db)
	user, err := store.GetUserBySubject(context.Background(), "auth0|abc123")
	require.NoError(t, err)
	assert.Equal(t, userID, user.ID)
	assert.Equal(t, "ada@example.com", user.Email)
	assert.True(t, user.IsActive)
	require.NotNil(t, user.HomeTenantID)
	assert.Equal(t, homeTenant, *user.HomeTenantID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetUserBySubjectNoHomeTenant(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	userID := uuid.New()
	mock.ExpectQuery("SELECT id, provider_subject, email, display_name, is_active, home_tenant_id").
		WithArgs("auth0|abc123").
		WillReturnRows(sqlmock.NewRows([]string{"id", "provider_subject", "email", "display_name", "is_active", "home_tenant_id"}).
			AddRow(userID.String(), "auth0|abc123", "ada@example.com", "Ada", true, nil))

	store := NewPostgresUserStore(db)
	user, err := store.GetUserBySubject(context.Background(), "auth0|abc123")
	require.NoError(t, err)
	assert.Nil(t, user.HomeTenantID)
}

func TestPostgresGetUserBySubjectNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT id, provider_subject, email, display_name, is_active, home_tenant_id").
		WithArgs("auth0|nobody").
		WillReturnRows(sqlmock.NewRows([]string{"id", "provider_subject", "email", "display_name", "is_active", "home_tenant_id"}))

	store := NewPostgresUserStore(db)
	_, err = store.GetUserBySubject(context.Background(), "auth0|nobody")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestPostgresGetUserRoles(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	userID := uuid.New()
	tenantID := uuid.New()
	mock.ExpectQuery("SELECT role").
		WithArgs(userID, tenantID).
		WillReturnRows(sqlmock.NewRows([]string{"role"}).
			AddRow("agent_user").
			AddRow("auditor"))

	store := NewPostgresUserStore(db)
	roles, err := store.GetUserRoles(context.Background(), userID, tenantID)
	require.NoError(t, err)
	assert.Equal(t, []rbac.Role{rbac.RoleAgentUser, rbac.RoleAuditor}, roles)
}

func TestPostgresGetUserRolesUnknownRoleFails(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	userID := uuid.New()
	tenantID := uuid.New()
	mock.ExpectQuery("SELECT role").
		WithArgs(userID, tenantID).
		WillReturnRows(sqlmock.NewRows([]string{"role"}).
			AddRow("galactic_emperor"))

	store := NewPostgresUserStore(db)
	_, err = store.GetUserRoles(context.Background(), userID, tenantID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "galactic_emperor")
}
