package tenants

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresGetTenant(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	id := uuid.New()
	now := time.Now()
	mock.ExpectQuery("SELECT id, name, tier, status, created_at, updated_at").
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "tier", "status", "created_at", "updated_at"}).
			AddRow(id.String(), "acme", "enterprise", "active", now, now))

	store := NewPostgresStore(db)
	tenant, err := store.GetTenant(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "acme", tenant.Name)
	assert.Equal(t, TierEnterprise, tenant.Tier)
	assert.True(t, tenant.Active())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetTenantNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	id := uuid.New()
	mock.ExpectQuery("SELECT id, name, tier, status, created_at, updated_at").
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "tier", "status", "created_at", "updated_at"}))

	store := NewPostgresStore(db)
	_, err = store.GetTenant(context.Background(), id)
	assert.ErrorIs(t, err, ErrTenantNotFound)
}

func TestPostgresHasMember(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	tenantID := uuid.New()
	userID := uuid.New()
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(tenantID, userID).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	store := NewPostgresStore(db)
	member, err := store.HasMember(context.Background(), tenantID, userID)
	require.NoError(t, err)
	assert.True(t, member)
}

func TestPostgresGetQuota(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	tenantID := uuid.New()
	mock.ExpectQuery("SELECT tenant_id, daily_api_calls, monthly_tokens, storage_gb, updated_at").
		WithArgs(tenantID).
		WillReturnRows(sqlmock.NewRows([]string{"tenant_id", "daily_api_calls", "monthly_tokens", "storage_gb", "updated_at"}).
			AddRow(tenantID.String(), int64(10000), int64(5000000), int64(50), time.Now()))

	store := NewPostgresStore(db)
	quota, err := store.GetQuota(context.Background(), tenantID)
	require.NoError(t, err)
	assert.Equal(t, int64(10000), quota.DailyAPICalls)
	assert.Equal(t, int64(50)*1024*1024*1024, quota.StorageBytes())
}
