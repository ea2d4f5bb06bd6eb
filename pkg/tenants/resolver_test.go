package tenants

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessergrc/authcore/pkg/audit"
	"github.com/tessergrc/authcore/pkg/authn"
	"github.com/tessergrc/authcore/pkg/observability"
)

type fakeStore struct {
	tenant    *Tenant
	tenantErr error
	member    bool
	memberErr error
	quota     *Quota
}

func (f *fakeStore) GetTenant(context.Context, uuid.UUID) (*Tenant, error) {
	return f.tenant, f.tenantErr
}

func (f *fakeStore) HasMember(context.Context, uuid.UUID, uuid.UUID) (bool, error) {
	return f.member, f.memberErr
}

func (f *fakeStore) GetQuota(context.Context, uuid.UUID) (*Quota, error) {
	return f.quota, nil
}

type captureAudit struct {
	mu     sync.Mutex
	events []*audit.Event
}

func (c *captureAudit) Record(_ context.Context, event *audit.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
}

func (c *captureAudit) Close() error { return nil }

func activeTenant() *Tenant {
	return &Tenant{
		ID:        uuid.New(),
		Name:      "acme",
		Tier:      TierPro,
		Status:    StatusActive,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
}

func testUser() *authn.User {
	home := uuid.New()
	return &authn.User{
		ID:           uuid.New(),
		Subject:      "auth0|user-42",
		Email:        "dana@example.com",
		IsActive:     true,
		HomeTenantID: &home,
	}
}

func newTestResolver(store Store) *Resolver {
	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	return NewResolver(store, logger, nil)
}

func TestResolveSuccess(t *testing.T) {
	tenant := activeTenant()
	r := newTestResolver(&fakeStore{tenant: tenant, member: true})

	got, err := r.Resolve(context.Background(), testUser(), tenant.ID.String())
	require.NoError(t, err)
	assert.Equal(t, tenant.ID, got.ID)
}

func TestResolveMissingTenantID(t *testing.T) {
	r := newTestResolver(&fakeStore{})
	_, err := r.Resolve(context.Background(), testUser(), "")
	assert.Equal(t, FailureMissingTenantID, FailureOf(err))
}

func TestResolveInvalidTenantID(t *testing.T) {
	r := newTestResolver(&fakeStore{})
	_, err := r.Resolve(context.Background(), testUser(), "not-a-uuid")
	assert.Equal(t, FailureInvalidTenantID, FailureOf(err))
}

func TestResolveUnknownTenantLooksLikeDenied(t *testing.T) {
	r := newTestResolver(&fakeStore{tenantErr: ErrTenantNotFound})
	_, err := r.Resolve(context.Background(), testUser(), uuid.NewString())
	assert.Equal(t, FailureAccessDenied, FailureOf(err))
}

func TestResolveStoreErrorLooksLikeDenied(t *testing.T) {
	r := newTestResolver(&fakeStore{tenantErr: errors.New("connection refused")})
	_, err := r.Resolve(context.Background(), testUser(), uuid.NewString())
	assert.Equal(t, FailureAccessDenied, FailureOf(err))
}

func TestResolveInactiveTenant(t *testing.T) {
	tenant := activeTenant()
	tenant.Status = StatusSuspended
	r := newTestResolver(&fakeStore{tenant: tenant, member: true})

	_, err := r.Resolve(context.Background(), testUser(), tenant.ID.String())
	assert.Equal(t, FailureInactive, FailureOf(err))
}

func TestResolveNonMemberEmitsOneAuditEvent(t *testing.T) {
	tenant := activeTenant()
	r := newTestResolver(&fakeStore{tenant: tenant, member: false})

	capture := &captureAudit{}
	ctx := audit.WithLogger(context.Background(), capture)
	user := testUser()

	_, err := r.Resolve(ctx, user, tenant.ID.String())
	assert.Equal(t, FailureAccessDenied, FailureOf(err))

	require.Len(t, capture.events, 1)
	event := capture.events[0]
	assert.Equal(t, audit.EventTypeUnauthorizedTenantAccess, event.EventType)
	assert.Equal(t, audit.SeverityError, event.Severity)
	assert.Equal(t, tenant.ID, *event.TenantID)
	assert.Equal(t, tenant.ID.String(), event.Metadata["attempted_tenant_id"])
	assert.Equal(t, user.HomeTenantID.String(), event.Metadata["home_tenant_id"])
}

func TestResolveMemberEmitsNoAuditEvent(t *testing.T) {
	tenant := activeTenant()
	r := newTestResolver(&fakeStore{tenant: tenant, member: true})

	capture := &captureAudit{}
	ctx := audit.WithLogger(context.Background(), capture)

	_, err := r.Resolve(ctx, testUser(), tenant.ID.String())
	require.NoError(t, err)
	assert.Empty(t, capture.events)
}
