package middleware

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessergrc/authcore/pkg/audit"
	"github.com/tessergrc/authcore/pkg/authn"
	"github.com/tessergrc/authcore/pkg/observability"
	"github.com/tessergrc/authcore/pkg/rbac"
	"github.com/tessergrc/authcore/pkg/tenants"
)

type fakeVerifier struct {
	claims *authn.ClaimSet
	err    error
}

func (f *fakeVerifier) Verify(context.Context, string) (*authn.ClaimSet, error) {
	return f.claims, f.err
}

type fakeUserStore struct {
	user     *authn.User
	userErr  error
	roles    []rbac.Role
	rolesErr error
}

func (f *fakeUserStore) GetUserBySubject(context.Context, string) (*authn.User, error) {
	return f.user, f.userErr
}

func (f *fakeUserStore) GetUserRoles(context.Context, uuid.UUID, uuid.UUID) ([]rbac.Role, error) {
	return f.roles, f.rolesErr
}

type fakeResolver struct {
	tenant *tenants.Tenant
	err    error
}

func (f *fakeResolver) Resolve(context.Context, *authn.User, string) (*tenants.Tenant, error) {
	return f.tenant, f.err
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

func (c *captureAudit) byType(t audit.EventType) []*audit.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*audit.Event
	for _, e := range c.events {
		if e.EventType == t {
			out = append(out, e)
		}
	}
	return out
}

func quietLogger() *observability.Logger {
	return observability.NewLogger(observability.ErrorLevel, io.Discard)
}

func validClaims() *authn.ClaimSet {
	return &authn.ClaimSet{
		Subject:  "auth0|user-42",
		Issuer:   "https://id.example.com",
		Audience: []string{"authcore-api"},
	}
}

func activeUser() *authn.User {
	return &authn.User{
		ID:       uuid.New(),
		Subject:  "auth0|user-42",
		Email:    "dana@example.com",
		Name:     "Dana",
		IsActive: true,
	}
}

func resolvedTenant() *tenants.Tenant {
	return &tenants.Tenant{
		ID:     uuid.New(),
		Name:   "acme",
		Tier:   tenants.TierPro,
		Status: tenants.StatusActive,
	}
}

func okHandler(got **authn.Principal) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got != nil {
			*got = PrincipalFromContext(r.Context())
		}
		w.WriteHeader(http.StatusOK)
	})
}

func errorCodeOf(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error.Code
}

func newAuthRequest(tenantID string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/v1/agents", nil)
	r.Header.Set("Authorization", "Bearer token")
	if tenantID != "" {
		r.Header.Set(TenantHeader, tenantID)
	}
	return r
}

func TestAuthMiddlewareSuccess(t *testing.T) {
	tenant := resolvedTenant()
	user := activeUser()
	m := NewAuthMiddleware(
		&fakeVerifier{claims: validClaims()},
		&fakeUserStore{user: user, roles: []rbac.Role{rbac.RoleAgentUser}},
		&fakeResolver{tenant: tenant},
		quietLogger(),
	)

	var principal *authn.Principal
	rec := httptest.NewRecorder()
	m.Handler(okHandler(&principal)).ServeHTTP(rec, newAuthRequest(tenant.ID.String()))

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, principal)
	assert.Equal(t, user.ID, principal.UserID)
	assert.Equal(t, tenant.ID, principal.TenantID)
	assert.Equal(t, []rbac.Role{rbac.RoleAgentUser}, principal.Roles)
	assert.True(t, principal.Permissions.Allows("agents", rbac.ActionRead))
}

func TestAuthMiddlewareMissingHeader(t *testing.T) {
	m := NewAuthMiddleware(&fakeVerifier{}, &fakeUserStore{}, &fakeResolver{}, quietLogger())

	rec := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/v1/agents", nil)
	m.Handler(okHandler(nil)).ServeHTTP(rec, r)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "MISSING_AUTH_TOKEN", errorCodeOf(t, rec))
}

func TestAuthMiddlewareBadScheme(t *testing.T) {
	m := NewAuthMiddleware(&fakeVerifier{}, &fakeUserStore{}, &fakeResolver{}, quietLogger())

	rec := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/v1/agents", nil)
	r.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	m.Handler(okHandler(nil)).ServeHTTP(rec, r)

	assert.Equal(t, "MISSING_AUTH_TOKEN", errorCodeOf(t, rec))
}

func TestAuthMiddlewareVerificationFailureIsGeneric(t *testing.T) {
	verr := &authn.VerificationError{Kind: authn.KindExpired}
	m := NewAuthMiddleware(&fakeVerifier{err: verr}, &fakeUserStore{}, &fakeResolver{}, quietLogger())

	capture := &captureAudit{}
	rec := httptest.NewRecorder()
	r := newAuthRequest(uuid.NewString())
	r = r.WithContext(audit.WithLogger(r.Context(), capture))
	m.Handler(okHandler(nil)).ServeHTTP(rec, r)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "AUTHENTICATION_FAILED", errorCodeOf(t, rec))
	// The typed reason goes to audit, not to the client.
	assert.NotContains(t, rec.Body.String(), "expired")

	failures := capture.byType(audit.EventTypeAuthFailure)
	require.Len(t, failures, 1)
	assert.Equal(t, string(authn.KindExpired), failures[0].Metadata["failure_kind"])
}

func TestAuthMiddlewareUnknownUser(t *testing.T) {
	m := NewAuthMiddleware(
		&fakeVerifier{claims: validClaims()},
		&fakeUserStore{userErr: authn.ErrUserNotFound},
		&fakeResolver{},
		quietLogger(),
	)

	rec := httptest.NewRecorder()
	m.Handler(okHandler(nil)).ServeHTTP(rec, newAuthRequest(uuid.NewString()))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "USER_NOT_FOUND", errorCodeOf(t, rec))
}

func TestAuthMiddlewareInactiveUser(t *testing.T) {
	user := activeUser()
	user.IsActive = false
	m := NewAuthMiddleware(
		&fakeVerifier{claims: validClaims()},
		&fakeUserStore{user: user},
		&fakeResolver{},
		quietLogger(),
	)

	rec := httptest.NewRecorder()
	m.Handler(okHandler(nil)).ServeHTTP(rec, newAuthRequest(uuid.NewString()))

	assert.Equal(t, "AUTHENTICATION_FAILED", errorCodeOf(t, rec))
}

func TestAuthMiddlewareTenantDenied(t *testing.T) {
	m := NewAuthMiddleware(
		&fakeVerifier{claims: validClaims()},
		&fakeUserStore{user: activeUser()},
		&fakeResolver{err: &tenants.ResolveError{Failure: tenants.FailureAccessDenied}},
		quietLogger(),
	)

	rec := httptest.NewRecorder()
	m.Handler(okHandler(nil)).ServeHTTP(rec, newAuthRequest(uuid.NewString()))

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "TENANT_ACCESS_DENIED", errorCodeOf(t, rec))
}

func TestAuthMiddlewareMissingTenantHeader(t *testing.T) {
	m := NewAuthMiddleware(
		&fakeVerifier{claims: validClaims()},
		&fakeUserStore{user: activeUser()},
		&fakeResolver{err: &tenants.ResolveError{Failure: tenants.FailureMissingTenantID}},
		quietLogger(),
	)

	rec := httptest.NewRecorder()
	m.Handler(okHandler(nil)).ServeHTTP(rec, newAuthRequest(""))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "MISSING_TENANT_ID", errorCodeOf(t, rec))
}

func TestAuthMiddlewareAuditsSuccess(t *testing.T) {
	tenant := resolvedTenant()
	m := NewAuthMiddleware(
		&fakeVerifier{claims: validClaims()},
		&fakeUserStore{user: activeUser(), roles: []rbac.Role{rbac.RoleAuditor}},
		&fakeResolver{tenant: tenant},
		quietLogger(),
	)

	capture := &captureAudit{}
	rec := httptest.NewRecorder()
	r := newAuthRequest(tenant.ID.String())
	r = r.WithContext(audit.WithLogger(r.Context(), capture))
	m.Handler(okHandler(nil)).ServeHTTP(rec, r)

	require.Equal(t, http.StatusOK, rec.Code)
	successes := capture.byType(audit.EventTypeAuthSuccess)
	require.Len(t, successes, 1)
	assert.Equal(t, tenant.ID, *successes[0].TenantID)
	assert.Equal(t, "GET", successes[0].Method)
}
