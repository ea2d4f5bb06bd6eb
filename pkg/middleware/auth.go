package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/tessergrc/authcore/pkg/audit"
	"github.com/tessergrc/authcore/pkg/authn"
	"github.com/tessergrc/authcore/pkg/contextkeys"
	"github.com/tessergrc/authcore/pkg/httputil"
	"github.com/tessergrc/authcore/pkg/observability"
	"github.com/tessergrc/authcore/pkg/rbac"
	"github.com/tessergrc/authcore/pkg/tenants"
)

// TenantHeader carries the target tenant identifier. It lives outside
// the token because one identity may belong to several tenants.
const TenantHeader = "X-Tenant-ID"

// TokenVerifier validates a raw bearer token.
type TokenVerifier interface {
	Verify(ctx context.Context, raw string) (*authn.ClaimSet, error)
}

// TenantResolver validates the transport-supplied tenant identifier.
type TenantResolver interface {
	Resolve(ctx context.Context, user *authn.User, rawTenantID string) (*tenants.Tenant, error)
}

// AuthMiddleware authenticates the bearer token, resolves the target
// tenant and attaches a fully derived principal to the request
// context. Every protected route sits behind it.
type AuthMiddleware struct {
	verifier TokenVerifier
	users    authn.UserStore
	resolver TenantResolver
	logger   *observability.Logger
}

// NewAuthMiddleware creates the authentication middleware
func NewAuthMiddleware(verifier TokenVerifier, users authn.UserStore, resolver TenantResolver, logger *observability.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		verifier: verifier,
		users:    users,
		resolver: resolver,
		logger:   logger,
	}
}

// Handler wraps next with the full authentication pipeline.
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		token, ok := bearerToken(r)
		if !ok {
			httputil.WriteErrorCode(w, httputil.CodeMissingAuthToken, "missing or malformed authorization header")
			return
		}

		claims, err := m.verifier.Verify(ctx, token)
		if err != nil {
			m.auditAuthFailure(ctx, r, err)
			// The typed kind stays server-side; clients get one
			// generic authentication failure.
			httputil.WriteErrorCode(w, httputil.CodeAuthenticationFailed, "authentication failed")
			return
		}

		user, err := m.users.GetUserBySubject(ctx, claims.Subject)
		if err != nil {
			if errors.Is(err, authn.ErrUserNotFound) {
				m.auditAuthFailure(ctx, r, err)
				httputil.WriteErrorCode(w, httputil.CodeUserNotFound, "no account for authenticated identity")
				return
			}
			m.logger.WithError(err).Error("user lookup failed")
			httputil.WriteInternalError(w)
			return
		}
		if !user.IsActive {
			m.auditAuthFailure(ctx, r, errors.New("account deactivated"))
			httputil.WriteErrorCode(w, httputil.CodeAuthenticationFailed, "authentication failed")
			return
		}

		tenant, err := m.resolver.Resolve(ctx, user, r.Header.Get(TenantHeader))
		if err != nil {
			writeResolveFailure(w, err)
			return
		}

		roles, err := m.users.GetUserRoles(ctx, user.ID, tenant.ID)
		if err != nil {
			m.logger.WithError(err).WithField("tenant_id", tenant.ID.String()).
				Error("role lookup failed")
			httputil.WriteInternalError(w)
			return
		}

		principal := &authn.Principal{
			UserID:      user.ID,
			Subject:     user.Subject,
			Email:       user.Email,
			Name:        user.Name,
			TenantID:    tenant.ID,
			Roles:       roles,
			Permissions: rbac.Derive(roles),
		}

		m.auditAuthSuccess(ctx, r, principal)

		ctx = contextkeys.WithClaims(ctx, claims)
		ctx = contextkeys.WithPrincipal(ctx, principal)
		ctx = contextkeys.WithTenant(ctx, tenant)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

func writeResolveFailure(w http.ResponseWriter, err error) {
	switch tenants.FailureOf(err) {
	case tenants.FailureMissingTenantID:
		httputil.WriteErrorCode(w, httputil.CodeMissingTenantID, "tenant identifier header required")
	case tenants.FailureInvalidTenantID:
		httputil.WriteErrorCode(w, httputil.CodeInvalidTenantID, "tenant identifier must be a UUID")
	case tenants.FailureInactive:
		httputil.WriteErrorCode(w, httputil.CodeTenantInactive, "tenant is not active")
	case tenants.FailureAccessDenied:
		httputil.WriteErrorCode(w, httputil.CodeTenantAccessDenied, "access to tenant denied")
	default:
		httputil.WriteInternalError(w)
	}
}

func (m *AuthMiddleware) auditAuthSuccess(ctx context.Context, r *http.Request, principal *authn.Principal) {
	event := audit.NewEvent(ctx, audit.EventTypeAuthSuccess, audit.SeverityInfo)
	event.UserID = &principal.UserID
	event.Subject = principal.Subject
	event.Email = principal.Email
	event.TenantID = &principal.TenantID
	fillRequestContext(event, r)
	audit.FromContext(ctx).Record(ctx, event)
}

func (m *AuthMiddleware) auditAuthFailure(ctx context.Context, r *http.Request, cause error) {
	event := audit.NewEvent(ctx, audit.EventTypeAuthFailure, audit.SeverityWarning)
	event.Message = cause.Error()
	if kind := authn.KindOf(cause); kind != "" {
		event.Metadata = map[string]interface{}{"failure_kind": string(kind)}
	}
	fillRequestContext(event, r)
	audit.FromContext(ctx).Record(ctx, event)
}

func fillRequestContext(event *audit.Event, r *http.Request) {
	event.IPAddress = clientIP(r)
	event.UserAgent = r.UserAgent()
	event.Method = r.Method
	event.Path = r.URL.Path
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i > 0 {
			return strings.TrimSpace(fwd[:i])
		}
		return strings.TrimSpace(fwd)
	}
	host := r.RemoteAddr
	if i := strings.LastIndexByte(host, ':'); i > 0 {
		host = host[:i]
	}
	return host
}

// PrincipalFromContext returns the principal attached by Handler, or
// nil on unauthenticated requests.
func PrincipalFromContext(ctx context.Context) *authn.Principal {
	principal, _ := ctx.Value(contextkeys.PrincipalKey).(*authn.Principal)
	return principal
}

// TenantFromContext returns the resolved tenant, or nil.
func TenantFromContext(ctx context.Context) *tenants.Tenant {
	tenant, _ := ctx.Value(contextkeys.TenantKey).(*tenants.Tenant)
	return tenant
}
