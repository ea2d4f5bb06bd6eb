// Package contextkeys provides centralized context key definitions
//
// All context keys used across the authorization pipeline are defined
// here. This prevents typos, documents which middleware sets what, and
// makes key usage discoverable.
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// PrincipalKey contains *authn.Principal
	// Set by: middleware.AuthMiddleware after token verification and
	// tenant resolution complete
	// Required by: all guards, quota middleware, handlers
	PrincipalKey Key = "principal"

	// TenantKey contains *tenants.Tenant
	// Set by: middleware.AuthMiddleware
	// Required by: cross-tenant guard, quota middleware, handlers
	TenantKey Key = "tenant"

	// ClaimsKey contains *authn.ClaimSet (the verified token payload)
	// Set by: middleware.AuthMiddleware
	// Used by: handlers needing provider-specific custom claims
	ClaimsKey Key = "claims"

	// RequestIDKey contains request ID string (UUID)
	// Set by: HTTP middleware
	// Used by: logger, audit trail
	RequestIDKey Key = "request_id"

	// LoggerKey contains *observability.Logger
	// Set by: observability middleware
	LoggerKey Key = "logger"

	// AuditLoggerKey contains audit.Logger
	// Set by: audit middleware
	AuditLoggerKey Key = "audit_logger"
)

// WithPrincipal adds the authenticated principal to the context
func WithPrincipal(ctx context.Context, principal interface{}) context.Context {
	return context.WithValue(ctx, PrincipalKey, principal)
}

// WithTenant adds the resolved tenant to the context
func WithTenant(ctx context.Context, tenant interface{}) context.Context {
	return context.WithValue(ctx, TenantKey, tenant)
}

// WithClaims adds the verified claim set to the context
func WithClaims(ctx context.Context, claims interface{}) context.Context {
	return context.WithValue(ctx, ClaimsKey, claims)
}

// WithRequestID adds request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// WithLogger adds logger to the context
func WithLogger(ctx context.Context, logger interface{}) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}

// WithAuditLogger adds audit logger to the context
func WithAuditLogger(ctx context.Context, logger interface{}) context.Context {
	return context.WithValue(ctx, AuditLoggerKey, logger)
}

// GetRequestID retrieves request ID from context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}
