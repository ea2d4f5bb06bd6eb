package tenants

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/tessergrc/authcore/pkg/audit"
	"github.com/tessergrc/authcore/pkg/authn"
	"github.com/tessergrc/authcore/pkg/observability"
)

// ResolveFailure is why tenant resolution rejected the request.
type ResolveFailure string

const (
	FailureMissingTenantID ResolveFailure = "missing_tenant_id"
	FailureInvalidTenantID ResolveFailure = "invalid_tenant_id"
	FailureAccessDenied    ResolveFailure = "tenant_access_denied"
	FailureInactive        ResolveFailure = "tenant_inactive"
)

// ResolveError carries the typed failure. Message content never
// distinguishes a nonexistent tenant from a denied one.
type ResolveError struct {
	Failure ResolveFailure
	Err     error
}

func (e *ResolveError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("tenant resolution: %s: %v", e.Failure, e.Err)
	}
	return fmt.Sprintf("tenant resolution: %s", e.Failure)
}

func (e *ResolveError) Unwrap() error { return e.Err }

// FailureOf extracts the typed failure, or empty when err is an
// internal error rather than a resolution denial.
func FailureOf(err error) ResolveFailure {
	var re *ResolveError
	if errors.As(err, &re) {
		return re.Failure
	}
	return ""
}

// Resolver validates the transport-supplied tenant identifier against
// the store and the authenticated user's memberships. The tenant id
// travels outside the token because one identity may belong to
// several tenants.
type Resolver struct {
	store   Store
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewResolver builds a Resolver.
func NewResolver(store Store, logger *observability.Logger, metrics *observability.Metrics) *Resolver {
	return &Resolver{store: store, logger: logger, metrics: metrics}
}

// Resolve checks the raw tenant identifier for the given user and
// returns the tenant on success. A membership failure emits exactly
// one unauthorized access audit event; store errors are returned
// unwrapped in a ResolveError so callers map them to a generic
// denial without leaking detail.
func (r *Resolver) Resolve(ctx context.Context, user *authn.User, rawTenantID string) (*Tenant, error) {
	if rawTenantID == "" {
		return nil, r.reject(FailureMissingTenantID, nil)
	}

	tenantID, err := uuid.Parse(rawTenantID)
	if err != nil {
		return nil, r.reject(FailureInvalidTenantID, err)
	}

	tenant, err := r.store.GetTenant(ctx, tenantID)
	if err != nil {
		if !errors.Is(err, ErrTenantNotFound) {
			r.logger.WithError(err).WithField("tenant_id", tenantID.String()).
				Error("tenant lookup failed")
		}
		// Nonexistent and denied look identical to the client.
		return nil, r.reject(FailureAccessDenied, err)
	}

	if !tenant.Active() {
		r.auditInactive(ctx, user, tenant)
		return nil, r.reject(FailureInactive, nil)
	}

	member, err := r.store.HasMember(ctx, tenantID, user.ID)
	if err != nil {
		r.logger.WithError(err).WithField("tenant_id", tenantID.String()).
			Error("membership lookup failed")
		return nil, r.reject(FailureAccessDenied, err)
	}
	if !member {
		r.auditUnauthorized(ctx, user, tenantID)
		return nil, r.reject(FailureAccessDenied, nil)
	}

	if r.metrics != nil {
		r.metrics.TenantResolutionsTotal.WithLabelValues("ok").Inc()
	}
	return tenant, nil
}

func (r *Resolver) reject(failure ResolveFailure, err error) error {
	if r.metrics != nil {
		r.metrics.TenantResolutionsTotal.WithLabelValues(string(failure)).Inc()
	}
	return &ResolveError{Failure: failure, Err: err}
}

func (r *Resolver) auditUnauthorized(ctx context.Context, user *authn.User, attempted uuid.UUID) {
	event := audit.NewEvent(ctx, audit.EventTypeUnauthorizedTenantAccess, audit.SeverityError)
	event.UserID = &user.ID
	event.Subject = user.Subject
	event.Email = user.Email
	event.TenantID = &attempted
	event.Message = "user has no membership in requested tenant"
	event.Metadata = map[string]interface{}{
		"attempted_tenant_id": attempted.String(),
	}
	if user.HomeTenantID != nil {
		event.Metadata["home_tenant_id"] = user.HomeTenantID.String()
	}
	audit.FromContext(ctx).Record(ctx, event)
}

func (r *Resolver) auditInactive(ctx context.Context, user *authn.User, tenant *Tenant) {
	event := audit.NewEvent(ctx, audit.EventTypeTenantInactive, audit.SeverityWarning)
	event.UserID = &user.ID
	event.Subject = user.Subject
	event.TenantID = &tenant.ID
	event.Message = "request against non-active tenant"
	event.Metadata = map[string]interface{}{
		"tenant_status": string(tenant.Status),
	}
	audit.FromContext(ctx).Record(ctx, event)
}
