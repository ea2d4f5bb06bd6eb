package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/tessergrc/authcore/pkg/audit"
	"github.com/tessergrc/authcore/pkg/authn"
	"github.com/tessergrc/authcore/pkg/httputil"
	"github.com/tessergrc/authcore/pkg/observability"
	"github.com/tessergrc/authcore/pkg/rbac"
)

// Guards builds per-route authorization middleware. All of them
// expect AuthMiddleware to have run first.
type Guards struct {
	ownership rbac.OwnershipChecker
	logger    *observability.Logger
	metrics   *observability.Metrics
}

// NewGuards creates the guard factory
func NewGuards(ownership rbac.OwnershipChecker, logger *observability.Logger, metrics *observability.Metrics) *Guards {
	return &Guards{ownership: ownership, logger: logger, metrics: metrics}
}

// RequireRoles passes requests whose principal holds any of the
// listed roles.
func (g *Guards) RequireRoles(required ...rbac.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := PrincipalFromContext(r.Context())
			if principal == nil {
				httputil.WriteErrorCode(w, httputil.CodeMissingAuthToken, "authentication required")
				return
			}
			if err := rbac.CheckRoles(subjectOf(principal), required...); err != nil {
				g.deny(w, r, principal, err, "role")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequirePermissions passes requests whose derived permission set
// covers every listed pair.
func (g *Guards) RequirePermissions(required ...rbac.Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := PrincipalFromContext(r.Context())
			if principal == nil {
				httputil.WriteErrorCode(w, httputil.CodeMissingAuthToken, "authentication required")
				return
			}
			if err := rbac.CheckPermissions(subjectOf(principal), required...); err != nil {
				g.deny(w, r, principal, err, "permission")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireOwnership applies the record-level access rule to the
// resource id found under routeVar.
func (g *Guards) RequireOwnership(resourceType, routeVar string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := PrincipalFromContext(r.Context())
			if principal == nil {
				httputil.WriteErrorCode(w, httputil.CodeMissingAuthToken, "authentication required")
				return
			}

			raw := mux.Vars(r)[routeVar]
			resourceID, err := uuid.Parse(raw)
			if err != nil {
				httputil.WriteErrorCode(w, httputil.CodeResourceAccessDenied, "resource access denied")
				return
			}

			err = rbac.CheckOwnership(r.Context(), subjectOf(principal), g.ownership, resourceType, resourceID)
			if err != nil {
				var denial *rbac.DenialError
				if errors.As(err, &denial) {
					g.deny(w, r, principal, err, "ownership")
					return
				}
				g.logger.WithError(err).WithField("resource_type", resourceType).
					Error("ownership check failed")
				httputil.WriteInternalError(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (g *Guards) deny(w http.ResponseWriter, r *http.Request, principal *authn.Principal, err error, guard string) {
	if g.metrics != nil {
		g.metrics.AuthzDenialsTotal.WithLabelValues(guard).Inc()
	}

	var denial *rbac.DenialError
	errors.As(err, &denial)

	g.auditDenial(r.Context(), r, principal, denial, guard)

	if guard == "ownership" {
		httputil.WriteErrorCode(w, httputil.CodeResourceAccessDenied, "resource access denied")
		return
	}
	details := map[string]interface{}{}
	if denial != nil {
		for k, v := range denial.Details {
			details[k] = v
		}
	}
	httputil.WriteErrorDetails(w, httputil.CodeInsufficientPermissions, "insufficient permissions", details)
}

func (g *Guards) auditDenial(ctx context.Context, r *http.Request, principal *authn.Principal, denial *rbac.DenialError, guard string) {
	eventType := audit.EventTypeAuthorizationFailure
	if guard == "ownership" {
		eventType = audit.EventTypeResourceAccessDenied
	}
	event := audit.NewEvent(ctx, eventType, audit.SeverityError)
	event.UserID = &principal.UserID
	event.Subject = principal.Subject
	event.TenantID = &principal.TenantID
	fillRequestContext(event, r)
	event.Metadata = map[string]interface{}{"guard": guard}
	if denial != nil {
		event.Message = denial.Reason
		for k, v := range denial.Details {
			event.Metadata[k] = v
		}
		if rt, ok := denial.Details["resource_type"].(string); ok {
			event.ResourceType = rt
		}
		if rid, ok := denial.Details["resource_id"].(string); ok {
			event.ResourceID = rid
		}
	}
	audit.FromContext(ctx).Record(ctx, event)
}

func subjectOf(p *authn.Principal) *rbac.Subject {
	return &rbac.Subject{
		UserID:      p.UserID,
		TenantID:    p.TenantID,
		Roles:       p.Roles,
		Permissions: p.Permissions,
	}
}
