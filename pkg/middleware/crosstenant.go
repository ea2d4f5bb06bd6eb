package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/tessergrc/authcore/pkg/audit"
	"github.com/tessergrc/authcore/pkg/authn"
	"github.com/tessergrc/authcore/pkg/httputil"
	"github.com/tessergrc/authcore/pkg/observability"
	"github.com/tessergrc/authcore/pkg/rbac"
)

const maxScannedBody = 1 << 20 // 1MB

// tenantKeyNames are the JSON and route parameter names treated as
// tenant identifiers when their value looks like a UUID.
var tenantKeyNames = map[string]struct{}{
	"tenant_id":        {},
	"tenantId":         {},
	"tenantID":         {},
	"target_tenant_id": {},
	"organization_id":  {},
}

// CrossTenantGuard rejects requests whose body or route parameters
// embed a tenant identifier different from the authenticated one.
// Client payloads can carry a stale or tampered tenant_id; the
// server-resolved tenant is authoritative and any mismatch is a
// security event, not something to silently correct.
type CrossTenantGuard struct {
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewCrossTenantGuard creates the guard
func NewCrossTenantGuard(logger *observability.Logger, metrics *observability.Metrics) *CrossTenantGuard {
	return &CrossTenantGuard{logger: logger, metrics: metrics}
}

// Handler scans JSON bodies and route variables. The body is restored
// for downstream handlers.
func (g *CrossTenantGuard) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal := PrincipalFromContext(r.Context())
		if principal == nil {
			httputil.WriteErrorCode(w, httputil.CodeMissingAuthToken, "authentication required")
			return
		}

		// The operator super-role may act across tenants.
		if hasPlatformOwner(principal) {
			next.ServeHTTP(w, r)
			return
		}

		for name, value := range mux.Vars(r) {
			if foreign, found := foreignTenantRef(name, value, principal.TenantID); found {
				g.reject(w, r, principal, foreign, "route")
				return
			}
		}

		if r.Body != nil && strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
			body, err := io.ReadAll(io.LimitReader(r.Body, maxScannedBody))
			if err != nil {
				httputil.WriteInternalError(w)
				return
			}
			r.Body.Close()
			r.Body = io.NopCloser(bytes.NewReader(body))

			if len(body) > 0 {
				var payload interface{}
				// Unparseable bodies pass through; the handler owns
				// payload validation.
				if err := json.Unmarshal(body, &payload); err == nil {
					if foreign, found := scanValue("", payload, principal.TenantID); found {
						g.reject(w, r, principal, foreign, "body")
						return
					}
				}
			}
		}

		next.ServeHTTP(w, r)
	})
}

// scanValue walks the decoded JSON looking for tenant-shaped fields,
// nested objects and arrays included.
func scanValue(key string, value interface{}, authTenant uuid.UUID) (string, bool) {
	switch v := value.(type) {
	case map[string]interface{}:
		for childKey, childVal := range v {
			if str, ok := childVal.(string); ok {
				if foreign, found := foreignTenantRef(childKey, str, authTenant); found {
					return foreign, true
				}
				continue
			}
			if foreign, found := scanValue(childKey, childVal, authTenant); found {
				return foreign, true
			}
		}
	case []interface{}:
		for _, item := range v {
			if foreign, found := scanValue(key, item, authTenant); found {
				return foreign, true
			}
		}
	}
	return "", false
}

func foreignTenantRef(key, value string, authTenant uuid.UUID) (string, bool) {
	if _, tenantKey := tenantKeyNames[key]; !tenantKey {
		return "", false
	}
	id, err := uuid.Parse(value)
	if err != nil {
		// Not UUID-shaped, so not a tenant reference.
		return "", false
	}
	if id == authTenant {
		return "", false
	}
	return id.String(), true
}

func hasPlatformOwner(p *authn.Principal) bool {
	return p.HasRole(rbac.RolePlatformOwner)
}

func (g *CrossTenantGuard) reject(w http.ResponseWriter, r *http.Request, principal *authn.Principal, foreign, where string) {
	if g.metrics != nil {
		g.metrics.CrossTenantBlocksTotal.Inc()
	}

	event := audit.NewEvent(r.Context(), audit.EventTypeCrossTenantAttempt, audit.SeverityError)
	event.UserID = &principal.UserID
	event.Subject = principal.Subject
	event.TenantID = &principal.TenantID
	event.Message = "request references a foreign tenant"
	event.Metadata = map[string]interface{}{
		"foreign_tenant_id": foreign,
		"found_in":          where,
	}
	fillRequestContext(event, r)
	audit.FromContext(r.Context()).Record(r.Context(), event)

	httputil.WriteErrorCode(w, httputil.CodeCrossTenantAccessDenied, "cross-tenant access denied")
}
