package middleware

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/tessergrc/authcore/pkg/httputil"
	"github.com/tessergrc/authcore/pkg/observability"
	"github.com/tessergrc/authcore/pkg/quota"
)

// QuotaMiddleware admits requests against the tenant's limits. The
// daily api_calls counter is consumed here; tokens and storage are
// only gated, their usage moves in the business layer.
type QuotaMiddleware struct {
	enforcer *quota.Enforcer
	logger   *observability.Logger
}

// NewQuotaMiddleware creates the quota middleware
func NewQuotaMiddleware(enforcer *quota.Enforcer, logger *observability.Logger) *QuotaMiddleware {
	return &QuotaMiddleware{enforcer: enforcer, logger: logger}
}

// EnforceAPICalls consumes one api_calls unit per admitted request.
func (m *QuotaMiddleware) EnforceAPICalls(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal := PrincipalFromContext(r.Context())
		if principal == nil {
			httputil.WriteErrorCode(w, httputil.CodeMissingAuthToken, "authentication required")
			return
		}

		if err := m.enforcer.CheckAndConsume(r.Context(), principal.TenantID); err != nil {
			m.writeQuotaError(w, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Gate checks a read-only quota dimension before expensive work.
func (m *QuotaMiddleware) Gate(quotaType quota.Type) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := PrincipalFromContext(r.Context())
			if principal == nil {
				httputil.WriteErrorCode(w, httputil.CodeMissingAuthToken, "authentication required")
				return
			}

			if err := m.enforcer.Check(r.Context(), principal.TenantID, quotaType); err != nil {
				m.writeQuotaError(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (m *QuotaMiddleware) writeQuotaError(w http.ResponseWriter, err error) {
	var qe *quota.ExceededError
	if !errors.As(err, &qe) {
		m.logger.WithError(err).Error("quota check failed")
		httputil.WriteErrorCode(w, httputil.CodeQuotaCheckFailed, "quota check failed")
		return
	}
	httputil.WriteErrorDetails(w, httputil.CodeQuotaExceeded,
		fmt.Sprintf("%s quota exceeded", qe.Type),
		map[string]interface{}{
			"quota_type":      string(qe.Type),
			"current_usage":   qe.Usage,
			"daily_api_calls": qe.Limits.DailyAPICalls,
			"monthly_tokens":  qe.Limits.MonthlyTokens,
			"storage_gb":      qe.Limits.StorageGB,
		})
}
