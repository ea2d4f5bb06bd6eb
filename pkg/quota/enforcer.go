package quota

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/tessergrc/authcore/pkg/audit"
	"github.com/tessergrc/authcore/pkg/observability"
	"github.com/tessergrc/authcore/pkg/tenants"
)

// ExceededError reports a quota breach with the full limit picture so
// clients can plan backoff across all three dimensions, not just the
// one that tripped.
type ExceededError struct {
	TenantID uuid.UUID
	Type     Type
	Usage    int64
	Limits   tenants.Quota
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("tenant %s exceeded %s quota: usage %d", e.TenantID, e.Type, e.Usage)
}

// IsExceeded reports whether err is a quota breach as opposed to a
// store failure.
func IsExceeded(err error) bool {
	var qe *ExceededError
	return errors.As(err, &qe)
}

// ErrCheckFailed wraps backing store failures. Callers surface these
// as server errors, never as a 429.
var ErrCheckFailed = errors.New("quota check failed")

// Enforcer applies per-tenant limits. Admission decisions for
// api_calls consume as part of the check; tokens and storage are
// read-only here and moved by the business layer after the fact.
type Enforcer struct {
	usage   UsageStore
	tenants tenants.Store
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewEnforcer builds an Enforcer.
func NewEnforcer(usage UsageStore, store tenants.Store, logger *observability.Logger, metrics *observability.Metrics) *Enforcer {
	return &Enforcer{usage: usage, tenants: store, logger: logger, metrics: metrics}
}

// CheckAndConsume admits one api_calls unit, charging on attempt: a
// request that later fails in the handler has still consumed quota.
func (e *Enforcer) CheckAndConsume(ctx context.Context, tenantID uuid.UUID) error {
	limits, err := e.tenants.GetQuota(ctx, tenantID)
	if err != nil {
		return e.checkFailed(TypeAPICalls, err)
	}

	usage, allowed, err := e.usage.ConsumeIfAllowed(ctx, tenantID, TypeAPICalls, limits.DailyAPICalls, 1)
	if err != nil {
		return e.checkFailed(TypeAPICalls, err)
	}
	if !allowed {
		return e.exceeded(ctx, tenantID, TypeAPICalls, usage, limits)
	}
	if e.metrics != nil {
		e.metrics.QuotaChecksTotal.WithLabelValues(string(TypeAPICalls), "allowed").Inc()
	}
	return nil
}

// Check verifies a read-only quota dimension without consuming.
func (e *Enforcer) Check(ctx context.Context, tenantID uuid.UUID, quotaType Type) error {
	limits, err := e.tenants.GetQuota(ctx, tenantID)
	if err != nil {
		return e.checkFailed(quotaType, err)
	}

	limit := e.limitFor(quotaType, limits)
	if limit <= 0 {
		return nil
	}

	usage, err := e.usage.Usage(ctx, tenantID, quotaType)
	if err != nil {
		return e.checkFailed(quotaType, err)
	}
	if usage >= limit {
		return e.exceeded(ctx, tenantID, quotaType, usage, limits)
	}
	if e.metrics != nil {
		e.metrics.QuotaChecksTotal.WithLabelValues(string(quotaType), "allowed").Inc()
	}
	return nil
}

// RecordTokens charges token usage after a completed model call.
func (e *Enforcer) RecordTokens(ctx context.Context, tenantID uuid.UUID, tokens int64) error {
	_, err := e.usage.Add(ctx, tenantID, TypeTokens, tokens)
	return err
}

// RecordStorage moves tracked storage usage by delta bytes.
func (e *Enforcer) RecordStorage(ctx context.Context, tenantID uuid.UUID, deltaBytes int64) error {
	_, err := e.usage.Add(ctx, tenantID, TypeStorage, deltaBytes)
	return err
}

func (e *Enforcer) limitFor(quotaType Type, limits *tenants.Quota) int64 {
	switch quotaType {
	case TypeAPICalls:
		return limits.DailyAPICalls
	case TypeTokens:
		return limits.MonthlyTokens
	case TypeStorage:
		return limits.StorageBytes()
	default:
		return 0
	}
}

func (e *Enforcer) checkFailed(quotaType Type, err error) error {
	if e.metrics != nil {
		e.metrics.QuotaChecksTotal.WithLabelValues(string(quotaType), "error").Inc()
	}
	e.logger.WithError(err).WithField("quota_type", string(quotaType)).
		Error("quota backing store unavailable")
	return fmt.Errorf("%w: %v", ErrCheckFailed, err)
}

func (e *Enforcer) exceeded(ctx context.Context, tenantID uuid.UUID, quotaType Type, usage int64, limits *tenants.Quota) error {
	if e.metrics != nil {
		e.metrics.QuotaChecksTotal.WithLabelValues(string(quotaType), "denied").Inc()
		e.metrics.QuotaExceededTotal.WithLabelValues(string(quotaType)).Inc()
	}

	// Expected operational behavior, not an attack: warning, not
	// error.
	event := audit.NewEvent(ctx, audit.EventTypeQuotaExceeded, audit.SeverityWarning)
	event.TenantID = &tenantID
	event.Message = fmt.Sprintf("%s quota exceeded", quotaType)
	event.Metadata = map[string]interface{}{
		"quota_type":      string(quotaType),
		"usage":           usage,
		"daily_api_calls": limits.DailyAPICalls,
		"monthly_tokens":  limits.MonthlyTokens,
		"storage_gb":      limits.StorageGB,
	}
	audit.FromContext(ctx).Record(ctx, event)

	return &ExceededError{
		TenantID: tenantID,
		Type:     quotaType,
		Usage:    usage,
		Limits:   *limits,
	}
}
