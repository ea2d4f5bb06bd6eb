// Package quota provides per-tenant usage tracking and admission control.
//
// # Overview
//
// Three windowed counters are tracked per tenant: api_calls (daily
// reset), tokens (monthly reset) and storage (no window). api_calls is
// charged on attempt inside an atomic Redis check-and-increment, so two
// concurrent requests at limit-1 can never both pass. tokens and
// storage are checked read-only at admission and recorded after the
// fact by the business layer.
//
// Quota store failures fail closed: the request is rejected with a
// retryable check-failed error, never mistaken for an exceeded quota.
//
// # Usage Example
//
//	enforcer := quota.NewEnforcer(usageStore, tenantStore, logger, metrics)
//
//	if err := enforcer.CheckAndConsume(ctx, tenantID); err != nil {
//		if quota.IsExceeded(err) { /* 429 with usage details */ }
//		// otherwise 500, retryable
//	}
//
//	// After the LLM call reports usage:
//	enforcer.RecordTokens(ctx, tenantID, used)
//
// # Related Packages
//
//   - pkg/tenants: quota limits per tenant
//   - pkg/middleware: HTTP admission gates
package quota
