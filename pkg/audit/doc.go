// Package audit provides append-only security event logging for compliance and forensics.
//
// # Overview
//
// This package records authentication outcomes, authorization denials,
// cross-tenant attempts and quota breaches. Recording is asynchronous
// and best-effort: the request path never blocks on persistence, and an
// event that cannot be persisted is written to the application log with
// its full payload instead of vanishing.
//
// # Event Types
//
// Authentication: auth.success, auth.failure
// Authorization: authz.failure, authz.resource_access_denied
// Tenancy: tenant.unauthorized_access, tenant.cross_tenant_attempt, tenant.inactive_access
// Quota: quota.exceeded
//
// # Usage Example
//
// Record an event from a middleware or handler:
//
//	event := audit.NewEvent(ctx, audit.EventTypeAuthFailure, audit.SeverityWarning)
//	event.Message = "token verification failed"
//	audit.FromContext(ctx).Record(ctx, event)
//
// Wire the async logger over a sink at startup:
//
//	sink, _ := audit.NewDBSink(db)
//	logger := audit.NewAsyncLogger(sink, appLogger, audit.WithBufferSize(1024))
//	defer logger.Close()
//
// # Sinks and Retention
//
// DBSink persists to Postgres and supports filtered queries and
// time-based pruning. FileSink appends NDJSON with size-based rotation.
// Archiver uploads the previous day's events to S3 on a cron schedule
// and prunes rows past the retention policy.
//
// Export formats: JSON, NDJSON, CSV.
//
// # Related Packages
//
//   - pkg/middleware: emits auth and guard events
//   - pkg/tenants: emits membership and status events
//   - pkg/quota: emits quota breach events
package audit
