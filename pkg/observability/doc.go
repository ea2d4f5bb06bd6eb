// Package observability provides structured logging, Prometheus metrics, and OpenTelemetry tracing.
//
// # Overview
//
// Logger wraps slog with a JSON handler and the WithField/WithError
// chaining style used across the codebase. Metrics registers the
// authorization decision counters on a caller-owned registry. InitOTel
// installs an OTLP/gRPC tracer provider globally. ShutdownManager runs
// a signal-driven graceful shutdown draining registered components in
// order.
//
// # Usage Example
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("tenant_id", id).Warn("membership denied")
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	http.Handle("/metrics", observability.Handler(registry))
package observability
