package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the authorization core
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Authentication metrics
	TokenVerificationsTotal *prometheus.CounterVec
	KeyRefreshTotal         *prometheus.CounterVec
	KeyCacheHitsTotal       prometheus.Counter
	KeyCacheMissesTotal     prometheus.Counter

	// Authorization metrics
	AuthzDenialsTotal       *prometheus.CounterVec
	TenantResolutionsTotal  *prometheus.CounterVec
	CrossTenantBlocksTotal  prometheus.Counter

	// Quota metrics
	QuotaChecksTotal   *prometheus.CounterVec
	QuotaExceededTotal *prometheus.CounterVec

	// Audit metrics
	AuditEventsTotal  *prometheus.CounterVec
	AuditDroppedTotal prometheus.Counter
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authcore_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "authcore_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		TokenVerificationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authcore_token_verifications_total",
				Help: "Token verification outcomes by failure kind (or ok)",
			},
			[]string{"outcome"},
		),
		KeyRefreshTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authcore_key_refresh_total",
				Help: "JWKS refresh attempts by result",
			},
			[]string{"result"},
		),
		KeyCacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "authcore_key_cache_hits_total",
				Help: "Signing key cache hits",
			},
		),
		KeyCacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "authcore_key_cache_misses_total",
				Help: "Signing key cache misses",
			},
		),
		AuthzDenialsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authcore_authz_denials_total",
				Help: "Authorization denials by guard",
			},
			[]string{"guard"},
		),
		TenantResolutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authcore_tenant_resolutions_total",
				Help: "Tenant resolution outcomes",
			},
			[]string{"outcome"},
		),
		CrossTenantBlocksTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "authcore_cross_tenant_blocks_total",
				Help: "Requests rejected for embedded foreign tenant identifiers",
			},
		),
		QuotaChecksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authcore_quota_checks_total",
				Help: "Quota checks by quota type and result",
			},
			[]string{"quota", "result"},
		),
		QuotaExceededTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authcore_quota_exceeded_total",
				Help: "Quota rejections by quota type",
			},
			[]string{"quota"},
		),
		AuditEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authcore_audit_events_total",
				Help: "Audit events emitted by event type",
			},
			[]string{"event_type"},
		),
		AuditDroppedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "authcore_audit_dropped_total",
				Help: "Audit events dropped because the sink was unavailable",
			},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.TokenVerificationsTotal,
		m.KeyRefreshTotal,
		m.KeyCacheHitsTotal,
		m.KeyCacheMissesTotal,
		m.AuthzDenialsTotal,
		m.TenantResolutionsTotal,
		m.CrossTenantBlocksTotal,
		m.QuotaChecksTotal,
		m.QuotaExceededTotal,
		m.AuditEventsTotal,
		m.AuditDroppedTotal,
	)

	return m
}

// Handler returns an HTTP handler serving the metrics from registry
func Handler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// statusRecorder captures the response status code for metrics
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// HTTPMiddleware records request counts and durations
func (m *Metrics) HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		m.HTTPRequestsTotal.WithLabelValues(r.Method, r.URL.Path, strconv.Itoa(rec.status)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(time.Since(start).Seconds())
	})
}
