package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/tessergrc/authcore/pkg/async"
	"github.com/tessergrc/authcore/pkg/audit"
	"github.com/tessergrc/authcore/pkg/authn"
	"github.com/tessergrc/authcore/pkg/config"
	"github.com/tessergrc/authcore/pkg/middleware"
	"github.com/tessergrc/authcore/pkg/observability"
	"github.com/tessergrc/authcore/pkg/quota"
	"github.com/tessergrc/authcore/pkg/rbac"
	"github.com/tessergrc/authcore/pkg/tenants"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	ctx := context.Background()

	otelProviders, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
	}, logger)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize OpenTelemetry")
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	// Postgres backs the user, tenant, ownership and audit stores.
	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		logger.WithError(err).Error("Failed to open database")
		os.Exit(1)
	}
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnLifetime)
	if err := db.PingContext(ctx); err != nil {
		logger.WithError(err).Error("Failed to connect to database")
		os.Exit(1)
	}
	logger.Info("Connected to PostgreSQL")

	redisOpts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		logger.WithError(err).Error("Invalid Redis URL")
		os.Exit(1)
	}
	if cfg.Redis.Password != "" {
		redisOpts.Password = cfg.Redis.Password
	}
	if cfg.Redis.DB >= 0 {
		redisOpts.DB = cfg.Redis.DB
	}
	if cfg.Redis.PoolSize > 0 {
		redisOpts.PoolSize = cfg.Redis.PoolSize
	}
	redisClient := redis.NewClient(redisOpts)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.WithError(err).Error("Failed to connect to Redis")
		os.Exit(1)
	}
	logger.Info("Connected to Redis")

	auditLogger, auditSink, err := buildAuditLogger(cfg, db, logger, metrics)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize audit logging")
		os.Exit(1)
	}

	var archiver *audit.Archiver
	if cfg.Audit.ArchiveEnabled {
		dbSink, ok := auditSink.(*audit.DBSink)
		if !ok {
			logger.Error("Audit archival requires the db backend")
			os.Exit(1)
		}
		archiver, err = audit.NewArchiver(ctx, audit.ArchiveConfig{
			Bucket:       cfg.Audit.ArchiveBucket,
			Region:       cfg.Audit.ArchiveRegion,
			Endpoint:     cfg.Audit.ArchiveEndpoint,
			AccessKey:    cfg.Audit.S3AccessKey,
			SecretKey:    cfg.Audit.S3SecretKey,
			UsePathStyle: cfg.Audit.S3UsePathStyle,
			Schedule:     cfg.Audit.ArchiveSchedule,
			Retention:    audit.RetentionPolicy{MaxAge: cfg.Audit.RetentionMaxAge},
		}, dbSink, logger)
		if err != nil {
			logger.WithError(err).Error("Failed to initialize audit archiver")
			os.Exit(1)
		}
		if err := archiver.Start(cfg.Audit.ArchiveSchedule); err != nil {
			logger.WithError(err).Error("Failed to start audit archiver")
			os.Exit(1)
		}
		logger.Infof("Audit archival enabled, bucket %s", cfg.Audit.ArchiveBucket)
	}

	// Token verification against the configured issuer.
	jwksURL := cfg.Identity.JWKSURL
	if jwksURL == "" {
		jwksURL, err = authn.ResolveJWKSURL(ctx, cfg.Identity.Issuer, http.DefaultClient)
		if err != nil {
			logger.WithError(err).Error("OIDC discovery failed")
			os.Exit(1)
		}
		logger.Infof("Discovered JWKS endpoint: %s", jwksURL)
	}
	keyResolver := authn.NewKeyResolver(jwksURL, logger, authn.WithKeyMetrics(metrics))
	verifier := authn.NewVerifier(keyResolver, cfg.Identity.Issuer, cfg.Identity.Audience,
		authn.WithVerifierMetrics(metrics))

	userStore := authn.NewPostgresUserStore(db)
	tenantStore := tenants.NewPostgresStore(db)
	tenantResolver := tenants.NewResolver(tenantStore, logger, metrics)
	ownershipStore := rbac.NewPostgresOwnershipStore(db)

	usageStore := quota.NewRedisUsageStore(redisClient)
	enforcer := quota.NewEnforcer(usageStore, tenantStore, logger, metrics)

	authMW := middleware.NewAuthMiddleware(verifier, userStore, tenantResolver, logger)
	guards := middleware.NewGuards(ownershipStore, logger, metrics)
	crossTenant := middleware.NewCrossTenantGuard(logger, metrics)
	quotaMW := middleware.NewQuotaMiddleware(enforcer, logger)

	router := buildRouter(authMW, guards, crossTenant, quotaMW, enforcer, auditLogger, metrics)

	server := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	healthServer := &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler: buildHealthRouter(db, redisClient, registry, cfg.Observability.MetricsEnabled),
	}

	go func() {
		logger.Infof("Starting server on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("Server failed")
			os.Exit(1)
		}
	}()
	go func() {
		logger.Infof("Starting health/metrics server on %s", healthServer.Addr)
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("Health server failed")
			os.Exit(1)
		}
	}()

	shutdown := observability.NewShutdownManager(logger, cfg.Server.ShutdownTimeout, server, healthServer)
	if archiver != nil {
		shutdown.RegisterShutdownFunc(func(context.Context) error {
			archiver.Stop()
			return nil
		})
	}
	shutdown.RegisterShutdownFunc(func(context.Context) error {
		// Drains buffered audit events before the stores close.
		return auditLogger.Close()
	})
	shutdown.RegisterShutdownFunc(func(context.Context) error {
		return redisClient.Close()
	})
	shutdown.RegisterShutdownFunc(func(context.Context) error {
		return db.Close()
	})
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		return otelProviders.Shutdown(ctx)
	})

	if err := shutdown.WaitForShutdown(); err != nil {
		logger.WithError(err).Error("Shutdown finished with errors")
		os.Exit(1)
	}
}

// buildAuditLogger wires the configured sink behind the async logger.
func buildAuditLogger(cfg *config.Config, db *sql.DB, logger *observability.Logger, metrics *observability.Metrics) (audit.Logger, audit.Sink, error) {
	var sink audit.Sink
	var err error

	switch cfg.Audit.Backend {
	case "db":
		sink, err = audit.NewDBSink(db)
	case "file":
		sink, err = audit.NewFileSink(audit.FileSinkConfig{BasePath: cfg.Audit.FilePath})
	case "none":
		return audit.NopLogger{}, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}

	asyncLogger := audit.NewAsyncLogger(sink, logger,
		audit.WithBufferSize(cfg.Audit.BufferSize),
		audit.WithAuditMetrics(metrics),
	)
	return asyncLogger, sink, nil
}

// buildRouter assembles the request pipeline around a sample protected
// resource surface. The ordering matters: request id and audit context
// first, then authentication, then the per-route guards.
func buildRouter(
	authMW *middleware.AuthMiddleware,
	guards *middleware.Guards,
	crossTenant *middleware.CrossTenantGuard,
	quotaMW *middleware.QuotaMiddleware,
	enforcer *quota.Enforcer,
	auditLogger audit.Logger,
	metrics *observability.Metrics,
) *mux.Router {
	router := mux.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(audit.WithLogger(r.Context(), auditLogger)))
		})
	})
	router.Use(metrics.HTTPMiddleware)

	api := router.PathPrefix("/api/v1").Subrouter()
	api.Use(authMW.Handler)
	api.Use(crossTenant.Handler)
	api.Use(quotaMW.EnforceAPICalls)

	agents := api.PathPrefix("/agents").Subrouter()
	agents.Handle("", withChain(listHandler("agents"),
		guards.RequirePermissions(rbac.Permission{Resource: "agents", Action: rbac.ActionRead}),
	)).Methods(http.MethodGet)
	agents.Handle("", withChain(createHandler("agents"),
		guards.RequirePermissions(rbac.Permission{Resource: "agents", Action: rbac.ActionWrite}),
	)).Methods(http.MethodPost)
	agents.Handle("/{id}", withChain(resourceHandler("agents"),
		guards.RequirePermissions(rbac.Permission{Resource: "agents", Action: rbac.ActionRead}),
		guards.RequireOwnership("agents", "id"),
	)).Methods(http.MethodGet)
	agents.Handle("/{id}", withChain(resourceHandler("agents"),
		guards.RequirePermissions(rbac.Permission{Resource: "agents", Action: rbac.ActionDelete}),
		guards.RequireOwnership("agents", "id"),
	)).Methods(http.MethodDelete)

	documents := api.PathPrefix("/documents").Subrouter()
	documents.Handle("", withChain(listHandler("documents"),
		guards.RequirePermissions(rbac.Permission{Resource: "documents", Action: rbac.ActionRead}),
	)).Methods(http.MethodGet)
	documents.Handle("", withChain(uploadHandler(enforcer),
		guards.RequirePermissions(rbac.Permission{Resource: "documents", Action: rbac.ActionWrite}),
		quotaMW.Gate(quota.TypeStorage),
	)).Methods(http.MethodPost)
	documents.Handle("/{id}", withChain(resourceHandler("documents"),
		guards.RequirePermissions(rbac.Permission{Resource: "documents", Action: rbac.ActionRead}),
		guards.RequireOwnership("documents", "id"),
	)).Methods(http.MethodGet)

	auditRoutes := api.PathPrefix("/audit").Subrouter()
	auditRoutes.Handle("/events", withChain(listHandler("audit_logs"),
		guards.RequirePermissions(rbac.Permission{Resource: "audit_logs", Action: rbac.ActionRead}),
	)).Methods(http.MethodGet)

	admin := api.PathPrefix("/admin").Subrouter()
	admin.Handle("/settings", withChain(listHandler("settings"),
		guards.RequireRoles(rbac.RoleTenantOwner),
	)).Methods(http.MethodGet)

	return router
}

func withChain(h http.Handler, wrappers ...func(http.Handler) http.Handler) http.Handler {
	for i := len(wrappers) - 1; i >= 0; i-- {
		h = wrappers[i](h)
	}
	return h
}

// The demo handlers echo the resolved principal and tenant so the
// pipeline can be exercised end to end without a downstream service.
func listHandler(resource string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal := middleware.PrincipalFromContext(r.Context())
		tenant := middleware.TenantFromContext(r.Context())
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"resource":  resource,
			"tenant_id": tenant.ID,
			"user_id":   principal.UserID,
			"items":     []interface{}{},
		})
	})
}

func createHandler(resource string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusCreated, map[string]interface{}{
			"resource": resource,
			"status":   "created",
		})
	})
}

// uploadHandler accepts a document body and records the consumed
// storage bytes after the response is written.
func uploadHandler(enforcer *quota.Enforcer) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenant := middleware.TenantFromContext(r.Context())
		size, err := io.Copy(io.Discard, r.Body)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unreadable body"})
			return
		}

		async.SafeGoDetached(r.Context(), 5*time.Second, "storage usage tracking", func(ctx context.Context) error {
			return enforcer.RecordStorage(ctx, tenant.ID, size)
		})

		writeJSON(w, http.StatusCreated, map[string]interface{}{
			"resource":   "documents",
			"status":     "created",
			"size_bytes": size,
			"tenant_id":  tenant.ID,
		})
	})
}

func resourceHandler(resource string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"resource": resource,
			"id":       mux.Vars(r)["id"],
		})
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// buildHealthRouter serves liveness, readiness and metrics on the
// health port so they stay off the authenticated surface.
func buildHealthRouter(db *sql.DB, redisClient *redis.Client, registry *prometheus.Registry, metricsEnabled bool) *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)

	router.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		checks := map[string]string{"postgres": "ok", "redis": "ok"}
		status := http.StatusOK
		if err := db.PingContext(ctx); err != nil {
			checks["postgres"] = err.Error()
			status = http.StatusServiceUnavailable
		}
		if err := redisClient.Ping(ctx).Err(); err != nil {
			checks["redis"] = err.Error()
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, checks)
	}).Methods(http.MethodGet)

	if metricsEnabled {
		router.Handle("/metrics", observability.Handler(registry)).Methods(http.MethodGet)
	}

	return router
}
