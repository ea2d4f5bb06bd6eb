// Package middleware provides HTTP middleware for authentication, authorization, and quota enforcement.
//
// # Overview
//
// This package assembles the request pipeline: bearer token
// verification, tenant resolution, permission derivation, guard
// checks, cross-tenant scanning and quota admission. Stages run in
// order; no stage executes if an earlier one failed.
//
// # Middleware Components
//
// RequestID: request id generation and header echo
//
//	router.Use(middleware.RequestID)
//
// AuthMiddleware: token verification through principal attachment
//
//	authMW := middleware.NewAuthMiddleware(verifier, users, resolver, logger)
//	api.Use(authMW.Handler)
//	// Downstream handlers read middleware.PrincipalFromContext(ctx)
//
// Guards: per-route role, permission and ownership checks
//
//	guards := middleware.NewGuards(ownershipStore, logger, metrics)
//	r.Handle("/agents/{id}", guards.RequireOwnership("agents", "id")(handler))
//
// CrossTenantGuard: rejects bodies and route params referencing a
// foreign tenant
//
//	api.Use(crossTenant.Handler)
//
// QuotaMiddleware: per-tenant usage admission
//
//	api.Use(quotaMW.EnforceAPICalls)       // atomic check-and-consume
//	r.Use(quotaMW.Gate(quota.TypeStorage)) // read-only admission gate
//
// # Related Packages
//
//   - pkg/authn: token verification and principal model
//   - pkg/tenants: tenant resolution
//   - pkg/rbac: guard evaluation
//   - pkg/quota: usage counters
package middleware
