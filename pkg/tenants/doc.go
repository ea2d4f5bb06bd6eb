// Package tenants provides tenant resolution and membership validation.
//
// # Overview
//
// Every protected request names its target tenant in the X-Tenant-ID
// header. The Resolver validates the identifier, loads the tenant,
// confirms active status and confirms the caller is a member. A
// nonexistent tenant and a denied tenant are indistinguishable to the
// client; membership denials emit exactly one audit event carrying the
// attempted and home tenant ids.
//
// # Usage Example
//
//	resolver := tenants.NewResolver(store, logger, metrics)
//	tenant, err := resolver.Resolve(ctx, user, r.Header.Get("X-Tenant-ID"))
//	if err != nil {
//		switch tenants.FailureOf(err) {
//		case tenants.FailureMissingTenantID, tenants.FailureInvalidTenantID: // 400
//		case tenants.FailureInactive:                                        // 403
//		default:                                                             // 403, opaque
//		}
//	}
//
// # Related Packages
//
//   - pkg/middleware: drives resolution per request
//   - pkg/quota: reads the tenant's quota configuration
package tenants
