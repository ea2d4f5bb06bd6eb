// Package authn provides bearer token verification and principal construction.
//
// # Overview
//
// Tokens are verified against the identity provider's published
// signing keys: signature, issuer, audience and expiry. The
// KeyResolver caches keys by kid, deduplicates concurrent refreshes
// through singleflight and rate-limits refetches triggered by unknown
// kids. Verification failures carry a typed kind for audit and
// metrics; clients only ever see a generic authentication failure.
//
// # Usage Example
//
//	jwksURL, _ := authn.ResolveJWKSURL(ctx, issuer, nil)
//	keys := authn.NewKeyResolver(jwksURL, logger)
//	verifier := authn.NewVerifier(keys, issuer, audience)
//
//	claims, err := verifier.Verify(ctx, rawToken)
//	if err != nil {
//		kind := authn.KindOf(err) // expired, unknown_signing_key, ...
//	}
//
// # Related Packages
//
//   - pkg/middleware: drives verification per request
//   - pkg/rbac: derives permissions from the user's roles
package authn
