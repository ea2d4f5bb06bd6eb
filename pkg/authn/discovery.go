package authn

import (
	"context"
	"fmt"
	"net/http"

	oidc "github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

// ResolveJWKSURL fetches the issuer's OIDC discovery document and
// returns its jwks_uri. Called once at startup; key rotation is
// handled by the resolver, not by re-discovery.
func ResolveJWKSURL(ctx context.Context, issuer string, httpClient *http.Client) (string, error) {
	if httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, httpClient)
	}
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return "", fmt.Errorf("OIDC discovery for %s: %w: %v", issuer, ErrDiscoveryUnavailable, err)
	}
	var meta struct {
		JWKSURI string `json:"jwks_uri"`
	}
	if err := provider.Claims(&meta); err != nil {
		return "", fmt.Errorf("decoding discovery document: %w", err)
	}
	if meta.JWKSURI == "" {
		return "", fmt.Errorf("discovery document for %s has no jwks_uri: %w", issuer, ErrDiscoveryUnavailable)
	}
	return meta.JWKSURI, nil
}
