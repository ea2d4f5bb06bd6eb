package authn

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/tessergrc/authcore/pkg/observability"
)

const (
	// jwksFetchTimeout bounds a single JWKS document fetch so a slow
	// identity provider cannot hold request goroutines indefinitely.
	jwksFetchTimeout = 10 * time.Second

	// unknownKidCooldown is the minimum interval between refetches
	// triggered by the same unrecognized key ID. Forged tokens with
	// random kids would otherwise turn every request into an outbound
	// fetch against the provider.
	unknownKidCooldown = 30 * time.Second

	negativeCacheSize = 1024
)

// jwksDocument is the RFC 7517 key set shape we consume.
type jwksDocument struct {
	Keys []jwkEntry `json:"keys"`
}

type jwkEntry struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use"`
	Alg string `json:"alg"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// KeyResolver caches the identity provider's RSA signing keys by key
// ID and refetches the JWKS document when a token references a kid the
// cache has not seen. Concurrent cache misses for the same document
// collapse into one outbound fetch.
type KeyResolver struct {
	jwksURL    string
	httpClient *http.Client
	logger     *observability.Logger
	metrics    *observability.Metrics
	now        func() time.Time

	mu   sync.RWMutex
	keys map[string]*rsa.PublicKey

	group singleflight.Group

	// lastFetchByKid rate-limits refetches per unknown kid.
	lastFetchByKid *lru.Cache[string, time.Time]
}

// KeyResolverOption configures a KeyResolver.
type KeyResolverOption func(*KeyResolver)

// WithHTTPClient overrides the HTTP client used for JWKS fetches.
func WithHTTPClient(c *http.Client) KeyResolverOption {
	return func(r *KeyResolver) { r.httpClient = c }
}

// WithClock overrides the time source. Tests use this to drive the
// unknown-kid cooldown deterministically.
func WithClock(now func() time.Time) KeyResolverOption {
	return func(r *KeyResolver) { r.now = now }
}

// WithKeyMetrics attaches cache hit/miss and refresh counters.
func WithKeyMetrics(m *observability.Metrics) KeyResolverOption {
	return func(r *KeyResolver) { r.metrics = m }
}

// NewKeyResolver builds a resolver for the given JWKS endpoint.
func NewKeyResolver(jwksURL string, logger *observability.Logger, opts ...KeyResolverOption) *KeyResolver {
	negCache, _ := lru.New[string, time.Time](negativeCacheSize)
	r := &KeyResolver{
		jwksURL:        jwksURL,
		httpClient:     &http.Client{Timeout: jwksFetchTimeout},
		logger:         logger,
		now:            time.Now,
		keys:           make(map[string]*rsa.PublicKey),
		lastFetchByKid: negCache,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ResolveKey returns the public key for kid, refetching the JWKS
// document at most once per cooldown window when the kid is unknown.
func (r *KeyResolver) ResolveKey(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	r.mu.RLock()
	key, ok := r.keys[kid]
	r.mu.RUnlock()
	if ok {
		if r.metrics != nil {
			r.metrics.KeyCacheHitsTotal.Inc()
		}
		return key, nil
	}
	if r.metrics != nil {
		r.metrics.KeyCacheMissesTotal.Inc()
	}

	if last, seen := r.lastFetchByKid.Get(kid); seen && r.now().Sub(last) < unknownKidCooldown {
		return nil, fmt.Errorf("signing key %q: %w", kid, ErrKeyNotFound)
	}

	if err := r.refresh(ctx, kid); err != nil {
		return nil, err
	}

	r.mu.RLock()
	key, ok = r.keys[kid]
	r.mu.RUnlock()
	if !ok {
		r.lastFetchByKid.Add(kid, r.now())
		return nil, fmt.Errorf("signing key %q: %w", kid, ErrKeyNotFound)
	}
	return key, nil
}

// refresh fetches and installs the JWKS document. Concurrent callers
// share a single in-flight fetch regardless of which kid triggered it.
func (r *KeyResolver) refresh(ctx context.Context, triggerKid string) error {
	_, err, _ := r.group.Do("jwks", func() (interface{}, error) {
		fetched, err := r.fetchJWKS(ctx)
		if err != nil {
			if r.metrics != nil {
				r.metrics.KeyRefreshTotal.WithLabelValues("error").Inc()
			}
			r.logger.WithError(err).WithField("trigger_kid", triggerKid).
				Error("JWKS refresh failed")
			return nil, err
		}
		r.mu.Lock()
		r.keys = fetched
		r.mu.Unlock()
		if r.metrics != nil {
			r.metrics.KeyRefreshTotal.WithLabelValues("ok").Inc()
		}
		r.logger.WithField("key_count", len(fetched)).Debug("JWKS refreshed")
		return nil, nil
	})
	return err
}

func (r *KeyResolver) fetchJWKS(ctx context.Context) (map[string]*rsa.PublicKey, error) {
	ctx, cancel := context.WithTimeout(ctx, jwksFetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.jwksURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building JWKS request: %w", err)
	}
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching JWKS: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching JWKS: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("reading JWKS body: %w", err)
	}

	var doc jwksDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("parsing JWKS document: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(doc.Keys))
	for _, k := range doc.Keys {
		if k.Kty != "RSA" || k.Kid == "" {
			continue
		}
		pub, err := parseRSAKey(k)
		if err != nil {
			r.logger.WithError(err).WithField("kid", k.Kid).Warn("skipping unparseable JWK")
			continue
		}
		keys[k.Kid] = pub
	}
	return keys, nil
}

func parseRSAKey(k jwkEntry) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil {
		return nil, fmt.Errorf("decoding modulus: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, fmt.Errorf("decoding exponent: %w", err)
	}
	e := 0
	for _, b := range eBytes {
		e = e<<8 | int(b)
	}
	if e <= 1 {
		return nil, fmt.Errorf("invalid public exponent %d", e)
	}
	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nBytes),
		E: e,
	}, nil
}

// Keyfunc adapts the resolver to the parser's key lookup callback.
func (r *KeyResolver) Keyfunc(ctx context.Context) jwt.Keyfunc {
	return func(token *jwt.Token) (interface{}, error) {
		kid, ok := token.Header["kid"].(string)
		if !ok || kid == "" {
			return nil, fmt.Errorf("token header missing kid: %w", ErrKeyNotFound)
		}
		return r.ResolveKey(ctx, kid)
	}
}
