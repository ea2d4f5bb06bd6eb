package authn

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/tessergrc/authcore/pkg/observability"
)

// Verifier checks bearer token signatures and registered claims
// against the configured issuer and audience. Signature algorithms
// are pinned to RS256; tokens claiming any other algorithm are
// rejected before key lookup.
type Verifier struct {
	keys     *KeyResolver
	issuer   string
	audience string
	metrics  *observability.Metrics
	now      func() time.Time
}

// VerifierOption configures a Verifier.
type VerifierOption func(*Verifier)

// WithVerifierClock overrides the time source used for expiry checks.
func WithVerifierClock(now func() time.Time) VerifierOption {
	return func(v *Verifier) { v.now = now }
}

// WithVerifierMetrics attaches verification outcome counters.
func WithVerifierMetrics(m *observability.Metrics) VerifierOption {
	return func(v *Verifier) { v.metrics = m }
}

// NewVerifier builds a verifier bound to one issuer and audience.
func NewVerifier(keys *KeyResolver, issuer, audience string, opts ...VerifierOption) *Verifier {
	v := &Verifier{
		keys:     keys,
		issuer:   issuer,
		audience: audience,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify parses and validates raw, returning the decoded claims on
// success or a VerificationError describing exactly which check
// failed. Callers surface a single generic authentication error to
// clients; the typed kind is for logs and audit only.
func (v *Verifier) Verify(ctx context.Context, raw string) (*ClaimSet, error) {
	if raw == "" {
		return nil, v.fail(&VerificationError{Kind: KindMissingToken, Err: errors.New("empty token")})
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(v.issuer),
		jwt.WithAudience(v.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	)

	claims := jwt.MapClaims{}
	if _, err := parser.ParseWithClaims(raw, claims, v.keys.Keyfunc(ctx)); err != nil {
		return nil, v.fail(&VerificationError{Kind: classify(err), Err: err})
	}

	if v.metrics != nil {
		v.metrics.TokenVerificationsTotal.WithLabelValues("ok").Inc()
	}
	return newClaimSet(claims), nil
}

func (v *Verifier) fail(verr *VerificationError) error {
	if v.metrics != nil {
		v.metrics.TokenVerificationsTotal.WithLabelValues(string(verr.Kind)).Inc()
	}
	return verr
}

// classify maps parser errors onto our failure taxonomy. Order
// matters: expiry and claim mismatches arrive wrapped in
// ErrTokenInvalidClaims, so the specific sentinels are checked first.
func classify(err error) FailureKind {
	switch {
	case errors.Is(err, ErrKeyNotFound):
		return KindUnknownSigningKey
	case errors.Is(err, jwt.ErrTokenExpired):
		return KindExpired
	case errors.Is(err, jwt.ErrTokenInvalidAudience):
		return KindAudienceMismatch
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return KindIssuerMismatch
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return KindSignatureInvalid
	case errors.Is(err, jwt.ErrTokenMalformed):
		return KindMalformedToken
	default:
		return KindSignatureInvalid
	}
}
