package authn

import (
	"context"
	"crypto/rsa"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testIssuer   = "https://id.example.com"
	testAudience = "authcore-api"
)

type tokenOverrides struct {
	kid    string
	issuer string
	aud    string
	exp    time.Time
	key    *rsa.PrivateKey
	alg    jwt.SigningMethod
}

func signToken(t *testing.T, o tokenOverrides) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub":   "auth0|user-42",
		"iss":   testIssuer,
		"aud":   testAudience,
		"exp":   time.Now().Add(time.Hour).Unix(),
		"iat":   time.Now().Unix(),
		"email": "dana@example.com",
		"name":  "Dana",
		"org":   "acme",
	}
	if o.issuer != "" {
		claims["iss"] = o.issuer
	}
	if o.aud != "" {
		claims["aud"] = o.aud
	}
	if !o.exp.IsZero() {
		claims["exp"] = o.exp.Unix()
	}
	var method jwt.SigningMethod = jwt.SigningMethodRS256
	if o.alg != nil {
		method = o.alg
	}
	token := jwt.NewWithClaims(method, claims)
	if o.kid != "" {
		token.Header["kid"] = o.kid
	}
	raw, err := token.SignedString(o.key)
	require.NoError(t, err)
	return raw
}

func newTestVerifier(t *testing.T, key *rsa.PrivateKey, kid string) *Verifier {
	t.Helper()
	srv := httptest.NewServer(jwksHandler(nil, map[string]*rsa.PublicKey{kid: &key.PublicKey}))
	t.Cleanup(srv.Close)
	resolver := NewKeyResolver(srv.URL, testLogger())
	return NewVerifier(resolver, testIssuer, testAudience)
}

func TestVerifyValidToken(t *testing.T) {
	key := generateTestKey(t)
	v := newTestVerifier(t, key, "kid-1")

	claims, err := v.Verify(context.Background(), signToken(t, tokenOverrides{kid: "kid-1", key: key}))
	require.NoError(t, err)
	assert.Equal(t, "auth0|user-42", claims.Subject)
	assert.Equal(t, testIssuer, claims.Issuer)
	assert.Equal(t, []string{testAudience}, claims.Audience)
	assert.Equal(t, "dana@example.com", claims.Email)
	assert.Equal(t, "Dana", claims.Name)
	assert.Equal(t, "acme", claims.Custom["org"])
	assert.NotContains(t, claims.Custom, "sub")
}

func TestVerifyEmptyToken(t *testing.T) {
	key := generateTestKey(t)
	v := newTestVerifier(t, key, "kid-1")

	_, err := v.Verify(context.Background(), "")
	assert.Equal(t, KindMissingToken, KindOf(err))
}

func TestVerifyMalformedToken(t *testing.T) {
	key := generateTestKey(t)
	v := newTestVerifier(t, key, "kid-1")

	_, err := v.Verify(context.Background(), "not.a.token")
	assert.Equal(t, KindMalformedToken, KindOf(err))
}

func TestVerifyUnknownSigningKey(t *testing.T) {
	key := generateTestKey(t)
	v := newTestVerifier(t, key, "kid-1")

	raw := signToken(t, tokenOverrides{kid: "kid-rotated-away", key: key})
	_, err := v.Verify(context.Background(), raw)
	assert.Equal(t, KindUnknownSigningKey, KindOf(err))
}

func TestVerifyWrongKeySignature(t *testing.T) {
	served := generateTestKey(t)
	attacker := generateTestKey(t)
	v := newTestVerifier(t, served, "kid-1")

	raw := signToken(t, tokenOverrides{kid: "kid-1", key: attacker})
	_, err := v.Verify(context.Background(), raw)
	assert.Equal(t, KindSignatureInvalid, KindOf(err))
}

func TestVerifyExpiredToken(t *testing.T) {
	key := generateTestKey(t)
	v := newTestVerifier(t, key, "kid-1")

	raw := signToken(t, tokenOverrides{kid: "kid-1", key: key, exp: time.Now().Add(-time.Minute)})
	_, err := v.Verify(context.Background(), raw)
	assert.Equal(t, KindExpired, KindOf(err))
}

func TestVerifyExpiryUsesInjectedClock(t *testing.T) {
	key := generateTestKey(t)
	srv := httptest.NewServer(jwksHandler(nil, map[string]*rsa.PublicKey{"kid-1": &key.PublicKey}))
	t.Cleanup(srv.Close)
	resolver := NewKeyResolver(srv.URL, testLogger())
	farFuture := time.Now().Add(48 * time.Hour)
	v := NewVerifier(resolver, testIssuer, testAudience,
		WithVerifierClock(func() time.Time { return farFuture }))

	raw := signToken(t, tokenOverrides{kid: "kid-1", key: key})
	_, err := v.Verify(context.Background(), raw)
	assert.Equal(t, KindExpired, KindOf(err))
}

func TestVerifyAudienceMismatch(t *testing.T) {
	key := generateTestKey(t)
	v := newTestVerifier(t, key, "kid-1")

	raw := signToken(t, tokenOverrides{kid: "kid-1", key: key, aud: "some-other-api"})
	_, err := v.Verify(context.Background(), raw)
	assert.Equal(t, KindAudienceMismatch, KindOf(err))
}

func TestVerifyIssuerMismatch(t *testing.T) {
	key := generateTestKey(t)
	v := newTestVerifier(t, key, "kid-1")

	raw := signToken(t, tokenOverrides{kid: "kid-1", key: key, issuer: "https://evil.example.com"})
	_, err := v.Verify(context.Background(), raw)
	assert.Equal(t, KindIssuerMismatch, KindOf(err))
}

func TestVerifyRejectsUnpinnedAlgorithm(t *testing.T) {
	key := generateTestKey(t)
	srv := httptest.NewServer(jwksHandler(nil, map[string]*rsa.PublicKey{"kid-1": &key.PublicKey}))
	t.Cleanup(srv.Close)
	resolver := NewKeyResolver(srv.URL, testLogger())
	v := NewVerifier(resolver, testIssuer, testAudience)

	// HS256 with the HMAC secret set to anything should never reach
	// signature validation.
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "auth0|user-42",
		"iss": testIssuer,
		"aud": testAudience,
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	token.Header["kid"] = "kid-1"
	raw, err := token.SignedString([]byte("secret"))
	require.NoError(t, err)

	_, verr := v.Verify(context.Background(), raw)
	assert.Error(t, verr)
	assert.NotEqual(t, KindMissingToken, KindOf(verr))
}
