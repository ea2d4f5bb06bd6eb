package authn

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ClaimSet is the decoded, verified payload of a bearer token.
// Immutable once verification succeeds; constructed and discarded
// within a single request.
type ClaimSet struct {
	Subject   string    `json:"sub"`
	Issuer    string    `json:"iss"`
	Audience  []string  `json:"aud"`
	ExpiresAt time.Time `json:"exp"`
	IssuedAt  time.Time `json:"iat,omitempty"`

	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`

	// Custom holds provider-specific claims not covered by the
	// registered fields above.
	Custom map[string]interface{} `json:"custom,omitempty"`
}

// registered claim names stripped from Custom
var registeredClaimNames = map[string]struct{}{
	"sub": {}, "iss": {}, "aud": {}, "exp": {}, "iat": {}, "nbf": {},
	"jti": {}, "email": {}, "name": {},
}

func newClaimSet(mc jwt.MapClaims) *ClaimSet {
	cs := &ClaimSet{}
	if sub, err := mc.GetSubject(); err == nil {
		cs.Subject = sub
	}
	if iss, err := mc.GetIssuer(); err == nil {
		cs.Issuer = iss
	}
	if aud, err := mc.GetAudience(); err == nil {
		cs.Audience = aud
	}
	if exp, err := mc.GetExpirationTime(); err == nil && exp != nil {
		cs.ExpiresAt = exp.Time
	}
	if iat, err := mc.GetIssuedAt(); err == nil && iat != nil {
		cs.IssuedAt = iat.Time
	}
	if email, ok := mc["email"].(string); ok {
		cs.Email = email
	}
	if name, ok := mc["name"].(string); ok {
		cs.Name = name
	}
	for k, v := range mc {
		if _, reserved := registeredClaimNames[k]; reserved {
			continue
		}
		if cs.Custom == nil {
			cs.Custom = make(map[string]interface{})
		}
		cs.Custom[k] = v
	}
	return cs
}
