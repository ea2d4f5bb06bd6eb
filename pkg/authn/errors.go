package authn

import (
	"errors"
	"fmt"
)

// FailureKind classifies token verification failures.
type FailureKind string

const (
	KindMissingToken      FailureKind = "missing_token"
	KindMalformedToken    FailureKind = "malformed_token"
	KindUnknownSigningKey FailureKind = "unknown_signing_key"
	KindSignatureInvalid  FailureKind = "signature_invalid"
	KindExpired           FailureKind = "expired"
	KindAudienceMismatch  FailureKind = "audience_mismatch"
	KindIssuerMismatch    FailureKind = "issuer_mismatch"
)

// VerificationError is a typed token verification failure. Any failure
// short-circuits verification with no partial success.
type VerificationError struct {
	Kind FailureKind
	Err  error
}

func (e *VerificationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("token verification failed (%s): %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("token verification failed (%s)", e.Kind)
}

func (e *VerificationError) Unwrap() error {
	return e.Err
}

// KindOf returns the failure kind of err, or an empty kind when err is
// not a VerificationError.
func KindOf(err error) FailureKind {
	var verr *VerificationError
	if errors.As(err, &verr) {
		return verr.Kind
	}
	return ""
}

// Key resolver failures. ErrDiscoveryUnavailable wraps the underlying
// transport error; callers must not surface it to clients verbatim.
var (
	ErrKeyNotFound          = errors.New("signing key not found")
	ErrDiscoveryUnavailable = errors.New("key discovery endpoint unavailable")
)

// ErrUserNotFound is returned by UserStore implementations when the
// token subject has no local account.
var ErrUserNotFound = errors.New("user not found")
