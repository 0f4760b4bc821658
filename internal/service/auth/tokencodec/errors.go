package tokencodec

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/nkiryanov/authcore/internal/apperrors"
)

type Reason string

const (
	ReasonMalformed Reason = "malformed"
	ReasonExpired   Reason = "expired"
	ReasonSignature Reason = "signature"
)

type VerificationError struct {
	Reason Reason
	Err    error
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("token verification failed (%s): %v", e.Reason, e.Err)
}

// Unwrap exposes both the app sentinel matching the reason and the underlying cause
func (e *VerificationError) Unwrap() []error {
	return []error{e.sentinel(), e.Err}
}

func (e *VerificationError) sentinel() error {
	switch e.Reason {
	case ReasonExpired:
		return apperrors.ErrTokenExpired
	case ReasonSignature:
		return apperrors.ErrTokenSignatureInvalid
	default:
		return apperrors.ErrTokenMalformed
	}
}

// Map jwt library errors onto verification reasons
// Signature is checked by the library before claims, so an expired token always has a valid signature
func classify(err error) *VerificationError {
	switch {
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return &VerificationError{Reason: ReasonSignature, Err: err}
	case errors.Is(err, jwt.ErrTokenExpired):
		return &VerificationError{Reason: ReasonExpired, Err: err}
	default:
		return &VerificationError{Reason: ReasonMalformed, Err: err}
	}
}
