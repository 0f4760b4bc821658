package apperrors

import (
	"errors"
)

var (
	ErrUserAlreadyExists  = errors.New("user already exists")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid credentials")

	ErrTokenMalformed        = errors.New("token is malformed")
	ErrTokenExpired          = errors.New("token is expired")
	ErrTokenSignatureInvalid = errors.New("token signature is invalid")

	// Token is well formed and signed but has a different kind (access vs refresh)
	ErrTokenKindMismatch = errors.New("token kind mismatch")

	// Refresh token is not registered anymore: rotated, revoked or swept
	ErrRefreshTokenRevoked = errors.New("refresh token revoked or unknown")

	ErrRateLimited     = errors.New("rate limit exceeded")
	ErrLockedOut       = errors.New("too many failed login attempts")
	ErrOriginRejected  = errors.New("request origin rejected")
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrCSRFInvalid     = errors.New("csrf token invalid")
)
