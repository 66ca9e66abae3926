// Package common defines shared constants and sentinel errors used across
// server and client layers of zkvault. Callers should use errors.Is to
// match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound         = errors.New("not found")
	ErrAlreadyExists      = errors.New("already exists")
	ErrStorageUnavailable = errors.New("storage unavailable")

	// Service-level errors (generic/internal flow control).
	ErrorInternal      = errors.New("internal error")
	ErrorUnauthorized  = errors.New("unauthorized")
	ErrForbidden       = errors.New("forbidden")
	ErrVersionConflict = errors.New("version conflict")

	// Credential errors. The message is the only thing a client ever sees,
	// for both unknown emails and wrong hashes.
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrRegistrationFailed = errors.New("registration failed")

	// Token and session lifecycle errors.
	ErrInvalidToken        = errors.New("invalid or expired token")
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	ErrSessionInvalid      = errors.New("session revoked or expired")
	ErrCannotRevokeSelf    = errors.New("cannot revoke current session")
	ErrNoSession           = errors.New("no session bound to token")

	// Startup errors.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrValidation is matched by every *ValidationError.
	ErrValidation = errors.New("validation error")
)

// ValidationError describes malformed client input. Code is a stable
// machine-readable identifier surfaced to clients (e.g. INVALID_EMAIL).
type ValidationError struct {
	Code    string
	Message string
}

func NewValidationError(code, message string) *ValidationError {
	return &ValidationError{Code: code, Message: message}
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}
