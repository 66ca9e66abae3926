package client

import (
	"errors"
	"fmt"
)

var (
	ErrUnavailable    = errors.New("server unavailable")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrSessionRevoked = errors.New("session revoked or expired")
	ErrRateLimited    = errors.New("rate limited")
	ErrNotLoggedIn    = errors.New("not logged in")
)

// APIError is an error envelope returned by the server.
type APIError struct {
	Status     int
	Code       string
	Message    string
	RetryAfter int
}

func (e *APIError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s: %s (retry in %ds)", e.Code, e.Message, e.RetryAfter)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *APIError) Is(target error) bool {
	switch target {
	case ErrSessionRevoked:
		return e.Code == "SESSION_INVALID"
	case ErrRateLimited:
		return e.Status == 429
	case ErrUnauthorized:
		return e.Status == 401
	}
	return false
}
