package common

import "time"

// AuthorizationHeaderName carries "Bearer <token>" on session-bound requests.
const AuthorizationHeaderName = "Authorization"

// AdminPasswordHeaderName carries the admin password on admin requests.
const AdminPasswordHeaderName = "X-Admin-Password"

const (
	// DefaultMaxDevices is the number of concurrently active sessions per user.
	DefaultMaxDevices = 3
	// DefaultAccessTokenTTL is the lifetime of a bearer access token.
	DefaultAccessTokenTTL = 15 * time.Minute
	// DefaultSessionTTL is the absolute lifetime of a session row.
	DefaultSessionTTL = 7 * 24 * time.Hour
	// SaltSize is the number of random bytes in a salt (hex-encoded on the wire).
	SaltSize = 32
)
