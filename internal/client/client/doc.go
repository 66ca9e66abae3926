// Package client talks to the zkvault HTTP API.
//
// HTTPClient keeps the access and refresh tokens of the current session. A
// request answered with INVALID_TOKEN is retried once after a refresh, so an
// expired access token is invisible to callers. A revoked session surfaces as
// ErrSessionRevoked and is never refreshed.
//
// Error codes sent by the server are exposed as *APIError; common conditions
// also match the sentinels in errors.go via errors.Is.
package client
