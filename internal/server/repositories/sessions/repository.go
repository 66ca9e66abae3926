// Package sessions declares the session store: one row per authenticated
// device, looked up by id or refresh token and soft-revoked via is_active.
package sessions

import (
	"context"
	"time"

	"github.com/dmitrijs2005/zkvault/internal/server/models"
)

// Repository defines the session operations. Lookups return
// common.ErrorNotFound when nothing matches; storage failures are reported as
// common.ErrStorageUnavailable and are never retried.
//
// Methods that depend on the current time take it as an argument so that
// callers own the clock.
type Repository interface {
	// Create inserts a new session.
	Create(ctx context.Context, s *models.Session) error

	// FindByID returns a session regardless of its state.
	FindByID(ctx context.Context, id string) (*models.Session, error)

	// FindByUserID returns every session of the user, newest first,
	// including revoked and expired ones.
	FindByUserID(ctx context.Context, userID string) ([]*models.Session, error)

	// FindActive returns the usable sessions of the user, oldest first.
	FindActive(ctx context.Context, userID string, now time.Time) ([]*models.Session, error)

	// FindByRefreshToken matches only active and unexpired sessions.
	FindByRefreshToken(ctx context.Context, token string, now time.Time) (*models.Session, error)

	// Revoke marks a session inactive. Revoking an unknown or already
	// revoked session is not an error.
	Revoke(ctx context.Context, id string) error

	// RevokeOldestSession deactivates the oldest usable session of the user
	// in a single operation and returns its id, or common.ErrorNotFound.
	RevokeOldestSession(ctx context.Context, userID string, now time.Time) (string, error)

	// CountActive counts usable sessions of the user.
	CountActive(ctx context.Context, userID string, now time.Time) (int, error)

	// CleanExpired hard-deletes sessions past expires_at regardless of
	// is_active and returns how many rows went away.
	CleanExpired(ctx context.Context, now time.Time) (int64, error)
}

// Store is a Repository that can serialise work per user. WithUserLock runs
// fn with a Repository whose calls are isolated from any other WithUserLock
// for the same user until fn returns.
type Store interface {
	Repository
	WithUserLock(ctx context.Context, userID string, fn func(ctx context.Context, repo Repository) error) error
}
