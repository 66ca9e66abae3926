// Package repomanager owns the storage backend for the server: it opens the
// database, runs migrations and vends the user and session stores.
package repomanager

import (
	"context"

	"github.com/dmitrijs2005/zkvault/internal/server/repositories/sessions"
	"github.com/dmitrijs2005/zkvault/internal/server/repositories/users"
)

type RepositoryManager interface {
	RunMigrations(ctx context.Context) error
	Users() users.Repository
	Sessions() sessions.Store
	Ping(ctx context.Context) error
	Close() error
}
