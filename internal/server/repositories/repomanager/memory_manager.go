package repomanager

import (
	"context"

	"github.com/dmitrijs2005/zkvault/internal/server/repositories/memory"
	"github.com/dmitrijs2005/zkvault/internal/server/repositories/sessions"
	"github.com/dmitrijs2005/zkvault/internal/server/repositories/users"
)

// MemoryRepositoryManager keeps everything in process memory. Data does not
// survive a restart.
type MemoryRepositoryManager struct {
	store *memory.Store
}

func NewMemoryRepositoryManager() *MemoryRepositoryManager {
	return &MemoryRepositoryManager{store: memory.NewStore()}
}

func (m *MemoryRepositoryManager) RunMigrations(context.Context) error { return nil }

func (m *MemoryRepositoryManager) Users() users.Repository { return m.store }

func (m *MemoryRepositoryManager) Sessions() sessions.Store { return m.store.Sessions() }

func (m *MemoryRepositoryManager) Ping(context.Context) error { return nil }

func (m *MemoryRepositoryManager) Close() error { return nil }
