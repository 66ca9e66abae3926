package services

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/zkvault/internal/logging"
	"github.com/dmitrijs2005/zkvault/internal/server/auth"
	"github.com/dmitrijs2005/zkvault/internal/server/config"
	"github.com/dmitrijs2005/zkvault/internal/server/models"
	"github.com/dmitrijs2005/zkvault/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/zkvault/internal/server/repositories/users"
	"github.com/stretchr/testify/require"
)

var (
	hashH1 = strings.Repeat("ab", 32)
	saltS1 = strings.Repeat("cd", 32)
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.SecretKey = "test-signing-secret-0123456789"
	return cfg
}

type fixture struct {
	repos    repomanager.RepositoryManager
	auth     *AuthService
	sessions *SessionService
	clock    *testClock
}

func newFixture(t *testing.T, cfg *config.Config) *fixture {
	t.Helper()
	return newFixtureWithRepos(t, cfg, repomanager.NewMemoryRepositoryManager())
}

func newFixtureWithRepos(t *testing.T, cfg *config.Config, repos repomanager.RepositoryManager) *fixture {
	t.Helper()
	clock := &testClock{t: time.Date(2025, 8, 1, 10, 0, 0, 0, time.UTC)}

	a, err := NewAuthService(repos, cfg, logging.Nop{}, auth.WithClock(clock.Now))
	require.NoError(t, err)

	s := NewSessionService(repos, a, cfg, logging.Nop{}, WithSessionClock(clock.Now))
	return &fixture{repos: repos, auth: a, sessions: s, clock: clock}
}

func (f *fixture) register(t *testing.T, email string) *models.User {
	t.Helper()
	u, err := f.auth.Register(context.Background(), RegisterInput{Email: email, AuthHash: hashH1, Salt: saltS1})
	require.NoError(t, err)
	return u
}

// brokenUsers fails every call with the given error.
type brokenUsers struct {
	err error
}

func (b brokenUsers) Create(context.Context, *models.User) (*models.User, error) { return nil, b.err }
func (b brokenUsers) GetUserByEmail(context.Context, string) (*models.User, error) {
	return nil, b.err
}
func (b brokenUsers) GetByID(context.Context, string) (*models.User, error) { return nil, b.err }

type brokenUsersManager struct {
	*repomanager.MemoryRepositoryManager
	users users.Repository
}

func (m brokenUsersManager) Users() users.Repository { return m.users }
