// Package server wires the zkvault server together: storage, the Redis-backed
// rate limiter, auth and session services, the HTTP API, the gRPC health
// endpoint and the expired-session cleanup worker.
package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/zkvault/internal/logging"
	"github.com/dmitrijs2005/zkvault/internal/server/config"
	"github.com/dmitrijs2005/zkvault/internal/server/httpapi"
	"github.com/dmitrijs2005/zkvault/internal/server/ratelimit"
	"github.com/dmitrijs2005/zkvault/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/zkvault/internal/server/services"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	gs "github.com/dmitrijs2005/zkvault/internal/server/grpc"
)

type App struct {
	config   *config.Config
	logger   logging.Logger
	repos    repomanager.RepositoryManager
	rdb      redis.UniversalClient
	limiter  *ratelimit.Limiter
	sessions *services.SessionService
	http     *httpapi.Server
	health   *gs.HealthServer
}

// NewApp builds every component from c. Storage is opened and migrated here
// so a broken database fails startup rather than the first request.
func NewApp(ctx context.Context, c *config.Config) (*App, error) {

	logger, err := logging.New(c.LogBackend)
	if err != nil {
		return nil, fmt.Errorf("logger init error: %w", err)
	}

	repos, err := openRepositories(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	if err := repos.RunMigrations(ctx); err != nil {
		_ = repos.Close()
		return nil, fmt.Errorf("migration error: %w", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     c.RedisAddr,
		Password: c.RedisPassword,
		DB:       c.RedisDB,
	})
	limiter := ratelimit.New(rdb)

	as, err := services.NewAuthService(repos, c, logger)
	if err != nil {
		_ = repos.Close()
		_ = rdb.Close()
		return nil, err
	}
	ss := services.NewSessionService(repos, as, c, logger)

	gin.SetMode(gin.ReleaseMode)
	h := httpapi.NewHandler(as, ss, limiter, c.AdminPassword, logger)
	router := httpapi.NewRouter(h, c.CORSOrigins, logger)

	health := gs.NewHealthServer(c.EndpointAddrGRPC, logger, c.HealthProbeInterval, map[string]gs.Pinger{
		"zkvault.storage":   repos,
		"zkvault.ratelimit": limiter,
	})

	return &App{
		config:   c,
		logger:   logger,
		repos:    repos,
		rdb:      rdb,
		limiter:  limiter,
		sessions: ss,
		http:     httpapi.NewServer(c.EndpointAddrHTTP, router, logger),
		health:   health,
	}, nil
}

func openRepositories(ctx context.Context, c *config.Config) (repomanager.RepositoryManager, error) {
	switch c.Storage {
	case config.StorageMemory:
		return repomanager.NewMemoryRepositoryManager(), nil
	case config.StoragePostgres:
		return repomanager.OpenPostgres(ctx, c.DatabaseDSN)
	default:
		return nil, fmt.Errorf("unknown storage %q", c.Storage)
	}
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// runCleanup purges expired sessions every CleanupInterval until ctx ends.
func (app *App) runCleanup(ctx context.Context) {
	ticker := time.NewTicker(app.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := app.sessions.CleanExpired(ctx); err != nil && !errors.Is(err, context.Canceled) {
				app.logger.Error(ctx, "session cleanup failed", "error", err)
			}
		}
	}
}

func (app *App) runServer(ctx context.Context, cancelFunc context.CancelFunc, name string, run func(context.Context) error) {
	if err := run(ctx); err != nil {
		app.logger.Error(ctx, "server failed", "server", name, "error", err)
		cancelFunc()
	}
}

// Run blocks until ctx is cancelled, a signal arrives or a server fails,
// then releases storage and the Redis client.
func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...", "storage", app.config.Storage)

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(3)
	go func() {
		defer wg.Done()
		app.runServer(ctx, cancelFunc, "http", app.http.Run)
	}()
	go func() {
		defer wg.Done()
		app.runServer(ctx, cancelFunc, "grpc", app.health.Run)
	}()
	go func() {
		defer wg.Done()
		app.runCleanup(ctx)
	}()

	wg.Wait()

	app.close(context.Background())
}

func (app *App) close(ctx context.Context) {
	if err := app.rdb.Close(); err != nil {
		app.logger.Warn(ctx, "redis close failed", "error", err)
	}
	if err := app.repos.Close(); err != nil {
		app.logger.Warn(ctx, "storage close failed", "error", err)
	}
	app.logger.Info(ctx, "App stopped")
}
