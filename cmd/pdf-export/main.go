package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	_ "go.uber.org/automaxprocs"

	"pdf-export/internal/config"
	"pdf-export/internal/http/server"
	"pdf-export/internal/infra/logging"
	"pdf-export/internal/infra/postgres"
	"pdf-export/internal/infra/ratelimit"
	"pdf-export/internal/tokens"
)

const (
	shutdownTimeout  = 5 * time.Second
	initialLoadLimit = 10 * time.Second
)

func main() {
	cfg := config.Load()
	if err := ensureLogDir(cfg.Logger.File); err != nil {
		logging.Error("Failed to create log directory", "error", err, "file", cfg.Logger.File)
	}
	logging.InitLogger(
		cfg.Logger.File,
		cfg.Logger.MaxSizeMB,
		cfg.Logger.MaxBackups,
		cfg.Logger.MaxAgeDays,
		cfg.Logger.Compress,
		cfg.Logger.Level,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	deps := server.Deps{Config: cfg}

	if cfg.Cache.PDFCacheEnabled && cfg.Cache.RedisHost != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr: cfg.Cache.RedisHost,
			DB:   cfg.Cache.PDFCacheDB,
		})
		defer rdb.Close()
		deps.Redis = rdb
	}

	if cfg.Auth.Enabled {
		deps.Tokens = tokens.NewCache()
		stopTokens := startTokenReloader(ctx, cfg, deps.Tokens)
		defer stopTokens()
	}

	if cfg.Auth.Enabled || cfg.RateLimiter.EnableUserLimiter || cfg.RateLimiter.UserLimit > 0 {
		deps.Store = ratelimit.NewStore(ratelimit.RedisConfig{
			Addr: cfg.Cache.RedisHost,
			DB:   cfg.Cache.RateLimitDB,
		})
	}

	deps.Engine = server.NewEngine(cfg)
	defer deps.Engine.Close()

	logging.Info("Starting PDF export service",
		"addr", cfg.Server.Host+cfg.Server.Port,
		"route", cfg.Server.Route,
		"engine", cfg.PDF.Engine,
		"max_browsers", cfg.PDF.MaxConcurrentBrowsers,
	)

	app := server.New(deps)

	idleConnsClosed := make(chan struct{})
	startServer(app, cfg, idleConnsClosed)
	<-idleConnsClosed
}

// startTokenReloader loads API tokens once and keeps refreshing them until ctx
// is done. Auth stays not ready until a load succeeds. The returned func
// closes the database.
func startTokenReloader(ctx context.Context, cfg config.Config, cache *tokens.Cache) (stop func()) {
	stop = func() {}

	dsn, err := postgres.DSN(cfg.Auth.Postgres)
	if err != nil {
		logging.Error("Invalid auth.postgres settings; API keys cannot be validated", "error", err)
		return stop
	}
	db, err := postgres.Open(dsn)
	if err != nil {
		logging.Error("Failed to open token database", "error", err)
		return stop
	}
	stop = func() { _ = db.Close() }

	reloader := tokens.NewReloader(postgres.NewTokenRepository(db), cache, cfg.Auth.ReloadInterval)

	loadCtx, cancel := context.WithTimeout(ctx, initialLoadLimit)
	defer cancel()
	if err := reloader.LoadOnce(loadCtx); err != nil {
		logging.Error("Failed to load API tokens", "error", err)
	}
	reloader.Start(ctx)
	return stop
}

// startServer starts the Fiber app and blocks until SIGINT or SIGTERM, then
// shuts it down gracefully and closes idleConnsClosed.
func startServer(app *fiber.App, cfg config.Config, idleConnsClosed chan struct{}) {
	go func() {
		if err := app.Listen(cfg.Server.Host + cfg.Server.Port); err != nil {
			logging.Error("Server error", "error", err)
		}
	}()

	sigint := make(chan os.Signal, 1)
	signal.Notify(sigint, syscall.SIGINT, syscall.SIGTERM)
	<-sigint

	logging.Warn("Shutdown signal received, closing server...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		logging.Error("Server forced to shutdown", "error", err)
	}

	close(idleConnsClosed)
	logging.Info("Server stopped cleanly")
}

// ensureLogDir creates the directory of a log file path if it has one.
func ensureLogDir(file string) error {
	if file == "" {
		return nil
	}
	dir := filepath.Dir(file)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
