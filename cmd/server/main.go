package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/givers/message-service/internal/cache"
	"github.com/givers/message-service/internal/config"
	"github.com/givers/message-service/internal/handler"
	"github.com/givers/message-service/internal/logging"
	"github.com/givers/message-service/internal/repository"
	"github.com/givers/message-service/internal/service"
	"github.com/givers/message-service/pkg/auth"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_FILE"), "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logging.Setup("INFO")
		logging.Fatal("invalid configuration", "error", err)
	}
	logging.Setup(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, db, closeStore := openStore(ctx, cfg)
	defer closeStore()

	// An empty REDIS_ADDR disables the message cache.
	if cfg.Cache.RedisAddr != "" {
		rdb, err := cache.NewClient(ctx, cfg.Cache.RedisAddr)
		if err != nil {
			logging.Fatal("failed to connect to redis", "addr", cfg.Cache.RedisAddr, "error", err)
		}
		defer rdb.Close()
		repo = cache.New(repo, rdb, cfg.Cache.TTL)
		slog.Info("message cache enabled", "addr", cfg.Cache.RedisAddr, "ttl", cfg.Cache.TTL)
	}

	var limiter *handler.RateLimiter
	if cfg.RateLimitPerMinute > 0 {
		limiter = handler.NewRateLimiter(ctx, cfg.RateLimitPerMinute)
	}

	router := handler.NewRouter(handler.RouterConfig{
		Messages:       service.NewMessageService(repo),
		DB:             db,
		Authenticator:  newAuthenticator(cfg.Auth),
		FrontendURL:    cfg.FrontendURL,
		RequestTimeout: cfg.RequestTimeout,
		MetricsEnabled: cfg.MetricsEnabled,
		SubmitLimiter:  limiter,
	})

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		slog.Info("server listening", "addr", server.Addr, "driver", cfg.Database.Driver, "auth_mode", cfg.Auth.Mode)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Fatal("server error", "error", err)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
}

// openStore returns the configured message store, the DB used for health checks and a
// close func.
func openStore(ctx context.Context, cfg *config.Config) (repository.MessageRepository, repository.DB, func()) {
	switch cfg.Database.Driver {
	case config.DriverSQLite:
		store, err := repository.OpenSQLite(ctx, cfg.Database.SQLitePath, nil)
		if err != nil {
			logging.Fatal("failed to open sqlite store", "path", cfg.Database.SQLitePath, "error", err)
		}
		return store, store, func() { _ = store.Close() }
	default:
		pool, err := repository.NewPool(ctx, cfg.Database.URL)
		if err != nil {
			logging.Fatal("failed to connect to database", "error", err)
		}
		return repository.NewPgMessageRepository(pool, nil), pool, pool.Close
	}
}

func newAuthenticator(cfg config.AuthConfig) auth.Authenticator {
	switch cfg.Mode {
	case config.AuthModeHeader:
		return auth.HeaderAuthenticator{}
	case config.AuthModeDev:
		slog.Warn("AUTH_MODE=dev: every request is treated as an admin")
		return auth.DevAuthenticator{}
	default:
		return auth.NewJWTAuthenticator(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience)
	}
}
