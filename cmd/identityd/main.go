package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-identity/internal/app"
	"github.com/odyssey-erp/odyssey-identity/internal/observability"
	"github.com/odyssey-erp/odyssey-identity/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-identity/internal/platform/db"
	"github.com/odyssey-erp/odyssey-identity/internal/rbac"
	"github.com/odyssey-erp/odyssey-identity/internal/tenant"
	"github.com/odyssey-erp/odyssey-identity/internal/users"
	"github.com/odyssey-erp/odyssey-identity/jobs"
	"github.com/odyssey-erp/odyssey-identity/migrations"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	if cfg.MigrateOnStart {
		if err := db.Migrate(ctx, dbpool, migrations.FS); err != nil {
			logger.Error("migrate", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("migrations applied")
	}

	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	roleStore := rbac.NewService(dbpool)
	if _, err := rbac.EnsureBuiltins(ctx, roleStore); err != nil {
		logger.Error("ensure builtin roles", slog.Any("error", err))
		os.Exit(1)
	}

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	queue, err := jobs.NewClient(redisOpts)
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := queue.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	stores := app.Stores{
		Users:     users.NewRepository(dbpool),
		Roles:     roleStore,
		Tenants:   tenant.NewCachedDirectory(tenant.NewPGDirectory(dbpool), redisClient, cfg.TenantCacheTTL, logger),
		Ready:     dbpool.Ping,
		Queue:     queue,
		Inspector: inspector,
	}
	metrics := observability.NewMetrics()
	services := app.NewServices(cfg, logger, metrics, stores)
	router := app.NewRouter(app.NewRouterParams(cfg, logger, metrics, stores, services))

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
