package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-identity/internal/app"
	jobmetrics "github.com/odyssey-erp/odyssey-identity/internal/jobs"
	"github.com/odyssey-erp/odyssey-identity/internal/platform/db"
	"github.com/odyssey-erp/odyssey-identity/internal/users"
	"github.com/odyssey-erp/odyssey-identity/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
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

	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	sweeper := users.NewRepository(pool)
	metrics := jobmetrics.NewMetrics(nil)
	credentialsJob := jobs.NewCredentialsExpireJob(sweeper, cfg.CredentialMaxAge, logger, metrics)
	accountsJob := jobs.NewAccountsExpireJob(sweeper, logger, metrics)

	credentialsTask, err := jobs.NewCredentialsExpireTask(0)
	if err != nil {
		logger.Error("build credentials task", slog.Any("error", err))
		os.Exit(1)
	}
	accountsTask, err := jobs.NewAccountsExpireTask()
	if err != nil {
		logger.Error("build accounts task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB},
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers:    jobs.SweepHandlers(credentialsJob, accountsJob),
		Cron: []jobs.CronRegistration{
			{Spec: "15 * * * *", Task: accountsTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "30 1 * * *", Task: credentialsTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("worker started", slog.Int("concurrency", cfg.WorkerConcurrency))
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
