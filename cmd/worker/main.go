package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/coldharbor-fpm/coldharbor/internal/app"
	"github.com/coldharbor-fpm/coldharbor/internal/observability"
	"github.com/coldharbor-fpm/coldharbor/internal/platform/cache"
	"github.com/coldharbor-fpm/coldharbor/internal/platform/db"
	"github.com/coldharbor-fpm/coldharbor/internal/shared"
	"github.com/coldharbor-fpm/coldharbor/internal/stock"
	"github.com/coldharbor-fpm/coldharbor/internal/storage"
	"github.com/coldharbor-fpm/coldharbor/jobs"
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

	pool, err := db.Connect(ctx, cfg.PGDSN, cfg.PGConnectAttempts)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient := cache.New(cfg.RedisAddr)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Error("redis ping", slog.Any("error", err))
		os.Exit(1)
	}

	metrics := observability.NewMetrics()

	storageRepo := storage.NewRepository(pool)
	storageService := storage.NewService(storageRepo, logger)
	reconciler := jobs.NewUsageReconciler(storageService, redisClient, metrics, logger)

	stockCache := stock.NewCache(redisClient, cfg.StockCacheTTL)
	stockRepo := stock.NewRepository(pool)
	stockService := stock.NewService(stockRepo, stockCache, metrics, logger)
	warmer := jobs.NewStockWarmer(stockService, logger)

	idempotencyStore := shared.NewIdempotencyStore(pool)
	cleaner := jobs.NewIdempotencyCleaner(idempotencyStore, cfg.IdempotencyRetention, logger)

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskUsageReconcile, Handler: reconciler.Handle},
			{Type: jobs.TaskStockCacheWarmup, Handler: warmer.Handle},
			{Type: jobs.TaskIdempotencyCleanup, Handler: cleaner.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: fmt.Sprintf("@every %s", cfg.UsageReconcileInterval), Task: jobs.NewUsageReconcileTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "*/10 * * * *", Task: jobs.NewStockCacheWarmupTask(), Options: []asynq.Option{asynq.MaxRetry(1)}},
			{Spec: "45 2 * * *", Task: jobs.NewIdempotencyCleanupTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
