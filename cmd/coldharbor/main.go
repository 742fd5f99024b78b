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

	"github.com/coldharbor-fpm/coldharbor/internal/app"
	"github.com/coldharbor-fpm/coldharbor/internal/ledger"
	"github.com/coldharbor-fpm/coldharbor/internal/masterdata"
	"github.com/coldharbor-fpm/coldharbor/internal/observability"
	"github.com/coldharbor-fpm/coldharbor/internal/orders"
	"github.com/coldharbor-fpm/coldharbor/internal/platform/cache"
	"github.com/coldharbor-fpm/coldharbor/internal/platform/db"
	"github.com/coldharbor-fpm/coldharbor/internal/shared"
	"github.com/coldharbor-fpm/coldharbor/internal/sorting"
	"github.com/coldharbor-fpm/coldharbor/internal/stock"
	"github.com/coldharbor-fpm/coldharbor/internal/storage"
	"github.com/coldharbor-fpm/coldharbor/internal/transfer"
	"github.com/coldharbor-fpm/coldharbor/jobs"
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

	dbpool, err := db.Connect(ctx, cfg.PGDSN, cfg.PGConnectAttempts)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient := cache.New(cfg.RedisAddr)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	seq, err := ledger.NewSequence(cfg.SnowflakeNode)
	if err != nil {
		logger.Error("init sequence", slog.Any("error", err))
		os.Exit(1)
	}

	auditLogger := shared.NewAuditLogger(dbpool, logger)
	approvalRecorder := shared.NewApprovalRecorder(dbpool, logger)
	idempotencyStore := shared.NewIdempotencyStore(dbpool)
	metrics := observability.NewMetrics()

	stockCache := stock.NewCache(redisClient, cfg.StockCacheTTL)
	stockRepo := stock.NewRepository(dbpool)
	stockService := stock.NewService(stockRepo, stockCache, metrics, logger)
	stockHandler := stock.NewHandler(logger, stockService)

	storageRepo := storage.NewRepository(dbpool)
	storageService := storage.NewService(storageRepo, logger)
	storageHandler := storage.NewHandler(logger, storageService)

	transferRepo := transfer.NewRepository(dbpool)
	transferService := transfer.NewService(transferRepo, seq, auditLogger, approvalRecorder, stockService, metrics, logger)
	transferHandler := transfer.NewHandler(logger, transferService)

	ordersRepo := orders.NewRepository(dbpool)
	ordersService := orders.NewService(ordersRepo, auditLogger, stockService, metrics, logger)
	ordersHandler := orders.NewHandler(logger, ordersService)

	sortingRepo := sorting.NewRepository(dbpool)
	sortingService := sorting.NewService(sortingRepo, seq, idempotencyStore, auditLogger, stockService, metrics, logger)
	sortingHandler := sorting.NewHandler(logger, sortingService)

	masterdataRepo := masterdata.NewRepository(dbpool)
	masterdataService := masterdata.NewService(masterdataRepo)
	masterdataHandler := masterdata.NewHandler(logger, masterdataService)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobsClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init jobs client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobsClient.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()
	jobsHandler := jobs.NewHandler(inspector, jobsClient, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		StockHandler:      stockHandler,
		StorageHandler:    storageHandler,
		TransferHandler:   transferHandler,
		OrdersHandler:     ordersHandler,
		SortingHandler:    sortingHandler,
		MasterDataHandler: masterdataHandler,
		JobsHandler:       jobsHandler,
		Metrics:           metrics,
	})

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
