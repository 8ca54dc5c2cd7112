package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/odyssey-erp/factory-erp/internal/app"
	"github.com/odyssey-erp/factory-erp/internal/inventory"
	jobmetrics "github.com/odyssey-erp/factory-erp/internal/jobs"
	"github.com/odyssey-erp/factory-erp/internal/platform/cache"
	"github.com/odyssey-erp/factory-erp/internal/platform/db"
	"github.com/odyssey-erp/factory-erp/internal/sales/customers"
	"github.com/odyssey-erp/factory-erp/internal/sales/orders"
	"github.com/odyssey-erp/factory-erp/internal/sales/quotations"
	"github.com/odyssey-erp/factory-erp/internal/shared"
	"github.com/odyssey-erp/factory-erp/jobs"
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

	pool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{MaxConns: cfg.PGMaxConns})
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := jobmetrics.NewMetrics(prometheus.DefaultRegisterer)
	auditLogger := shared.NewAuditLogger(pool)
	numbers := shared.NewNumberer(shared.NewPGSequenceStore(pool), nil)

	inventoryRepo := inventory.NewRepository(pool)
	inventoryService := inventory.NewService(
		inventoryRepo,
		auditLogger,
		numbers,
		cache.NewEntityCache(redisClient, "inventory:item", cfg.CacheTTL).WithLogger(logger),
		nil,
		nil,
		logger,
		inventory.ServiceConfig{AllowNegativeStock: cfg.AllowNegativeStock},
	)

	customerService := customers.NewService(customers.NewRepository(pool), auditLogger)
	orderService := orders.NewService(orders.NewRepository(pool), customerService, numbers, auditLogger, logger)
	quotationService := quotations.NewService(quotations.NewRepository(pool), customerService, orderService, numbers, nil, auditLogger, logger)

	lowStockJob := jobs.NewLowStockScanJob(inventoryRepo, inventoryService, auditLogger, logger, metrics)
	expiryJob := jobs.NewQuotationExpiryJob(quotationService, logger, metrics)

	lowStockTask, err := jobs.NewLowStockScanTask(0)
	if err != nil {
		logger.Error("build low stock task", slog.Any("error", err))
		os.Exit(1)
	}
	expiryTask, err := jobs.NewQuotationExpiryTask(time.Now().UTC())
	if err != nil {
		logger.Error("build quotation expiry task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskInventoryLowStockScan, Handler: lowStockJob.Handle},
			{Type: jobs.TaskQuotationExpiry, Handler: expiryJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.LowStockCron, Task: lowStockTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: cfg.QuotationExpiryCron, Task: expiryTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("starting worker", slog.Int("concurrency", cfg.WorkerConcurrency))
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
