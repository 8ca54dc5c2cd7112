package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/factory-erp/cmd/factory/cli"
	"github.com/odyssey-erp/factory-erp/internal/app"
	"github.com/odyssey-erp/factory-erp/internal/inventory"
	"github.com/odyssey-erp/factory-erp/internal/masterdata/suppliers"
	"github.com/odyssey-erp/factory-erp/internal/masterdata/warehouses"
	"github.com/odyssey-erp/factory-erp/internal/observability"
	"github.com/odyssey-erp/factory-erp/internal/platform/cache"
	"github.com/odyssey-erp/factory-erp/internal/platform/db"
	"github.com/odyssey-erp/factory-erp/internal/platform/lock"
	"github.com/odyssey-erp/factory-erp/internal/procurement"
	"github.com/odyssey-erp/factory-erp/internal/production"
	"github.com/odyssey-erp/factory-erp/internal/rbac"
	"github.com/odyssey-erp/factory-erp/internal/reports"
	"github.com/odyssey-erp/factory-erp/internal/roles"
	"github.com/odyssey-erp/factory-erp/internal/sales/customers"
	"github.com/odyssey-erp/factory-erp/internal/sales/invoices"
	"github.com/odyssey-erp/factory-erp/internal/sales/orders"
	"github.com/odyssey-erp/factory-erp/internal/sales/quotations"
	"github.com/odyssey-erp/factory-erp/internal/shared"
	"github.com/odyssey-erp/factory-erp/internal/visitors"
	"github.com/odyssey-erp/factory-erp/jobs"
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

	if len(os.Args) > 1 && os.Args[1] == "jobs" {
		if err := runJobsCommand(ctx, cfg, os.Args[2:]); err != nil {
			logger.Error("jobs command", slog.Any("error", err))
			os.Exit(1)
		}
		return
	}

	dbpool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{MaxConns: cfg.PGMaxConns})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

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

	metrics := observability.NewMetrics()

	auditLogger := shared.NewAuditLogger(dbpool)
	approvalRecorder := shared.NewApprovalRecorder(dbpool, logger)
	idempotencyStore := shared.NewIdempotencyStore(dbpool)
	numbers := shared.NewNumberer(shared.NewPGSequenceStore(dbpool), nil)
	locker := lock.New(redisClient, cfg.LockTTL)

	rbacService := rbac.NewService(rbac.NewPGStore(dbpool), cache.NewEntityCache(redisClient, "rbac", cfg.CacheTTL).WithLogger(logger))
	rbacMiddleware := rbac.Middleware{Service: rbacService, Logger: logger}

	inventoryService := inventory.NewService(
		inventory.NewRepository(dbpool),
		auditLogger,
		numbers,
		cache.NewEntityCache(redisClient, "inventory:item", cfg.CacheTTL).WithLogger(logger),
		idempotencyStore,
		metrics,
		logger,
		inventory.ServiceConfig{AllowNegativeStock: cfg.AllowNegativeStock},
	)

	productionService := production.NewService(production.NewRepository(dbpool), inventoryService, locker, numbers, approvalRecorder, auditLogger, logger)

	supplierService := suppliers.NewService(suppliers.NewRepository(dbpool))
	warehouseService := warehouses.NewService(warehouses.NewRepository(dbpool))
	procurementService := procurement.NewService(procurement.NewRepository(dbpool), procurement.Deps{
		Stock:      inventoryService,
		Suppliers:  supplierService,
		Warehouses: warehouseService,
		Locker:     locker,
		Numbers:    numbers,
		Approvals:  approvalRecorder,
		Audit:      auditLogger,
		Logger:     logger,
	})

	customerService := customers.NewService(customers.NewRepository(dbpool), auditLogger)
	orderService := orders.NewService(orders.NewRepository(dbpool), customerService, numbers, auditLogger, logger)
	quotationService := quotations.NewService(quotations.NewRepository(dbpool), customerService, orderService, numbers, approvalRecorder, auditLogger, logger)
	invoiceService := invoices.NewService(invoices.NewRepository(dbpool), customerService, orderService, numbers, auditLogger, logger)

	visitorService := visitors.NewService(visitors.NewRepository(dbpool), numbers, auditLogger, logger)
	roleService := roles.NewService(roles.NewRepository(dbpool), rbacService, auditLogger, logger)
	reportService := reports.NewService(inventoryService, cfg.ReportLanguage(), logger)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:               logger,
		Config:               cfg,
		Metrics:              metrics,
		DB:                   dbpool,
		InventoryHandler:     inventory.NewHandler(logger, inventoryService, rbacMiddleware),
		ProductionHandler:    production.NewHandler(logger, productionService, rbacMiddleware),
		PurchaseOrderHandler: procurement.NewHandler(logger, procurementService, rbacMiddleware),
		QuotationHandler:     quotations.NewHandler(logger, quotationService, rbacMiddleware),
		CustomerOrderHandler: orders.NewHandler(logger, orderService, rbacMiddleware),
		InvoiceHandler:       invoices.NewHandler(logger, invoiceService, rbacMiddleware),
		CustomerHandler:      customers.NewHandler(logger, customerService, rbacMiddleware),
		SupplierHandler:      suppliers.NewHandler(logger, supplierService, rbacMiddleware),
		WarehouseHandler:     warehouses.NewHandler(logger, warehouseService, rbacMiddleware),
		VisitorHandler:       visitors.NewHandler(logger, visitorService, rbacMiddleware),
		RolesHandler:         roles.NewHandler(logger, roleService, rbacMiddleware),
		ReportHandler:        reports.NewHandler(logger, reportService, rbacMiddleware),
		JobHandler:           jobs.NewHandler(inspector, logger),
	})

	server := &http.Server{
		Addr:              cfg.AppAddr,
		Handler:           router,
		ReadTimeout:       cfg.AppReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.String("env", cfg.AppEnv))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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

// runJobsCommand handles `factory jobs trigger <name> [company]` and `factory jobs stats`.
func runJobsCommand(ctx context.Context, cfg *app.Config, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: factory jobs trigger <name> [company-id] | factory jobs stats")
	}
	jobsCLI := cli.NewJobsCLI(cfg.RedisAddr)
	defer jobsCLI.Close()

	switch args[0] {
	case "trigger":
		if len(args) < 2 {
			return errors.New("usage: factory jobs trigger <name> [company-id]")
		}
		var companyID int64
		if len(args) > 2 {
			id, err := strconv.ParseInt(args[2], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid company id %q", args[2])
			}
			companyID = id
		}
		info, err := jobsCLI.Trigger(ctx, args[1], companyID)
		if err != nil {
			return err
		}
		fmt.Printf("enqueued %s as %s on %s\n", info.Type, info.ID, info.Queue)
	case "stats":
		stats, err := jobsCLI.InspectQueue(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("queue=%s pending=%d active=%d scheduled=%d retry=%d\n",
			stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry)
	default:
		return fmt.Errorf("unknown jobs command %q", args[0])
	}
	return nil
}
