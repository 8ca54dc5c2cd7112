package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/factory-erp/internal/observability"
	"github.com/odyssey-erp/factory-erp/internal/platform/httpx"
)

// RouteMounter is implemented by every module handler.
type RouteMounter interface {
	MountRoutes(r chi.Router)
}

// HealthChecker reports whether a backing store is reachable.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger  *slog.Logger
	Config  *Config
	Metrics *observability.Metrics
	DB      HealthChecker

	InventoryHandler     RouteMounter
	ProductionHandler    RouteMounter
	PurchaseOrderHandler RouteMounter
	QuotationHandler     RouteMounter
	CustomerOrderHandler RouteMounter
	InvoiceHandler       RouteMounter
	CustomerHandler      RouteMounter
	SupplierHandler      RouteMounter
	WarehouseHandler     RouteMounter
	VisitorHandler       RouteMounter
	RolesHandler         RouteMounter
	ReportHandler        RouteMounter
	JobHandler           RouteMounter
}

// NewRouter constructs the chi.Router with the API under /api.
func NewRouter(params RouterParams) http.Handler {
	logger := params.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if params.DB != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := params.DB.Ping(ctx); err != nil {
				logger.Warn("health check", slog.Any("error", err))
				httpx.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
				return
			}
		}
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Route("/api", func(api chi.Router) {
		api.Use(TenantMiddleware(logger))
		mount := func(prefix string, h RouteMounter) {
			if h != nil {
				api.Route(prefix, h.MountRoutes)
			}
		}
		mount("/inventory", params.InventoryHandler)
		mount("/production-orders", params.ProductionHandler)
		mount("/purchase-orders", params.PurchaseOrderHandler)
		mount("/quotations", params.QuotationHandler)
		mount("/customer-orders", params.CustomerOrderHandler)
		mount("/invoices", params.InvoiceHandler)
		mount("/customers", params.CustomerHandler)
		mount("/suppliers", params.SupplierHandler)
		mount("/warehouses", params.WarehouseHandler)
		mount("/visitors", params.VisitorHandler)
		mount("/roles", params.RolesHandler)
		mount("/reports", params.ReportHandler)
		mount("/jobs", params.JobHandler)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusNotFound, httpx.Envelope{
			Message: "route not found",
			Error:   &httpx.ErrorBody{Code: "NOT_FOUND"},
		})
	})
	return r
}
