package reports

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/factory-erp/internal/platform/httpx"
	"github.com/odyssey-erp/factory-erp/internal/rbac"
	"github.com/odyssey-erp/factory-erp/internal/shared"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.rbac.Require(rbac.ModuleReports, rbac.ActionView)).Get("/stock-valuation", h.StockValuation)
	r.With(h.rbac.Require(rbac.ModuleReports, rbac.ActionExport)).Get("/stock-valuation.xlsx", h.ExportStockValuation)
}

func valuationRequest(r *http.Request) (ValuationRequest, error) {
	q := r.URL.Query()
	req := ValuationRequest{Category: q.Get("category"), IncludeInactive: q.Get("includeInactive") == "true"}
	if raw := q.Get("warehouseId"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			return req, shared.Validation("invalid warehouseId")
		}
		req.WarehouseID = id
	}
	return req, nil
}

func (h *Handler) StockValuation(w http.ResponseWriter, r *http.Request) {
	req, err := valuationRequest(r)
	if err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	v, err := h.service.StockValuation(r.Context(), req)
	if err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	httpx.OK(w, "stock valuation generated", v)
}

func (h *Handler) ExportStockValuation(w http.ResponseWriter, r *http.Request) {
	req, err := valuationRequest(r)
	if err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	f, name, err := h.service.StockValuationWorkbook(r.Context(), req)
	if err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	defer f.Close()
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	if err := f.Write(w); err != nil {
		h.logger.Error("write stock valuation", slog.Any("error", err))
	}
}
