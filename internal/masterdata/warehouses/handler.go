package warehouses

import (
	"log/slog"
	"net/http"

	"github.com/odyssey-erp/factory-erp/internal/masterdata/shared"
	"github.com/odyssey-erp/factory-erp/internal/platform/httpx"
	"github.com/odyssey-erp/factory-erp/internal/rbac"
	appshared "github.com/odyssey-erp/factory-erp/internal/shared"
)

type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

type warehouseRequest struct {
	Code    string `json:"code" validate:"required,max=32"`
	Name    string `json:"name" validate:"required,max=200"`
	Address string `json:"address"`
	Manager string `json:"manager" validate:"max=120"`
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	filters := shared.FiltersFromQuery(r.URL.Query())
	items, total, err := h.service.List(r.Context(), filters)
	if err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	httpx.OK(w, "warehouses fetched", appshared.Paged[Warehouse]{
		Items:      items,
		Pagination: appshared.NewPagination(filters.Page, filters.Limit, total),
	})
}

func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	wh, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	httpx.OK(w, "warehouse fetched", wh)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req warehouseRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	created, err := h.service.Create(r.Context(), Warehouse{Code: req.Code, Name: req.Name, Address: req.Address, Manager: req.Manager})
	if err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	httpx.Created(w, "warehouse created", created)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	var req warehouseRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	updated, err := h.service.Update(r.Context(), id, Warehouse{Code: req.Code, Name: req.Name, Address: req.Address, Manager: req.Manager})
	if err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	httpx.OK(w, "warehouse updated", updated)
}

func (h *Handler) Deactivate(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	if err := h.service.SetActive(r.Context(), id, false); err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	httpx.OK(w, "warehouse deactivated", nil)
}
