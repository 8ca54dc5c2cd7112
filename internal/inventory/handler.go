package inventory

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/factory-erp/internal/platform/httpx"
	"github.com/odyssey-erp/factory-erp/internal/rbac"
	"github.com/odyssey-erp/factory-erp/internal/shared"
)

// Handler wires HTTP endpoints for inventory module.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler constructs inventory handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.ModuleInventory, rbac.ActionView))
		r.Get("/", h.list)
		r.Get("/stats", h.stats)
		r.Get("/search", h.search)
		r.Get("/{id}", h.get)
		r.Get("/{id}/movements", h.movements)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.ModuleInventory, rbac.ActionCreate))
		r.Post("/", h.create)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.ModuleInventory, rbac.ActionEdit))
		r.Put("/{id}", h.update)
		r.Post("/{id}/reserve", h.reserve)
		r.Post("/{id}/release", h.release)
		r.Post("/{id}/stock", h.updateStock)
		r.Post("/{id}/transfer", h.transfer)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.ModuleInventory, rbac.ActionApprove))
		r.Post("/movements/{movementId}/approve", h.approveMovement)
		r.Post("/movements/{movementId}/reject", h.rejectMovement)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.ModuleInventory, rbac.ActionDelete))
		r.Delete("/{id}", h.deactivate)
	})
}

type quantityRequest struct {
	Quantity decimal.Decimal `json:"quantity"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{
		Search:   q.Get("search"),
		Category: q.Get("category"),
		LowStock: q.Get("lowStock") == "true",
	}
	if raw := q.Get("warehouseId"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			httpx.Error(w, h.logger, shared.Validation("invalid warehouseId"))
			return
		}
		filter.WarehouseID = id
	}
	if raw := q.Get("isActive"); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			httpx.Error(w, h.logger, shared.Validation("invalid isActive"))
			return
		}
		filter.Active = &active
	}
	page, err := h.service.ListItems(r.Context(), filter, shared.PageFromQuery(q))
	if err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	httpx.OK(w, "inventory items fetched", page)
}

func (h *Handler) search(w http.ResponseWriter, r *http.Request) {
	page, err := h.service.Search(r.Context(), r.URL.Query().Get("q"), shared.PageFromQuery(r.URL.Query()))
	if err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	httpx.OK(w, "inventory search results", page)
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context())
	if err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	httpx.OK(w, "inventory statistics", stats)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	item, err := h.service.GetItem(r.Context(), id)
	if err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	httpx.OK(w, "inventory item fetched", item)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var input CreateItemInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	item, err := h.service.CreateItem(r.Context(), input)
	if err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	httpx.Created(w, "inventory item created", item)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	var input UpdateItemInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	item, err := h.service.UpdateItem(r.Context(), id, input)
	if err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	httpx.OK(w, "inventory item updated", item)
}

func (h *Handler) deactivate(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	if err := h.service.DeactivateItem(r.Context(), id); err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	httpx.OK(w, "inventory item deactivated", nil)
}

func (h *Handler) reserve(w http.ResponseWriter, r *http.Request) {
	id, req, ok := h.quantityCall(w, r)
	if !ok {
		return
	}
	item, err := h.service.ReserveStock(r.Context(), id, req.Quantity)
	if err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	httpx.OK(w, "stock reserved", item)
}

func (h *Handler) release(w http.ResponseWriter, r *http.Request) {
	id, req, ok := h.quantityCall(w, r)
	if !ok {
		return
	}
	item, err := h.service.ReleaseReservedStock(r.Context(), id, req.Quantity)
	if err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	httpx.OK(w, "reserved stock released", item)
}

func (h *Handler) quantityCall(w http.ResponseWriter, r *http.Request) (int64, quantityRequest, bool) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.Error(w, h.logger, err)
		return 0, quantityRequest{}, false
	}
	var req quantityRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, h.logger, err)
		return 0, quantityRequest{}, false
	}
	return id, req, true
}

func (h *Handler) updateStock(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	var input StockUpdateInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	input.ItemID = id
	input.IdempotencyKey = r.Header.Get("Idempotency-Key")
	movement, err := h.service.UpdateStock(r.Context(), input)
	if err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	httpx.Created(w, "stock updated", movement)
}

func (h *Handler) transfer(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	var input TransferInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	input.ItemID = id
	out, in, err := h.service.TransferStock(r.Context(), input)
	if err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	httpx.Created(w, "stock transferred", map[string]Movement{"outward": out, "inward": in})
}

func (h *Handler) movements(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	page, err := h.service.ListMovements(r.Context(), id, shared.PageFromQuery(r.URL.Query()))
	if err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	httpx.OK(w, "stock movements fetched", page)
}

func (h *Handler) approveMovement(w http.ResponseWriter, r *http.Request) {
	h.reviewMovement(w, r, true)
}

func (h *Handler) rejectMovement(w http.ResponseWriter, r *http.Request) {
	h.reviewMovement(w, r, false)
}

func (h *Handler) reviewMovement(w http.ResponseWriter, r *http.Request, approve bool) {
	id, err := httpx.IDParam(r, "movementId")
	if err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	movement, err := h.service.ReviewMovement(r.Context(), id, approve)
	if err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	httpx.OK(w, "stock movement "+string(movement.ApprovalStatus), movement)
}
