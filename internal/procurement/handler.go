package procurement

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/factory-erp/internal/platform/httpx"
	"github.com/odyssey-erp/factory-erp/internal/rbac"
	"github.com/odyssey-erp/factory-erp/internal/shared"
)

// Handler manages purchase order endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers purchase order routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.ModulePurchaseOrders, rbac.ActionView))
		r.Get("/", h.handleList)
		r.Get("/stats", h.handleStats)
		r.Get("/{id}", h.handleGet)
		r.Get("/{id}/receipts", h.handleReceipts)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.ModulePurchaseOrders, rbac.ActionCreate))
		r.Post("/", h.createPO)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.ModulePurchaseOrders, rbac.ActionEdit))
		r.Put("/{id}", h.updatePO)
		r.Post("/{id}/status", h.changeStatus)
		r.Post("/{id}/receive-items", h.receive)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.ModulePurchaseOrders, rbac.ActionApprove))
		r.Post("/{id}/approve", h.approvePO)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.ModulePurchaseOrders, rbac.ActionDelete))
		r.Delete("/{id}", h.deletePO)
	})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{Status: Status(q.Get("status")), Search: q.Get("search")}
	if raw := q.Get("supplierId"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			httpx.Error(w, h.logger, shared.Validation("invalid supplierId"))
			return
		}
		filter.SupplierID = id
	}
	page, err := h.service.List(r.Context(), filter, shared.PageFromQuery(q))
	if err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	httpx.OK(w, "purchase orders fetched", page)
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context())
	if err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	httpx.OK(w, "purchase order statistics", stats)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	po, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	httpx.OK(w, "purchase order fetched", po)
}

func (h *Handler) handleReceipts(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	receipts, err := h.service.Receipts(r.Context(), id)
	if err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	httpx.OK(w, "goods receipts fetched", receipts)
}

func (h *Handler) createPO(w http.ResponseWriter, r *http.Request) {
	var input CreateInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	po, err := h.service.Create(r.Context(), input)
	if err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	httpx.Created(w, "purchase order created", po)
}

func (h *Handler) updatePO(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	var input UpdateInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	po, err := h.service.Update(r.Context(), id, input)
	if err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	httpx.OK(w, "purchase order updated", po)
}

func (h *Handler) changeStatus(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	var input StatusInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	if input.Status == StatusApproved {
		httpx.Error(w, h.logger, shared.Validation("use the approve endpoint to approve purchase orders"))
		return
	}
	po, err := h.service.ChangeStatus(r.Context(), id, input)
	if err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	httpx.OK(w, "purchase order status updated", po)
}

func (h *Handler) approvePO(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	po, err := h.service.ChangeStatus(r.Context(), id, StatusInput{Status: StatusApproved})
	if err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	httpx.OK(w, "purchase order approved", po)
}

func (h *Handler) receive(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	var input ReceiveInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	input.IdempotencyKey = strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	receipt, err := h.service.Receive(r.Context(), id, input)
	if err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	httpx.Created(w, "goods received", receipt)
}

func (h *Handler) deletePO(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	httpx.OK(w, "purchase order deleted", nil)
}
