package invoices

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/odyssey-erp/factory-erp/internal/platform/httpx"
	"github.com/odyssey-erp/factory-erp/internal/rbac"
	salesshared "github.com/odyssey-erp/factory-erp/internal/sales/shared"
	"github.com/odyssey-erp/factory-erp/internal/shared"
)

type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := ListInvoicesRequest{
		Status:        Status(q.Get("status")),
		PaymentStatus: salesshared.PaymentStatus(q.Get("paymentStatus")),
		Search:        q.Get("search"),
	}
	if raw := q.Get("customerId"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			httpx.Error(w, h.logger, shared.Validation("invalid customerId"))
			return
		}
		req.CustomerID = id
	}
	page, err := h.service.List(r.Context(), req, shared.PageFromQuery(q))
	if err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	httpx.OK(w, "invoices fetched", page)
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context())
	if err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	httpx.OK(w, "invoice stats fetched", stats)
}

func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	inv, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	httpx.OK(w, "invoice fetched", inv)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateInvoiceRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	inv, err := h.service.Create(r.Context(), req)
	if err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	httpx.Created(w, "invoice created", inv)
}

func (h *Handler) ChangeStatus(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	var req StatusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	inv, err := h.service.ChangeStatus(r.Context(), id, req)
	if err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	httpx.OK(w, "invoice status updated", inv)
}

func (h *Handler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	var req PaymentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	inv, err := h.service.RecordPayment(r.Context(), id, req)
	if err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	httpx.Created(w, "payment recorded", inv)
}
