package suppliers

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

type supplierRequest struct {
	Code             string `json:"code" validate:"required,max=32"`
	Name             string `json:"name" validate:"required,max=200"`
	ContactPerson    string `json:"contactPerson" validate:"max=120"`
	Address          string `json:"address"`
	Email            string `json:"email" validate:"omitempty,email"`
	Phone            string `json:"phone" validate:"max=40"`
	TaxID            string `json:"taxId" validate:"max=40"`
	PaymentTermsDays int    `json:"paymentTermsDays" validate:"gte=0,lte=365"`
}

func (r supplierRequest) supplier() Supplier {
	return Supplier{
		Code:             r.Code,
		Name:             r.Name,
		ContactPerson:    r.ContactPerson,
		Address:          r.Address,
		Email:            r.Email,
		Phone:            r.Phone,
		TaxID:            r.TaxID,
		PaymentTermsDays: r.PaymentTermsDays,
	}
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	filters := shared.FiltersFromQuery(r.URL.Query())
	suppliers, total, err := h.service.List(r.Context(), filters)
	if err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	httpx.OK(w, "suppliers fetched", appshared.Paged[Supplier]{
		Items:      suppliers,
		Pagination: appshared.NewPagination(filters.Page, filters.Limit, total),
	})
}

func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	supplier, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	httpx.OK(w, "supplier fetched", supplier)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req supplierRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	created, err := h.service.Create(r.Context(), req.supplier())
	if err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	httpx.Created(w, "supplier created", created)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	var req supplierRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	updated, err := h.service.Update(r.Context(), id, req.supplier())
	if err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	httpx.OK(w, "supplier updated", updated)
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
	httpx.OK(w, "supplier deactivated", nil)
}
