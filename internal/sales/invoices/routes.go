package invoices

import (
	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/factory-erp/internal/rbac"
)

func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.ModuleInvoices, rbac.ActionView))
		r.Get("/", h.List)
		r.Get("/stats", h.Stats)
		r.Get("/{id}", h.Show)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.ModuleInvoices, rbac.ActionCreate))
		r.Post("/", h.Create)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.ModuleInvoices, rbac.ActionEdit))
		r.Post("/{id}/status", h.ChangeStatus)
		r.Post("/{id}/payments", h.RecordPayment)
	})
}
