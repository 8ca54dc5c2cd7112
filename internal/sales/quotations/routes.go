package quotations

import (
	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/factory-erp/internal/rbac"
)

func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.ModuleQuotations, rbac.ActionView))
		r.Get("/", h.List)
		r.Get("/{id}", h.Show)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.ModuleQuotations, rbac.ActionCreate))
		r.Post("/", h.Create)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.ModuleQuotations, rbac.ActionEdit))
		r.Put("/{id}", h.Update)
		r.Post("/{id}/status", h.ChangeStatus)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.ModuleCustomerOrders, rbac.ActionCreate))
		r.Post("/{id}/convert-to-order", h.Convert)
	})
}
