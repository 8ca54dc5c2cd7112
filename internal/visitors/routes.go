package visitors

import (
	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/factory-erp/internal/rbac"
)

func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.ModuleVisitors, rbac.ActionView))
		r.Get("/", h.List)
		r.Get("/stats", h.Stats)
		r.Get("/{id}", h.Show)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.ModuleVisitors, rbac.ActionCreate))
		r.Post("/", h.Create)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.ModuleVisitors, rbac.ActionEdit))
		r.Put("/{id}", h.Update)
		r.Post("/{id}/check-in", h.CheckIn)
		r.Post("/{id}/check-out", h.CheckOut)
		r.Post("/{id}/cancel", h.Cancel)
	})
}
