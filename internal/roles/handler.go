package roles

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/factory-erp/internal/platform/httpx"
	"github.com/odyssey-erp/factory-erp/internal/rbac"
)

// Handler manages role management endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers role routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.ModuleRoles, rbac.ActionView))
		r.Get("/", h.list)
		r.Get("/{id}", h.get)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.ModuleRoles, rbac.ActionCreate))
		r.Post("/", h.create)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.ModuleRoles, rbac.ActionEdit))
		r.Put("/{id}", h.update)
		r.Put("/{id}/permissions", h.setPermissions)
		r.Post("/{id}/users", h.assign)
		r.Delete("/{id}/users/{userId}", h.unassign)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.ModuleRoles, rbac.ActionDelete))
		r.Delete("/{id}", h.delete)
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	roles, err := h.service.ListRoles(r.Context())
	if err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	httpx.OK(w, "roles fetched", roles)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	role, err := h.service.GetRole(r.Context(), id)
	if err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	httpx.OK(w, "role fetched", role)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var input RoleInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	role, err := h.service.CreateRole(r.Context(), input)
	if err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	httpx.Created(w, "role created", role)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	var input RoleInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	role, err := h.service.UpdateRole(r.Context(), id, input)
	if err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	httpx.OK(w, "role updated", role)
}

func (h *Handler) setPermissions(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	var input PermissionsInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	role, err := h.service.SetPermissions(r.Context(), id, input)
	if err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	httpx.OK(w, "permissions updated", role)
}

func (h *Handler) assign(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	var input AssignmentInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	if err := h.service.AssignUser(r.Context(), id, input.UserID); err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	httpx.OK(w, "role assigned", nil)
}

func (h *Handler) unassign(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	userID, err := httpx.IDParam(r, "userId")
	if err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	if err := h.service.UnassignUser(r.Context(), id, userID); err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	httpx.OK(w, "role unassigned", nil)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	if err := h.service.DeleteRole(r.Context(), id); err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	httpx.OK(w, "role deleted", nil)
}
