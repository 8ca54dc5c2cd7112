package production

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/factory-erp/internal/platform/httpx"
	"github.com/odyssey-erp/factory-erp/internal/rbac"
	"github.com/odyssey-erp/factory-erp/internal/shared"
)

// Handler exposes production order endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler constructs the production handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers production routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.ModuleProduction, rbac.ActionView))
		r.Get("/", h.list)
		r.Get("/stats", h.stats)
		r.Get("/{id}", h.get)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.ModuleProduction, rbac.ActionCreate))
		r.Post("/", h.create)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.ModuleProduction, rbac.ActionEdit))
		r.Put("/{id}", h.update)
		r.Post("/{id}/start", h.start)
		r.Post("/{id}/stages/{index}/complete", h.completeStage)
		r.Post("/{id}/complete", h.complete)
		r.Post("/{id}/hold", h.hold)
		r.Post("/{id}/resume", h.resume)
		r.Post("/{id}/cancel", h.cancel)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.ModuleProduction, rbac.ActionApprove))
		r.Post("/{id}/approve", h.approve)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.ModuleProduction, rbac.ActionDelete))
		r.Delete("/{id}", h.delete)
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{
		Status:   Status(q.Get("status")),
		Priority: Priority(q.Get("priority")),
		Search:   q.Get("search"),
	}
	page, err := h.service.List(r.Context(), filter, shared.PageFromQuery(q))
	if err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	httpx.OK(w, "production orders fetched", page)
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context())
	if err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	httpx.OK(w, "production statistics", stats)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	order, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	httpx.OK(w, "production order fetched", order)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var input CreateInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	order, err := h.service.Create(r.Context(), input)
	if err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	httpx.Created(w, "production order created", order)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	var input CreateInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	order, err := h.service.Update(r.Context(), id, input)
	if err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	httpx.OK(w, "production order updated", order)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	httpx.OK(w, "production order deleted", nil)
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "production order approved", func(id int64, reason string) (Order, error) {
		return h.service.Approve(r.Context(), id, reason)
	})
}

func (h *Handler) start(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "production started", func(id int64, _ string) (Order, error) {
		return h.service.Start(r.Context(), id)
	})
}

func (h *Handler) hold(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "production put on hold", func(id int64, reason string) (Order, error) {
		return h.service.Hold(r.Context(), id, reason)
	})
}

func (h *Handler) resume(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "production resumed", func(id int64, _ string) (Order, error) {
		return h.service.Resume(r.Context(), id)
	})
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "production order cancelled", func(id int64, reason string) (Order, error) {
		return h.service.Cancel(r.Context(), id, reason)
	})
}

// transition handles the endpoints that take an optional reason body.
func (h *Handler) transition(w http.ResponseWriter, r *http.Request, msg string, fn func(int64, string) (Order, error)) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	var input ReasonInput
	if r.ContentLength > 0 {
		if err := httpx.DecodeJSON(r, &input); err != nil {
			httpx.Error(w, h.logger, err)
			return
		}
	}
	order, err := fn(id, input.Reason)
	if err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	httpx.OK(w, msg, order)
}

func (h *Handler) completeStage(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		httpx.Error(w, h.logger, shared.Validation("invalid stage index"))
		return
	}
	var input CompleteStageInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	order, err := h.service.CompleteStage(r.Context(), id, index, input)
	if err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	httpx.OK(w, "production stage completed", order)
}

func (h *Handler) complete(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	var input CompleteInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	order, err := h.service.Complete(r.Context(), id, input)
	if err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	httpx.OK(w, "production completed", order)
}
