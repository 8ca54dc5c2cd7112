package visitors

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/odyssey-erp/factory-erp/internal/platform/httpx"
	"github.com/odyssey-erp/factory-erp/internal/rbac"
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

func parseDay(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	day, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, shared.Validation("date must be YYYY-MM-DD")
	}
	return &day, nil
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	day, err := parseDay(q.Get("date"))
	if err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	req := ListVisitorsRequest{Status: Status(q.Get("status")), Date: day, Search: q.Get("search")}
	page, err := h.service.List(r.Context(), req, shared.PageFromQuery(q))
	if err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	httpx.OK(w, "visitors fetched", page)
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	day, err := parseDay(r.URL.Query().Get("date"))
	if err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	stats, err := h.service.Stats(r.Context(), day)
	if err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	httpx.OK(w, "visitor stats fetched", stats)
}

func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	v, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	httpx.OK(w, "visitor fetched", v)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateVisitorRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	v, err := h.service.Register(r.Context(), req)
	if err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	httpx.Created(w, "visitor registered", v)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	var req UpdateVisitorRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	v, err := h.service.Update(r.Context(), id, req)
	if err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	httpx.OK(w, "visitor updated", v)
}

func (h *Handler) CheckIn(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	var req CheckInRequest
	if r.ContentLength > 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.Error(w, h.logger, err)
			return
		}
	}
	v, err := h.service.CheckIn(r.Context(), id, req)
	if err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	httpx.OK(w, "visitor checked in", v)
}

func (h *Handler) CheckOut(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "visitor checked out", h.service.CheckOut)
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "visit cancelled", h.service.Cancel)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, message string, fn func(ctx context.Context, id int64) (*Visitor, error)) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	v, err := fn(r.Context(), id)
	if err != nil {
		httpx.Error(w, h.logger, err)
		return
	}
	httpx.OK(w, message, v)
}
