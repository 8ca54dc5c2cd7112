package inventory

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/factory-erp/internal/rbac"
	"github.com/odyssey-erp/factory-erp/internal/shared"
)

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code string `json:"code"`
	} `json:"error"`
}

func newTestRouter(t *testing.T) (http.Handler, *Service) {
	t.Helper()
	svc := newTestService(t, NewMemoryRepository(), nil)
	h := NewHandler(nil, svc, rbac.Middleware{})
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := shared.ContextWithTenant(req.Context(), shared.Tenant{CompanyID: 1, UserID: 3})
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	r.Route("/api/inventory", h.MountRoutes)
	return r, svc
}

func doJSON(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	var env envelope
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env), rr.Body.String())
	return rr, env
}

func TestHandlerCreateReserveFlow(t *testing.T) {
	router, _ := newTestRouter(t)

	rr, env := doJSON(t, router, http.MethodPost, "/api/inventory",
		`{"itemCode":"RM-1","name":"Steel","category":"raw","unit":"kg","warehouseId":1,"openingStock":"200","openingRate":"4"}`)
	require.Equal(t, http.StatusCreated, rr.Code)
	require.True(t, env.Success)
	var item Item
	require.NoError(t, json.Unmarshal(env.Data, &item))
	require.Equal(t, "200", item.AvailableStock.String())

	rr, env = doJSON(t, router, http.MethodPost, "/api/inventory/1/reserve", `{"quantity":"50"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(env.Data, &item))
	require.Equal(t, "150", item.AvailableStock.String())

	rr, env = doJSON(t, router, http.MethodPost, "/api/inventory/1/reserve", `{"quantity":"151"}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.False(t, env.Success)
	require.Equal(t, "INSUFFICIENT_STOCK", env.Error.Code)

	rr, env = doJSON(t, router, http.MethodGet, "/api/inventory/1/movements", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.True(t, env.Success)
}

func TestHandlerValidationAndNotFound(t *testing.T) {
	router, _ := newTestRouter(t)

	rr, env := doJSON(t, router, http.MethodPost, "/api/inventory", `{"name":"no code"}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, "VALIDATION_ERROR", env.Error.Code)

	rr, env = doJSON(t, router, http.MethodGet, "/api/inventory/99", "")
	require.Equal(t, http.StatusNotFound, rr.Code)
	require.Equal(t, "NOT_FOUND", env.Error.Code)

	rr, _ = doJSON(t, router, http.MethodGet, "/api/inventory/abc", "")
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr, _ = doJSON(t, router, http.MethodGet, "/api/inventory/search", "")
	require.Equal(t, http.StatusBadRequest, rr.Code)
}
