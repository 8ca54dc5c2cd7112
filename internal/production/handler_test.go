package production

import (
	"encoding/json"
	"fmt"
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

func call(t *testing.T, h http.Handler, method, path, body string) (int, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	var env envelope
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env), rr.Body.String())
	return rr.Code, env
}

func TestHandlerLifecycle(t *testing.T) {
	f := newFixture(t, nil)
	steel := f.item(t, "STEEL", "200", "10")
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(shared.ContextWithTenant(req.Context(), shared.Tenant{CompanyID: 1, UserID: 2})))
		})
	})
	r.Route("/api/production", NewHandler(nil, f.svc, rbac.Middleware{}).MountRoutes)

	code, env := call(t, r, http.MethodPost, "/api/production",
		fmt.Sprintf(`{"productName":"Bracket","orderQuantity":"50","rawMaterials":[{"itemId":%d,"requiredQuantity":"50"}]}`, steel.ID))
	require.Equal(t, http.StatusCreated, code)
	var order Order
	require.NoError(t, json.Unmarshal(env.Data, &order))
	require.Equal(t, StatusDraft, order.Status)

	code, env = call(t, r, http.MethodPost, fmt.Sprintf("/api/production/%d/start", order.ID), "")
	require.Equal(t, http.StatusBadRequest, code)
	require.Equal(t, "INVALID_STATUS_TRANSITION", env.Error.Code)

	code, _ = call(t, r, http.MethodPost, fmt.Sprintf("/api/production/%d/approve", order.ID), `{"reason":"ok"}`)
	require.Equal(t, http.StatusOK, code)
	code, env = call(t, r, http.MethodPost, fmt.Sprintf("/api/production/%d/start", order.ID), "")
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(env.Data, &order))
	require.Equal(t, StatusInProgress, order.Status)

	code, env = call(t, r, http.MethodPost, fmt.Sprintf("/api/production/%d/stages/x/complete", order.ID), `{}`)
	require.Equal(t, http.StatusBadRequest, code)
	require.Equal(t, "VALIDATION_ERROR", env.Error.Code)

	code, env = call(t, r, http.MethodPost, "/api/production", `{"orderQuantity":"5"}`)
	require.Equal(t, http.StatusBadRequest, code)
	require.False(t, env.Success)

	code, env = call(t, r, http.MethodGet, "/api/production/stats", "")
	require.Equal(t, http.StatusOK, code)
	require.True(t, env.Success)
}
