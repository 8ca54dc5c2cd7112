package rbac

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/factory-erp/internal/platform/cache"
	"github.com/odyssey-erp/factory-erp/internal/shared"
)

type stubStore struct {
	sets  map[int64]PermissionSet
	calls int
}

func (s *stubStore) UserPermissions(_ context.Context, _ int64, userID int64) (PermissionSet, error) {
	s.calls++
	return s.sets[userID], nil
}

func TestPermissionSetAllows(t *testing.T) {
	set := PermissionSet{ModuleInventory: ActionView | ActionEdit}
	require.True(t, set.Allows(ModuleInventory, ActionView))
	require.True(t, set.Allows(ModuleInventory, ActionView|ActionEdit))
	require.False(t, set.Allows(ModuleInventory, ActionDelete))
	require.False(t, set.Allows(ModuleProduction, ActionView))
	require.False(t, set.Allows(ModuleInventory, 0))
}

func TestFromNamesRoundTrip(t *testing.T) {
	set, err := FromNames(map[string][]string{"inventory": {"view", "edit"}, "reports": {"all"}})
	require.NoError(t, err)
	require.Equal(t, ActionView|ActionEdit, set[ModuleInventory])
	require.Equal(t, ActionAll, set[ModuleReports])
	require.Equal(t, []string{"edit", "view"}, set.Names()["inventory"])

	_, err = FromNames(map[string][]string{"payroll": {"view"}})
	require.Error(t, err)
	_, err = FromNames(map[string][]string{"inventory": {"fly"}})
	require.Error(t, err)
}

func TestEffectivePermissionsCached(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	store := &stubStore{sets: map[int64]PermissionSet{7: {ModuleInventory: ActionView}}}
	svc := NewService(store, cache.NewEntityCache(client, "rbac", time.Minute))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := svc.Allowed(ctx, 1, 7, ModuleInventory, ActionView)
		require.NoError(t, err)
		require.True(t, ok)
	}
	require.Equal(t, 1, store.calls)

	require.NoError(t, svc.Forget(ctx, 1, 7))
	_, err := svc.EffectivePermissions(ctx, 1, 7)
	require.NoError(t, err)
	require.Equal(t, 2, store.calls)
}

func TestMiddlewareRequire(t *testing.T) {
	store := &stubStore{sets: map[int64]PermissionSet{
		1: {ModuleInventory: ActionView},
	}}
	mw := Middleware{Service: NewService(store, nil)}
	handler := mw.Require(ModuleInventory, ActionEdit)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	cases := []struct {
		name   string
		tenant *shared.Tenant
		status int
	}{
		{name: "no tenant", status: http.StatusUnauthorized},
		{name: "no user", tenant: &shared.Tenant{CompanyID: 1}, status: http.StatusForbidden},
		{name: "view only", tenant: &shared.Tenant{CompanyID: 1, UserID: 1}, status: http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", nil)
			if tc.tenant != nil {
				req = req.WithContext(shared.ContextWithTenant(req.Context(), *tc.tenant))
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)
			require.Equal(t, tc.status, rr.Code)
		})
	}

	store.sets[1] = PermissionSet{ModuleInventory: ActionAll}
	require.NoError(t, mw.Service.Forget(context.Background(), 1, 1))
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req = req.WithContext(shared.ContextWithTenant(req.Context(), shared.Tenant{CompanyID: 1, UserID: 1}))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusNoContent, rr.Code)
}
