package rbac

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/odyssey-erp/factory-erp/internal/platform/httpx"
	"github.com/odyssey-erp/factory-erp/internal/shared"
)

// Middleware wires RBAC authorization helpers for HTTP handlers.
type Middleware struct {
	Service *Service
	Logger  *slog.Logger
}

// Require ensures the caller's roles grant action on module. A nil Service
// disables the check.
func (m Middleware) Require(module Module, action Action) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if m.Service == nil {
				next.ServeHTTP(w, r)
				return
			}
			tenant, ok := shared.TenantFromContext(r.Context())
			if !ok {
				httpx.Error(w, m.Logger, shared.Unauthorized(shared.ErrTenantRequired.Error()))
				return
			}
			if tenant.UserID == 0 {
				httpx.Error(w, m.Logger, shared.Forbidden("user identity required"))
				return
			}
			allowed, err := m.Service.Allowed(r.Context(), tenant.CompanyID, tenant.UserID, module, action)
			if err != nil {
				if m.Logger != nil {
					m.Logger.Error("rbac require", slog.String("module", string(module)), slog.Any("error", err))
				}
				httpx.Error(w, m.Logger, shared.Database("rbac", err))
				return
			}
			if !allowed {
				httpx.Error(w, m.Logger, shared.Forbidden(fmt.Sprintf("missing %s permission on %s", actionLabel(action), module)))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func actionLabel(a Action) string {
	names := a.Names()
	if len(names) == 1 {
		return names[0]
	}
	return fmt.Sprintf("%v", names)
}
