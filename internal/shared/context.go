package shared

import "context"

type tenantContextKey struct{}

// Tenant identifies the calling company and user.
type Tenant struct {
	CompanyID int64
	UserID    int64
	RoleID    int64
}

// ContextWithTenant stores the tenant in context.
func ContextWithTenant(ctx context.Context, t Tenant) context.Context {
	return context.WithValue(ctx, tenantContextKey{}, t)
}

// TenantFromContext extracts the tenant from context.
func TenantFromContext(ctx context.Context) (Tenant, bool) {
	t, ok := ctx.Value(tenantContextKey{}).(Tenant)
	return t, ok && t.CompanyID > 0
}

// CompanyID returns the company in context or ErrTenantRequired.
func CompanyID(ctx context.Context) (int64, error) {
	t, ok := TenantFromContext(ctx)
	if !ok {
		return 0, Unauthorized(ErrTenantRequired.Error())
	}
	return t.CompanyID, nil
}

// ActorID returns the acting user, zero when unknown.
func ActorID(ctx context.Context) int64 {
	t, _ := TenantFromContext(ctx)
	return t.UserID
}
