package roles

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/factory-erp/internal/rbac"
	"github.com/odyssey-erp/factory-erp/internal/shared"
)

type memoryRepo struct {
	roles  map[int64]Role
	users  map[int64][]int64
	nextID int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{roles: map[int64]Role{}, users: map[int64][]int64{}}
}

func (m *memoryRepo) ListRoles(_ context.Context, companyID int64) ([]Role, error) {
	var out []Role
	for _, r := range m.roles {
		if r.CompanyID == companyID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memoryRepo) GetRole(_ context.Context, companyID, id int64) (Role, error) {
	r, ok := m.roles[id]
	if !ok || r.CompanyID != companyID {
		return Role{}, ErrNotFound
	}
	return r, nil
}

func (m *memoryRepo) CreateRole(_ context.Context, role Role) (Role, error) {
	for _, r := range m.roles {
		if r.CompanyID == role.CompanyID && r.Name == role.Name {
			return Role{}, ErrDuplicateName
		}
	}
	m.nextID++
	role.ID = m.nextID
	m.roles[role.ID] = role
	return role, nil
}

func (m *memoryRepo) UpdateRole(_ context.Context, role Role) (Role, error) {
	if _, ok := m.roles[role.ID]; !ok {
		return Role{}, ErrNotFound
	}
	m.roles[role.ID] = role
	return role, nil
}

func (m *memoryRepo) DeleteRole(_ context.Context, _ int64, id int64) error {
	if _, ok := m.roles[id]; !ok {
		return ErrNotFound
	}
	delete(m.roles, id)
	return nil
}

func (m *memoryRepo) RoleUsers(_ context.Context, _ int64, roleID int64) ([]int64, error) {
	return m.users[roleID], nil
}

func (m *memoryRepo) AssignUser(_ context.Context, _ int64, roleID, userID int64) error {
	m.users[roleID] = append(m.users[roleID], userID)
	return nil
}

func (m *memoryRepo) UnassignUser(_ context.Context, _ int64, roleID, userID int64) error {
	kept := m.users[roleID][:0]
	for _, u := range m.users[roleID] {
		if u != userID {
			kept = append(kept, u)
		}
	}
	m.users[roleID] = kept
	return nil
}

type forgetSpy struct{ forgotten []int64 }

func (f *forgetSpy) Forget(_ context.Context, _ int64, userIDs ...int64) error {
	f.forgotten = append(f.forgotten, userIDs...)
	return nil
}

func tenantCtx() context.Context {
	return shared.ContextWithTenant(context.Background(), shared.Tenant{CompanyID: 1, UserID: 10})
}

func TestCreateRoleParsesPermissions(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil, nil)
	role, err := svc.CreateRole(tenantCtx(), RoleInput{
		Name:        "Storekeeper",
		Permissions: map[string][]string{"inventory": {"view", "edit"}},
	})
	require.NoError(t, err)
	require.True(t, role.Permissions.Allows(rbac.ModuleInventory, rbac.ActionEdit))
	require.False(t, role.Permissions.Allows(rbac.ModuleInventory, rbac.ActionDelete))

	_, err = svc.CreateRole(tenantCtx(), RoleInput{Name: "Bad", Permissions: map[string][]string{"nope": {"view"}}})
	appErr, ok := shared.AsAppError(err)
	require.True(t, ok)
	require.Equal(t, http.StatusBadRequest, appErr.Status())

	_, err = svc.CreateRole(tenantCtx(), RoleInput{Name: "Storekeeper"})
	appErr, ok = shared.AsAppError(err)
	require.True(t, ok)
	require.Equal(t, http.StatusConflict, appErr.Status())
}

func TestSystemRoleCannotBeDeleted(t *testing.T) {
	repo := newMemoryRepo()
	repo.roles[1] = Role{ID: 1, CompanyID: 1, Name: "Administrator", IsSystem: true}
	repo.nextID = 1
	svc := NewService(repo, nil, nil, nil)

	err := svc.DeleteRole(tenantCtx(), 1)
	appErr, ok := shared.AsAppError(err)
	require.True(t, ok)
	require.Equal(t, "SYSTEM_ROLE", appErr.Code)
	require.Contains(t, repo.roles, int64(1))
}

func TestSetPermissionsForgetsAssignedUsers(t *testing.T) {
	repo := newMemoryRepo()
	spy := &forgetSpy{}
	svc := NewService(repo, spy, nil, nil)
	ctx := tenantCtx()

	role, err := svc.CreateRole(ctx, RoleInput{Name: "Planner"})
	require.NoError(t, err)
	require.NoError(t, svc.AssignUser(ctx, role.ID, 42))

	updated, err := svc.SetPermissions(ctx, role.ID, PermissionsInput{Permissions: map[string][]string{"production": {"all"}}})
	require.NoError(t, err)
	require.Equal(t, rbac.ActionAll, updated.Permissions[rbac.ModuleProduction])
	require.Contains(t, spy.forgotten, int64(42))
}

func TestGetRoleOtherCompanyNotFound(t *testing.T) {
	repo := newMemoryRepo()
	repo.roles[5] = Role{ID: 5, CompanyID: 2, Name: "Other"}
	svc := NewService(repo, nil, nil, nil)
	_, err := svc.GetRole(tenantCtx(), 5)
	require.ErrorIs(t, err, shared.ErrNotFound)
}
