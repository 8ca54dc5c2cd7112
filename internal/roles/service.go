package roles

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/odyssey-erp/factory-erp/internal/rbac"
	"github.com/odyssey-erp/factory-erp/internal/shared"
)

// RepositoryPort defines data access methods for roles.
type RepositoryPort interface {
	ListRoles(ctx context.Context, companyID int64) ([]Role, error)
	GetRole(ctx context.Context, companyID, id int64) (Role, error)
	CreateRole(ctx context.Context, role Role) (Role, error)
	UpdateRole(ctx context.Context, role Role) (Role, error)
	DeleteRole(ctx context.Context, companyID, id int64) error
	RoleUsers(ctx context.Context, companyID, roleID int64) ([]int64, error)
	AssignUser(ctx context.Context, companyID, roleID, userID int64) error
	UnassignUser(ctx context.Context, companyID, roleID, userID int64) error
}

// PermissionCache forgets resolved permissions after grants change.
type PermissionCache interface {
	Forget(ctx context.Context, companyID int64, userIDs ...int64) error
}

// Service handles role business logic.
type Service struct {
	repo   RepositoryPort
	perms  PermissionCache
	audit  shared.AuditPort
	logger *slog.Logger
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, perms PermissionCache, audit shared.AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, perms: perms, audit: audit, logger: logger}
}

// ListRoles returns all roles of the company.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	companyID, err := shared.CompanyID(ctx)
	if err != nil {
		return nil, err
	}
	roles, err := s.repo.ListRoles(ctx, companyID)
	if err != nil {
		return nil, mapError(err)
	}
	if roles == nil {
		roles = []Role{}
	}
	return roles, nil
}

// GetRole returns one role.
func (s *Service) GetRole(ctx context.Context, id int64) (Role, error) {
	companyID, err := shared.CompanyID(ctx)
	if err != nil {
		return Role{}, err
	}
	role, err := s.repo.GetRole(ctx, companyID, id)
	if err != nil {
		return Role{}, mapError(err)
	}
	return role, nil
}

// CreateRole inserts a custom role.
func (s *Service) CreateRole(ctx context.Context, input RoleInput) (Role, error) {
	companyID, err := shared.CompanyID(ctx)
	if err != nil {
		return Role{}, err
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return Role{}, shared.Validation("role name required")
	}
	perms, err := rbac.FromNames(input.Permissions)
	if err != nil {
		return Role{}, shared.Validation(err.Error())
	}
	role, err := s.repo.CreateRole(ctx, Role{
		CompanyID:   companyID,
		Name:        name,
		Description: strings.TrimSpace(input.Description),
		Permissions: perms,
	})
	if err != nil {
		return Role{}, mapError(err)
	}
	s.record(ctx, "roles:create", role.ID)
	return role, nil
}

// UpdateRole renames a role and replaces its permissions.
func (s *Service) UpdateRole(ctx context.Context, id int64, input RoleInput) (Role, error) {
	companyID, err := shared.CompanyID(ctx)
	if err != nil {
		return Role{}, err
	}
	role, err := s.repo.GetRole(ctx, companyID, id)
	if err != nil {
		return Role{}, mapError(err)
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return Role{}, shared.Validation("role name required")
	}
	if role.IsSystem && name != role.Name {
		return Role{}, shared.Business("SYSTEM_ROLE", "system roles cannot be renamed", nil)
	}
	role.Name = name
	role.Description = strings.TrimSpace(input.Description)
	if input.Permissions != nil {
		perms, err := rbac.FromNames(input.Permissions)
		if err != nil {
			return Role{}, shared.Validation(err.Error())
		}
		role.Permissions = perms
	}
	updated, err := s.repo.UpdateRole(ctx, role)
	if err != nil {
		return Role{}, mapError(err)
	}
	s.forget(ctx, companyID, id)
	s.record(ctx, "roles:update", id)
	return updated, nil
}

// SetPermissions replaces the permission set of a role.
func (s *Service) SetPermissions(ctx context.Context, id int64, input PermissionsInput) (Role, error) {
	companyID, err := shared.CompanyID(ctx)
	if err != nil {
		return Role{}, err
	}
	role, err := s.repo.GetRole(ctx, companyID, id)
	if err != nil {
		return Role{}, mapError(err)
	}
	perms, err := rbac.FromNames(input.Permissions)
	if err != nil {
		return Role{}, shared.Validation(err.Error())
	}
	role.Permissions = perms
	updated, err := s.repo.UpdateRole(ctx, role)
	if err != nil {
		return Role{}, mapError(err)
	}
	s.forget(ctx, companyID, id)
	s.record(ctx, "roles:permissions", id)
	return updated, nil
}

// DeleteRole removes a custom role. System roles are protected.
func (s *Service) DeleteRole(ctx context.Context, id int64) error {
	companyID, err := shared.CompanyID(ctx)
	if err != nil {
		return err
	}
	role, err := s.repo.GetRole(ctx, companyID, id)
	if err != nil {
		return mapError(err)
	}
	if role.IsSystem {
		return shared.Business("SYSTEM_ROLE", "system roles cannot be deleted", nil)
	}
	s.forget(ctx, companyID, id)
	if err := s.repo.DeleteRole(ctx, companyID, id); err != nil {
		return mapError(err)
	}
	s.record(ctx, "roles:delete", id)
	return nil
}

// AssignUser grants the role to a user.
func (s *Service) AssignUser(ctx context.Context, roleID, userID int64) error {
	companyID, err := shared.CompanyID(ctx)
	if err != nil {
		return err
	}
	if _, err := s.repo.GetRole(ctx, companyID, roleID); err != nil {
		return mapError(err)
	}
	if err := s.repo.AssignUser(ctx, companyID, roleID, userID); err != nil {
		return mapError(err)
	}
	s.forgetUsers(ctx, companyID, userID)
	s.record(ctx, "roles:assign", roleID)
	return nil
}

// UnassignUser revokes the role from a user.
func (s *Service) UnassignUser(ctx context.Context, roleID, userID int64) error {
	companyID, err := shared.CompanyID(ctx)
	if err != nil {
		return err
	}
	if err := s.repo.UnassignUser(ctx, companyID, roleID, userID); err != nil {
		return mapError(err)
	}
	s.forgetUsers(ctx, companyID, userID)
	s.record(ctx, "roles:unassign", roleID)
	return nil
}

func (s *Service) forget(ctx context.Context, companyID, roleID int64) {
	users, err := s.repo.RoleUsers(ctx, companyID, roleID)
	if err != nil {
		s.logger.Warn("list role users", slog.Int64("role_id", roleID), slog.Any("error", err))
		return
	}
	s.forgetUsers(ctx, companyID, users...)
}

func (s *Service) forgetUsers(ctx context.Context, companyID int64, users ...int64) {
	if s.perms == nil || len(users) == 0 {
		return
	}
	if err := s.perms.Forget(ctx, companyID, users...); err != nil {
		s.logger.Warn("forget permissions", slog.Any("error", err))
	}
}

func (s *Service) record(ctx context.Context, action string, id int64) {
	if s.audit == nil {
		return
	}
	companyID, _ := shared.CompanyID(ctx)
	_ = s.audit.Record(ctx, shared.AuditLog{
		CompanyID: companyID,
		ActorID:   shared.ActorID(ctx),
		Action:    action,
		Entity:    "role",
		EntityID:  fmt.Sprintf("%d", id),
	})
}

func mapError(err error) error {
	if _, ok := shared.AsAppError(err); ok {
		return err
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return shared.Missing("role", err)
	case errors.Is(err, ErrDuplicateName):
		return shared.Conflict("role name already exists", err)
	default:
		return shared.Database("roles", err)
	}
}
