package roles

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/factory-erp/internal/platform/db"
	"github.com/odyssey-erp/factory-erp/internal/rbac"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListRoles returns the company's roles ordered by name.
func (r *Repository) ListRoles(ctx context.Context, companyID int64) ([]Role, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, company_id, name, description, is_system, created_at, updated_at
FROM roles WHERE company_id=$1 ORDER BY name`, companyID)
	if err != nil {
		return nil, err
	}
	var roles []Role
	for rows.Next() {
		var role Role
		if err := rows.Scan(&role.ID, &role.CompanyID, &role.Name, &role.Description, &role.IsSystem,
			&role.CreatedAt, &role.UpdatedAt); err != nil {
			rows.Close()
			return nil, err
		}
		roles = append(roles, role)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range roles {
		perms, err := r.permissions(ctx, r.pool, roles[i].ID)
		if err != nil {
			return nil, err
		}
		roles[i].Permissions = perms
	}
	return roles, nil
}

// GetRole loads a role with its permissions.
func (r *Repository) GetRole(ctx context.Context, companyID, id int64) (Role, error) {
	var role Role
	err := r.pool.QueryRow(ctx, `SELECT id, company_id, name, description, is_system, created_at, updated_at
FROM roles WHERE company_id=$1 AND id=$2`, companyID, id).Scan(&role.ID, &role.CompanyID, &role.Name,
		&role.Description, &role.IsSystem, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, ErrNotFound
		}
		return Role{}, err
	}
	role.Permissions, err = r.permissions(ctx, r.pool, role.ID)
	return role, err
}

// CreateRole inserts a role and its permission rows.
func (r *Repository) CreateRole(ctx context.Context, role Role) (Role, error) {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `INSERT INTO roles (company_id, name, description, is_system)
VALUES ($1, $2, $3, $4) RETURNING id, created_at, updated_at`,
			role.CompanyID, role.Name, role.Description, role.IsSystem).Scan(&role.ID, &role.CreatedAt, &role.UpdatedAt)
		if err != nil {
			return err
		}
		return replacePermissions(ctx, tx, role.ID, role.Permissions)
	})
	if err != nil {
		if db.IsUniqueViolation(err) {
			return Role{}, ErrDuplicateName
		}
		return Role{}, err
	}
	return role, nil
}

// UpdateRole updates name, description and permissions.
func (r *Repository) UpdateRole(ctx context.Context, role Role) (Role, error) {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `UPDATE roles SET name=$3, description=$4, updated_at=NOW()
WHERE company_id=$1 AND id=$2 RETURNING updated_at`, role.CompanyID, role.ID, role.Name, role.Description).Scan(&role.UpdatedAt)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
		return replacePermissions(ctx, tx, role.ID, role.Permissions)
	})
	if err != nil {
		if db.IsUniqueViolation(err) {
			return Role{}, ErrDuplicateName
		}
		return Role{}, err
	}
	return role, nil
}

// DeleteRole removes a role. Returns ErrNotFound if nothing was deleted.
func (r *Repository) DeleteRole(ctx context.Context, companyID, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM roles WHERE company_id=$1 AND id=$2`, companyID, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// RoleUsers lists users assigned to the role.
func (r *Repository) RoleUsers(ctx context.Context, companyID, roleID int64) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT user_id FROM user_roles WHERE company_id=$1 AND role_id=$2 ORDER BY user_id`, companyID, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// AssignUser links a user to the role.
func (r *Repository) AssignUser(ctx context.Context, companyID, roleID, userID int64) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO user_roles (company_id, user_id, role_id) VALUES ($1, $2, $3)
ON CONFLICT DO NOTHING`, companyID, userID, roleID)
	return err
}

// UnassignUser removes a user from the role.
func (r *Repository) UnassignUser(ctx context.Context, companyID, roleID, userID int64) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM user_roles WHERE company_id=$1 AND user_id=$2 AND role_id=$3`, companyID, userID, roleID)
	return err
}

func (r *Repository) permissions(ctx context.Context, q db.DBTX, roleID int64) (rbac.PermissionSet, error) {
	rows, err := q.Query(ctx, `SELECT module, mask FROM role_permissions WHERE role_id=$1`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	set := rbac.PermissionSet{}
	for rows.Next() {
		var module string
		var mask int32
		if err := rows.Scan(&module, &mask); err != nil {
			return nil, err
		}
		set[rbac.Module(module)] = rbac.Action(mask)
	}
	return set, rows.Err()
}

func replacePermissions(ctx context.Context, tx pgx.Tx, roleID int64, set rbac.PermissionSet) error {
	if _, err := tx.Exec(ctx, `DELETE FROM role_permissions WHERE role_id=$1`, roleID); err != nil {
		return err
	}
	for module, mask := range set {
		if mask == 0 {
			continue
		}
		if _, err := tx.Exec(ctx, `INSERT INTO role_permissions (role_id, module, mask) VALUES ($1, $2, $3)`,
			roleID, string(module), int32(mask)); err != nil {
			return err
		}
	}
	return nil
}
