package roles

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/odyssey-erp/factory-erp/internal/rbac"
)

// Role groups permission masks under a name.
type Role struct {
	ID          int64
	CompanyID   int64
	Name        string
	Description string
	Permissions rbac.PermissionSet
	IsSystem    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// MarshalJSON renders permissions as module -> action names.
func (r Role) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ID          int64               `json:"id"`
		CompanyID   int64               `json:"companyId"`
		Name        string              `json:"name"`
		Description string              `json:"description,omitempty"`
		Permissions map[string][]string `json:"permissions"`
		IsSystem    bool                `json:"isSystem"`
		CreatedAt   time.Time           `json:"createdAt"`
		UpdatedAt   time.Time           `json:"updatedAt"`
	}{r.ID, r.CompanyID, r.Name, r.Description, r.Permissions.Names(), r.IsSystem, r.CreatedAt, r.UpdatedAt})
}

// RoleInput carries create and update fields.
type RoleInput struct {
	Name        string              `json:"name" validate:"required,max=100"`
	Description string              `json:"description" validate:"max=500"`
	Permissions map[string][]string `json:"permissions"`
}

// PermissionsInput replaces a role's permissions.
type PermissionsInput struct {
	Permissions map[string][]string `json:"permissions" validate:"required"`
}

// AssignmentInput links a user to a role.
type AssignmentInput struct {
	UserID int64 `json:"userId" validate:"required,gt=0"`
}

var (
	// ErrNotFound indicates a missing role.
	ErrNotFound = errors.New("roles: not found")
	// ErrDuplicateName indicates the role name is taken in the company.
	ErrDuplicateName = errors.New("roles: name already exists")
)
