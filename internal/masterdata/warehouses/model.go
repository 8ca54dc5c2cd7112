package warehouses

import (
	"time"
)

// Warehouse represents a stock location
type Warehouse struct {
	ID        int64     `json:"id"`
	CompanyID int64     `json:"companyId"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	Address   string    `json:"address"`
	Manager   string    `json:"manager,omitempty"`
	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
