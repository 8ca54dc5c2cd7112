package suppliers

import (
	"time"
)

// Supplier represents a supplier entity
type Supplier struct {
	ID               int64     `json:"id"`
	CompanyID        int64     `json:"companyId"`
	Code             string    `json:"code"`
	Name             string    `json:"name"`
	ContactPerson    string    `json:"contactPerson,omitempty"`
	Address          string    `json:"address"`
	Email            string    `json:"email"`
	Phone            string    `json:"phone"`
	TaxID            string    `json:"taxId,omitempty"`
	PaymentTermsDays int       `json:"paymentTermsDays"`
	IsActive         bool      `json:"isActive"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}
