package customers

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound      = errors.New("customer not found")
	ErrAlreadyExists = errors.New("customer already exists")
)

type Customer struct {
	ID               int64           `json:"id"`
	CompanyID        int64           `json:"companyId"`
	Code             string          `json:"code"`
	Name             string          `json:"name"`
	Email            string          `json:"email,omitempty"`
	Phone            string          `json:"phone,omitempty"`
	TaxID            string          `json:"taxId,omitempty"`
	CreditLimit      decimal.Decimal `json:"creditLimit"`
	PaymentTermsDays int             `json:"paymentTermsDays"`
	Address          string          `json:"address,omitempty"`
	City             string          `json:"city,omitempty"`
	Country          string          `json:"country"`
	IsActive         bool            `json:"isActive"`
	Notes            string          `json:"notes,omitempty"`
	CreatedBy        int64           `json:"createdBy"`
	CreatedAt        time.Time       `json:"createdAt"`
	UpdatedAt        time.Time       `json:"updatedAt"`
}
