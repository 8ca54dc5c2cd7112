package customers

import "github.com/shopspring/decimal"

type CreateCustomerRequest struct {
	Code             string          `json:"code" validate:"omitempty,max=50"`
	Name             string          `json:"name" validate:"required,max=200"`
	Email            string          `json:"email" validate:"omitempty,email"`
	Phone            string          `json:"phone" validate:"omitempty,max=50"`
	TaxID            string          `json:"taxId" validate:"omitempty,max=50"`
	CreditLimit      decimal.Decimal `json:"creditLimit"`
	PaymentTermsDays int             `json:"paymentTermsDays" validate:"gte=0,lte=365"`
	Address          string          `json:"address" validate:"omitempty,max=400"`
	City             string          `json:"city" validate:"omitempty,max=100"`
	Country          string          `json:"country" validate:"omitempty,len=2"`
	Notes            string          `json:"notes"`
}

type UpdateCustomerRequest struct {
	Name             *string          `json:"name" validate:"omitempty,max=200"`
	Email            *string          `json:"email" validate:"omitempty,email"`
	Phone            *string          `json:"phone" validate:"omitempty,max=50"`
	TaxID            *string          `json:"taxId" validate:"omitempty,max=50"`
	CreditLimit      *decimal.Decimal `json:"creditLimit"`
	PaymentTermsDays *int             `json:"paymentTermsDays" validate:"omitempty,gte=0,lte=365"`
	Address          *string          `json:"address" validate:"omitempty,max=400"`
	City             *string          `json:"city" validate:"omitempty,max=100"`
	Country          *string          `json:"country" validate:"omitempty,len=2"`
	IsActive         *bool            `json:"isActive"`
	Notes            *string          `json:"notes"`
}

type ListCustomersRequest struct {
	IsActive *bool
	Search   string
}
