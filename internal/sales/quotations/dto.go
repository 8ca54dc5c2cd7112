package quotations

import (
	"time"

	"github.com/shopspring/decimal"

	salesshared "github.com/odyssey-erp/factory-erp/internal/sales/shared"
)

type CreateQuotationRequest struct {
	CustomerID      int64              `json:"customerId" validate:"required,gt=0"`
	QuoteDate       time.Time          `json:"quoteDate"`
	ValidUntil      time.Time          `json:"validUntil" validate:"required"`
	ShippingCharges decimal.Decimal    `json:"shippingCharges"`
	Notes           string             `json:"notes"`
	Lines           []salesshared.Line `json:"items" validate:"required,min=1,dive"`
}

type UpdateQuotationRequest struct {
	ValidUntil      *time.Time          `json:"validUntil"`
	ShippingCharges *decimal.Decimal    `json:"shippingCharges"`
	Notes           *string             `json:"notes"`
	Lines           *[]salesshared.Line `json:"items" validate:"omitempty,min=1,dive"`
}

type StatusRequest struct {
	Status Status `json:"status" validate:"required,oneof=draft pending_approval approved sent accepted rejected expired cancelled"`
	Reason string `json:"reason" validate:"max=500"`
}

type ConvertRequest struct {
	ExpectedDelivery *time.Time `json:"expectedDelivery"`
	Notes            string     `json:"notes"`
}

type ListQuotationsRequest struct {
	CustomerID int64
	Status     Status
	Search     string
}
