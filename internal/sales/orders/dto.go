package orders

import (
	"time"

	"github.com/shopspring/decimal"

	salesshared "github.com/odyssey-erp/factory-erp/internal/sales/shared"
)

type CreateOrderRequest struct {
	CustomerID       int64              `json:"customerId" validate:"required,gt=0"`
	QuotationID      int64              `json:"quotationId" validate:"omitempty,gt=0"`
	OrderDate        time.Time          `json:"orderDate"`
	ExpectedDelivery *time.Time         `json:"expectedDelivery"`
	ShippingCharges  decimal.Decimal    `json:"shippingCharges"`
	Notes            string             `json:"notes"`
	Lines            []salesshared.Line `json:"items" validate:"required,min=1,dive"`
}

type UpdateOrderRequest struct {
	ExpectedDelivery *time.Time          `json:"expectedDelivery"`
	ShippingCharges  *decimal.Decimal    `json:"shippingCharges"`
	Notes            *string             `json:"notes"`
	Lines            *[]salesshared.Line `json:"items" validate:"omitempty,min=1,dive"`
}

type StatusRequest struct {
	Status Status `json:"status" validate:"required,oneof=pending confirmed in_production ready dispatched delivered cancelled"`
	Reason string `json:"reason" validate:"max=500"`
}

type ListOrdersRequest struct {
	CustomerID int64
	Status     Status
	Search     string
}
