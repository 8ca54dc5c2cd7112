package invoices

import (
	"time"

	"github.com/shopspring/decimal"

	salesshared "github.com/odyssey-erp/factory-erp/internal/sales/shared"
)

// CreateInvoiceRequest creates an invoice from explicit lines or, when
// OrderID is set and Lines is empty, from the customer order.
type CreateInvoiceRequest struct {
	CustomerID      int64              `json:"customerId" validate:"omitempty,gt=0"`
	OrderID         int64              `json:"orderId" validate:"omitempty,gt=0"`
	InvoiceDate     time.Time          `json:"invoiceDate"`
	DueDate         *time.Time         `json:"dueDate"`
	ShippingCharges decimal.Decimal    `json:"shippingCharges"`
	Notes           string             `json:"notes"`
	Lines           []salesshared.Line `json:"items" validate:"dive"`
}

type StatusRequest struct {
	Status Status `json:"status" validate:"required,oneof=issued cancelled"`
	Reason string `json:"reason" validate:"max=500"`
}

type PaymentRequest struct {
	Amount    decimal.Decimal `json:"amount"`
	Method    PaymentMethod   `json:"method" validate:"required,oneof=cash bank_transfer cheque card"`
	Reference string          `json:"reference" validate:"max=100"`
	PaidAt    *time.Time      `json:"paidAt"`
}

type ListInvoicesRequest struct {
	CustomerID    int64
	Status        Status
	PaymentStatus salesshared.PaymentStatus
	Search        string
}
