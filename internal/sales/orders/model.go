package orders

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	salesshared "github.com/odyssey-erp/factory-erp/internal/sales/shared"
	"github.com/odyssey-erp/factory-erp/internal/shared"
)

type Status string

const (
	StatusPending      Status = "pending"
	StatusConfirmed    Status = "confirmed"
	StatusInProduction Status = "in_production"
	StatusReady        Status = "ready"
	StatusDispatched   Status = "dispatched"
	StatusDelivered    Status = "delivered"
	StatusCancelled    Status = "cancelled"
)

// Transitions lists the legal customer order status changes.
var Transitions = shared.Transitions[Status]{
	StatusPending:      {StatusConfirmed, StatusCancelled},
	StatusConfirmed:    {StatusInProduction, StatusReady, StatusCancelled},
	StatusInProduction: {StatusReady, StatusCancelled},
	StatusReady:        {StatusDispatched, StatusCancelled},
	StatusDispatched:   {StatusDelivered},
}

var ErrNotFound = errors.New("customer order not found")

type CustomerOrder struct {
	ID               int64                     `json:"id"`
	CompanyID        int64                     `json:"companyId"`
	OrderNumber      string                    `json:"orderNumber"`
	CustomerID       int64                     `json:"customerId"`
	QuotationID      int64                     `json:"quotationId,omitempty"`
	OrderDate        time.Time                 `json:"orderDate"`
	ExpectedDelivery *time.Time                `json:"expectedDelivery,omitempty"`
	Status           Status                    `json:"status"`
	Lines            []salesshared.Line        `json:"items"`
	PaidAmount       decimal.Decimal           `json:"paidAmount"`
	BalanceAmount    decimal.Decimal           `json:"balanceAmount"`
	PaymentStatus    salesshared.PaymentStatus `json:"paymentStatus"`
	Notes            string                    `json:"notes,omitempty"`
	CancelReason     string                    `json:"cancelReason,omitempty"`
	CreatedBy        int64                     `json:"createdBy"`
	CreatedAt        time.Time                 `json:"createdAt"`
	UpdatedAt        time.Time                 `json:"updatedAt"`

	salesshared.Totals
}

// Recompute refreshes line amounts, header totals and payment figures.
func (o *CustomerOrder) Recompute() {
	o.Totals = salesshared.ComputeTotals(o.Lines, o.ShippingCharges)
	o.BalanceAmount = o.GrandTotal.Sub(o.PaidAmount)
	o.PaymentStatus = salesshared.DerivePaymentStatus(o.PaidAmount, o.GrandTotal)
}
