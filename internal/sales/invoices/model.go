package invoices

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	salesshared "github.com/odyssey-erp/factory-erp/internal/sales/shared"
	"github.com/odyssey-erp/factory-erp/internal/shared"
)

type Status string

const (
	StatusDraft     Status = "draft"
	StatusIssued    Status = "issued"
	StatusCancelled Status = "cancelled"
)

var Transitions = shared.Transitions[Status]{
	StatusDraft:  {StatusIssued, StatusCancelled},
	StatusIssued: {StatusCancelled},
}

type PaymentMethod string

const (
	MethodCash     PaymentMethod = "cash"
	MethodTransfer PaymentMethod = "bank_transfer"
	MethodCheque   PaymentMethod = "cheque"
	MethodCard     PaymentMethod = "card"
)

var ErrNotFound = errors.New("invoice not found")

type Invoice struct {
	ID            int64                     `json:"id"`
	CompanyID     int64                     `json:"companyId"`
	InvoiceNumber string                    `json:"invoiceNumber"`
	CustomerID    int64                     `json:"customerId"`
	OrderID       int64                     `json:"orderId,omitempty"`
	InvoiceDate   time.Time                 `json:"invoiceDate"`
	DueDate       time.Time                 `json:"dueDate"`
	Status        Status                    `json:"status"`
	Lines         []salesshared.Line        `json:"items"`
	PaidAmount    decimal.Decimal           `json:"paidAmount"`
	BalanceAmount decimal.Decimal           `json:"balanceAmount"`
	PaymentStatus salesshared.PaymentStatus `json:"paymentStatus"`
	Payments      []Payment                 `json:"payments"`
	Notes         string                    `json:"notes,omitempty"`
	CancelReason  string                    `json:"cancelReason,omitempty"`
	CreatedBy     int64                     `json:"createdBy"`
	CreatedAt     time.Time                 `json:"createdAt"`
	UpdatedAt     time.Time                 `json:"updatedAt"`

	salesshared.Totals
}

func (inv *Invoice) Recompute() {
	inv.Totals = salesshared.ComputeTotals(inv.Lines, inv.ShippingCharges)
	inv.BalanceAmount = inv.GrandTotal.Sub(inv.PaidAmount)
	inv.PaymentStatus = salesshared.DerivePaymentStatus(inv.PaidAmount, inv.GrandTotal)
}

// Overdue reports whether an issued invoice still has a balance after its due date.
func (inv *Invoice) Overdue(now time.Time) bool {
	return inv.Status == StatusIssued && inv.BalanceAmount.IsPositive() && now.After(inv.DueDate)
}

type Payment struct {
	ID        int64           `json:"id"`
	InvoiceID int64           `json:"invoiceId"`
	Amount    decimal.Decimal `json:"amount"`
	Method    PaymentMethod   `json:"method"`
	Reference string          `json:"reference,omitempty"`
	PaidAt    time.Time       `json:"paidAt"`
	CreatedBy int64           `json:"createdBy"`
}

type Stats struct {
	TotalInvoices    int                               `json:"totalInvoices"`
	TotalInvoiced    decimal.Decimal                   `json:"totalInvoiced"`
	TotalPaid        decimal.Decimal                   `json:"totalPaid"`
	TotalOutstanding decimal.Decimal                   `json:"totalOutstanding"`
	OverdueCount     int                               `json:"overdueCount"`
	OverdueAmount    decimal.Decimal                   `json:"overdueAmount"`
	ByPaymentStatus  map[salesshared.PaymentStatus]int `json:"byPaymentStatus"`
}
