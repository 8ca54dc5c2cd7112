package procurement

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	salesshared "github.com/odyssey-erp/factory-erp/internal/sales/shared"
	"github.com/odyssey-erp/factory-erp/internal/shared"
)

// Status is the purchase order lifecycle state.
type Status string

const (
	StatusDraft             Status = "draft"
	StatusPendingApproval   Status = "pending_approval"
	StatusApproved          Status = "approved"
	StatusOrdered           Status = "ordered"
	StatusPartiallyReceived Status = "partially_received"
	StatusReceived          Status = "received"
	StatusClosed            Status = "closed"
	StatusCancelled         Status = "cancelled"
)

// Transitions lists allowed status changes. The received states are only
// entered through goods receipts.
var Transitions = shared.Transitions[Status]{
	StatusDraft:             {StatusPendingApproval, StatusCancelled},
	StatusPendingApproval:   {StatusApproved, StatusDraft, StatusCancelled},
	StatusApproved:          {StatusOrdered, StatusCancelled},
	StatusOrdered:           {StatusPartiallyReceived, StatusReceived, StatusCancelled},
	StatusPartiallyReceived: {StatusReceived, StatusClosed},
	StatusReceived:          {StatusClosed},
}

// Line is an ordered item with its receiving progress.
type Line struct {
	ID int64 `json:"id,omitempty"`
	salesshared.Line
	ReceivedQuantity decimal.Decimal `json:"receivedQuantity"`
}

// Pending is the quantity still expected from the supplier.
func (l Line) Pending() decimal.Decimal {
	return decimal.Max(l.Quantity.Sub(l.ReceivedQuantity), decimal.Zero)
}

// UnitCost is the rate after line discount, used to value received stock.
func (l Line) UnitCost() decimal.Decimal {
	hundred := decimal.NewFromInt(100)
	return l.Rate.Mul(hundred.Sub(l.DiscountPercent)).Div(hundred).Round(4)
}

// PurchaseOrder is a priced order to a supplier, received into one warehouse.
type PurchaseOrder struct {
	ID           int64      `json:"id"`
	CompanyID    int64      `json:"companyId"`
	PONumber     string     `json:"poNumber"`
	SupplierID   int64      `json:"supplierId"`
	WarehouseID  int64      `json:"warehouseId"`
	OrderDate    time.Time  `json:"orderDate"`
	ExpectedDate *time.Time `json:"expectedDate,omitempty"`
	Status       Status     `json:"status"`
	Lines        []Line     `json:"items"`
	Notes        string     `json:"notes,omitempty"`
	ApprovedBy   int64      `json:"approvedBy,omitempty"`
	ApprovedAt   *time.Time `json:"approvedAt,omitempty"`
	CancelReason string     `json:"cancelReason,omitempty"`
	CreatedBy    int64      `json:"createdBy"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`

	salesshared.Totals
}

// Recompute refreshes line and document totals.
func (po *PurchaseOrder) Recompute() {
	base := make([]salesshared.Line, len(po.Lines))
	for i, l := range po.Lines {
		base[i] = l.Line
	}
	po.Totals = salesshared.ComputeTotals(base, po.ShippingCharges)
	for i := range po.Lines {
		po.Lines[i].Line = base[i]
	}
}

// ReceiptStatus derives the receiving state from line progress. It returns
// the current status when nothing has been received.
func (po *PurchaseOrder) ReceiptStatus() Status {
	received, complete := false, true
	for _, l := range po.Lines {
		if l.ReceivedQuantity.IsPositive() {
			received = true
		}
		if l.Pending().IsPositive() {
			complete = false
		}
	}
	switch {
	case received && complete:
		return StatusReceived
	case received:
		return StatusPartiallyReceived
	default:
		return po.Status
	}
}

// Receipt is a goods receipt posted against a purchase order.
type Receipt struct {
	ID            int64         `json:"id"`
	CompanyID     int64         `json:"companyId"`
	POID          int64         `json:"purchaseOrderId"`
	ReceiptNumber string        `json:"receiptNumber"`
	WarehouseID   int64         `json:"warehouseId"`
	ReceivedAt    time.Time     `json:"receivedAt"`
	Notes         string        `json:"notes,omitempty"`
	Lines         []ReceiptLine `json:"items"`
	CreatedBy     int64         `json:"createdBy"`
}

// ReceiptLine records one inward movement of a receipt.
type ReceiptLine struct {
	LineID         int64           `json:"lineId"`
	ItemID         int64           `json:"itemId"`
	Quantity       decimal.Decimal `json:"quantity"`
	Rate           decimal.Decimal `json:"rate"`
	MovementNumber string          `json:"movementNumber"`

	key string
}

// ListFilter narrows purchase order listings.
type ListFilter struct {
	SupplierID int64
	Status     Status
	Search     string
}

// Stats summarises purchasing for a company.
type Stats struct {
	TotalOrders     int             `json:"totalOrders"`
	TotalValue      decimal.Decimal `json:"totalValue"`
	OpenValue       decimal.Decimal `json:"openValue"`
	PendingApproval int             `json:"pendingApproval"`
	ByStatus        map[Status]int  `json:"byStatus"`
}

var (
	// ErrNotFound indicates record missing.
	ErrNotFound = errors.New("procurement: not found")
)
