package quotations

import (
	"errors"
	"time"

	salesshared "github.com/odyssey-erp/factory-erp/internal/sales/shared"
	"github.com/odyssey-erp/factory-erp/internal/shared"
)

type Status string

const (
	StatusDraft           Status = "draft"
	StatusPendingApproval Status = "pending_approval"
	StatusApproved        Status = "approved"
	StatusSent            Status = "sent"
	StatusAccepted        Status = "accepted"
	StatusConverted       Status = "converted"
	StatusRejected        Status = "rejected"
	StatusExpired         Status = "expired"
	StatusCancelled       Status = "cancelled"
)

// Transitions lists the status changes allowed through ChangeStatus.
// Conversion happens only in ConvertToOrder, which creates the order.
var Transitions = shared.Transitions[Status]{
	StatusDraft:           {StatusPendingApproval, StatusCancelled},
	StatusPendingApproval: {StatusApproved, StatusRejected, StatusDraft, StatusCancelled},
	StatusApproved:        {StatusSent, StatusExpired, StatusCancelled},
	StatusSent:            {StatusAccepted, StatusRejected, StatusExpired, StatusCancelled},
	StatusAccepted:        {StatusCancelled},
	StatusRejected:        {StatusDraft},
}

// expirable statuses are moved to expired once validUntil has passed.
var expirable = []Status{StatusApproved, StatusSent}

var (
	ErrNotFound = errors.New("quotation not found")
	ErrExpired  = errors.New("quotation validity has passed")
)

type Quotation struct {
	ID               int64              `json:"id"`
	CompanyID        int64              `json:"companyId"`
	QuotationNumber  string             `json:"quotationNumber"`
	CustomerID       int64              `json:"customerId"`
	QuoteDate        time.Time          `json:"quoteDate"`
	ValidUntil       time.Time          `json:"validUntil"`
	Status           Status             `json:"status"`
	Lines            []salesshared.Line `json:"items"`
	ConvertedOrderID int64              `json:"convertedOrderId,omitempty"`
	RejectReason     string             `json:"rejectReason,omitempty"`
	Notes            string             `json:"notes,omitempty"`
	CreatedBy        int64              `json:"createdBy"`
	ApprovedBy       int64              `json:"approvedBy,omitempty"`
	CreatedAt        time.Time          `json:"createdAt"`
	UpdatedAt        time.Time          `json:"updatedAt"`

	salesshared.Totals
}

func (q *Quotation) Recompute() {
	q.Totals = salesshared.ComputeTotals(q.Lines, q.ShippingCharges)
}

// ExpiredRef identifies a quotation moved to expired by the expiry sweep.
type ExpiredRef struct {
	CompanyID       int64
	ID              int64
	QuotationNumber string
}
