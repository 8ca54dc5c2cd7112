package production

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/factory-erp/internal/shared"
)

// Status enumerates production order states.
type Status string

const (
	StatusDraft      Status = "draft"
	StatusApproved   Status = "approved"
	StatusInProgress Status = "in_progress"
	StatusOnHold     Status = "on_hold"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// OrderTransitions lists the legal status changes.
var OrderTransitions = shared.Transitions[Status]{
	StatusDraft:      {StatusApproved, StatusCancelled},
	StatusApproved:   {StatusInProgress, StatusCancelled},
	StatusInProgress: {StatusOnHold, StatusCompleted, StatusCancelled},
	StatusOnHold:     {StatusInProgress, StatusCancelled},
}

// holdsReservation reports whether materials are reserved in status s.
func (s Status) holdsReservation() bool {
	return s == StatusInProgress || s == StatusOnHold
}

// Priority orders work on the shop floor.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// StageStatus enumerates stage states.
type StageStatus string

const (
	StagePending    StageStatus = "pending"
	StageInProgress StageStatus = "in_progress"
	StageCompleted  StageStatus = "completed"
	StageOnHold     StageStatus = "on_hold"
	StageRejected   StageStatus = "rejected"
	StageRework     StageStatus = "rework"
)

// RawMaterial is one input of a production order.
type RawMaterial struct {
	ItemID            int64           `json:"itemId"`
	ItemCode          string          `json:"itemCode"`
	ItemName          string          `json:"itemName"`
	Unit              string          `json:"unit"`
	RequiredQuantity  decimal.Decimal `json:"requiredQuantity"`
	AllocatedQuantity decimal.Decimal `json:"allocatedQuantity"`
	ConsumedQuantity  decimal.Decimal `json:"consumedQuantity"`
	Rate              decimal.Decimal `json:"rate"`
	TotalCost         decimal.Decimal `json:"totalCost"`
}

// Stage is one sequential step of a production order.
type Stage struct {
	StageName         string          `json:"stageName"`
	Sequence          int             `json:"sequence"`
	Status            StageStatus     `json:"status"`
	CompletedQuantity decimal.Decimal `json:"completedQuantity"`
	RejectedQuantity  decimal.Decimal `json:"rejectedQuantity"`
	LabourCost        decimal.Decimal `json:"labourCost"`
	OverheadCost      decimal.Decimal `json:"overheadCost"`
	Remarks           string          `json:"remarks,omitempty"`
	StartedAt         *time.Time      `json:"startedAt,omitempty"`
	CompletedAt       *time.Time      `json:"completedAt,omitempty"`
}

// CostSummary is derived from materials and stages.
type CostSummary struct {
	MaterialCost decimal.Decimal `json:"materialCost"`
	LabourCost   decimal.Decimal `json:"labourCost"`
	OverheadCost decimal.Decimal `json:"overheadCost"`
	TotalCost    decimal.Decimal `json:"totalCost"`
	CostPerUnit  decimal.Decimal `json:"costPerUnit"`
}

// Order is a production order.
type Order struct {
	ID                int64           `json:"id"`
	CompanyID         int64           `json:"companyId"`
	OrderNumber       string          `json:"orderNumber"`
	ProductName       string          `json:"productName"`
	OutputItemID      int64           `json:"outputItemId,omitempty"`
	CustomerOrderID   int64           `json:"customerOrderId,omitempty"`
	OrderQuantity     decimal.Decimal `json:"orderQuantity"`
	CompletedQuantity decimal.Decimal `json:"completedQuantity"`
	RejectedQuantity  decimal.Decimal `json:"rejectedQuantity"`
	PendingQuantity   decimal.Decimal `json:"pendingQuantity"`
	Status            Status          `json:"status"`
	Priority          Priority        `json:"priority"`
	PlannedStart      *time.Time      `json:"plannedStart,omitempty"`
	PlannedEnd        *time.Time      `json:"plannedEnd,omitempty"`
	ActualStart       *time.Time      `json:"actualStart,omitempty"`
	ActualEnd         *time.Time      `json:"actualEnd,omitempty"`
	RawMaterials      []RawMaterial   `json:"rawMaterials"`
	Stages            []Stage         `json:"productionStages"`
	Cost              CostSummary     `json:"costSummary"`
	HoldReason        string          `json:"holdReason,omitempty"`
	CancelReason      string          `json:"cancelReason,omitempty"`
	Remarks           string          `json:"remarks,omitempty"`
	CreatedBy         int64           `json:"createdBy,omitempty"`
	ApprovedBy        int64           `json:"approvedBy,omitempty"`
	CreatedAt         time.Time       `json:"createdAt"`
	UpdatedAt         time.Time       `json:"updatedAt"`
}

// MaterialInput names a raw material and its required quantity.
type MaterialInput struct {
	ItemID           int64           `json:"itemId" validate:"required,gt=0"`
	RequiredQuantity decimal.Decimal `json:"requiredQuantity"`
}

// StageInput names a stage.
type StageInput struct {
	StageName string `json:"stageName" validate:"required,max=100"`
}

// CreateInput describes a new production order.
type CreateInput struct {
	ProductName     string          `json:"productName" validate:"required,max=200"`
	OutputItemID    int64           `json:"outputItemId" validate:"omitempty,gt=0"`
	CustomerOrderID int64           `json:"customerOrderId" validate:"omitempty,gt=0"`
	OrderQuantity   decimal.Decimal `json:"orderQuantity"`
	Priority        Priority        `json:"priority" validate:"omitempty,oneof=low normal high urgent"`
	PlannedStart    *time.Time      `json:"plannedStart"`
	PlannedEnd      *time.Time      `json:"plannedEnd"`
	RawMaterials    []MaterialInput `json:"rawMaterials" validate:"required,min=1,dive"`
	Stages          []StageInput    `json:"productionStages" validate:"dive"`
	Remarks         string          `json:"remarks"`
}

// CompleteStageInput reports the outcome of a stage.
type CompleteStageInput struct {
	CompletedQuantity decimal.Decimal `json:"completedQuantity"`
	RejectedQuantity  decimal.Decimal `json:"rejectedQuantity"`
	LabourCost        decimal.Decimal `json:"labourCost"`
	OverheadCost      decimal.Decimal `json:"overheadCost"`
	Remarks           string          `json:"remarks"`
}

// CompleteInput reports the final output of an order.
type CompleteInput struct {
	CompletedQuantity decimal.Decimal `json:"completedQuantity"`
	RejectedQuantity  decimal.Decimal `json:"rejectedQuantity"`
}

// ReasonInput carries a free text reason.
type ReasonInput struct {
	Reason string `json:"reason" validate:"max=500"`
}

// ListFilter narrows order listings.
type ListFilter struct {
	Status   Status
	Priority Priority
	Search   string
}

// Stats summarises production for a company.
type Stats struct {
	TotalOrders       int             `json:"totalOrders"`
	ByStatus          map[Status]int  `json:"byStatus"`
	PlannedQuantity   decimal.Decimal `json:"plannedQuantity"`
	CompletedQuantity decimal.Decimal `json:"completedQuantity"`
	RejectedQuantity  decimal.Decimal `json:"rejectedQuantity"`
	TotalCost         decimal.Decimal `json:"totalCost"`
}

var (
	// ErrNotFound indicates a missing production order.
	ErrNotFound = errors.New("production: order not found")
	// ErrQuantityExceeded is returned when completed plus rejected exceed the order.
	ErrQuantityExceeded = errors.New("production: completed and rejected exceed order quantity")
)
