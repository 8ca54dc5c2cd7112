package inventory

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// MovementType enumerates supported stock movements.
type MovementType string

const (
	MovementInward            MovementType = "inward"
	MovementOutward           MovementType = "outward"
	MovementTransfer          MovementType = "transfer"
	MovementAdjustment        MovementType = "adjustment"
	MovementProductionConsume MovementType = "production_consume"
	MovementProductionOutput  MovementType = "production_output"
	MovementReturn            MovementType = "return"
	MovementDamage            MovementType = "damage"
)

var movementPrefixes = map[MovementType]string{
	MovementInward:            "IN",
	MovementOutward:           "OUT",
	MovementTransfer:          "TRF",
	MovementAdjustment:        "ADJ",
	MovementProductionConsume: "PC",
	MovementProductionOutput:  "PO",
	MovementReturn:            "RET",
	MovementDamage:            "DMG",
}

// Prefix returns the movement number prefix, empty for unknown types.
func (t MovementType) Prefix() string {
	return movementPrefixes[t]
}

// Valid reports whether t is a known movement type.
func (t MovementType) Valid() bool {
	_, ok := movementPrefixes[t]
	return ok
}

// Inward reports whether the movement adds stock and moves the average cost.
func (t MovementType) Inward() bool {
	switch t {
	case MovementInward, MovementProductionOutput, MovementReturn:
		return true
	}
	return false
}

// ApprovalStatus tracks review of a movement.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

// Item is a stock keeping unit owned by a company.
type Item struct {
	ID             int64           `json:"id"`
	CompanyID      int64           `json:"companyId"`
	ItemCode       string          `json:"itemCode"`
	Name           string          `json:"name"`
	Description    string          `json:"description,omitempty"`
	Category       string          `json:"category"`
	Unit           string          `json:"unit"`
	WarehouseID    int64           `json:"warehouseId"`
	CurrentStock   decimal.Decimal `json:"currentStock"`
	ReservedStock  decimal.Decimal `json:"reservedStock"`
	AvailableStock decimal.Decimal `json:"availableStock"`
	InTransitStock decimal.Decimal `json:"inTransitStock"`
	DamagedStock   decimal.Decimal `json:"damagedStock"`
	ReorderLevel   decimal.Decimal `json:"reorderLevel"`
	AverageCost    decimal.Decimal `json:"averageCost"`
	TotalValue     decimal.Decimal `json:"totalValue"`
	IsActive       bool            `json:"isActive"`
	CreatedBy      int64           `json:"createdBy,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

// LowStock reports whether current stock is at or under the reorder level.
func (i Item) LowStock() bool {
	return i.ReorderLevel.IsPositive() && i.CurrentStock.LessThanOrEqual(i.ReorderLevel)
}

// Movement is an immutable ledger entry for one stock mutation.
type Movement struct {
	ID                int64           `json:"id"`
	CompanyID         int64           `json:"companyId"`
	MovementNumber    string          `json:"movementNumber"`
	ItemID            int64           `json:"itemId"`
	MovementType      MovementType    `json:"movementType"`
	Quantity          decimal.Decimal `json:"quantity"`
	Rate              decimal.Decimal `json:"rate"`
	TotalValue        decimal.Decimal `json:"totalValue"`
	StockBefore       decimal.Decimal `json:"stockBefore"`
	StockAfter        decimal.Decimal `json:"stockAfter"`
	AverageCostBefore decimal.Decimal `json:"averageCostBefore"`
	AverageCostAfter  decimal.Decimal `json:"averageCostAfter"`
	WarehouseID       int64           `json:"warehouseId"`
	ToWarehouseID     int64           `json:"toWarehouseId,omitempty"`
	ReferenceType     string          `json:"referenceType,omitempty"`
	ReferenceID       string          `json:"referenceId,omitempty"`
	ReferenceNumber   string          `json:"referenceNumber,omitempty"`
	Remarks           string          `json:"remarks,omitempty"`
	ApprovalStatus    ApprovalStatus  `json:"approvalStatus"`
	ApprovedBy        int64           `json:"approvedBy,omitempty"`
	ApprovedAt        *time.Time      `json:"approvedAt,omitempty"`
	CreatedBy         int64           `json:"createdBy,omitempty"`
	CreatedAt         time.Time       `json:"createdAt"`
}

// CreateItemInput describes a new item.
type CreateItemInput struct {
	ItemCode     string          `json:"itemCode" validate:"required,max=64"`
	Name         string          `json:"name" validate:"required,max=200"`
	Description  string          `json:"description"`
	Category     string          `json:"category" validate:"required"`
	Unit         string          `json:"unit" validate:"required"`
	WarehouseID  int64           `json:"warehouseId" validate:"required,gt=0"`
	OpeningStock decimal.Decimal `json:"openingStock"`
	OpeningRate  decimal.Decimal `json:"openingRate"`
	ReorderLevel decimal.Decimal `json:"reorderLevel"`
}

// UpdateItemInput carries editable descriptive fields. Stock fields only
// change through movements.
type UpdateItemInput struct {
	Name         *string          `json:"name" validate:"omitempty,max=200"`
	Description  *string          `json:"description"`
	Category     *string          `json:"category"`
	Unit         *string          `json:"unit"`
	WarehouseID  *int64           `json:"warehouseId" validate:"omitempty,gt=0"`
	ReorderLevel *decimal.Decimal `json:"reorderLevel"`
}

// StockUpdateInput describes one movement against an item.
type StockUpdateInput struct {
	ItemID          int64           `json:"-"`
	WarehouseID     int64           `json:"warehouseId"`
	MovementType    MovementType    `json:"movementType" validate:"required"`
	Quantity        decimal.Decimal `json:"quantity"`
	Rate            decimal.Decimal `json:"rate"`
	ReferenceType   string          `json:"referenceType"`
	ReferenceID     string          `json:"referenceId"`
	ReferenceNumber string          `json:"referenceNumber"`
	Remarks         string          `json:"remarks"`
	IdempotencyKey  string          `json:"-"`
	// ReleaseReserved also lowers reserved stock by Quantity, used when
	// consuming materials that were reserved for production.
	ReleaseReserved bool `json:"-"`
}

// TransferInput moves stock between two warehouses.
type TransferInput struct {
	ItemID          int64           `json:"-"`
	FromWarehouseID int64           `json:"fromWarehouseId" validate:"required,gt=0"`
	ToWarehouseID   int64           `json:"toWarehouseId" validate:"required,gt=0,nefield=FromWarehouseID"`
	Quantity        decimal.Decimal `json:"quantity"`
	Remarks         string          `json:"remarks"`
}

// ListFilter narrows item listings.
type ListFilter struct {
	Search      string
	Category    string
	WarehouseID int64
	LowStock    bool
	Active      *bool
}

// CategoryValue aggregates value per category.
type CategoryValue struct {
	Category   string          `json:"category"`
	ItemCount  int             `json:"itemCount"`
	TotalValue decimal.Decimal `json:"totalValue"`
}

// Stats summarises a company's inventory.
type Stats struct {
	TotalItems      int             `json:"totalItems"`
	ActiveItems     int             `json:"activeItems"`
	TotalValue      decimal.Decimal `json:"totalValue"`
	LowStockItems   int             `json:"lowStockItems"`
	OutOfStockItems int             `json:"outOfStockItems"`
	ReservedValue   decimal.Decimal `json:"reservedValue"`
	ByCategory      []CategoryValue `json:"byCategory"`
}

var (
	// ErrInsufficientStock is returned when a reservation or outward movement
	// exceeds what is on hand.
	ErrInsufficientStock = errors.New("inventory: insufficient stock")
	// ErrNegativeStock is returned when a movement would drop stock below zero.
	ErrNegativeStock = errors.New("inventory: negative stock not allowed")
	// ErrInvalidQuantity indicates a zero or malformed quantity.
	ErrInvalidQuantity = errors.New("inventory: quantity must be non zero")
	// ErrInvalidRate indicates a negative rate.
	ErrInvalidRate = errors.New("inventory: rate must be >= 0")
	// ErrItemNotFound indicates a missing item.
	ErrItemNotFound = errors.New("inventory: item not found")
	// ErrMovementNotFound indicates a missing movement.
	ErrMovementNotFound = errors.New("inventory: movement not found")
	// ErrItemInactive indicates an item that was deactivated.
	ErrItemInactive = errors.New("inventory: item inactive")
	// ErrDuplicateCode indicates the item code is already used in the company.
	ErrDuplicateCode = errors.New("inventory: item code already exists")
)
