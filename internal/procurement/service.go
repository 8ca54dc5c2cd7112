package procurement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/factory-erp/internal/inventory"
	"github.com/odyssey-erp/factory-erp/internal/masterdata/suppliers"
	"github.com/odyssey-erp/factory-erp/internal/masterdata/warehouses"
	"github.com/odyssey-erp/factory-erp/internal/platform/lock"
	salesshared "github.com/odyssey-erp/factory-erp/internal/sales/shared"
	"github.com/odyssey-erp/factory-erp/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetPO(ctx context.Context, companyID, id int64) (PurchaseOrder, error)
	ListPOs(ctx context.Context, companyID int64, filter ListFilter, page shared.Page) ([]PurchaseOrder, int, error)
	DeletePO(ctx context.Context, companyID, id int64) error
	ListReceipts(ctx context.Context, companyID, poID int64) ([]Receipt, error)
	Stats(ctx context.Context, companyID int64) (Stats, error)
}

// StockPort exposes required inventory integration.
type StockPort interface {
	GetItem(ctx context.Context, id int64) (inventory.Item, error)
	UpdateStock(ctx context.Context, input inventory.StockUpdateInput) (inventory.Movement, error)
	ReleaseMovementKey(ctx context.Context, key string) error
}

type SupplierPort interface {
	RequireActive(ctx context.Context, id int64) (suppliers.Supplier, error)
}

type WarehousePort interface {
	RequireActive(ctx context.Context, id int64) (warehouses.Warehouse, error)
}

type Locker interface {
	WithLock(ctx context.Context, key string, fn func(context.Context) error) error
}

// Service orchestrates procurement flows.
type Service struct {
	repo       RepositoryPort
	stock      StockPort
	suppliers  SupplierPort
	warehouses WarehousePort
	locker     Locker
	numbers    *shared.Numberer
	approvals  shared.ApprovalPort
	audit      shared.AuditPort
	logger     *slog.Logger
	now        func() time.Time
}

// Deps groups the collaborators of Service. Approvals, Audit and Locker may be nil.
type Deps struct {
	Stock      StockPort
	Suppliers  SupplierPort
	Warehouses WarehousePort
	Locker     Locker
	Numbers    *shared.Numberer
	Approvals  shared.ApprovalPort
	Audit      shared.AuditPort
	Logger     *slog.Logger
}

// NewService constructs procurement service.
func NewService(repo RepositoryPort, deps Deps) *Service {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Locker == nil {
		deps.Locker = lock.New(nil, 0)
	}
	return &Service{
		repo:       repo,
		stock:      deps.Stock,
		suppliers:  deps.Suppliers,
		warehouses: deps.Warehouses,
		locker:     deps.Locker,
		numbers:    deps.Numbers,
		approvals:  deps.Approvals,
		audit:      deps.Audit,
		logger:     deps.Logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// CreateInput defines data to create a purchase order.
type CreateInput struct {
	SupplierID      int64              `json:"supplierId" validate:"required,gt=0"`
	WarehouseID     int64              `json:"warehouseId" validate:"required,gt=0"`
	OrderDate       time.Time          `json:"orderDate"`
	ExpectedDate    *time.Time         `json:"expectedDate"`
	ShippingCharges decimal.Decimal    `json:"shippingCharges"`
	Notes           string             `json:"notes"`
	Lines           []salesshared.Line `json:"items" validate:"required,min=1,dive"`
}

// UpdateInput edits a draft purchase order. Nil fields are left unchanged.
type UpdateInput struct {
	ExpectedDate    *time.Time          `json:"expectedDate"`
	ShippingCharges *decimal.Decimal    `json:"shippingCharges"`
	Notes           *string             `json:"notes"`
	Lines           *[]salesshared.Line `json:"items" validate:"omitempty,min=1,dive"`
}

// StatusInput requests a manual status change.
type StatusInput struct {
	Status Status `json:"status" validate:"required,oneof=draft pending_approval approved ordered closed cancelled"`
	Reason string `json:"reason" validate:"max=500"`
}

// ReceiveInput posts received quantities into stock.
type ReceiveInput struct {
	ReceivedAt *time.Time    `json:"receivedAt"`
	Notes      string        `json:"notes"`
	Lines      []ReceiveLine `json:"items" validate:"required,min=1,dive"`

	// IdempotencyKey makes client retries of one receipt safe.
	IdempotencyKey string `json:"-"`
}

// ReceiveLine is the quantity received for one purchase order line.
type ReceiveLine struct {
	LineID   int64           `json:"lineId" validate:"required,gt=0"`
	Quantity decimal.Decimal `json:"quantity"`
}

// Create validates supplier, warehouse and items and stores a draft order.
func (s *Service) Create(ctx context.Context, input CreateInput) (PurchaseOrder, error) {
	companyID, err := shared.CompanyID(ctx)
	if err != nil {
		return PurchaseOrder{}, err
	}
	if _, err := s.suppliers.RequireActive(ctx, input.SupplierID); err != nil {
		return PurchaseOrder{}, err
	}
	if s.warehouses != nil {
		if _, err := s.warehouses.RequireActive(ctx, input.WarehouseID); err != nil {
			return PurchaseOrder{}, err
		}
	}
	if input.ShippingCharges.IsNegative() {
		return PurchaseOrder{}, shared.Validation("shipping charges must be >= 0")
	}
	lines, err := s.prepareLines(ctx, input.Lines)
	if err != nil {
		return PurchaseOrder{}, err
	}
	orderDate := input.OrderDate
	if orderDate.IsZero() {
		orderDate = s.now()
	}
	if input.ExpectedDate != nil && input.ExpectedDate.Before(orderDate.Truncate(24*time.Hour)) {
		return PurchaseOrder{}, shared.Validation("expectedDate cannot be before orderDate")
	}
	number, err := s.numbers.Daily(ctx, companyID, "PO")
	if err != nil {
		return PurchaseOrder{}, shared.Database("next purchase order number", err)
	}
	po := PurchaseOrder{
		CompanyID:    companyID,
		PONumber:     number,
		SupplierID:   input.SupplierID,
		WarehouseID:  input.WarehouseID,
		OrderDate:    orderDate,
		ExpectedDate: input.ExpectedDate,
		Status:       StatusDraft,
		Lines:        lines,
		Notes:        strings.TrimSpace(input.Notes),
		CreatedBy:    shared.ActorID(ctx),
	}
	po.ShippingCharges = input.ShippingCharges
	po.Recompute()

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.CreatePO(ctx, po)
		if err != nil {
			return err
		}
		po.ID = id
		return tx.ReplaceLines(ctx, id, po.Lines)
	})
	if err != nil {
		return PurchaseOrder{}, mapError(err)
	}
	s.recordAudit(ctx, "purchase_order:create", po.ID, map[string]any{"number": po.PONumber, "supplier_id": po.SupplierID})
	return s.Get(ctx, po.ID)
}

// prepareLines checks that every line names an active inventory item and
// fills unit and description from it.
func (s *Service) prepareLines(ctx context.Context, in []salesshared.Line) ([]Line, error) {
	if err := salesshared.ValidateLines(in); err != nil {
		return nil, err
	}
	seen := make(map[int64]struct{}, len(in))
	out := make([]Line, 0, len(in))
	for i, l := range in {
		if l.ItemID == 0 {
			return nil, shared.Validation(fmt.Sprintf("line %d: itemId is required", i+1))
		}
		if _, dup := seen[l.ItemID]; dup {
			return nil, shared.Validation(fmt.Sprintf("line %d: item %d listed twice", i+1, l.ItemID))
		}
		seen[l.ItemID] = struct{}{}
		item, err := s.stock.GetItem(ctx, l.ItemID)
		if err != nil {
			return nil, err
		}
		if !item.IsActive {
			return nil, shared.Business("ITEM_INACTIVE", fmt.Sprintf("item %s is inactive", item.ItemCode), inventory.ErrItemInactive)
		}
		if strings.TrimSpace(l.Description) == "" {
			l.Description = item.Name
		}
		if l.Unit == "" {
			l.Unit = item.Unit
		}
		out = append(out, Line{Line: l})
	}
	return out, nil
}

// Update edits a draft purchase order.
func (s *Service) Update(ctx context.Context, id int64, input UpdateInput) (PurchaseOrder, error) {
	var lines []Line
	if input.Lines != nil {
		var err error
		if lines, err = s.prepareLines(ctx, *input.Lines); err != nil {
			return PurchaseOrder{}, err
		}
	}
	if input.ShippingCharges != nil && input.ShippingCharges.IsNegative() {
		return PurchaseOrder{}, shared.Validation("shipping charges must be >= 0")
	}
	err := s.mutate(ctx, id, func(ctx context.Context, tx TxRepository, po *PurchaseOrder) error {
		if po.Status != StatusDraft {
			return shared.Business("PO_LOCKED", "only draft purchase orders can be edited", nil)
		}
		if input.ExpectedDate != nil {
			po.ExpectedDate = input.ExpectedDate
		}
		if input.ShippingCharges != nil {
			po.ShippingCharges = *input.ShippingCharges
		}
		if input.Notes != nil {
			po.Notes = strings.TrimSpace(*input.Notes)
		}
		if lines != nil {
			po.Lines = lines
		}
		po.Recompute()
		if err := tx.UpdatePO(ctx, *po); err != nil {
			return err
		}
		if lines != nil {
			return tx.ReplaceLines(ctx, po.ID, po.Lines)
		}
		return nil
	})
	if err != nil {
		return PurchaseOrder{}, err
	}
	s.recordAudit(ctx, "purchase_order:update", id, nil)
	return s.Get(ctx, id)
}

// ChangeStatus moves a purchase order through its approval and ordering steps.
func (s *Service) ChangeStatus(ctx context.Context, id int64, input StatusInput) (PurchaseOrder, error) {
	if input.Status == StatusPartiallyReceived || input.Status == StatusReceived {
		return PurchaseOrder{}, shared.Validation("received statuses are set by goods receipts")
	}
	var from Status
	var number string
	err := s.mutate(ctx, id, func(ctx context.Context, tx TxRepository, po *PurchaseOrder) error {
		if err := Transitions.Check("purchase order", po.Status, input.Status); err != nil {
			return err
		}
		if input.Status == StatusCancelled && po.ReceiptStatus() != po.Status {
			return shared.Business("PO_RECEIVED", "purchase orders with received goods cannot be cancelled", nil)
		}
		from, number = po.Status, po.PONumber
		po.Status = input.Status
		switch input.Status {
		case StatusApproved:
			now := s.now()
			po.ApprovedBy = shared.ActorID(ctx)
			po.ApprovedAt = &now
		case StatusDraft:
			po.ApprovedBy, po.ApprovedAt = 0, nil
		case StatusCancelled:
			po.CancelReason = strings.TrimSpace(input.Reason)
		}
		return tx.UpdatePO(ctx, *po)
	})
	if err != nil {
		return PurchaseOrder{}, err
	}
	s.recordApproval(ctx, id, number, from, input)
	s.recordAudit(ctx, "purchase_order:status", id, map[string]any{"from": string(from), "to": string(input.Status)})
	return s.Get(ctx, id)
}

func (s *Service) recordApproval(ctx context.Context, id int64, number string, from Status, input StatusInput) {
	if s.approvals == nil {
		return
	}
	var action shared.ApprovalAction
	switch {
	case input.Status == StatusPendingApproval:
		action = shared.ApprovalSubmit
	case input.Status == StatusApproved:
		action = shared.ApprovalApprove
	case from == StatusPendingApproval && (input.Status == StatusDraft || input.Status == StatusCancelled):
		action = shared.ApprovalReject
	default:
		return
	}
	companyID, _ := shared.CompanyID(ctx)
	note := strings.TrimSpace(input.Reason)
	if note == "" {
		note = fmt.Sprintf("PO %s %s", number, strings.ToLower(string(action)))
	}
	if err := s.approvals.Record(ctx, shared.ApprovalLog{
		CompanyID: companyID,
		Module:    "purchase_order",
		RefID:     id,
		ActorID:   shared.ActorID(ctx),
		Action:    action,
		Note:      note,
		At:        s.now(),
	}); err != nil {
		s.logger.Warn("record approval", slog.Int64("po_id", id), slog.Any("error", err))
	}
}

// Receive posts received quantities as inward stock movements valued at the
// discounted line rate, then advances the order to partially_received or
// received. Movements already posted are reversed when the receipt cannot
// be stored.
func (s *Service) Receive(ctx context.Context, id int64, input ReceiveInput) (Receipt, error) {
	companyID, err := shared.CompanyID(ctx)
	if err != nil {
		return Receipt{}, err
	}
	if len(input.Lines) == 0 {
		return Receipt{}, shared.Validation("at least one received line required")
	}
	var receipt Receipt
	err = s.locker.WithLock(ctx, lock.PurchaseOrderKey(companyID, id), func(ctx context.Context) error {
		po, err := s.repo.GetPO(ctx, companyID, id)
		if err != nil {
			return err
		}
		if po.Status != StatusOrdered && po.Status != StatusPartiallyReceived {
			return shared.Business("PO_NOT_RECEIVABLE", fmt.Sprintf("purchase order is %s; goods can only be received once ordered", po.Status), nil)
		}
		if err := checkReceipt(po, input.Lines); err != nil {
			return err
		}
		number, err := s.numbers.Daily(ctx, companyID, "GRN")
		if err != nil {
			return shared.Database("next receipt number", err)
		}
		receipt = Receipt{
			CompanyID:     companyID,
			POID:          po.ID,
			ReceiptNumber: number,
			WarehouseID:   po.WarehouseID,
			ReceivedAt:    s.now(),
			Notes:         strings.TrimSpace(input.Notes),
			CreatedBy:     shared.ActorID(ctx),
		}
		if input.ReceivedAt != nil {
			receipt.ReceivedAt = *input.ReceivedAt
		}
		receiptKey := input.IdempotencyKey
		if receiptKey == "" {
			receiptKey = number
		}
		refID := uuid.NewSHA1(uuid.Nil, []byte(fmt.Sprintf("PO:%d:%s", po.ID, receiptKey))).String()

		if err := s.postMovements(ctx, po, &receipt, input.Lines, receiptKey, refID); err != nil {
			return err
		}
		err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			locked, err := tx.GetPOForUpdate(ctx, companyID, id)
			if err != nil {
				return err
			}
			applyReceipt(&locked, input.Lines)
			for _, l := range locked.Lines {
				if err := tx.SetReceivedQuantity(ctx, l); err != nil {
					return err
				}
			}
			locked.Status = locked.ReceiptStatus()
			if err := tx.UpdatePO(ctx, locked); err != nil {
				return err
			}
			receipt.ID, err = tx.InsertReceipt(ctx, receipt)
			return err
		})
		if err != nil {
			s.reverseMovements(ctx, po, receipt)
			return err
		}
		return nil
	})
	if err != nil {
		return Receipt{}, mapError(err)
	}
	s.recordAudit(ctx, "purchase_order:receive", id, map[string]any{
		"receipt_number": receipt.ReceiptNumber,
		"lines":          len(receipt.Lines),
	})
	return receipt, nil
}

func checkReceipt(po PurchaseOrder, lines []ReceiveLine) error {
	byID := make(map[int64]Line, len(po.Lines))
	for _, l := range po.Lines {
		byID[l.ID] = l
	}
	requested := make(map[int64]decimal.Decimal, len(lines))
	for _, rl := range lines {
		line, ok := byID[rl.LineID]
		if !ok {
			return shared.Validation(fmt.Sprintf("line %d does not belong to purchase order %s", rl.LineID, po.PONumber))
		}
		if !rl.Quantity.IsPositive() {
			return shared.Validation(fmt.Sprintf("line %d: received quantity must be positive", rl.LineID))
		}
		requested[rl.LineID] = requested[rl.LineID].Add(rl.Quantity)
		if requested[rl.LineID].GreaterThan(line.Pending()) {
			return shared.Business("QUANTITY_EXCEEDED",
				fmt.Sprintf("line %d: receiving %s exceeds pending %s", rl.LineID, requested[rl.LineID], line.Pending()), nil).
				WithDetails(map[string]any{"lineId": rl.LineID, "pending": line.Pending()})
		}
	}
	return nil
}

func applyReceipt(po *PurchaseOrder, lines []ReceiveLine) {
	for _, rl := range lines {
		for i := range po.Lines {
			if po.Lines[i].ID == rl.LineID {
				po.Lines[i].ReceivedQuantity = po.Lines[i].ReceivedQuantity.Add(rl.Quantity)
			}
		}
	}
}

func (s *Service) postMovements(ctx context.Context, po PurchaseOrder, receipt *Receipt, lines []ReceiveLine, receiptKey, refID string) error {
	byID := make(map[int64]Line, len(po.Lines))
	for _, l := range po.Lines {
		byID[l.ID] = l
	}
	for i, rl := range lines {
		line := byID[rl.LineID]
		key := fmt.Sprintf("po:%d:receive:%s:%d:%d", po.ID, receiptKey, rl.LineID, i)
		movement, err := s.stock.UpdateStock(ctx, inventory.StockUpdateInput{
			ItemID:          line.ItemID,
			WarehouseID:     po.WarehouseID,
			MovementType:    inventory.MovementInward,
			Quantity:        rl.Quantity,
			Rate:            line.UnitCost(),
			ReferenceType:   "purchase_order",
			ReferenceID:     refID,
			ReferenceNumber: po.PONumber,
			Remarks:         fmt.Sprintf("Receipt %s", receipt.ReceiptNumber),
			IdempotencyKey:  key,
		})
		if err != nil {
			s.reverseMovements(ctx, po, *receipt)
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				return shared.Conflict("goods receipt already posted", err)
			}
			return err
		}
		receipt.Lines = append(receipt.Lines, ReceiptLine{
			LineID:         rl.LineID,
			ItemID:         line.ItemID,
			Quantity:       rl.Quantity,
			Rate:           movement.Rate,
			MovementNumber: movement.MovementNumber,
			key:            key,
		})
	}
	return nil
}

// reverseMovements books outward movements for lines already posted by a
// receipt that could not be completed, then frees their idempotency keys so
// the same delivery can be received again.
func (s *Service) reverseMovements(ctx context.Context, po PurchaseOrder, receipt Receipt) {
	ctx = context.WithoutCancel(ctx)
	for _, l := range receipt.Lines {
		_, err := s.stock.UpdateStock(ctx, inventory.StockUpdateInput{
			ItemID:          l.ItemID,
			WarehouseID:     po.WarehouseID,
			MovementType:    inventory.MovementOutward,
			Quantity:        l.Quantity,
			Rate:            l.Rate,
			ReferenceType:   "purchase_order",
			ReferenceNumber: po.PONumber,
			Remarks:         fmt.Sprintf("Reversal of %s", l.MovementNumber),
		})
		if err != nil {
			s.logger.Error("reverse receipt movement",
				slog.Int64("po_id", po.ID),
				slog.String("movement", l.MovementNumber),
				slog.Any("error", err))
			continue
		}
		if err := s.stock.ReleaseMovementKey(ctx, l.key); err != nil {
			s.logger.Warn("release receipt key", slog.Int64("po_id", po.ID), slog.Any("error", err))
		}
	}
}

// Delete removes a draft or cancelled purchase order.
func (s *Service) Delete(ctx context.Context, id int64) error {
	po, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if po.Status != StatusDraft && po.Status != StatusCancelled {
		return shared.Business("PO_LOCKED", "only draft or cancelled purchase orders can be deleted", nil)
	}
	if err := s.repo.DeletePO(ctx, po.CompanyID, id); err != nil {
		return mapError(err)
	}
	s.recordAudit(ctx, "purchase_order:delete", id, map[string]any{"number": po.PONumber})
	return nil
}

func (s *Service) Get(ctx context.Context, id int64) (PurchaseOrder, error) {
	companyID, err := shared.CompanyID(ctx)
	if err != nil {
		return PurchaseOrder{}, err
	}
	po, err := s.repo.GetPO(ctx, companyID, id)
	if err != nil {
		return PurchaseOrder{}, mapError(err)
	}
	return po, nil
}

func (s *Service) List(ctx context.Context, filter ListFilter, page shared.Page) (shared.Paged[PurchaseOrder], error) {
	companyID, err := shared.CompanyID(ctx)
	if err != nil {
		return shared.Paged[PurchaseOrder]{}, err
	}
	items, total, err := s.repo.ListPOs(ctx, companyID, filter, page)
	if err != nil {
		return shared.Paged[PurchaseOrder]{}, mapError(err)
	}
	if items == nil {
		items = []PurchaseOrder{}
	}
	return shared.Paged[PurchaseOrder]{Items: items, Pagination: shared.NewPagination(page.Page, page.PerPage, total)}, nil
}

func (s *Service) Receipts(ctx context.Context, id int64) ([]Receipt, error) {
	po, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	receipts, err := s.repo.ListReceipts(ctx, po.CompanyID, id)
	if err != nil {
		return nil, mapError(err)
	}
	if receipts == nil {
		receipts = []Receipt{}
	}
	return receipts, nil
}

func (s *Service) Stats(ctx context.Context) (Stats, error) {
	companyID, err := shared.CompanyID(ctx)
	if err != nil {
		return Stats{}, err
	}
	stats, err := s.repo.Stats(ctx, companyID)
	if err != nil {
		return Stats{}, mapError(err)
	}
	return stats, nil
}

// mutate loads the order under a row lock and runs fn in the same transaction.
func (s *Service) mutate(ctx context.Context, id int64, fn func(context.Context, TxRepository, *PurchaseOrder) error) error {
	companyID, err := shared.CompanyID(ctx)
	if err != nil {
		return err
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		po, err := tx.GetPOForUpdate(ctx, companyID, id)
		if err != nil {
			return err
		}
		return fn(ctx, tx, &po)
	})
	return mapError(err)
}

type statusValue struct {
	Status Status
	Count  int
	Value  decimal.Decimal
}

var openStatuses = map[Status]bool{StatusApproved: true, StatusOrdered: true, StatusPartiallyReceived: true}

func summarise(values []statusValue) Stats {
	stats := Stats{ByStatus: map[Status]int{}}
	for _, v := range values {
		stats.ByStatus[v.Status] = v.Count
		stats.TotalOrders += v.Count
		if v.Status == StatusCancelled {
			continue
		}
		stats.TotalValue = stats.TotalValue.Add(v.Value)
		if openStatuses[v.Status] {
			stats.OpenValue = stats.OpenValue.Add(v.Value)
		}
		if v.Status == StatusPendingApproval {
			stats.PendingApproval = v.Count
		}
	}
	return stats
}

func (s *Service) recordAudit(ctx context.Context, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	companyID, _ := shared.CompanyID(ctx)
	if err := s.audit.Record(ctx, shared.AuditLog{
		CompanyID: companyID,
		ActorID:   shared.ActorID(ctx),
		Action:    action,
		Entity:    "purchase_order",
		EntityID:  strconv.FormatInt(entityID, 10),
		Meta:      meta,
	}); err != nil {
		s.logger.Warn("audit record", slog.String("action", action), slog.Any("error", err))
	}
}

func mapError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, lock.ErrBusy):
		return shared.Conflict("purchase order is being updated, retry shortly", err)
	}
	if _, ok := shared.AsAppError(err); ok {
		return err
	}
	if errors.Is(err, ErrNotFound) {
		return shared.Missing("purchase order", err)
	}
	return shared.Database("purchase orders", err)
}
