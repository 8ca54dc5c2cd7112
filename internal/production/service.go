package production

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/factory-erp/internal/inventory"
	"github.com/odyssey-erp/factory-erp/internal/platform/lock"
	"github.com/odyssey-erp/factory-erp/internal/shared"
)

// RepositoryPort abstracts production persistence.
type RepositoryPort interface {
	Create(ctx context.Context, o Order) (Order, error)
	Get(ctx context.Context, companyID, id int64) (Order, error)
	Save(ctx context.Context, o Order) (Order, error)
	Delete(ctx context.Context, companyID, id int64) error
	List(ctx context.Context, companyID int64, filter ListFilter, page shared.Page) ([]Order, int, error)
	Stats(ctx context.Context, companyID int64) (Stats, error)
}

// StockPort is the slice of the inventory service used by production.
type StockPort interface {
	GetItem(ctx context.Context, id int64) (inventory.Item, error)
	ReserveStock(ctx context.Context, itemID int64, qty decimal.Decimal) (inventory.Item, error)
	ReleaseReservedStock(ctx context.Context, itemID int64, qty decimal.Decimal) (inventory.Item, error)
	UpdateStock(ctx context.Context, input inventory.StockUpdateInput) (inventory.Movement, error)
}

// Locker serialises lifecycle changes of one order across processes.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(context.Context) error) error
}

// Service coordinates the production order lifecycle.
type Service struct {
	repo      RepositoryPort
	stock     StockPort
	locker    Locker
	numbers   *shared.Numberer
	approvals shared.ApprovalPort
	audit     shared.AuditPort
	logger    *slog.Logger
	now       func() time.Time
}

// NewService builds Service. approvals and audit may be nil.
func NewService(repo RepositoryPort, stock StockPort, locker Locker, numbers *shared.Numberer,
	approvals shared.ApprovalPort, audit shared.AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if locker == nil {
		locker = lock.New(nil, 0)
	}
	return &Service{
		repo:      repo,
		stock:     stock,
		locker:    locker,
		numbers:   numbers,
		approvals: approvals,
		audit:     audit,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Create validates materials, prices them at average cost and stores a draft order.
func (s *Service) Create(ctx context.Context, input CreateInput) (Order, error) {
	companyID, err := shared.CompanyID(ctx)
	if err != nil {
		return Order{}, err
	}
	if strings.TrimSpace(input.ProductName) == "" {
		return Order{}, shared.Validation("product name required")
	}
	if !input.OrderQuantity.IsPositive() {
		return Order{}, shared.Validation("order quantity must be positive")
	}
	if len(input.RawMaterials) == 0 {
		return Order{}, shared.Validation("at least one raw material required")
	}
	if input.PlannedStart != nil && input.PlannedEnd != nil && input.PlannedEnd.Before(*input.PlannedStart) {
		return Order{}, shared.Validation("planned end must not be before planned start")
	}
	materials, err := s.priceMaterials(ctx, input.RawMaterials)
	if err != nil {
		return Order{}, err
	}
	priority := input.Priority
	if priority == "" {
		priority = PriorityNormal
	}
	number, err := s.numbers.Daily(ctx, companyID, "PRD")
	if err != nil {
		return Order{}, shared.Database("next production number", err)
	}
	order := Order{
		CompanyID:       companyID,
		OrderNumber:     number,
		ProductName:     strings.TrimSpace(input.ProductName),
		OutputItemID:    input.OutputItemID,
		CustomerOrderID: input.CustomerOrderID,
		OrderQuantity:   input.OrderQuantity,
		Status:          StatusDraft,
		Priority:        priority,
		PlannedStart:    input.PlannedStart,
		PlannedEnd:      input.PlannedEnd,
		RawMaterials:    materials,
		Stages:          buildStages(input.Stages),
		Remarks:         input.Remarks,
		CreatedBy:       shared.ActorID(ctx),
	}
	Recompute(&order)
	created, err := s.repo.Create(ctx, order)
	if err != nil {
		return Order{}, mapError(err)
	}
	s.record(ctx, "production:create", created.ID, map[string]any{"order_number": created.OrderNumber})
	return created, nil
}

func (s *Service) priceMaterials(ctx context.Context, inputs []MaterialInput) ([]RawMaterial, error) {
	seen := make(map[int64]struct{}, len(inputs))
	materials := make([]RawMaterial, 0, len(inputs))
	for _, in := range inputs {
		if !in.RequiredQuantity.IsPositive() {
			return nil, shared.Validation(fmt.Sprintf("required quantity for item %d must be positive", in.ItemID))
		}
		if _, dup := seen[in.ItemID]; dup {
			return nil, shared.Validation(fmt.Sprintf("item %d listed more than once", in.ItemID))
		}
		seen[in.ItemID] = struct{}{}
		item, err := s.stock.GetItem(ctx, in.ItemID)
		if err != nil {
			return nil, err
		}
		if !item.IsActive {
			return nil, shared.Business("MATERIAL_INACTIVE", fmt.Sprintf("raw material %s is inactive", item.ItemCode), inventory.ErrItemInactive)
		}
		materials = append(materials, RawMaterial{
			ItemID:           item.ID,
			ItemCode:         item.ItemCode,
			ItemName:         item.Name,
			Unit:             item.Unit,
			RequiredQuantity: in.RequiredQuantity,
			Rate:             item.AverageCost,
		})
	}
	return materials, nil
}

func buildStages(inputs []StageInput) []Stage {
	if len(inputs) == 0 {
		inputs = []StageInput{{StageName: "Production"}}
	}
	stages := make([]Stage, 0, len(inputs))
	for i, in := range inputs {
		stages = append(stages, Stage{StageName: strings.TrimSpace(in.StageName), Sequence: i + 1, Status: StagePending})
	}
	return stages
}

// Get returns one order.
func (s *Service) Get(ctx context.Context, id int64) (Order, error) {
	companyID, err := shared.CompanyID(ctx)
	if err != nil {
		return Order{}, err
	}
	o, err := s.repo.Get(ctx, companyID, id)
	if err != nil {
		return Order{}, mapError(err)
	}
	return o, nil
}

// List returns a page of orders.
func (s *Service) List(ctx context.Context, filter ListFilter, page shared.Page) (shared.Paged[Order], error) {
	companyID, err := shared.CompanyID(ctx)
	if err != nil {
		return shared.Paged[Order]{}, err
	}
	orders, total, err := s.repo.List(ctx, companyID, filter, page)
	if err != nil {
		return shared.Paged[Order]{}, mapError(err)
	}
	if orders == nil {
		orders = []Order{}
	}
	return shared.Paged[Order]{Items: orders, Pagination: shared.NewPagination(page.Page, page.PerPage, total)}, nil
}

// Update replaces the plan of a draft order.
func (s *Service) Update(ctx context.Context, id int64, input CreateInput) (Order, error) {
	var updated Order
	err := s.withOrder(ctx, id, func(ctx context.Context, o *Order) error {
		if o.Status != StatusDraft {
			return shared.Business("ORDER_LOCKED", "only draft production orders can be edited", nil)
		}
		if strings.TrimSpace(input.ProductName) == "" || !input.OrderQuantity.IsPositive() || len(input.RawMaterials) == 0 {
			return shared.Validation("product name, positive order quantity and raw materials required")
		}
		materials, err := s.priceMaterials(ctx, input.RawMaterials)
		if err != nil {
			return err
		}
		o.ProductName = strings.TrimSpace(input.ProductName)
		o.OutputItemID = input.OutputItemID
		o.OrderQuantity = input.OrderQuantity
		o.PlannedStart = input.PlannedStart
		o.PlannedEnd = input.PlannedEnd
		o.RawMaterials = materials
		if len(input.Stages) > 0 {
			o.Stages = buildStages(input.Stages)
		}
		if input.Priority != "" {
			o.Priority = input.Priority
		}
		o.Remarks = input.Remarks
		updated, err = s.save(ctx, o)
		return err
	})
	if err != nil {
		return Order{}, err
	}
	s.record(ctx, "production:update", id, nil)
	return updated, nil
}

// Delete removes a draft or cancelled order.
func (s *Service) Delete(ctx context.Context, id int64) error {
	err := s.withOrder(ctx, id, func(ctx context.Context, o *Order) error {
		if o.Status != StatusDraft && o.Status != StatusCancelled {
			return shared.Business("ORDER_LOCKED", "only draft or cancelled production orders can be deleted", nil)
		}
		return mapError(s.repo.Delete(ctx, o.CompanyID, o.ID))
	})
	if err != nil {
		return err
	}
	s.record(ctx, "production:delete", id, nil)
	return nil
}

// Approve moves a draft order to approved.
func (s *Service) Approve(ctx context.Context, id int64, note string) (Order, error) {
	var approved Order
	err := s.withOrder(ctx, id, func(ctx context.Context, o *Order) error {
		if err := OrderTransitions.Check("production order", o.Status, StatusApproved); err != nil {
			return err
		}
		o.Status = StatusApproved
		o.ApprovedBy = shared.ActorID(ctx)
		var err error
		approved, err = s.save(ctx, o)
		return err
	})
	if err != nil {
		return Order{}, err
	}
	if s.approvals != nil {
		if err := s.approvals.Record(ctx, shared.ApprovalLog{
			CompanyID: approved.CompanyID,
			Module:    "production",
			RefID:     approved.ID,
			ActorID:   shared.ActorID(ctx),
			Action:    shared.ApprovalApprove,
			Note:      note,
		}); err != nil {
			s.logger.Warn("record production approval", slog.Int64("order_id", id), slog.Any("error", err))
		}
	}
	s.record(ctx, "production:approve", id, nil)
	return approved, nil
}

// Start reserves every raw material and puts the order in progress. All
// materials are checked before the first reservation; if a reservation still
// fails, the ones already taken are released before returning.
func (s *Service) Start(ctx context.Context, id int64) (Order, error) {
	var started Order
	err := s.withOrder(ctx, id, func(ctx context.Context, o *Order) error {
		if err := OrderTransitions.Check("production order", o.Status, StatusInProgress); err != nil {
			return err
		}
		if o.Status != StatusApproved {
			return shared.Business("ORDER_NOT_APPROVED", "production order must be approved before starting", shared.ErrInvalidTransition)
		}
		if err := s.checkAvailability(ctx, o.RawMaterials); err != nil {
			return err
		}
		reserved, err := s.reserveAll(ctx, o)
		if err != nil {
			return err
		}
		now := s.now()
		o.Status = StatusInProgress
		o.ActualStart = &now
		if len(o.Stages) > 0 {
			o.Stages[0].Status = StageInProgress
			o.Stages[0].StartedAt = &now
		}
		started, err = s.save(ctx, o)
		if err != nil {
			s.releaseAll(ctx, reserved)
			return err
		}
		return nil
	})
	if err != nil {
		return Order{}, err
	}
	s.record(ctx, "production:start", id, nil)
	return started, nil
}

// Shortage describes a raw material that cannot be reserved.
type Shortage struct {
	ItemID    int64           `json:"itemId"`
	ItemCode  string          `json:"itemCode"`
	Required  decimal.Decimal `json:"required"`
	Available decimal.Decimal `json:"available"`
}

func (s *Service) checkAvailability(ctx context.Context, materials []RawMaterial) error {
	var shortages []Shortage
	for _, m := range materials {
		item, err := s.stock.GetItem(ctx, m.ItemID)
		if err != nil {
			return err
		}
		if !item.IsActive {
			return shared.Business("MATERIAL_INACTIVE", fmt.Sprintf("raw material %s is inactive", item.ItemCode), inventory.ErrItemInactive)
		}
		if item.AvailableStock.LessThan(m.RequiredQuantity) {
			shortages = append(shortages, Shortage{ItemID: item.ID, ItemCode: item.ItemCode, Required: m.RequiredQuantity, Available: item.AvailableStock})
		}
	}
	if len(shortages) > 0 {
		return shared.Business("INSUFFICIENT_STOCK", fmt.Sprintf("insufficient stock for %d raw material(s)", len(shortages)),
			inventory.ErrInsufficientStock).WithDetails(shortages)
	}
	return nil
}

type reservation struct {
	itemID int64
	qty    decimal.Decimal
}

func (s *Service) reserveAll(ctx context.Context, o *Order) ([]reservation, error) {
	reserved := make([]reservation, 0, len(o.RawMaterials))
	for i := range o.RawMaterials {
		m := &o.RawMaterials[i]
		if _, err := s.stock.ReserveStock(ctx, m.ItemID, m.RequiredQuantity); err != nil {
			s.releaseAll(ctx, reserved)
			for j := range o.RawMaterials {
				o.RawMaterials[j].AllocatedQuantity = decimal.Zero
			}
			return nil, err
		}
		m.AllocatedQuantity = m.RequiredQuantity
		reserved = append(reserved, reservation{itemID: m.ItemID, qty: m.RequiredQuantity})
	}
	return reserved, nil
}

// releaseAll gives back reservations. It runs even when ctx is cancelled.
func (s *Service) releaseAll(ctx context.Context, reserved []reservation) {
	ctx = context.WithoutCancel(ctx)
	for _, r := range reserved {
		if _, err := s.stock.ReleaseReservedStock(ctx, r.itemID, r.qty); err != nil {
			s.logger.Error("release reserved material", slog.Int64("item_id", r.itemID), slog.String("qty", r.qty.String()), slog.Any("error", err))
		}
	}
}

// CompleteStage finishes the stage at index and starts the next pending one.
func (s *Service) CompleteStage(ctx context.Context, id int64, index int, input CompleteStageInput) (Order, error) {
	var updated Order
	err := s.withOrder(ctx, id, func(ctx context.Context, o *Order) error {
		if o.Status != StatusInProgress {
			return shared.Business("ORDER_NOT_IN_PROGRESS", "production order is not in progress", shared.ErrInvalidTransition)
		}
		if index < 0 || index >= len(o.Stages) {
			return shared.Validation(fmt.Sprintf("stage index %d out of range", index))
		}
		if cur := currentStage(o.Stages); cur != index {
			return shared.Business("STAGE_OUT_OF_ORDER", fmt.Sprintf("stage %d must be completed first", cur+1), nil)
		}
		stage := &o.Stages[index]
		if stage.Status != StageInProgress && stage.Status != StageRework {
			return shared.BadTransition("stage", string(stage.Status), string(StageCompleted))
		}
		if input.CompletedQuantity.IsNegative() || input.RejectedQuantity.IsNegative() ||
			input.LabourCost.IsNegative() || input.OverheadCost.IsNegative() {
			return shared.Validation("stage quantities and costs must be >= 0")
		}
		if input.CompletedQuantity.Add(input.RejectedQuantity).GreaterThan(o.OrderQuantity) {
			return shared.Business("QUANTITY_EXCEEDED", ErrQuantityExceeded.Error(), ErrQuantityExceeded)
		}
		now := s.now()
		stage.Status = StageCompleted
		stage.CompletedQuantity = input.CompletedQuantity
		stage.RejectedQuantity = input.RejectedQuantity
		stage.LabourCost = input.LabourCost
		stage.OverheadCost = input.OverheadCost
		stage.Remarks = input.Remarks
		stage.CompletedAt = &now
		if next := index + 1; next < len(o.Stages) && o.Stages[next].Status == StagePending {
			o.Stages[next].Status = StageInProgress
			o.Stages[next].StartedAt = &now
		}
		var err error
		updated, err = s.save(ctx, o)
		return err
	})
	if err != nil {
		return Order{}, err
	}
	s.record(ctx, "production:stage_complete", id, map[string]any{"stage": index})
	return updated, nil
}

// Complete consumes the allocated materials, books finished goods and closes
// the order. Consumption and output are keyed per order, so a retry after a
// partial failure posts each movement once.
func (s *Service) Complete(ctx context.Context, id int64, input CompleteInput) (Order, error) {
	var completed Order
	err := s.withOrder(ctx, id, func(ctx context.Context, o *Order) error {
		if err := OrderTransitions.Check("production order", o.Status, StatusCompleted); err != nil {
			return err
		}
		if input.CompletedQuantity.IsNegative() || input.RejectedQuantity.IsNegative() {
			return shared.Validation("quantities must be >= 0")
		}
		if !input.CompletedQuantity.Add(input.RejectedQuantity).IsPositive() {
			return shared.Validation("completed or rejected quantity required")
		}
		if input.CompletedQuantity.Add(input.RejectedQuantity).GreaterThan(o.OrderQuantity) {
			return shared.Business("QUANTITY_EXCEEDED", ErrQuantityExceeded.Error(), ErrQuantityExceeded)
		}
		if err := s.consume(ctx, o); err != nil {
			if _, saveErr := s.save(ctx, o); saveErr != nil {
				s.logger.Error("save partial consumption", slog.Int64("order_id", o.ID), slog.Any("error", saveErr))
			}
			return err
		}
		// Allocations are gone once consumed; store that before booking output.
		if _, err := s.save(ctx, o); err != nil {
			return err
		}
		now := s.now()
		for i := range o.Stages {
			if o.Stages[i].Status != StageCompleted {
				o.Stages[i].Status = StageCompleted
				o.Stages[i].CompletedAt = &now
				if o.Stages[i].StartedAt == nil {
					o.Stages[i].StartedAt = &now
				}
			}
		}
		o.CompletedQuantity = input.CompletedQuantity
		o.RejectedQuantity = input.RejectedQuantity
		o.Status = StatusCompleted
		o.ActualEnd = &now
		Recompute(o)
		if o.OutputItemID != 0 && o.CompletedQuantity.IsPositive() {
			if _, err := s.stock.UpdateStock(ctx, inventory.StockUpdateInput{
				ItemID:          o.OutputItemID,
				MovementType:    inventory.MovementProductionOutput,
				Quantity:        o.CompletedQuantity,
				Rate:            o.Cost.CostPerUnit,
				ReferenceType:   "production_order",
				ReferenceID:     fmt.Sprintf("%d", o.ID),
				ReferenceNumber: o.OrderNumber,
				IdempotencyKey:  fmt.Sprintf("production:%d:output", o.ID),
			}); err != nil && !isDuplicate(err) {
				return err
			}
		}
		var err error
		completed, err = s.save(ctx, o)
		return err
	})
	if err != nil {
		return Order{}, err
	}
	s.record(ctx, "production:complete", id, map[string]any{
		"completed": completed.CompletedQuantity.String(),
		"rejected":  completed.RejectedQuantity.String(),
	})
	return completed, nil
}

func (s *Service) consume(ctx context.Context, o *Order) error {
	for i := range o.RawMaterials {
		m := &o.RawMaterials[i]
		if !m.AllocatedQuantity.IsPositive() {
			continue
		}
		movement, err := s.stock.UpdateStock(ctx, inventory.StockUpdateInput{
			ItemID:          m.ItemID,
			MovementType:    inventory.MovementProductionConsume,
			Quantity:        m.AllocatedQuantity,
			ReferenceType:   "production_order",
			ReferenceID:     fmt.Sprintf("%d", o.ID),
			ReferenceNumber: o.OrderNumber,
			IdempotencyKey:  fmt.Sprintf("production:%d:consume:%d", o.ID, m.ItemID),
			ReleaseReserved: true,
		})
		if err != nil && !isDuplicate(err) {
			return err
		}
		if err == nil {
			m.Rate = movement.Rate
		}
		m.ConsumedQuantity = m.ConsumedQuantity.Add(m.AllocatedQuantity)
		m.AllocatedQuantity = decimal.Zero
	}
	return nil
}

// Cancel closes the order and releases reserved materials when it was running.
func (s *Service) Cancel(ctx context.Context, id int64, reason string) (Order, error) {
	var cancelled Order
	err := s.withOrder(ctx, id, func(ctx context.Context, o *Order) error {
		if err := OrderTransitions.Check("production order", o.Status, StatusCancelled); err != nil {
			return err
		}
		if o.Status.holdsReservation() {
			for i := range o.RawMaterials {
				m := &o.RawMaterials[i]
				if !m.AllocatedQuantity.IsPositive() {
					continue
				}
				if _, err := s.stock.ReleaseReservedStock(ctx, m.ItemID, m.AllocatedQuantity); err != nil {
					if _, saveErr := s.save(ctx, o); saveErr != nil {
						s.logger.Error("save partial release", slog.Int64("order_id", o.ID), slog.Any("error", saveErr))
					}
					return err
				}
				m.AllocatedQuantity = decimal.Zero
			}
		}
		o.Status = StatusCancelled
		o.CancelReason = strings.TrimSpace(reason)
		var err error
		cancelled, err = s.save(ctx, o)
		return err
	})
	if err != nil {
		return Order{}, err
	}
	s.record(ctx, "production:cancel", id, map[string]any{"reason": reason})
	return cancelled, nil
}

// Hold pauses a running order; reservations are kept.
func (s *Service) Hold(ctx context.Context, id int64, reason string) (Order, error) {
	return s.toggleHold(ctx, id, StatusOnHold, reason)
}

// Resume restarts a held order.
func (s *Service) Resume(ctx context.Context, id int64) (Order, error) {
	return s.toggleHold(ctx, id, StatusInProgress, "")
}

func (s *Service) toggleHold(ctx context.Context, id int64, next Status, reason string) (Order, error) {
	var updated Order
	err := s.withOrder(ctx, id, func(ctx context.Context, o *Order) error {
		if err := OrderTransitions.Check("production order", o.Status, next); err != nil {
			return err
		}
		if next == StatusInProgress && o.Status != StatusOnHold {
			return shared.BadTransition("production order", string(o.Status), string(next))
		}
		from, to := StageInProgress, StageOnHold
		if next == StatusInProgress {
			from, to = StageOnHold, StageInProgress
		}
		for i := range o.Stages {
			if o.Stages[i].Status == from {
				o.Stages[i].Status = to
			}
		}
		o.Status = next
		o.HoldReason = strings.TrimSpace(reason)
		var err error
		updated, err = s.save(ctx, o)
		return err
	})
	if err != nil {
		return Order{}, err
	}
	s.record(ctx, "production:"+string(next), id, nil)
	return updated, nil
}

// Stats returns aggregate production figures.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	companyID, err := shared.CompanyID(ctx)
	if err != nil {
		return Stats{}, err
	}
	stats, err := s.repo.Stats(ctx, companyID)
	if err != nil {
		return Stats{}, mapError(err)
	}
	if stats.ByStatus == nil {
		stats.ByStatus = map[Status]int{}
	}
	return stats, nil
}

// withOrder loads the order under the per-order lock and runs fn.
func (s *Service) withOrder(ctx context.Context, id int64, fn func(context.Context, *Order) error) error {
	companyID, err := shared.CompanyID(ctx)
	if err != nil {
		return err
	}
	err = s.locker.WithLock(ctx, lock.ProductionKey(companyID, id), func(ctx context.Context) error {
		o, err := s.repo.Get(ctx, companyID, id)
		if err != nil {
			return mapError(err)
		}
		return fn(ctx, &o)
	})
	if errors.Is(err, lock.ErrBusy) {
		return shared.Conflict("production order is being updated, retry shortly", err)
	}
	return err
}

func (s *Service) save(ctx context.Context, o *Order) (Order, error) {
	Recompute(o)
	saved, err := s.repo.Save(ctx, *o)
	if err != nil {
		return Order{}, mapError(err)
	}
	return saved, nil
}

func (s *Service) record(ctx context.Context, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	companyID, _ := shared.CompanyID(ctx)
	if err := s.audit.Record(ctx, shared.AuditLog{
		CompanyID: companyID,
		ActorID:   shared.ActorID(ctx),
		Action:    action,
		Entity:    "production_order",
		EntityID:  fmt.Sprintf("%d", id),
		Meta:      meta,
	}); err != nil {
		s.logger.Warn("audit record", slog.String("action", action), slog.Any("error", err))
	}
}

func isDuplicate(err error) bool {
	return errors.Is(err, shared.ErrIdempotencyConflict)
}

func mapError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := shared.AsAppError(err); ok {
		return err
	}
	if errors.Is(err, ErrNotFound) {
		return shared.Missing("production order", err)
	}
	return shared.Database("production", err)
}
