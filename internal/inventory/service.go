package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/factory-erp/internal/platform/cache"
	"github.com/odyssey-erp/factory-erp/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	CreateItem(ctx context.Context, item Item) (Item, error)
	GetItem(ctx context.Context, companyID, id int64) (Item, error)
	UpdateItem(ctx context.Context, item Item) (Item, error)
	ListItems(ctx context.Context, companyID int64, filter ListFilter, page shared.Page) ([]Item, int, error)
	Reserve(ctx context.Context, companyID, id int64, qty decimal.Decimal) (Item, error)
	Release(ctx context.Context, companyID, id int64, qty decimal.Decimal) (Item, error)
	ListMovements(ctx context.Context, companyID, itemID int64, page shared.Page) ([]Movement, int, error)
	GetMovement(ctx context.Context, companyID, id int64) (Movement, error)
	SetMovementApproval(ctx context.Context, companyID, id int64, status ApprovalStatus, actorID int64, at time.Time) (Movement, error)
	Stats(ctx context.Context, companyID int64) (Stats, error)
}

// MovementObserver is notified of committed stock changes.
type MovementObserver interface {
	ObserveMovement(movementType string)
	ObserveReservation(result string)
}

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	AllowNegativeStock bool
}

// Service coordinates inventory operations.
type Service struct {
	repo        RepositoryPort
	audit       shared.AuditPort
	numbers     *shared.Numberer
	cache       *cache.EntityCache
	idempotency shared.IdempotencyPort
	observer    MovementObserver
	logger      *slog.Logger
	allowNeg    bool
	now         func() time.Time
}

// NewService builds Service. audit, idempotency and observer may be nil.
func NewService(repo RepositoryPort, audit shared.AuditPort, numbers *shared.Numberer, itemCache *cache.EntityCache,
	idem shared.IdempotencyPort, observer MovementObserver, logger *slog.Logger, cfg ServiceConfig) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:        repo,
		audit:       audit,
		numbers:     numbers,
		cache:       itemCache,
		idempotency: idem,
		observer:    observer,
		logger:      logger,
		allowNeg:    cfg.AllowNegativeStock,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// CreateItem registers a new item, booking opening stock as an inward movement.
func (s *Service) CreateItem(ctx context.Context, input CreateItemInput) (Item, error) {
	companyID, err := shared.CompanyID(ctx)
	if err != nil {
		return Item{}, err
	}
	code := strings.ToUpper(strings.TrimSpace(input.ItemCode))
	if code == "" || strings.TrimSpace(input.Name) == "" {
		return Item{}, shared.Validation("item code and name required")
	}
	if input.OpeningStock.IsNegative() || input.ReorderLevel.IsNegative() {
		return Item{}, shared.Validation("opening stock and reorder level must be >= 0")
	}
	if input.OpeningRate.IsNegative() {
		return Item{}, mapError(ErrInvalidRate)
	}
	item := Item{
		CompanyID:    companyID,
		ItemCode:     code,
		Name:         strings.TrimSpace(input.Name),
		Description:  input.Description,
		Category:     input.Category,
		Unit:         input.Unit,
		WarehouseID:  input.WarehouseID,
		ReorderLevel: input.ReorderLevel,
		IsActive:     true,
		CreatedBy:    shared.ActorID(ctx),
	}
	Recompute(&item)
	created, err := s.repo.CreateItem(ctx, item)
	if err != nil {
		return Item{}, mapError(err)
	}
	if input.OpeningStock.IsPositive() {
		if _, err := s.UpdateStock(ctx, StockUpdateInput{
			ItemID:        created.ID,
			WarehouseID:   created.WarehouseID,
			MovementType:  MovementInward,
			Quantity:      input.OpeningStock,
			Rate:          input.OpeningRate,
			ReferenceType: "opening_balance",
			Remarks:       "opening stock",
		}); err != nil {
			return Item{}, err
		}
		return s.getFresh(ctx, companyID, created.ID)
	}
	s.record(ctx, "inventory:create", "inventory_item", created.ID, map[string]any{"item_code": created.ItemCode})
	return created, nil
}

// GetItem returns an item, served from the cache when possible.
func (s *Service) GetItem(ctx context.Context, id int64) (Item, error) {
	companyID, err := shared.CompanyID(ctx)
	if err != nil {
		return Item{}, err
	}
	var item Item
	err = s.cache.Fetch(ctx, s.cache.Key(companyID, id), &item, func(ctx context.Context) (any, error) {
		return s.repo.GetItem(ctx, companyID, id)
	})
	if err != nil {
		return Item{}, mapError(err)
	}
	return item, nil
}

// ListItems returns a page of items.
func (s *Service) ListItems(ctx context.Context, filter ListFilter, page shared.Page) (shared.Paged[Item], error) {
	companyID, err := shared.CompanyID(ctx)
	if err != nil {
		return shared.Paged[Item]{}, err
	}
	items, total, err := s.repo.ListItems(ctx, companyID, filter, page)
	if err != nil {
		return shared.Paged[Item]{}, mapError(err)
	}
	if items == nil {
		items = []Item{}
	}
	return shared.Paged[Item]{Items: items, Pagination: shared.NewPagination(page.Page, page.PerPage, total)}, nil
}

// Search matches items by code or name.
func (s *Service) Search(ctx context.Context, query string, page shared.Page) (shared.Paged[Item], error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return shared.Paged[Item]{}, shared.Validation("search query required")
	}
	active := true
	return s.ListItems(ctx, ListFilter{Search: query, Active: &active}, page)
}

// UpdateItem edits descriptive fields.
func (s *Service) UpdateItem(ctx context.Context, id int64, input UpdateItemInput) (Item, error) {
	companyID, err := shared.CompanyID(ctx)
	if err != nil {
		return Item{}, err
	}
	item, err := s.repo.GetItem(ctx, companyID, id)
	if err != nil {
		return Item{}, mapError(err)
	}
	if input.Name != nil {
		if strings.TrimSpace(*input.Name) == "" {
			return Item{}, shared.Validation("name cannot be empty")
		}
		item.Name = strings.TrimSpace(*input.Name)
	}
	if input.Description != nil {
		item.Description = *input.Description
	}
	if input.Category != nil {
		item.Category = *input.Category
	}
	if input.Unit != nil {
		item.Unit = *input.Unit
	}
	if input.WarehouseID != nil {
		item.WarehouseID = *input.WarehouseID
	}
	if input.ReorderLevel != nil {
		if input.ReorderLevel.IsNegative() {
			return Item{}, shared.Validation("reorder level must be >= 0")
		}
		item.ReorderLevel = *input.ReorderLevel
	}
	updated, err := s.repo.UpdateItem(ctx, item)
	if err != nil {
		return Item{}, mapError(err)
	}
	s.invalidate(ctx, companyID, id)
	s.record(ctx, "inventory:update", "inventory_item", id, nil)
	return updated, nil
}

// DeactivateItem flips the active flag off. Items with reserved stock stay active.
func (s *Service) DeactivateItem(ctx context.Context, id int64) error {
	companyID, err := shared.CompanyID(ctx)
	if err != nil {
		return err
	}
	item, err := s.repo.GetItem(ctx, companyID, id)
	if err != nil {
		return mapError(err)
	}
	if item.ReservedStock.IsPositive() {
		return shared.Business("ITEM_RESERVED", "item has reserved stock and cannot be deactivated", nil)
	}
	item.IsActive = false
	if _, err := s.repo.UpdateItem(ctx, item); err != nil {
		return mapError(err)
	}
	s.invalidate(ctx, companyID, id)
	s.record(ctx, "inventory:deactivate", "inventory_item", id, nil)
	return nil
}

// ReserveStock sets aside qty units of an item. It fails with
// ErrInsufficientStock, leaving the item untouched, when fewer are available.
func (s *Service) ReserveStock(ctx context.Context, itemID int64, qty decimal.Decimal) (Item, error) {
	companyID, err := shared.CompanyID(ctx)
	if err != nil {
		return Item{}, err
	}
	if !qty.IsPositive() {
		return Item{}, mapError(ErrInvalidQuantity)
	}
	item, err := s.repo.Reserve(ctx, companyID, itemID, qty)
	if err != nil {
		s.observeReservation("rejected")
		if errors.Is(err, ErrInsufficientStock) {
			return Item{}, insufficient(item, qty)
		}
		return Item{}, mapError(err)
	}
	s.observeReservation("reserved")
	s.invalidate(ctx, companyID, itemID)
	s.record(ctx, "inventory:reserve", "inventory_item", itemID, map[string]any{"qty": qty.String()})
	return item, nil
}

// ReleaseReservedStock gives back qty reserved units, never going below zero.
func (s *Service) ReleaseReservedStock(ctx context.Context, itemID int64, qty decimal.Decimal) (Item, error) {
	companyID, err := shared.CompanyID(ctx)
	if err != nil {
		return Item{}, err
	}
	if !qty.IsPositive() {
		return Item{}, mapError(ErrInvalidQuantity)
	}
	item, err := s.repo.Release(ctx, companyID, itemID, qty)
	if err != nil {
		return Item{}, mapError(err)
	}
	s.observeReservation("released")
	s.invalidate(ctx, companyID, itemID)
	s.record(ctx, "inventory:release", "inventory_item", itemID, map[string]any{"qty": qty.String()})
	return item, nil
}

// UpdateStock posts one movement against an item and returns the ledger entry.
func (s *Service) UpdateStock(ctx context.Context, input StockUpdateInput) (Movement, error) {
	companyID, err := shared.CompanyID(ctx)
	if err != nil {
		return Movement{}, err
	}
	if !input.MovementType.Valid() {
		return Movement{}, shared.Validation(fmt.Sprintf("unknown movement type %q", input.MovementType))
	}
	if input.MovementType == MovementTransfer {
		return Movement{}, shared.Validation("use the transfer operation for transfers")
	}
	if input.Quantity.IsZero() {
		return Movement{}, mapError(ErrInvalidQuantity)
	}
	if input.MovementType != MovementAdjustment && input.Quantity.IsNegative() {
		return Movement{}, shared.Validation("quantity must be positive")
	}
	if input.Rate.IsNegative() {
		return Movement{}, mapError(ErrInvalidRate)
	}
	if input.IdempotencyKey != "" && s.idempotency != nil {
		if err := s.idempotency.Claim(ctx, companyID, "inventory", input.IdempotencyKey); err != nil {
			return Movement{}, err
		}
	}
	number, err := s.numbers.Monthly(ctx, companyID, input.MovementType.Prefix())
	if err != nil {
		s.releaseKey(ctx, companyID, input.IdempotencyKey)
		return Movement{}, shared.Database("next movement number", err)
	}
	var movement Movement
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		item, err := tx.GetItemForUpdate(ctx, companyID, input.ItemID)
		if err != nil {
			return err
		}
		if !item.IsActive {
			return ErrItemInactive
		}
		m, err := s.apply(&item, input)
		if err != nil {
			return err
		}
		m.CompanyID = companyID
		m.MovementNumber = number
		m.CreatedBy = shared.ActorID(ctx)
		if err := tx.SaveStock(ctx, item); err != nil {
			return err
		}
		movement, err = tx.InsertMovement(ctx, m)
		return err
	})
	if err != nil {
		s.releaseKey(ctx, companyID, input.IdempotencyKey)
		return Movement{}, mapError(err)
	}
	s.invalidate(ctx, companyID, input.ItemID)
	s.observeMovement(input.MovementType)
	s.record(ctx, "inventory:"+string(input.MovementType), "stock_movement", movement.ID, map[string]any{
		"item_id":         input.ItemID,
		"movement_number": movement.MovementNumber,
		"qty":             movement.Quantity.String(),
	})
	return movement, nil
}

// apply mutates item for the movement and returns the unsaved ledger entry.
func (s *Service) apply(item *Item, input StockUpdateInput) (Movement, error) {
	delta := signedDelta(input.MovementType, input.Quantity)
	before := item.CurrentStock
	avgBefore := item.AverageCost
	after := before.Add(delta)
	if !s.allowNeg && after.IsNegative() {
		return Movement{}, ErrNegativeStock
	}
	rate := input.Rate
	if delta.IsPositive() && input.MovementType.Inward() {
		item.AverageCost = movingAverage(before, avgBefore, delta, rate)
	} else {
		rate = avgBefore
		if !after.IsPositive() {
			item.AverageCost = decimal.Zero
		}
	}
	item.CurrentStock = after
	if input.MovementType == MovementDamage {
		item.DamagedStock = item.DamagedStock.Add(delta.Abs())
	}
	if input.ReleaseReserved {
		item.ReservedStock = decimal.Max(item.ReservedStock.Sub(delta.Abs()), decimal.Zero)
	}
	Recompute(item)
	warehouseID := input.WarehouseID
	if warehouseID == 0 {
		warehouseID = item.WarehouseID
	}
	return Movement{
		ItemID:            item.ID,
		MovementType:      input.MovementType,
		Quantity:          delta,
		Rate:              rate,
		TotalValue:        delta.Abs().Mul(rate).Round(2),
		StockBefore:       before,
		StockAfter:        after,
		AverageCostBefore: avgBefore,
		AverageCostAfter:  item.AverageCost,
		WarehouseID:       warehouseID,
		ReferenceType:     input.ReferenceType,
		ReferenceID:       input.ReferenceID,
		ReferenceNumber:   input.ReferenceNumber,
		Remarks:           input.Remarks,
		ApprovalStatus:    ApprovalApproved,
	}, nil
}

// TransferStock records a transfer of qty units between warehouses as a pair
// of pending ledger legs written in one transaction. An item is stocked
// against a single home warehouse, so the transfer changes no quantity and
// leaves WarehouseID alone; reviewing the legs only records the decision.
func (s *Service) TransferStock(ctx context.Context, input TransferInput) (Movement, Movement, error) {
	companyID, err := shared.CompanyID(ctx)
	if err != nil {
		return Movement{}, Movement{}, err
	}
	if input.FromWarehouseID == 0 || input.ToWarehouseID == 0 {
		return Movement{}, Movement{}, shared.Validation("source and destination warehouse required")
	}
	if input.FromWarehouseID == input.ToWarehouseID {
		return Movement{}, Movement{}, shared.Validation("source and destination warehouse must differ")
	}
	if !input.Quantity.IsPositive() {
		return Movement{}, Movement{}, mapError(ErrInvalidQuantity)
	}
	outNumber, err := s.numbers.Monthly(ctx, companyID, MovementTransfer.Prefix())
	if err != nil {
		return Movement{}, Movement{}, shared.Database("next movement number", err)
	}
	inNumber, err := s.numbers.Monthly(ctx, companyID, MovementTransfer.Prefix())
	if err != nil {
		return Movement{}, Movement{}, shared.Database("next movement number", err)
	}
	var outLeg, inLeg Movement
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		item, err := tx.GetItemForUpdate(ctx, companyID, input.ItemID)
		if err != nil {
			return err
		}
		if !item.IsActive {
			return ErrItemInactive
		}
		if item.AvailableStock.LessThan(input.Quantity) {
			return ErrInsufficientStock
		}
		base := Movement{
			CompanyID:         companyID,
			ItemID:            item.ID,
			MovementType:      MovementTransfer,
			Rate:              item.AverageCost,
			TotalValue:        input.Quantity.Mul(item.AverageCost).Round(2),
			StockBefore:       item.CurrentStock,
			StockAfter:        item.CurrentStock,
			AverageCostBefore: item.AverageCost,
			AverageCostAfter:  item.AverageCost,
			Remarks:           input.Remarks,
			ReferenceType:     "transfer",
			ApprovalStatus:    ApprovalPending,
			CreatedBy:         shared.ActorID(ctx),
		}
		outLeg = base
		outLeg.MovementNumber = outNumber
		outLeg.Quantity = input.Quantity.Neg()
		outLeg.WarehouseID = input.FromWarehouseID
		outLeg.ToWarehouseID = input.ToWarehouseID
		inLeg = base
		inLeg.MovementNumber = inNumber
		inLeg.Quantity = input.Quantity
		inLeg.WarehouseID = input.ToWarehouseID
		inLeg.ReferenceNumber = outNumber
		Recompute(&item)
		if err := tx.SaveStock(ctx, item); err != nil {
			return err
		}
		if outLeg, err = tx.InsertMovement(ctx, outLeg); err != nil {
			return err
		}
		inLeg, err = tx.InsertMovement(ctx, inLeg)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrInsufficientStock) {
			return Movement{}, Movement{}, shared.Business("INSUFFICIENT_STOCK",
				fmt.Sprintf("insufficient stock to transfer %s units", input.Quantity), ErrInsufficientStock)
		}
		return Movement{}, Movement{}, mapError(err)
	}
	s.invalidate(ctx, companyID, input.ItemID)
	s.observeMovement(MovementTransfer)
	s.record(ctx, "inventory:transfer", "inventory_item", input.ItemID, map[string]any{
		"from": input.FromWarehouseID,
		"to":   input.ToWarehouseID,
		"qty":  input.Quantity.String(),
	})
	return outLeg, inLeg, nil
}

// ListMovements returns the ledger of an item.
func (s *Service) ListMovements(ctx context.Context, itemID int64, page shared.Page) (shared.Paged[Movement], error) {
	companyID, err := shared.CompanyID(ctx)
	if err != nil {
		return shared.Paged[Movement]{}, err
	}
	if _, err := s.repo.GetItem(ctx, companyID, itemID); err != nil {
		return shared.Paged[Movement]{}, mapError(err)
	}
	items, total, err := s.repo.ListMovements(ctx, companyID, itemID, page)
	if err != nil {
		return shared.Paged[Movement]{}, mapError(err)
	}
	if items == nil {
		items = []Movement{}
	}
	return shared.Paged[Movement]{Items: items, Pagination: shared.NewPagination(page.Page, page.PerPage, total)}, nil
}

// ReviewMovement approves or rejects a pending movement. Only the approval
// status changes; the ledger amounts are immutable.
func (s *Service) ReviewMovement(ctx context.Context, movementID int64, approve bool) (Movement, error) {
	companyID, err := shared.CompanyID(ctx)
	if err != nil {
		return Movement{}, err
	}
	m, err := s.repo.GetMovement(ctx, companyID, movementID)
	if err != nil {
		return Movement{}, mapError(err)
	}
	next := ApprovalRejected
	if approve {
		next = ApprovalApproved
	}
	if m.ApprovalStatus != ApprovalPending {
		return Movement{}, shared.BadTransition("movement", string(m.ApprovalStatus), string(next))
	}
	updated, err := s.repo.SetMovementApproval(ctx, companyID, movementID, next, shared.ActorID(ctx), s.now())
	if err != nil {
		return Movement{}, mapError(err)
	}
	s.record(ctx, "inventory:movement_"+string(next), "stock_movement", movementID, nil)
	return updated, nil
}

// Stats returns aggregate inventory figures.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	companyID, err := shared.CompanyID(ctx)
	if err != nil {
		return Stats{}, err
	}
	stats, err := s.repo.Stats(ctx, companyID)
	if err != nil {
		return Stats{}, mapError(err)
	}
	if stats.ByCategory == nil {
		stats.ByCategory = []CategoryValue{}
	}
	return stats, nil
}

func (s *Service) getFresh(ctx context.Context, companyID, id int64) (Item, error) {
	item, err := s.repo.GetItem(ctx, companyID, id)
	if err != nil {
		return Item{}, mapError(err)
	}
	return item, nil
}

func (s *Service) invalidate(ctx context.Context, companyID, id int64) {
	if err := s.cache.Invalidate(ctx, s.cache.Key(companyID, id)); err != nil {
		s.logger.Warn("invalidate item cache", slog.Int64("item_id", id), slog.Any("error", err))
	}
}

// ReleaseMovementKey frees the idempotency key of a movement that has been
// reversed, so the originating request can be replayed.
func (s *Service) ReleaseMovementKey(ctx context.Context, key string) error {
	companyID, err := shared.CompanyID(ctx)
	if err != nil {
		return err
	}
	s.releaseKey(ctx, companyID, key)
	return nil
}

func (s *Service) releaseKey(ctx context.Context, companyID int64, key string) {
	if key == "" || s.idempotency == nil {
		return
	}
	if err := s.idempotency.Release(ctx, companyID, "inventory", key); err != nil {
		s.logger.Warn("release idempotency key", slog.String("key", key), slog.Any("error", err))
	}
}

func (s *Service) observeMovement(t MovementType) {
	if s.observer != nil {
		s.observer.ObserveMovement(string(t))
	}
}

func (s *Service) observeReservation(result string) {
	if s.observer != nil {
		s.observer.ObserveReservation(result)
	}
}

func (s *Service) record(ctx context.Context, action, entity string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	companyID, _ := shared.CompanyID(ctx)
	if err := s.audit.Record(ctx, shared.AuditLog{
		CompanyID: companyID,
		ActorID:   shared.ActorID(ctx),
		Action:    action,
		Entity:    entity,
		EntityID:  fmt.Sprintf("%d", id),
		Meta:      meta,
	}); err != nil {
		s.logger.Warn("audit record", slog.String("action", action), slog.Any("error", err))
	}
}

func insufficient(item Item, requested decimal.Decimal) error {
	return shared.Business("INSUFFICIENT_STOCK",
		fmt.Sprintf("insufficient stock for %s: available %s, requested %s", item.ItemCode, item.AvailableStock, requested),
		ErrInsufficientStock).WithDetails(map[string]any{
		"itemId":    item.ID,
		"available": item.AvailableStock,
		"requested": requested,
	})
}

// mapError converts repository and domain errors into application errors.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := shared.AsAppError(err); ok {
		return err
	}
	switch {
	case errors.Is(err, ErrItemNotFound):
		return shared.Missing("inventory item", err)
	case errors.Is(err, ErrMovementNotFound):
		return shared.Missing("stock movement", err)
	case errors.Is(err, ErrInsufficientStock):
		return shared.Business("INSUFFICIENT_STOCK", "insufficient stock", err)
	case errors.Is(err, ErrNegativeStock):
		return shared.Business("NEGATIVE_STOCK", "movement would make stock negative", err)
	case errors.Is(err, ErrInvalidQuantity), errors.Is(err, ErrInvalidRate):
		return &shared.AppError{Kind: shared.KindValidation, Code: "VALIDATION_ERROR", Message: strings.TrimPrefix(err.Error(), "inventory: "), Err: err}
	case errors.Is(err, ErrItemInactive):
		return shared.Business("ITEM_INACTIVE", "inventory item is inactive", err)
	case errors.Is(err, ErrDuplicateCode):
		return shared.Conflict("item code already exists", err)
	default:
		return shared.Database("inventory", err)
	}
}
