package production

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/factory-erp/internal/inventory"
	"github.com/odyssey-erp/factory-erp/internal/platform/cache"
	"github.com/odyssey-erp/factory-erp/internal/platform/lock"
	"github.com/odyssey-erp/factory-erp/internal/shared"
)

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func testCtx() context.Context {
	return shared.ContextWithTenant(context.Background(), shared.Tenant{CompanyID: 1, UserID: 9})
}

var testClock = func() time.Time { return time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC) }

type fixture struct {
	stock *inventory.Service
	svc   *Service
	repo  *memoryRepo
}

func newFixture(t *testing.T, locker Locker) *fixture {
	t.Helper()
	numbers := shared.NewNumberer(shared.NewMemorySequenceStore(), testClock)
	stock := inventory.NewService(inventory.NewMemoryRepository(), nil, numbers,
		cache.NewEntityCache(nil, "inventory:item", time.Minute), shared.NewMemoryIdempotencyStore(), nil, nil, inventory.ServiceConfig{})
	repo := newMemoryRepo()
	return &fixture{stock: stock, repo: repo, svc: NewService(repo, stock, locker, numbers, nil, nil, nil)}
}

func (f *fixture) item(t *testing.T, code, stock, rate string) inventory.Item {
	t.Helper()
	item, err := f.stock.CreateItem(testCtx(), inventory.CreateItemInput{
		ItemCode:     code,
		Name:         "Item " + code,
		Category:     "raw",
		Unit:         "kg",
		WarehouseID:  1,
		OpeningStock: dec(stock),
		OpeningRate:  dec(rate),
	})
	require.NoError(t, err)
	return item
}

func (f *fixture) approvedOrder(t *testing.T, input CreateInput) Order {
	t.Helper()
	order, err := f.svc.Create(testCtx(), input)
	require.NoError(t, err)
	order, err = f.svc.Approve(testCtx(), order.ID, "")
	require.NoError(t, err)
	return order
}

func (f *fixture) requireStock(t *testing.T, id int64, current, reserved, available string) {
	t.Helper()
	item, err := f.stock.GetItem(testCtx(), id)
	require.NoError(t, err)
	require.True(t, item.CurrentStock.Equal(dec(current)), "current %s", item.CurrentStock)
	require.True(t, item.ReservedStock.Equal(dec(reserved)), "reserved %s", item.ReservedStock)
	require.True(t, item.AvailableStock.Equal(dec(available)), "available %s", item.AvailableStock)
}

func requireCode(t *testing.T, err error, status int, code string) {
	t.Helper()
	appErr, ok := shared.AsAppError(err)
	require.True(t, ok, "expected AppError, got %v", err)
	require.Equal(t, status, appErr.Status())
	require.Equal(t, code, appErr.Code)
}

func TestCreateNumbersAndPricesOrder(t *testing.T) {
	f := newFixture(t, nil)
	mat := f.item(t, "STEEL", "200", "10")

	order, err := f.svc.Create(testCtx(), CreateInput{
		ProductName:   "Bracket",
		OrderQuantity: dec("50"),
		RawMaterials:  []MaterialInput{{ItemID: mat.ID, RequiredQuantity: dec("50")}},
	})
	require.NoError(t, err)
	require.Equal(t, "PRD-20240115-0001", order.OrderNumber)
	require.Equal(t, StatusDraft, order.Status)
	require.Equal(t, PriorityNormal, order.Priority)
	require.Len(t, order.Stages, 1)
	require.Equal(t, StagePending, order.Stages[0].Status)
	require.True(t, order.RawMaterials[0].Rate.Equal(dec("10")))
	require.True(t, order.Cost.MaterialCost.Equal(dec("500")))
	require.True(t, order.PendingQuantity.Equal(dec("50")))

	_, err = f.svc.Create(testCtx(), CreateInput{ProductName: "Bracket", OrderQuantity: dec("1"),
		RawMaterials: []MaterialInput{{ItemID: 999, RequiredQuantity: dec("1")}}})
	requireCode(t, err, http.StatusNotFound, "NOT_FOUND")
}

func TestStartReservesAndCancelReleases(t *testing.T) {
	f := newFixture(t, nil)
	mat := f.item(t, "STEEL", "200", "10")
	order := f.approvedOrder(t, CreateInput{
		ProductName:   "Bracket",
		OrderQuantity: dec("50"),
		RawMaterials:  []MaterialInput{{ItemID: mat.ID, RequiredQuantity: dec("50")}},
	})

	started, err := f.svc.Start(testCtx(), order.ID)
	require.NoError(t, err)
	require.Equal(t, StatusInProgress, started.Status)
	require.NotNil(t, started.ActualStart)
	require.Equal(t, StageInProgress, started.Stages[0].Status)
	require.True(t, started.RawMaterials[0].AllocatedQuantity.Equal(dec("50")))
	f.requireStock(t, mat.ID, "200", "50", "150")

	cancelled, err := f.svc.Cancel(testCtx(), order.ID, "customer withdrew")
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, cancelled.Status)
	require.Equal(t, "customer withdrew", cancelled.CancelReason)
	require.True(t, cancelled.RawMaterials[0].AllocatedQuantity.IsZero())
	f.requireStock(t, mat.ID, "200", "0", "200")

	_, err = f.svc.Start(testCtx(), order.ID)
	requireCode(t, err, http.StatusBadRequest, "INVALID_STATUS_TRANSITION")
}

func TestStartRequiresApproval(t *testing.T) {
	f := newFixture(t, nil)
	mat := f.item(t, "STEEL", "200", "10")
	order, err := f.svc.Create(testCtx(), CreateInput{ProductName: "Bracket", OrderQuantity: dec("5"),
		RawMaterials: []MaterialInput{{ItemID: mat.ID, RequiredQuantity: dec("5")}}})
	require.NoError(t, err)

	_, err = f.svc.Start(testCtx(), order.ID)
	requireCode(t, err, http.StatusBadRequest, "INVALID_STATUS_TRANSITION")
	f.requireStock(t, mat.ID, "200", "0", "200")
}

func TestStartWithShortageReservesNothing(t *testing.T) {
	f := newFixture(t, nil)
	steel := f.item(t, "STEEL", "200", "10")
	paint := f.item(t, "PAINT", "5", "3")
	order := f.approvedOrder(t, CreateInput{
		ProductName:   "Bracket",
		OrderQuantity: dec("50"),
		RawMaterials: []MaterialInput{
			{ItemID: steel.ID, RequiredQuantity: dec("50")},
			{ItemID: paint.ID, RequiredQuantity: dec("10")},
		},
	})

	_, err := f.svc.Start(testCtx(), order.ID)
	requireCode(t, err, http.StatusBadRequest, "INSUFFICIENT_STOCK")
	appErr, _ := shared.AsAppError(err)
	shortages, ok := appErr.Details.([]Shortage)
	require.True(t, ok)
	require.Len(t, shortages, 1)
	require.Equal(t, "PAINT", shortages[0].ItemCode)

	f.requireStock(t, steel.ID, "200", "0", "200")
	stored, err := f.svc.Get(testCtx(), order.ID)
	require.NoError(t, err)
	require.Equal(t, StatusApproved, stored.Status)
}

// racingStock lets the availability check pass and then fails a later reservation.
type racingStock struct {
	*inventory.Service
	failItem int64
}

func (r racingStock) ReserveStock(ctx context.Context, itemID int64, qty decimal.Decimal) (inventory.Item, error) {
	if itemID == r.failItem {
		return inventory.Item{}, shared.Business("INSUFFICIENT_STOCK", "taken by another order", inventory.ErrInsufficientStock)
	}
	return r.Service.ReserveStock(ctx, itemID, qty)
}

func TestStartCompensatesFailedReservation(t *testing.T) {
	f := newFixture(t, nil)
	steel := f.item(t, "STEEL", "200", "10")
	paint := f.item(t, "PAINT", "50", "3")
	f.svc.stock = racingStock{Service: f.stock, failItem: paint.ID}
	order := f.approvedOrder(t, CreateInput{
		ProductName:   "Bracket",
		OrderQuantity: dec("50"),
		RawMaterials: []MaterialInput{
			{ItemID: steel.ID, RequiredQuantity: dec("50")},
			{ItemID: paint.ID, RequiredQuantity: dec("10")},
		},
	})

	_, err := f.svc.Start(testCtx(), order.ID)
	require.ErrorIs(t, err, inventory.ErrInsufficientStock)
	f.requireStock(t, steel.ID, "200", "0", "200")
	f.requireStock(t, paint.ID, "50", "0", "50")
}

func TestStartReleasesWhenSaveFails(t *testing.T) {
	f := newFixture(t, nil)
	steel := f.item(t, "STEEL", "200", "10")
	order := f.approvedOrder(t, CreateInput{
		ProductName:   "Bracket",
		OrderQuantity: dec("50"),
		RawMaterials:  []MaterialInput{{ItemID: steel.ID, RequiredQuantity: dec("50")}},
	})
	f.repo.failOn = f.repo.saves + 1

	_, err := f.svc.Start(testCtx(), order.ID)
	require.Error(t, err)
	f.requireStock(t, steel.ID, "200", "0", "200")
}

func TestStagesCascadeAndComplete(t *testing.T) {
	f := newFixture(t, nil)
	steel := f.item(t, "STEEL", "200", "10")
	finished := f.item(t, "BRACKET", "0", "0")
	order := f.approvedOrder(t, CreateInput{
		ProductName:   "Bracket",
		OutputItemID:  finished.ID,
		OrderQuantity: dec("50"),
		RawMaterials:  []MaterialInput{{ItemID: steel.ID, RequiredQuantity: dec("50")}},
		Stages:        []StageInput{{StageName: "Cutting"}, {StageName: "Welding"}, {StageName: "Painting"}},
	})
	_, err := f.svc.Start(testCtx(), order.ID)
	require.NoError(t, err)

	_, err = f.svc.CompleteStage(testCtx(), order.ID, 1, CompleteStageInput{})
	requireCode(t, err, http.StatusBadRequest, "STAGE_OUT_OF_ORDER")

	updated, err := f.svc.CompleteStage(testCtx(), order.ID, 0, CompleteStageInput{
		CompletedQuantity: dec("50"),
		LabourCost:        dec("100"),
		OverheadCost:      dec("50"),
	})
	require.NoError(t, err)
	require.Equal(t, StageCompleted, updated.Stages[0].Status)
	require.Equal(t, StageInProgress, updated.Stages[1].Status)
	require.Equal(t, StagePending, updated.Stages[2].Status)

	_, err = f.svc.Complete(testCtx(), order.ID, CompleteInput{CompletedQuantity: dec("50"), RejectedQuantity: dec("1")})
	requireCode(t, err, http.StatusBadRequest, "QUANTITY_EXCEEDED")

	done, err := f.svc.Complete(testCtx(), order.ID, CompleteInput{CompletedQuantity: dec("45"), RejectedQuantity: dec("5")})
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, done.Status)
	require.True(t, done.PendingQuantity.IsZero())
	for _, s := range done.Stages {
		require.Equal(t, StageCompleted, s.Status)
	}
	require.True(t, done.RawMaterials[0].ConsumedQuantity.Equal(dec("50")))
	require.True(t, done.RawMaterials[0].AllocatedQuantity.IsZero())
	require.True(t, done.Cost.TotalCost.Equal(dec("650")))
	require.True(t, done.Cost.CostPerUnit.Equal(dec("14.44")))

	f.requireStock(t, steel.ID, "150", "0", "150")
	f.requireStock(t, finished.ID, "45", "0", "45")

	_, err = f.svc.Cancel(testCtx(), order.ID, "")
	requireCode(t, err, http.StatusBadRequest, "INVALID_STATUS_TRANSITION")
}

func TestHoldKeepsReservation(t *testing.T) {
	f := newFixture(t, nil)
	steel := f.item(t, "STEEL", "200", "10")
	order := f.approvedOrder(t, CreateInput{
		ProductName:   "Bracket",
		OrderQuantity: dec("20"),
		RawMaterials:  []MaterialInput{{ItemID: steel.ID, RequiredQuantity: dec("40")}},
	})
	_, err := f.svc.Start(testCtx(), order.ID)
	require.NoError(t, err)

	held, err := f.svc.Hold(testCtx(), order.ID, "machine down")
	require.NoError(t, err)
	require.Equal(t, StatusOnHold, held.Status)
	require.Equal(t, StageOnHold, held.Stages[0].Status)
	f.requireStock(t, steel.ID, "200", "40", "160")

	resumed, err := f.svc.Resume(testCtx(), order.ID)
	require.NoError(t, err)
	require.Equal(t, StatusInProgress, resumed.Status)
	require.Equal(t, StageInProgress, resumed.Stages[0].Status)

	_, err = f.svc.Hold(testCtx(), order.ID, "")
	require.NoError(t, err)
	_, err = f.svc.Cancel(testCtx(), order.ID, "scrapped")
	require.NoError(t, err)
	f.requireStock(t, steel.ID, "200", "0", "200")
}

func TestDraftOnlyEditAndDelete(t *testing.T) {
	f := newFixture(t, nil)
	steel := f.item(t, "STEEL", "200", "10")
	input := CreateInput{
		ProductName:   "Bracket",
		OrderQuantity: dec("10"),
		RawMaterials:  []MaterialInput{{ItemID: steel.ID, RequiredQuantity: dec("10")}},
	}
	order, err := f.svc.Create(testCtx(), input)
	require.NoError(t, err)

	input.OrderQuantity = dec("12")
	updated, err := f.svc.Update(testCtx(), order.ID, input)
	require.NoError(t, err)
	require.True(t, updated.PendingQuantity.Equal(dec("12")))

	_, err = f.svc.Approve(testCtx(), order.ID, "ok")
	require.NoError(t, err)
	_, err = f.svc.Update(testCtx(), order.ID, input)
	requireCode(t, err, http.StatusBadRequest, "ORDER_LOCKED")
	requireCode(t, f.svc.Delete(testCtx(), order.ID), http.StatusBadRequest, "ORDER_LOCKED")

	_, err = f.svc.Cancel(testCtx(), order.ID, "")
	require.NoError(t, err)
	require.NoError(t, f.svc.Delete(testCtx(), order.ID))
	_, err = f.svc.Get(testCtx(), order.ID)
	requireCode(t, err, http.StatusNotFound, "NOT_FOUND")
}

func TestStatsAndTenantIsolation(t *testing.T) {
	f := newFixture(t, nil)
	steel := f.item(t, "STEEL", "200", "10")
	f.approvedOrder(t, CreateInput{ProductName: "A", OrderQuantity: dec("5"),
		RawMaterials: []MaterialInput{{ItemID: steel.ID, RequiredQuantity: dec("5")}}})
	_, err := f.svc.Create(testCtx(), CreateInput{ProductName: "B", OrderQuantity: dec("7"),
		RawMaterials: []MaterialInput{{ItemID: steel.ID, RequiredQuantity: dec("7")}}})
	require.NoError(t, err)

	stats, err := f.svc.Stats(testCtx())
	require.NoError(t, err)
	require.Equal(t, 2, stats.TotalOrders)
	require.Equal(t, 1, stats.ByStatus[StatusApproved])
	require.True(t, stats.PlannedQuantity.Equal(dec("12")))

	other := shared.ContextWithTenant(context.Background(), shared.Tenant{CompanyID: 2, UserID: 1})
	page, err := f.svc.List(other, ListFilter{}, shared.Page{Page: 1, PerPage: 20})
	require.NoError(t, err)
	require.Empty(t, page.Items)
	_, err = f.svc.Get(other, 1)
	requireCode(t, err, http.StatusNotFound, "NOT_FOUND")
}

func TestLockedOrderReturnsConflict(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	f := newFixture(t, lock.New(client, 5*time.Second))
	steel := f.item(t, "STEEL", "200", "10")
	order := f.approvedOrder(t, CreateInput{ProductName: "A", OrderQuantity: dec("5"),
		RawMaterials: []MaterialInput{{ItemID: steel.ID, RequiredQuantity: dec("5")}}})

	held, err := redislock.New(client).Obtain(context.Background(), lock.ProductionKey(1, order.ID), 5*time.Second, nil)
	require.NoError(t, err)

	_, err = f.svc.Start(testCtx(), order.ID)
	requireCode(t, err, http.StatusConflict, "CONFLICT")
	require.True(t, errors.Is(err, lock.ErrBusy))
	f.requireStock(t, steel.ID, "200", "0", "200")

	require.NoError(t, held.Release(context.Background()))
	_, err = f.svc.Start(testCtx(), order.ID)
	require.NoError(t, err)
	f.requireStock(t, steel.ID, "200", "5", "195")
}

// flakyStock fails the next matching movements before delegating.
type flakyStock struct {
	*inventory.Service
	failType inventory.MovementType
	failItem int64
	failures int
}

func (s *flakyStock) UpdateStock(ctx context.Context, input inventory.StockUpdateInput) (inventory.Movement, error) {
	if s.failures > 0 && input.MovementType == s.failType && (s.failItem == 0 || input.ItemID == s.failItem) {
		s.failures--
		return inventory.Movement{}, shared.Database("stock update", errors.New("connection reset"))
	}
	return s.Service.UpdateStock(ctx, input)
}

func (f *fixture) failNext(movementType inventory.MovementType, itemID int64) {
	f.svc.stock = &flakyStock{Service: f.stock, failType: movementType, failItem: itemID, failures: 1}
}

func (f *fixture) movementCount(t *testing.T, itemID int64, movementType inventory.MovementType) int {
	t.Helper()
	movements, err := f.stock.ListMovements(testCtx(), itemID, shared.Page{Page: 1, PerPage: 100})
	require.NoError(t, err)
	n := 0
	for _, m := range movements.Items {
		if m.MovementType == movementType {
			n++
		}
	}
	return n
}

func TestCompleteRetryAfterPartialConsumption(t *testing.T) {
	f := newFixture(t, nil)
	steel := f.item(t, "STEEL", "200", "10")
	paint := f.item(t, "PAINT", "100", "5")
	order := f.approvedOrder(t, CreateInput{
		ProductName:   "Bracket",
		OrderQuantity: dec("10"),
		RawMaterials: []MaterialInput{
			{ItemID: steel.ID, RequiredQuantity: dec("50")},
			{ItemID: paint.ID, RequiredQuantity: dec("20")},
		},
	})
	_, err := f.svc.Start(testCtx(), order.ID)
	require.NoError(t, err)

	f.failNext(inventory.MovementProductionConsume, paint.ID)
	_, err = f.svc.Complete(testCtx(), order.ID, CompleteInput{CompletedQuantity: dec("10")})
	require.Error(t, err)

	stored, err := f.svc.Get(testCtx(), order.ID)
	require.NoError(t, err)
	require.Equal(t, StatusInProgress, stored.Status)
	require.True(t, stored.RawMaterials[0].ConsumedQuantity.Equal(dec("50")))
	require.True(t, stored.RawMaterials[0].AllocatedQuantity.IsZero())
	require.True(t, stored.RawMaterials[1].AllocatedQuantity.Equal(dec("20")))
	f.requireStock(t, steel.ID, "150", "0", "150")
	f.requireStock(t, paint.ID, "100", "20", "80")

	done, err := f.svc.Complete(testCtx(), order.ID, CompleteInput{CompletedQuantity: dec("10")})
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, done.Status)
	f.requireStock(t, steel.ID, "150", "0", "150")
	f.requireStock(t, paint.ID, "80", "0", "80")
	require.Equal(t, 1, f.movementCount(t, steel.ID, inventory.MovementProductionConsume))
	require.Equal(t, 1, f.movementCount(t, paint.ID, inventory.MovementProductionConsume))
}

func TestFailedOutputThenCancelKeepsOtherReservations(t *testing.T) {
	f := newFixture(t, nil)
	steel := f.item(t, "STEEL", "200", "10")
	finished := f.item(t, "BRACKET", "0", "0")
	input := CreateInput{
		ProductName:   "Bracket",
		OutputItemID:  finished.ID,
		OrderQuantity: dec("50"),
		RawMaterials:  []MaterialInput{{ItemID: steel.ID, RequiredQuantity: dec("50")}},
	}
	first := f.approvedOrder(t, input)
	second := f.approvedOrder(t, input)
	_, err := f.svc.Start(testCtx(), first.ID)
	require.NoError(t, err)
	_, err = f.svc.Start(testCtx(), second.ID)
	require.NoError(t, err)
	f.requireStock(t, steel.ID, "200", "100", "100")

	f.failNext(inventory.MovementProductionOutput, finished.ID)
	_, err = f.svc.Complete(testCtx(), first.ID, CompleteInput{CompletedQuantity: dec("50")})
	require.Error(t, err)

	stored, err := f.svc.Get(testCtx(), first.ID)
	require.NoError(t, err)
	require.Equal(t, StatusInProgress, stored.Status)
	require.True(t, stored.RawMaterials[0].AllocatedQuantity.IsZero())
	require.True(t, stored.RawMaterials[0].ConsumedQuantity.Equal(dec("50")))
	f.requireStock(t, steel.ID, "150", "50", "100")

	_, err = f.svc.Cancel(testCtx(), first.ID, "line stopped")
	require.NoError(t, err)
	f.requireStock(t, steel.ID, "150", "50", "100")

	done, err := f.svc.Complete(testCtx(), second.ID, CompleteInput{CompletedQuantity: dec("50")})
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, done.Status)
	f.requireStock(t, steel.ID, "100", "0", "100")
	f.requireStock(t, finished.ID, "50", "0", "50")
}

func TestCompleteRetryAfterFailedOutputBooksOnce(t *testing.T) {
	f := newFixture(t, nil)
	steel := f.item(t, "STEEL", "200", "10")
	finished := f.item(t, "BRACKET", "0", "0")
	order := f.approvedOrder(t, CreateInput{
		ProductName:   "Bracket",
		OutputItemID:  finished.ID,
		OrderQuantity: dec("20"),
		RawMaterials:  []MaterialInput{{ItemID: steel.ID, RequiredQuantity: dec("40")}},
	})
	_, err := f.svc.Start(testCtx(), order.ID)
	require.NoError(t, err)

	f.failNext(inventory.MovementProductionOutput, finished.ID)
	_, err = f.svc.Complete(testCtx(), order.ID, CompleteInput{CompletedQuantity: dec("20")})
	require.Error(t, err)
	f.requireStock(t, finished.ID, "0", "0", "0")

	done, err := f.svc.Complete(testCtx(), order.ID, CompleteInput{CompletedQuantity: dec("20")})
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, done.Status)
	f.requireStock(t, steel.ID, "160", "0", "160")
	f.requireStock(t, finished.ID, "20", "0", "20")
	require.Equal(t, 1, f.movementCount(t, steel.ID, inventory.MovementProductionConsume))
	require.Equal(t, 1, f.movementCount(t, finished.ID, inventory.MovementProductionOutput))
}
