package procurement

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/factory-erp/internal/inventory"
	"github.com/odyssey-erp/factory-erp/internal/masterdata/suppliers"
	"github.com/odyssey-erp/factory-erp/internal/masterdata/warehouses"
	"github.com/odyssey-erp/factory-erp/internal/platform/cache"
	"github.com/odyssey-erp/factory-erp/internal/platform/lock"
	salesshared "github.com/odyssey-erp/factory-erp/internal/sales/shared"
	"github.com/odyssey-erp/factory-erp/internal/shared"
)

func dec(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func testCtx() context.Context {
	return shared.ContextWithTenant(context.Background(), shared.Tenant{CompanyID: 1, UserID: 4})
}

var testClock = func() time.Time { return time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC) }

type supplierStub struct{}

func (supplierStub) RequireActive(_ context.Context, id int64) (suppliers.Supplier, error) {
	if id == 99 {
		return suppliers.Supplier{}, shared.Business("SUPPLIER_INACTIVE", "supplier is inactive", nil)
	}
	return suppliers.Supplier{ID: id, IsActive: true}, nil
}

type warehouseStub struct{}

func (warehouseStub) RequireActive(_ context.Context, id int64) (warehouses.Warehouse, error) {
	return warehouses.Warehouse{ID: id, IsActive: true}, nil
}

type approvalSpy struct{ logs []shared.ApprovalLog }

func (a *approvalSpy) Record(_ context.Context, log shared.ApprovalLog) error {
	a.logs = append(a.logs, log)
	return nil
}

type fixture struct {
	stock     *inventory.Service
	repo      *memoryRepo
	approvals *approvalSpy
	svc       *Service
}

func newFixture(t *testing.T, locker Locker) *fixture {
	t.Helper()
	numbers := shared.NewNumberer(shared.NewMemorySequenceStore(), testClock)
	stock := inventory.NewService(inventory.NewMemoryRepository(), nil, numbers,
		cache.NewEntityCache(nil, "inventory:item", time.Minute), shared.NewMemoryIdempotencyStore(), nil, nil, inventory.ServiceConfig{})
	f := &fixture{stock: stock, repo: newMemoryRepo(), approvals: &approvalSpy{}}
	f.svc = NewService(f.repo, Deps{
		Stock:      stock,
		Suppliers:  supplierStub{},
		Warehouses: warehouseStub{},
		Locker:     locker,
		Numbers:    numbers,
		Approvals:  f.approvals,
	})
	f.svc.now = testClock
	return f
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

func (f *fixture) orderedPO(t *testing.T, lines ...salesshared.Line) PurchaseOrder {
	t.Helper()
	po, err := f.svc.Create(testCtx(), CreateInput{SupplierID: 3, WarehouseID: 1, Lines: lines})
	require.NoError(t, err)
	for _, status := range []Status{StatusPendingApproval, StatusApproved, StatusOrdered} {
		po, err = f.svc.ChangeStatus(testCtx(), po.ID, StatusInput{Status: status})
		require.NoError(t, err)
	}
	return po
}

func (f *fixture) requireStock(t *testing.T, id int64, current string) {
	t.Helper()
	item, err := f.stock.GetItem(testCtx(), id)
	require.NoError(t, err)
	require.True(t, item.CurrentStock.Equal(dec(current)), "current %s", item.CurrentStock)
}

func requireCode(t *testing.T, err error, status int, code string) {
	t.Helper()
	appErr, ok := shared.AsAppError(err)
	require.True(t, ok, "expected AppError, got %v", err)
	require.Equal(t, status, appErr.Status())
	require.Equal(t, code, appErr.Code)
}

func TestCreateComputesTotals(t *testing.T) {
	f := newFixture(t, nil)
	steel := f.item(t, "STEEL", "100", "10")
	bolts := f.item(t, "BOLT", "10", "1")

	po, err := f.svc.Create(testCtx(), CreateInput{
		SupplierID:      3,
		WarehouseID:     1,
		ShippingCharges: dec("25"),
		Lines: []salesshared.Line{
			{ItemID: steel.ID, Quantity: dec("50"), Rate: dec("12"), TaxPercent: dec("11")},
			{ItemID: bolts.ID, Description: "M8 bolts", Quantity: dec("100"), Rate: dec("2"), DiscountPercent: dec("10")},
		},
	})
	require.NoError(t, err)
	require.Equal(t, "PO-20240115-0001", po.PONumber)
	require.Equal(t, StatusDraft, po.Status)
	require.Equal(t, "Item STEEL", po.Lines[0].Description)
	require.Equal(t, "kg", po.Lines[0].Unit)
	require.Equal(t, "M8 bolts", po.Lines[1].Description)
	require.True(t, po.Subtotal.Equal(dec("800")))
	require.True(t, po.DiscountTotal.Equal(dec("20")))
	require.True(t, po.TaxTotal.Equal(dec("66")))
	require.True(t, po.GrandTotal.Equal(dec("871")))
	require.True(t, po.Lines[1].UnitCost().Equal(dec("1.8")))

	_, err = f.svc.Create(testCtx(), CreateInput{SupplierID: 99, WarehouseID: 1,
		Lines: []salesshared.Line{{ItemID: steel.ID, Quantity: dec("1"), Rate: dec("1")}}})
	requireCode(t, err, http.StatusBadRequest, "SUPPLIER_INACTIVE")

	_, err = f.svc.Create(testCtx(), CreateInput{SupplierID: 3, WarehouseID: 1,
		Lines: []salesshared.Line{{Description: "no item", Quantity: dec("1"), Rate: dec("1")}}})
	requireCode(t, err, http.StatusBadRequest, "VALIDATION_ERROR")

	_, err = f.svc.Create(testCtx(), CreateInput{SupplierID: 3, WarehouseID: 1,
		Lines: []salesshared.Line{
			{ItemID: steel.ID, Quantity: dec("1"), Rate: dec("1")},
			{ItemID: steel.ID, Quantity: dec("2"), Rate: dec("1")},
		}})
	requireCode(t, err, http.StatusBadRequest, "VALIDATION_ERROR")
}

func TestApprovalFlowRecordsApprovals(t *testing.T) {
	f := newFixture(t, nil)
	steel := f.item(t, "STEEL", "100", "10")
	po, err := f.svc.Create(testCtx(), CreateInput{SupplierID: 3, WarehouseID: 1,
		Lines: []salesshared.Line{{ItemID: steel.ID, Quantity: dec("5"), Rate: dec("10")}}})
	require.NoError(t, err)

	_, err = f.svc.ChangeStatus(testCtx(), po.ID, StatusInput{Status: StatusOrdered})
	require.ErrorIs(t, err, shared.ErrInvalidTransition)

	_, err = f.svc.ChangeStatus(testCtx(), po.ID, StatusInput{Status: StatusPendingApproval})
	require.NoError(t, err)
	_, err = f.svc.ChangeStatus(testCtx(), po.ID, StatusInput{Status: StatusDraft, Reason: "wrong rate"})
	require.NoError(t, err)
	_, err = f.svc.ChangeStatus(testCtx(), po.ID, StatusInput{Status: StatusPendingApproval})
	require.NoError(t, err)
	approved, err := f.svc.ChangeStatus(testCtx(), po.ID, StatusInput{Status: StatusApproved})
	require.NoError(t, err)
	require.Equal(t, int64(4), approved.ApprovedBy)
	require.NotNil(t, approved.ApprovedAt)

	var actions []shared.ApprovalAction
	for _, l := range f.approvals.logs {
		actions = append(actions, l.Action)
		require.Equal(t, "purchase_order", l.Module)
		require.Equal(t, po.ID, l.RefID)
	}
	require.Equal(t, []shared.ApprovalAction{shared.ApprovalSubmit, shared.ApprovalReject, shared.ApprovalSubmit, shared.ApprovalApprove}, actions)
	require.Equal(t, "wrong rate", f.approvals.logs[1].Note)

	_, err = f.svc.ChangeStatus(testCtx(), po.ID, StatusInput{Status: StatusReceived})
	requireCode(t, err, http.StatusBadRequest, "VALIDATION_ERROR")

	_, err = f.svc.Update(testCtx(), po.ID, UpdateInput{Notes: ptr("late edit")})
	requireCode(t, err, http.StatusBadRequest, "PO_LOCKED")
}

func TestReceivePostsInwardMovements(t *testing.T) {
	f := newFixture(t, nil)
	steel := f.item(t, "STEEL", "100", "10")
	bolts := f.item(t, "BOLT", "10", "1")
	po := f.orderedPO(t,
		salesshared.Line{ItemID: steel.ID, Quantity: dec("50"), Rate: dec("12")},
		salesshared.Line{ItemID: bolts.ID, Quantity: dec("100"), Rate: dec("2"), DiscountPercent: dec("10")},
	)

	receipt, err := f.svc.Receive(testCtx(), po.ID, ReceiveInput{Lines: []ReceiveLine{
		{LineID: po.Lines[0].ID, Quantity: dec("20")},
		{LineID: po.Lines[1].ID, Quantity: dec("100")},
	}})
	require.NoError(t, err)
	require.Equal(t, "GRN-20240115-0001", receipt.ReceiptNumber)
	require.Len(t, receipt.Lines, 2)
	require.True(t, receipt.Lines[1].Rate.Equal(dec("1.8")))
	require.NotEmpty(t, receipt.Lines[0].MovementNumber)
	f.requireStock(t, steel.ID, "120")
	f.requireStock(t, bolts.ID, "110")

	po, err = f.svc.Get(testCtx(), po.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPartiallyReceived, po.Status)
	require.True(t, po.Lines[0].Pending().Equal(dec("30")))

	_, err = f.svc.Receive(testCtx(), po.ID, ReceiveInput{Lines: []ReceiveLine{{LineID: po.Lines[0].ID, Quantity: dec("31")}}})
	requireCode(t, err, http.StatusBadRequest, "QUANTITY_EXCEEDED")
	f.requireStock(t, steel.ID, "120")

	_, err = f.svc.Receive(testCtx(), po.ID, ReceiveInput{Lines: []ReceiveLine{{LineID: po.Lines[0].ID, Quantity: dec("30")}}})
	require.NoError(t, err)
	f.requireStock(t, steel.ID, "150")

	po, err = f.svc.Get(testCtx(), po.ID)
	require.NoError(t, err)
	require.Equal(t, StatusReceived, po.Status)

	receipts, err := f.svc.Receipts(testCtx(), po.ID)
	require.NoError(t, err)
	require.Len(t, receipts, 2)

	closed, err := f.svc.ChangeStatus(testCtx(), po.ID, StatusInput{Status: StatusClosed})
	require.NoError(t, err)
	require.Equal(t, StatusClosed, closed.Status)
}

func TestReceiveRequiresOrderedStatus(t *testing.T) {
	f := newFixture(t, nil)
	steel := f.item(t, "STEEL", "100", "10")
	po, err := f.svc.Create(testCtx(), CreateInput{SupplierID: 3, WarehouseID: 1,
		Lines: []salesshared.Line{{ItemID: steel.ID, Quantity: dec("5"), Rate: dec("10")}}})
	require.NoError(t, err)

	_, err = f.svc.Receive(testCtx(), po.ID, ReceiveInput{Lines: []ReceiveLine{{LineID: po.Lines[0].ID, Quantity: dec("1")}}})
	requireCode(t, err, http.StatusBadRequest, "PO_NOT_RECEIVABLE")

	ordered := f.orderedPO(t, salesshared.Line{ItemID: steel.ID, Quantity: dec("5"), Rate: dec("10")})
	_, err = f.svc.Receive(testCtx(), ordered.ID, ReceiveInput{Lines: []ReceiveLine{{LineID: po.Lines[0].ID, Quantity: dec("1")}}})
	requireCode(t, err, http.StatusBadRequest, "VALIDATION_ERROR")
	_, err = f.svc.Receive(testCtx(), ordered.ID, ReceiveInput{Lines: []ReceiveLine{{LineID: ordered.Lines[0].ID, Quantity: dec("0")}}})
	requireCode(t, err, http.StatusBadRequest, "VALIDATION_ERROR")
	f.requireStock(t, steel.ID, "100")
}

func TestReceiveRetryWithSameKeyIsRejected(t *testing.T) {
	f := newFixture(t, nil)
	steel := f.item(t, "STEEL", "100", "10")
	po := f.orderedPO(t, salesshared.Line{ItemID: steel.ID, Quantity: dec("50"), Rate: dec("10")})
	input := ReceiveInput{IdempotencyKey: "delivery-77", Lines: []ReceiveLine{{LineID: po.Lines[0].ID, Quantity: dec("10")}}}

	_, err := f.svc.Receive(testCtx(), po.ID, input)
	require.NoError(t, err)
	_, err = f.svc.Receive(testCtx(), po.ID, input)
	requireCode(t, err, http.StatusConflict, "CONFLICT")
	f.requireStock(t, steel.ID, "110")
}

func TestReceiveReversesMovementsWhenReceiptFails(t *testing.T) {
	f := newFixture(t, nil)
	steel := f.item(t, "STEEL", "100", "10")
	po := f.orderedPO(t, salesshared.Line{ItemID: steel.ID, Quantity: dec("50"), Rate: dec("10")})
	f.repo.failReceipt = true

	_, err := f.svc.Receive(testCtx(), po.ID, ReceiveInput{Lines: []ReceiveLine{{LineID: po.Lines[0].ID, Quantity: dec("10")}}})
	require.Error(t, err)
	f.requireStock(t, steel.ID, "100")

	po, err = f.svc.Get(testCtx(), po.ID)
	require.NoError(t, err)
	require.Equal(t, StatusOrdered, po.Status)
	require.True(t, po.Lines[0].ReceivedQuantity.IsZero())
}

func TestReceiveRetryAfterReversalSucceeds(t *testing.T) {
	f := newFixture(t, nil)
	steel := f.item(t, "STEEL", "100", "10")
	bolts := f.item(t, "BOLT", "10", "1")
	po := f.orderedPO(t,
		salesshared.Line{ItemID: steel.ID, Quantity: dec("50"), Rate: dec("10")},
		salesshared.Line{ItemID: bolts.ID, Quantity: dec("20"), Rate: dec("1")},
	)
	input := ReceiveInput{IdempotencyKey: "delivery-81", Lines: []ReceiveLine{
		{LineID: po.Lines[0].ID, Quantity: dec("10")},
		{LineID: po.Lines[1].ID, Quantity: dec("20")},
	}}

	f.repo.failReceipt = true
	_, err := f.svc.Receive(testCtx(), po.ID, input)
	require.Error(t, err)
	f.requireStock(t, steel.ID, "100")
	f.requireStock(t, bolts.ID, "10")

	f.repo.failReceipt = false
	receipt, err := f.svc.Receive(testCtx(), po.ID, input)
	require.NoError(t, err)
	require.Len(t, receipt.Lines, 2)
	f.requireStock(t, steel.ID, "110")
	f.requireStock(t, bolts.ID, "30")

	po, err = f.svc.Get(testCtx(), po.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPartiallyReceived, po.Status)
	require.True(t, po.Lines[1].ReceivedQuantity.Equal(dec("20")))

	_, err = f.svc.Receive(testCtx(), po.ID, input)
	requireCode(t, err, http.StatusConflict, "CONFLICT")
	f.requireStock(t, steel.ID, "110")
}

func TestCancelAndDeleteRules(t *testing.T) {
	f := newFixture(t, nil)
	steel := f.item(t, "STEEL", "100", "10")
	po := f.orderedPO(t, salesshared.Line{ItemID: steel.ID, Quantity: dec("50"), Rate: dec("10")})
	_, err := f.svc.Receive(testCtx(), po.ID, ReceiveInput{Lines: []ReceiveLine{{LineID: po.Lines[0].ID, Quantity: dec("5")}}})
	require.NoError(t, err)

	_, err = f.svc.ChangeStatus(testCtx(), po.ID, StatusInput{Status: StatusCancelled})
	require.ErrorIs(t, err, shared.ErrInvalidTransition)
	requireCode(t, f.svc.Delete(testCtx(), po.ID), http.StatusBadRequest, "PO_LOCKED")

	draft, err := f.svc.Create(testCtx(), CreateInput{SupplierID: 3, WarehouseID: 1,
		Lines: []salesshared.Line{{ItemID: steel.ID, Quantity: dec("1"), Rate: dec("10")}}})
	require.NoError(t, err)
	cancelled, err := f.svc.ChangeStatus(testCtx(), draft.ID, StatusInput{Status: StatusCancelled, Reason: " not needed "})
	require.NoError(t, err)
	require.Equal(t, "not needed", cancelled.CancelReason)
	require.NoError(t, f.svc.Delete(testCtx(), draft.ID))
	_, err = f.svc.Get(testCtx(), draft.ID)
	requireCode(t, err, http.StatusNotFound, "NOT_FOUND")
}

func TestStats(t *testing.T) {
	f := newFixture(t, nil)
	steel := f.item(t, "STEEL", "100", "10")
	f.orderedPO(t, salesshared.Line{ItemID: steel.ID, Quantity: dec("10"), Rate: dec("10")})
	pending, err := f.svc.Create(testCtx(), CreateInput{SupplierID: 3, WarehouseID: 1,
		Lines: []salesshared.Line{{ItemID: steel.ID, Quantity: dec("5"), Rate: dec("10")}}})
	require.NoError(t, err)
	_, err = f.svc.ChangeStatus(testCtx(), pending.ID, StatusInput{Status: StatusPendingApproval})
	require.NoError(t, err)

	stats, err := f.svc.Stats(testCtx())
	require.NoError(t, err)
	require.Equal(t, 2, stats.TotalOrders)
	require.Equal(t, 1, stats.PendingApproval)
	require.True(t, stats.TotalValue.Equal(dec("150")))
	require.True(t, stats.OpenValue.Equal(dec("100")))
	require.Equal(t, 1, stats.ByStatus[StatusOrdered])
}

func TestReceiveLockConflict(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	f := newFixture(t, lock.New(client, time.Minute))
	steel := f.item(t, "STEEL", "100", "10")
	po := f.orderedPO(t, salesshared.Line{ItemID: steel.ID, Quantity: dec("50"), Rate: dec("10")})

	held, err := redislock.New(client).Obtain(context.Background(), lock.PurchaseOrderKey(1, po.ID), time.Minute, nil)
	require.NoError(t, err)
	_, err = f.svc.Receive(testCtx(), po.ID, ReceiveInput{Lines: []ReceiveLine{{LineID: po.Lines[0].ID, Quantity: dec("1")}}})
	requireCode(t, err, http.StatusConflict, "CONFLICT")
	f.requireStock(t, steel.ID, "100")

	require.NoError(t, held.Release(context.Background()))
	_, err = f.svc.Receive(testCtx(), po.ID, ReceiveInput{Lines: []ReceiveLine{{LineID: po.Lines[0].ID, Quantity: dec("1")}}})
	require.NoError(t, err)
}

func ptr[T any](v T) *T { return &v }
