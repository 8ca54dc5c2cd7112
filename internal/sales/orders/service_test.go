package orders

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/factory-erp/internal/sales/customers"
	salesshared "github.com/odyssey-erp/factory-erp/internal/sales/shared"
	"github.com/odyssey-erp/factory-erp/internal/shared"
)

type memoryRepo struct {
	mu     sync.Mutex
	orders map[int64]CustomerOrder
	next   int64
}

func newMemoryRepo() *memoryRepo { return &memoryRepo{orders: map[int64]CustomerOrder{}} }

func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return fn(ctx, m)
}

func (m *memoryRepo) Get(_ context.Context, companyID, id int64) (*CustomerOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok || o.CompanyID != companyID {
		return nil, ErrNotFound
	}
	o.Lines = append([]salesshared.Line(nil), o.Lines...)
	return &o, nil
}

func (m *memoryRepo) List(_ context.Context, companyID int64, req ListOrdersRequest, _ shared.Page) ([]CustomerOrder, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []CustomerOrder
	for _, o := range m.orders {
		if o.CompanyID == companyID && (req.Status == "" || o.Status == req.Status) {
			out = append(out, o)
		}
	}
	return out, len(out), nil
}

func (m *memoryRepo) Create(_ context.Context, o CustomerOrder) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	o.ID = m.next
	m.orders[o.ID] = o
	return o.ID, nil
}

func (m *memoryRepo) Update(_ context.Context, o CustomerOrder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.orders[o.ID]
	if !ok {
		return ErrNotFound
	}
	o.Lines = existing.Lines
	m.orders[o.ID] = o
	return nil
}

func (m *memoryRepo) ReplaceLines(_ context.Context, id int64, lines []salesshared.Line) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o := m.orders[id]
	o.Lines = append([]salesshared.Line(nil), lines...)
	m.orders[id] = o
	return nil
}

type activeCustomers struct{}

func (activeCustomers) RequireActive(_ context.Context, id int64) (*customers.Customer, error) {
	if id == 404 {
		return nil, shared.NotFound("customer", id)
	}
	return &customers.Customer{ID: id, IsActive: true}, nil
}

func d(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func testCtx() context.Context {
	return shared.ContextWithTenant(context.Background(), shared.Tenant{CompanyID: 1, UserID: 2})
}

func newService() *Service {
	clock := func() time.Time { return time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC) }
	svc := NewService(newMemoryRepo(), activeCustomers{}, shared.NewNumberer(shared.NewMemorySequenceStore(), clock), nil, nil)
	svc.now = clock
	return svc
}

func sampleRequest() CreateOrderRequest {
	return CreateOrderRequest{
		CustomerID:      7,
		ShippingCharges: d("50"),
		Lines: []salesshared.Line{
			{Description: "Steel bracket", Quantity: d("10"), Rate: d("100"), DiscountPercent: d("10"), TaxPercent: d("10")},
		},
	}
}

func TestCreateOrderNumbersAndTotals(t *testing.T) {
	svc := newService()

	first, err := svc.Create(testCtx(), sampleRequest())
	require.NoError(t, err)
	second, err := svc.Create(testCtx(), sampleRequest())
	require.NoError(t, err)

	require.Equal(t, "SO-20240115-0001", first.OrderNumber)
	require.Equal(t, "SO-20240115-0002", second.OrderNumber)
	require.Equal(t, StatusPending, first.Status)
	require.True(t, first.Subtotal.Equal(d("1000")))
	require.True(t, first.DiscountTotal.Equal(d("100")))
	require.True(t, first.TaxTotal.Equal(d("90")))
	require.True(t, first.GrandTotal.Equal(d("1040")))
	require.True(t, first.BalanceAmount.Equal(d("1040")))
	require.Equal(t, salesshared.PaymentUnpaid, first.PaymentStatus)

	req := sampleRequest()
	req.CustomerID = 404
	_, err = svc.Create(testCtx(), req)
	appErr, ok := shared.AsAppError(err)
	require.True(t, ok)
	require.Equal(t, http.StatusNotFound, appErr.Status())
}

func TestStatusTransitions(t *testing.T) {
	svc := newService()
	order, err := svc.Create(testCtx(), sampleRequest())
	require.NoError(t, err)

	_, err = svc.ChangeStatus(testCtx(), order.ID, StatusRequest{Status: StatusDispatched})
	require.ErrorIs(t, err, shared.ErrInvalidTransition)

	for _, next := range []Status{StatusConfirmed, StatusInProduction, StatusReady, StatusDispatched, StatusDelivered} {
		order, err = svc.ChangeStatus(testCtx(), order.ID, StatusRequest{Status: next})
		require.NoError(t, err)
		require.Equal(t, next, order.Status)
	}
	_, err = svc.ChangeStatus(testCtx(), order.ID, StatusRequest{Status: StatusCancelled})
	require.ErrorIs(t, err, shared.ErrInvalidTransition)
}

func TestUpdateOnlyWhilePending(t *testing.T) {
	svc := newService()
	order, err := svc.Create(testCtx(), sampleRequest())
	require.NoError(t, err)

	shipping := d("0")
	updated, err := svc.Update(testCtx(), order.ID, UpdateOrderRequest{ShippingCharges: &shipping})
	require.NoError(t, err)
	require.True(t, updated.GrandTotal.Equal(d("990")))

	_, err = svc.ChangeStatus(testCtx(), order.ID, StatusRequest{Status: StatusConfirmed})
	require.NoError(t, err)
	_, err = svc.Update(testCtx(), order.ID, UpdateOrderRequest{ShippingCharges: &shipping})
	appErr, ok := shared.AsAppError(err)
	require.True(t, ok)
	require.Equal(t, "ORDER_LOCKED", appErr.Code)
}

func TestApplyPayment(t *testing.T) {
	svc := newService()
	order, err := svc.Create(testCtx(), sampleRequest())
	require.NoError(t, err)

	order, err = svc.ApplyPayment(testCtx(), order.ID, d("40"))
	require.NoError(t, err)
	require.Equal(t, salesshared.PaymentPartial, order.PaymentStatus)
	require.True(t, order.BalanceAmount.Equal(d("1000")))

	order, err = svc.ApplyPayment(testCtx(), order.ID, d("1000"))
	require.NoError(t, err)
	require.Equal(t, salesshared.PaymentPaid, order.PaymentStatus)

	order, err = svc.ApplyPayment(testCtx(), order.ID, d("-2000"))
	require.NoError(t, err)
	require.True(t, order.PaidAmount.IsZero())
	require.Equal(t, salesshared.PaymentUnpaid, order.PaymentStatus)
}
