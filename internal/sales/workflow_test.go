package sales_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/odyssey-erp/factory-erp/internal/sales/customers"
	"github.com/odyssey-erp/factory-erp/internal/sales/invoices"
	"github.com/odyssey-erp/factory-erp/internal/sales/orders"
	"github.com/odyssey-erp/factory-erp/internal/sales/quotations"
	salesshared "github.com/odyssey-erp/factory-erp/internal/sales/shared"
	"github.com/odyssey-erp/factory-erp/internal/shared"
)

// ============================================================================
// IN-MEMORY REPOSITORIES
// ============================================================================

type customerRepo struct {
	mu   sync.Mutex
	rows map[int64]customers.Customer
	seq  int64
}

func (r *customerRepo) WithTx(ctx context.Context, fn func(context.Context, customers.Repository) error) error {
	return fn(ctx, r)
}

func (r *customerRepo) Get(_ context.Context, companyID, id int64) (*customers.Customer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.rows[id]
	if !ok || c.CompanyID != companyID {
		return nil, customers.ErrNotFound
	}
	return &c, nil
}

func (r *customerRepo) GetByCode(_ context.Context, companyID int64, code string) (*customers.Customer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.rows {
		if c.CompanyID == companyID && c.Code == code {
			return &c, nil
		}
	}
	return nil, customers.ErrNotFound
}

func (r *customerRepo) List(context.Context, int64, customers.ListCustomersRequest, shared.Page) ([]customers.Customer, int, error) {
	return nil, 0, nil
}

func (r *customerRepo) Create(_ context.Context, c customers.Customer) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	c.ID = r.seq
	r.rows[c.ID] = c
	return c.ID, nil
}

func (r *customerRepo) Update(_ context.Context, c customers.Customer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[c.ID] = c
	return nil
}

func (r *customerRepo) GenerateCode(context.Context, int64) (string, error) {
	return "CUST-0001", nil
}

type orderRepo struct {
	mu   sync.Mutex
	rows map[int64]orders.CustomerOrder
	seq  int64
}

func (r *orderRepo) WithTx(ctx context.Context, fn func(context.Context, orders.Repository) error) error {
	return fn(ctx, r)
}

func (r *orderRepo) Get(_ context.Context, companyID, id int64) (*orders.CustomerOrder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.rows[id]
	if !ok || o.CompanyID != companyID {
		return nil, orders.ErrNotFound
	}
	o.Lines = append([]salesshared.Line(nil), o.Lines...)
	return &o, nil
}

func (r *orderRepo) List(context.Context, int64, orders.ListOrdersRequest, shared.Page) ([]orders.CustomerOrder, int, error) {
	return nil, 0, nil
}

func (r *orderRepo) Create(_ context.Context, o orders.CustomerOrder) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	o.ID = r.seq
	r.rows[o.ID] = o
	return o.ID, nil
}

func (r *orderRepo) Update(_ context.Context, o orders.CustomerOrder) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o.Lines = r.rows[o.ID].Lines
	r.rows[o.ID] = o
	return nil
}

func (r *orderRepo) ReplaceLines(_ context.Context, id int64, lines []salesshared.Line) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o := r.rows[id]
	o.Lines = append([]salesshared.Line(nil), lines...)
	r.rows[id] = o
	return nil
}

type quotationRepo struct {
	mu   sync.Mutex
	rows map[int64]quotations.Quotation
	seq  int64
}

func (r *quotationRepo) WithTx(ctx context.Context, fn func(context.Context, quotations.Repository) error) error {
	return fn(ctx, r)
}

func (r *quotationRepo) Get(_ context.Context, companyID, id int64) (*quotations.Quotation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	q, ok := r.rows[id]
	if !ok || q.CompanyID != companyID {
		return nil, quotations.ErrNotFound
	}
	q.Lines = append([]salesshared.Line(nil), q.Lines...)
	return &q, nil
}

func (r *quotationRepo) List(context.Context, int64, quotations.ListQuotationsRequest, shared.Page) ([]quotations.Quotation, int, error) {
	return nil, 0, nil
}

func (r *quotationRepo) Create(_ context.Context, q quotations.Quotation) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	q.ID = r.seq
	r.rows[q.ID] = q
	return q.ID, nil
}

func (r *quotationRepo) Update(_ context.Context, q quotations.Quotation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	q.Lines = r.rows[q.ID].Lines
	r.rows[q.ID] = q
	return nil
}

func (r *quotationRepo) ReplaceLines(_ context.Context, id int64, lines []salesshared.Line) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	q := r.rows[id]
	q.Lines = append([]salesshared.Line(nil), lines...)
	r.rows[id] = q
	return nil
}

func (r *quotationRepo) ExpireDue(context.Context, time.Time) ([]quotations.ExpiredRef, error) {
	return nil, nil
}

type invoiceRepo struct {
	mu     sync.Mutex
	rows   map[int64]invoices.Invoice
	seq    int64
	paySeq int64
}

func (r *invoiceRepo) WithTx(ctx context.Context, fn func(context.Context, invoices.Repository) error) error {
	return fn(ctx, r)
}

func (r *invoiceRepo) Get(_ context.Context, companyID, id int64) (*invoices.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.rows[id]
	if !ok || inv.CompanyID != companyID {
		return nil, invoices.ErrNotFound
	}
	inv.Lines = append([]salesshared.Line(nil), inv.Lines...)
	inv.Payments = append([]invoices.Payment(nil), inv.Payments...)
	return &inv, nil
}

func (r *invoiceRepo) GetForUpdate(ctx context.Context, companyID, id int64) (*invoices.Invoice, error) {
	return r.Get(ctx, companyID, id)
}

func (r *invoiceRepo) List(context.Context, int64, invoices.ListInvoicesRequest, shared.Page) ([]invoices.Invoice, int, error) {
	return nil, 0, nil
}

func (r *invoiceRepo) Create(_ context.Context, inv invoices.Invoice) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	inv.ID = r.seq
	r.rows[inv.ID] = inv
	return inv.ID, nil
}

func (r *invoiceRepo) Update(_ context.Context, inv invoices.Invoice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv.Lines = r.rows[inv.ID].Lines
	r.rows[inv.ID] = inv
	return nil
}

func (r *invoiceRepo) ReplaceLines(_ context.Context, id int64, lines []salesshared.Line) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv := r.rows[id]
	inv.Lines = append([]salesshared.Line(nil), lines...)
	r.rows[id] = inv
	return nil
}

func (r *invoiceRepo) InsertPayment(_ context.Context, p invoices.Payment) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paySeq++
	return r.paySeq, nil
}

func (r *invoiceRepo) Stats(context.Context, int64, time.Time) (invoices.Stats, error) {
	return invoices.Stats{}, nil
}

// ============================================================================
// WORKFLOW SUITE
// ============================================================================

// SalesWorkflowSuite drives a customer from quotation to paid invoice across
// the sales services.
type SalesWorkflowSuite struct {
	suite.Suite
	ctx        context.Context
	customers  *customers.Service
	orders     *orders.Service
	quotations *quotations.Service
	invoices   *invoices.Service
}

func (s *SalesWorkflowSuite) SetupTest() {
	numbers := shared.NewNumberer(shared.NewMemorySequenceStore(), nil)
	s.customers = customers.NewService(&customerRepo{rows: map[int64]customers.Customer{}}, nil)
	s.orders = orders.NewService(&orderRepo{rows: map[int64]orders.CustomerOrder{}}, s.customers, numbers, nil, nil)
	s.quotations = quotations.NewService(&quotationRepo{rows: map[int64]quotations.Quotation{}},
		s.customers, s.orders, numbers, nil, nil, nil)
	s.invoices = invoices.NewService(&invoiceRepo{rows: map[int64]invoices.Invoice{}},
		s.customers, s.orders, numbers, nil, nil)
	s.ctx = shared.ContextWithTenant(context.Background(), shared.Tenant{CompanyID: 1, UserID: 9})
}

func dec(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func (s *SalesWorkflowSuite) acceptedQuotation() *quotations.Quotation {
	t := s.T()
	customer, err := s.customers.Create(s.ctx, customers.CreateCustomerRequest{
		Name:             "Acme Manufacturing",
		PaymentTermsDays: 30,
	})
	require.NoError(t, err)
	require.Equal(t, "CUST-0001", customer.Code)

	q, err := s.quotations.Create(s.ctx, quotations.CreateQuotationRequest{
		CustomerID:      customer.ID,
		ValidUntil:      time.Now().UTC().AddDate(0, 0, 30),
		ShippingCharges: dec("50"),
		Lines: []salesshared.Line{
			{Description: "Steel bracket", Quantity: dec("10"), Unit: "pcs", Rate: dec("150"),
				DiscountPercent: dec("10"), TaxPercent: dec("11")},
			{Description: "Mounting kit", Quantity: dec("5"), Unit: "set", Rate: dec("40")},
		},
	})
	require.NoError(t, err)
	require.True(t, dec("1748.50").Equal(q.GrandTotal), "grand total %s", q.GrandTotal)

	for _, status := range []quotations.Status{
		quotations.StatusPendingApproval,
		quotations.StatusApproved,
		quotations.StatusSent,
		quotations.StatusAccepted,
	} {
		q, err = s.quotations.ChangeStatus(s.ctx, q.ID, quotations.StatusRequest{Status: status})
		require.NoError(t, err)
	}
	return q
}

func (s *SalesWorkflowSuite) TestQuotationToPaidInvoice() {
	t := s.T()
	q := s.acceptedQuotation()

	order, err := s.quotations.ConvertToOrder(s.ctx, q.ID, quotations.ConvertRequest{})
	require.NoError(t, err)
	require.Equal(t, orders.StatusPending, order.Status)
	require.Equal(t, q.ID, order.QuotationID)
	require.True(t, q.GrandTotal.Equal(order.GrandTotal))
	require.Len(t, order.Lines, 2)

	converted, err := s.quotations.Get(s.ctx, q.ID)
	require.NoError(t, err)
	require.Equal(t, quotations.StatusConverted, converted.Status)
	require.Equal(t, order.ID, converted.ConvertedOrderID)

	_, err = s.quotations.ConvertToOrder(s.ctx, q.ID, quotations.ConvertRequest{})
	require.Error(t, err, "a converted quotation cannot be converted twice")

	inv, err := s.invoices.Create(s.ctx, invoices.CreateInvoiceRequest{OrderID: order.ID})
	require.NoError(t, err)
	require.Equal(t, order.CustomerID, inv.CustomerID)
	require.Equal(t, invoices.StatusDraft, inv.Status)
	require.True(t, order.GrandTotal.Equal(inv.GrandTotal))
	require.True(t, inv.InvoiceDate.AddDate(0, 0, 30).Equal(inv.DueDate))

	_, err = s.invoices.RecordPayment(s.ctx, inv.ID, invoices.PaymentRequest{Amount: dec("100"), Method: invoices.MethodCash})
	require.Error(t, err, "draft invoices do not accept payments")

	_, err = s.invoices.ChangeStatus(s.ctx, inv.ID, invoices.StatusRequest{Status: invoices.StatusIssued})
	require.NoError(t, err)

	inv, err = s.invoices.RecordPayment(s.ctx, inv.ID, invoices.PaymentRequest{Amount: dec("1000"), Method: invoices.MethodTransfer})
	require.NoError(t, err)
	require.Equal(t, salesshared.PaymentPartial, inv.PaymentStatus)
	require.True(t, dec("748.50").Equal(inv.BalanceAmount))

	order, err = s.orders.Get(s.ctx, order.ID)
	require.NoError(t, err)
	require.True(t, dec("1000").Equal(order.PaidAmount))
	require.Equal(t, salesshared.PaymentPartial, order.PaymentStatus)

	inv, err = s.invoices.RecordPayment(s.ctx, inv.ID, invoices.PaymentRequest{Amount: dec("748.50"), Method: invoices.MethodCash})
	require.NoError(t, err)
	require.Equal(t, salesshared.PaymentPaid, inv.PaymentStatus)
	require.Len(t, inv.Payments, 2)

	_, err = s.invoices.ChangeStatus(s.ctx, inv.ID, invoices.StatusRequest{Status: invoices.StatusCancelled})
	var appErr *shared.AppError
	require.True(t, errors.As(err, &appErr))
	require.Equal(t, "INVOICE_HAS_PAYMENTS", appErr.Code)
}

func (s *SalesWorkflowSuite) TestCancelledOrderCannotBeInvoiced() {
	t := s.T()
	q := s.acceptedQuotation()
	order, err := s.quotations.ConvertToOrder(s.ctx, q.ID, quotations.ConvertRequest{})
	require.NoError(t, err)

	_, err = s.orders.ChangeStatus(s.ctx, order.ID, orders.StatusRequest{Status: orders.StatusCancelled, Reason: "customer withdrew"})
	require.NoError(t, err)

	_, err = s.invoices.Create(s.ctx, invoices.CreateInvoiceRequest{OrderID: order.ID})
	var appErr *shared.AppError
	require.True(t, errors.As(err, &appErr))
	require.Equal(t, "ORDER_CANCELLED", appErr.Code)
}

func (s *SalesWorkflowSuite) TestOtherCompanyCannotSeeDocuments() {
	t := s.T()
	q := s.acceptedQuotation()
	other := shared.ContextWithTenant(context.Background(), shared.Tenant{CompanyID: 2, UserID: 9})
	_, err := s.quotations.Get(other, q.ID)
	var appErr *shared.AppError
	require.True(t, errors.As(err, &appErr))
	require.Equal(t, shared.KindNotFound, appErr.Kind)
}

func TestSalesWorkflowSuite(t *testing.T) {
	suite.Run(t, new(SalesWorkflowSuite))
}
