package invoices

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/factory-erp/internal/sales/customers"
	"github.com/odyssey-erp/factory-erp/internal/sales/orders"
	salesshared "github.com/odyssey-erp/factory-erp/internal/sales/shared"
	"github.com/odyssey-erp/factory-erp/internal/shared"
)

type CustomerPort interface {
	RequireActive(ctx context.Context, id int64) (*customers.Customer, error)
}

// OrderPort reads customer orders and mirrors invoice payments onto them.
type OrderPort interface {
	Get(ctx context.Context, id int64) (*orders.CustomerOrder, error)
	ApplyPayment(ctx context.Context, id int64, amount decimal.Decimal) (*orders.CustomerOrder, error)
}

type Service struct {
	repo      Repository
	customers CustomerPort
	orders    OrderPort
	numbers   *shared.Numberer
	audit     shared.AuditPort
	logger    *slog.Logger
	now       func() time.Time
}

func NewService(repo Repository, customers CustomerPort, orders OrderPort, numbers *shared.Numberer, audit shared.AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:      repo,
		customers: customers,
		orders:    orders,
		numbers:   numbers,
		audit:     audit,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) Create(ctx context.Context, req CreateInvoiceRequest) (*Invoice, error) {
	companyID, err := shared.CompanyID(ctx)
	if err != nil {
		return nil, err
	}
	if req.ShippingCharges.IsNegative() {
		return nil, shared.Validation("shipping charges must be >= 0")
	}
	customerID := req.CustomerID
	lines := req.Lines
	if req.OrderID != 0 {
		if s.orders == nil {
			return nil, shared.Validation("invoicing from orders is not available")
		}
		order, err := s.orders.Get(ctx, req.OrderID)
		if err != nil {
			return nil, err
		}
		if order.Status == orders.StatusCancelled {
			return nil, shared.Business("ORDER_CANCELLED", "cannot invoice a cancelled customer order", nil)
		}
		if customerID != 0 && customerID != order.CustomerID {
			return nil, shared.Validation("customerId does not match the customer order")
		}
		customerID = order.CustomerID
		if len(lines) == 0 {
			lines = order.Lines
		}
	}
	if customerID == 0 {
		return nil, shared.Validation("customerId is required")
	}
	customer, err := s.customers.RequireActive(ctx, customerID)
	if err != nil {
		return nil, err
	}
	if err := salesshared.ValidateLines(lines); err != nil {
		return nil, err
	}

	invoiceDate := req.InvoiceDate
	if invoiceDate.IsZero() {
		invoiceDate = s.now()
	}
	dueDate := invoiceDate.AddDate(0, 0, customer.PaymentTermsDays)
	if req.DueDate != nil {
		if req.DueDate.Before(invoiceDate) {
			return nil, shared.Validation("dueDate cannot be before invoiceDate")
		}
		dueDate = *req.DueDate
	}
	number, err := s.numbers.Daily(ctx, companyID, "INV")
	if err != nil {
		return nil, shared.Database("next invoice number", err)
	}
	inv := Invoice{
		CompanyID:     companyID,
		InvoiceNumber: number,
		CustomerID:    customerID,
		OrderID:       req.OrderID,
		InvoiceDate:   invoiceDate,
		DueDate:       dueDate,
		Status:        StatusDraft,
		Lines:         append([]salesshared.Line(nil), lines...),
		Notes:         req.Notes,
		CreatedBy:     shared.ActorID(ctx),
	}
	inv.ShippingCharges = req.ShippingCharges
	inv.Recompute()

	err = s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		id, err := repo.Create(ctx, inv)
		if err != nil {
			return err
		}
		inv.ID = id
		return repo.ReplaceLines(ctx, id, inv.Lines)
	})
	if err != nil {
		return nil, mapError(err)
	}
	s.record(ctx, "invoice:create", inv.ID, map[string]any{"invoice_number": inv.InvoiceNumber, "order_id": inv.OrderID})
	return s.Get(ctx, inv.ID)
}

func (s *Service) ChangeStatus(ctx context.Context, id int64, req StatusRequest) (*Invoice, error) {
	inv, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := Transitions.Check("invoice", inv.Status, req.Status); err != nil {
		return nil, err
	}
	if req.Status == StatusCancelled && inv.PaidAmount.IsPositive() {
		return nil, shared.Business("INVOICE_HAS_PAYMENTS", "invoices with recorded payments cannot be cancelled", nil)
	}
	from := inv.Status
	inv.Status = req.Status
	if req.Status == StatusCancelled {
		inv.CancelReason = strings.TrimSpace(req.Reason)
	}
	inv.Recompute()
	if err := s.repo.Update(ctx, *inv); err != nil {
		return nil, mapError(err)
	}
	s.record(ctx, "invoice:status", id, map[string]any{"from": string(from), "to": string(req.Status)})
	return inv, nil
}

// RecordPayment books a payment against an issued invoice and recomputes
// its balance. Payments beyond the grand total are accepted and leave the
// invoice overpaid.
func (s *Service) RecordPayment(ctx context.Context, id int64, req PaymentRequest) (*Invoice, error) {
	companyID, err := shared.CompanyID(ctx)
	if err != nil {
		return nil, err
	}
	if !req.Amount.IsPositive() {
		return nil, shared.Validation("payment amount must be > 0")
	}
	paidAt := s.now()
	if req.PaidAt != nil {
		paidAt = *req.PaidAt
	}

	var updated *Invoice
	err = s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		inv, err := repo.GetForUpdate(ctx, companyID, id)
		if err != nil {
			return err
		}
		if inv.Status != StatusIssued {
			return shared.Business("INVOICE_NOT_ISSUED", "payments can only be recorded on issued invoices", nil)
		}
		payment := Payment{
			InvoiceID: id,
			Amount:    req.Amount.Round(2),
			Method:    req.Method,
			Reference: strings.TrimSpace(req.Reference),
			PaidAt:    paidAt,
			CreatedBy: shared.ActorID(ctx),
		}
		if payment.ID, err = repo.InsertPayment(ctx, payment); err != nil {
			return err
		}
		inv.PaidAmount = inv.PaidAmount.Add(payment.Amount)
		inv.Recompute()
		inv.Payments = append(inv.Payments, payment)
		updated = inv
		return repo.Update(ctx, *inv)
	})
	if err != nil {
		return nil, mapError(err)
	}
	s.record(ctx, "invoice:payment", id, map[string]any{
		"amount":         req.Amount.String(),
		"payment_status": string(updated.PaymentStatus),
	})

	if updated.OrderID != 0 && s.orders != nil {
		if _, err := s.orders.ApplyPayment(ctx, updated.OrderID, req.Amount.Round(2)); err != nil {
			s.logger.Warn("mirror invoice payment to order",
				slog.Int64("invoice_id", id),
				slog.Int64("order_id", updated.OrderID),
				slog.Any("error", err))
		}
	}
	return updated, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*Invoice, error) {
	companyID, err := shared.CompanyID(ctx)
	if err != nil {
		return nil, err
	}
	inv, err := s.repo.Get(ctx, companyID, id)
	if err != nil {
		return nil, mapError(err)
	}
	return inv, nil
}

func (s *Service) List(ctx context.Context, req ListInvoicesRequest, page shared.Page) (shared.Paged[Invoice], error) {
	companyID, err := shared.CompanyID(ctx)
	if err != nil {
		return shared.Paged[Invoice]{}, err
	}
	items, total, err := s.repo.List(ctx, companyID, req, page)
	if err != nil {
		return shared.Paged[Invoice]{}, mapError(err)
	}
	if items == nil {
		items = []Invoice{}
	}
	return shared.Paged[Invoice]{Items: items, Pagination: shared.NewPagination(page.Page, page.PerPage, total)}, nil
}

func (s *Service) Stats(ctx context.Context) (Stats, error) {
	companyID, err := shared.CompanyID(ctx)
	if err != nil {
		return Stats{}, err
	}
	stats, err := s.repo.Stats(ctx, companyID, s.now())
	if err != nil {
		return Stats{}, mapError(err)
	}
	if stats.ByPaymentStatus == nil {
		stats.ByPaymentStatus = map[salesshared.PaymentStatus]int{}
	}
	return stats, nil
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
		Entity:    "invoice",
		EntityID:  strconv.FormatInt(id, 10),
		Meta:      meta,
	}); err != nil {
		s.logger.Warn("audit record", slog.String("action", action), slog.Any("error", err))
	}
}

func mapError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := shared.AsAppError(err); ok {
		return err
	}
	if errors.Is(err, ErrNotFound) {
		return shared.Missing("invoice", err)
	}
	return shared.Database("invoices", err)
}
