package orders

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/factory-erp/internal/sales/customers"
	salesshared "github.com/odyssey-erp/factory-erp/internal/sales/shared"
	"github.com/odyssey-erp/factory-erp/internal/shared"
)

// CustomerPort checks that a customer can receive new documents.
type CustomerPort interface {
	RequireActive(ctx context.Context, id int64) (*customers.Customer, error)
}

type Service struct {
	repo      Repository
	customers CustomerPort
	numbers   *shared.Numberer
	audit     shared.AuditPort
	logger    *slog.Logger
	now       func() time.Time
}

func NewService(repo Repository, customers CustomerPort, numbers *shared.Numberer, audit shared.AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:      repo,
		customers: customers,
		numbers:   numbers,
		audit:     audit,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) Create(ctx context.Context, req CreateOrderRequest) (*CustomerOrder, error) {
	companyID, err := shared.CompanyID(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := s.customers.RequireActive(ctx, req.CustomerID); err != nil {
		return nil, err
	}
	if err := salesshared.ValidateLines(req.Lines); err != nil {
		return nil, err
	}
	if req.ShippingCharges.IsNegative() {
		return nil, shared.Validation("shipping charges must be >= 0")
	}
	number, err := s.numbers.Daily(ctx, companyID, "SO")
	if err != nil {
		return nil, shared.Database("next order number", err)
	}
	orderDate := req.OrderDate
	if orderDate.IsZero() {
		orderDate = s.now()
	}
	order := CustomerOrder{
		CompanyID:        companyID,
		OrderNumber:      number,
		CustomerID:       req.CustomerID,
		QuotationID:      req.QuotationID,
		OrderDate:        orderDate,
		ExpectedDelivery: req.ExpectedDelivery,
		Status:           StatusPending,
		Lines:            append([]salesshared.Line(nil), req.Lines...),
		Notes:            req.Notes,
		CreatedBy:        shared.ActorID(ctx),
	}
	order.ShippingCharges = req.ShippingCharges
	order.Recompute()

	err = s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		id, err := repo.Create(ctx, order)
		if err != nil {
			return err
		}
		order.ID = id
		return repo.ReplaceLines(ctx, id, order.Lines)
	})
	if err != nil {
		return nil, mapError(err)
	}
	s.record(ctx, "customer_order:create", order.ID, map[string]any{"order_number": order.OrderNumber})
	return s.Get(ctx, order.ID)
}

func (s *Service) Update(ctx context.Context, id int64, req UpdateOrderRequest) (*CustomerOrder, error) {
	order, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if order.Status != StatusPending {
		return nil, shared.Business("ORDER_LOCKED", "only pending customer orders can be edited", nil)
	}
	if req.ExpectedDelivery != nil {
		order.ExpectedDelivery = req.ExpectedDelivery
	}
	if req.ShippingCharges != nil {
		if req.ShippingCharges.IsNegative() {
			return nil, shared.Validation("shipping charges must be >= 0")
		}
		order.ShippingCharges = *req.ShippingCharges
	}
	if req.Notes != nil {
		order.Notes = *req.Notes
	}
	if req.Lines != nil {
		if err := salesshared.ValidateLines(*req.Lines); err != nil {
			return nil, err
		}
		order.Lines = *req.Lines
	}
	order.Recompute()
	err = s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		if err := repo.Update(ctx, *order); err != nil {
			return err
		}
		if req.Lines != nil {
			return repo.ReplaceLines(ctx, id, order.Lines)
		}
		return nil
	})
	if err != nil {
		return nil, mapError(err)
	}
	s.record(ctx, "customer_order:update", id, nil)
	return s.Get(ctx, id)
}

func (s *Service) ChangeStatus(ctx context.Context, id int64, req StatusRequest) (*CustomerOrder, error) {
	order, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := Transitions.Check("customer order", order.Status, req.Status); err != nil {
		return nil, err
	}
	from := order.Status
	order.Status = req.Status
	if req.Status == StatusCancelled {
		order.CancelReason = strings.TrimSpace(req.Reason)
	}
	order.Recompute()
	if err := s.repo.Update(ctx, *order); err != nil {
		return nil, mapError(err)
	}
	s.record(ctx, "customer_order:status", id, map[string]any{"from": string(from), "to": string(req.Status)})
	return order, nil
}

// ApplyPayment adds amount to the paid total of an order. Negative amounts
// reverse earlier payments.
func (s *Service) ApplyPayment(ctx context.Context, id int64, amount decimal.Decimal) (*CustomerOrder, error) {
	order, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if order.Status == StatusCancelled {
		return nil, shared.Business("ORDER_CANCELLED", "customer order is cancelled", nil)
	}
	order.PaidAmount = decimal.Max(order.PaidAmount.Add(amount), decimal.Zero)
	order.Recompute()
	if err := s.repo.Update(ctx, *order); err != nil {
		return nil, mapError(err)
	}
	s.record(ctx, "customer_order:payment", id, map[string]any{"amount": amount.String()})
	return order, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*CustomerOrder, error) {
	companyID, err := shared.CompanyID(ctx)
	if err != nil {
		return nil, err
	}
	order, err := s.repo.Get(ctx, companyID, id)
	if err != nil {
		return nil, mapError(err)
	}
	return order, nil
}

func (s *Service) List(ctx context.Context, req ListOrdersRequest, page shared.Page) (shared.Paged[CustomerOrder], error) {
	companyID, err := shared.CompanyID(ctx)
	if err != nil {
		return shared.Paged[CustomerOrder]{}, err
	}
	items, total, err := s.repo.List(ctx, companyID, req, page)
	if err != nil {
		return shared.Paged[CustomerOrder]{}, mapError(err)
	}
	if items == nil {
		items = []CustomerOrder{}
	}
	return shared.Paged[CustomerOrder]{Items: items, Pagination: shared.NewPagination(page.Page, page.PerPage, total)}, nil
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
		Entity:    "customer_order",
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
		return shared.Missing("customer order", err)
	}
	return shared.Database("customer orders", err)
}
