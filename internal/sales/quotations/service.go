package quotations

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/odyssey-erp/factory-erp/internal/sales/customers"
	"github.com/odyssey-erp/factory-erp/internal/sales/orders"
	salesshared "github.com/odyssey-erp/factory-erp/internal/sales/shared"
	"github.com/odyssey-erp/factory-erp/internal/shared"
)

type CustomerPort interface {
	RequireActive(ctx context.Context, id int64) (*customers.Customer, error)
}

// OrderPort creates and cancels the customer orders produced by conversion.
type OrderPort interface {
	Create(ctx context.Context, req orders.CreateOrderRequest) (*orders.CustomerOrder, error)
	ChangeStatus(ctx context.Context, id int64, req orders.StatusRequest) (*orders.CustomerOrder, error)
}

type Service struct {
	repo      Repository
	customers CustomerPort
	orders    OrderPort
	numbers   *shared.Numberer
	approvals shared.ApprovalPort
	audit     shared.AuditPort
	logger    *slog.Logger
	now       func() time.Time
}

func NewService(repo Repository, customers CustomerPort, orders OrderPort, numbers *shared.Numberer,
	approvals shared.ApprovalPort, audit shared.AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:      repo,
		customers: customers,
		orders:    orders,
		numbers:   numbers,
		approvals: approvals,
		audit:     audit,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) Create(ctx context.Context, req CreateQuotationRequest) (*Quotation, error) {
	companyID, err := shared.CompanyID(ctx)
	if err != nil {
		return nil, err
	}
	quoteDate := req.QuoteDate
	if quoteDate.IsZero() {
		quoteDate = s.now()
	}
	if req.ValidUntil.Before(quoteDate) {
		return nil, shared.Validation("validUntil must not be before quoteDate")
	}
	if req.ShippingCharges.IsNegative() {
		return nil, shared.Validation("shipping charges must be >= 0")
	}
	if err := salesshared.ValidateLines(req.Lines); err != nil {
		return nil, err
	}
	if _, err := s.customers.RequireActive(ctx, req.CustomerID); err != nil {
		return nil, err
	}
	number, err := s.numbers.Daily(ctx, companyID, "QT")
	if err != nil {
		return nil, shared.Database("next quotation number", err)
	}

	quotation := Quotation{
		CompanyID:       companyID,
		QuotationNumber: number,
		CustomerID:      req.CustomerID,
		QuoteDate:       quoteDate,
		ValidUntil:      req.ValidUntil,
		Status:          StatusDraft,
		Lines:           append([]salesshared.Line(nil), req.Lines...),
		Notes:           req.Notes,
		CreatedBy:       shared.ActorID(ctx),
	}
	quotation.ShippingCharges = req.ShippingCharges
	quotation.Recompute()

	err = s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		id, err := repo.Create(ctx, quotation)
		if err != nil {
			return err
		}
		quotation.ID = id
		return repo.ReplaceLines(ctx, id, quotation.Lines)
	})
	if err != nil {
		return nil, mapError(err)
	}
	s.record(ctx, "quotation:create", quotation.ID, map[string]any{"quotation_number": number})
	return s.Get(ctx, quotation.ID)
}

func (s *Service) Update(ctx context.Context, id int64, req UpdateQuotationRequest) (*Quotation, error) {
	q, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if q.Status != StatusDraft {
		return nil, shared.Business("QUOTATION_LOCKED", "only draft quotations can be edited", nil)
	}
	if req.ValidUntil != nil {
		if req.ValidUntil.Before(q.QuoteDate) {
			return nil, shared.Validation("validUntil must not be before quoteDate")
		}
		q.ValidUntil = *req.ValidUntil
	}
	if req.ShippingCharges != nil {
		if req.ShippingCharges.IsNegative() {
			return nil, shared.Validation("shipping charges must be >= 0")
		}
		q.ShippingCharges = *req.ShippingCharges
	}
	if req.Notes != nil {
		q.Notes = *req.Notes
	}
	if req.Lines != nil {
		if err := salesshared.ValidateLines(*req.Lines); err != nil {
			return nil, err
		}
		q.Lines = *req.Lines
	}
	q.Recompute()

	err = s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		if err := repo.Update(ctx, *q); err != nil {
			return err
		}
		if req.Lines != nil {
			return repo.ReplaceLines(ctx, id, q.Lines)
		}
		return nil
	})
	if err != nil {
		return nil, mapError(err)
	}
	s.record(ctx, "quotation:update", id, nil)
	return s.Get(ctx, id)
}

func (s *Service) ChangeStatus(ctx context.Context, id int64, req StatusRequest) (*Quotation, error) {
	q, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := Transitions.Check("quotation", q.Status, req.Status); err != nil {
		return nil, err
	}
	if (req.Status == StatusSent || req.Status == StatusAccepted) && s.now().After(q.ValidUntil) {
		return nil, shared.Business("QUOTATION_EXPIRED", "quotation validity has passed", ErrExpired)
	}
	from := q.Status
	q.Status = req.Status
	switch req.Status {
	case StatusApproved:
		q.ApprovedBy = shared.ActorID(ctx)
	case StatusRejected:
		q.RejectReason = strings.TrimSpace(req.Reason)
	case StatusDraft:
		q.RejectReason = ""
	}
	if err := s.repo.Update(ctx, *q); err != nil {
		return nil, mapError(err)
	}
	s.recordApproval(ctx, q, req)
	s.record(ctx, "quotation:status", id, map[string]any{"from": string(from), "to": string(req.Status)})
	return q, nil
}

func (s *Service) recordApproval(ctx context.Context, q *Quotation, req StatusRequest) {
	var action shared.ApprovalAction
	switch req.Status {
	case StatusPendingApproval:
		action = shared.ApprovalSubmit
	case StatusApproved:
		action = shared.ApprovalApprove
	case StatusRejected:
		action = shared.ApprovalReject
	default:
		return
	}
	if s.approvals == nil {
		return
	}
	err := s.approvals.Record(ctx, shared.ApprovalLog{
		CompanyID: q.CompanyID,
		Module:    "quotations",
		RefID:     q.ID,
		ActorID:   shared.ActorID(ctx),
		Action:    action,
		Note:      req.Reason,
	})
	if err != nil {
		s.logger.Warn("record quotation approval", slog.Int64("quotation_id", q.ID), slog.Any("error", err))
	}
}

// ConvertToOrder turns an accepted quotation into a pending customer order.
// If the quotation cannot be marked converted afterwards, the order is cancelled.
func (s *Service) ConvertToOrder(ctx context.Context, id int64, req ConvertRequest) (*orders.CustomerOrder, error) {
	q, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if q.Status != StatusAccepted {
		return nil, shared.BadTransition("quotation", string(q.Status), string(StatusConverted))
	}
	notes := req.Notes
	if notes == "" {
		notes = "Converted from " + q.QuotationNumber
	}
	order, err := s.orders.Create(ctx, orders.CreateOrderRequest{
		CustomerID:       q.CustomerID,
		QuotationID:      q.ID,
		ExpectedDelivery: req.ExpectedDelivery,
		ShippingCharges:  q.ShippingCharges,
		Notes:            notes,
		Lines:            q.Lines,
	})
	if err != nil {
		return nil, err
	}
	q.Status = StatusConverted
	q.ConvertedOrderID = order.ID
	if err := s.repo.Update(ctx, *q); err != nil {
		if _, cancelErr := s.orders.ChangeStatus(context.WithoutCancel(ctx), order.ID, orders.StatusRequest{
			Status: orders.StatusCancelled,
			Reason: "quotation conversion failed",
		}); cancelErr != nil {
			s.logger.Error("cancel orphaned order", slog.Int64("order_id", order.ID), slog.Any("error", cancelErr))
		}
		return nil, mapError(err)
	}
	s.record(ctx, "quotation:convert", id, map[string]any{"order_id": order.ID, "order_number": order.OrderNumber})
	return order, nil
}

// ExpireDue expires approved and sent quotations past their validity for
// every company. It returns the affected quotations.
func (s *Service) ExpireDue(ctx context.Context) ([]ExpiredRef, error) {
	refs, err := s.repo.ExpireDue(ctx, s.now())
	if err != nil {
		return nil, mapError(err)
	}
	for _, ref := range refs {
		s.record(shared.ContextWithTenant(ctx, shared.Tenant{CompanyID: ref.CompanyID}), "quotation:expire", ref.ID,
			map[string]any{"quotation_number": ref.QuotationNumber})
	}
	return refs, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*Quotation, error) {
	companyID, err := shared.CompanyID(ctx)
	if err != nil {
		return nil, err
	}
	q, err := s.repo.Get(ctx, companyID, id)
	if err != nil {
		return nil, mapError(err)
	}
	return q, nil
}

func (s *Service) List(ctx context.Context, req ListQuotationsRequest, page shared.Page) (shared.Paged[Quotation], error) {
	companyID, err := shared.CompanyID(ctx)
	if err != nil {
		return shared.Paged[Quotation]{}, err
	}
	items, total, err := s.repo.List(ctx, companyID, req, page)
	if err != nil {
		return shared.Paged[Quotation]{}, mapError(err)
	}
	if items == nil {
		items = []Quotation{}
	}
	return shared.Paged[Quotation]{Items: items, Pagination: shared.NewPagination(page.Page, page.PerPage, total)}, nil
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
		Entity:    "quotation",
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
		return shared.Missing("quotation", err)
	}
	return shared.Database("quotations", err)
}
