package customers

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/odyssey-erp/factory-erp/internal/shared"
)

type Service struct {
	repo  Repository
	audit shared.AuditPort
}

func NewService(repo Repository, audit shared.AuditPort) *Service {
	return &Service{repo: repo, audit: audit}
}

func (s *Service) Create(ctx context.Context, req CreateCustomerRequest) (*Customer, error) {
	companyID, err := shared.CompanyID(ctx)
	if err != nil {
		return nil, err
	}
	if req.CreditLimit.IsNegative() {
		return nil, shared.Validation("credit limit must be >= 0")
	}
	code := strings.ToUpper(strings.TrimSpace(req.Code))
	if code == "" {
		if code, err = s.repo.GenerateCode(ctx, companyID); err != nil {
			return nil, shared.Database("generate customer code", err)
		}
	}
	country := req.Country
	if country == "" {
		country = "ID"
	}
	customer := Customer{
		CompanyID:        companyID,
		Code:             code,
		Name:             strings.TrimSpace(req.Name),
		Email:            req.Email,
		Phone:            req.Phone,
		TaxID:            req.TaxID,
		CreditLimit:      req.CreditLimit,
		PaymentTermsDays: req.PaymentTermsDays,
		Address:          req.Address,
		City:             req.City,
		Country:          strings.ToUpper(country),
		IsActive:         true,
		Notes:            req.Notes,
		CreatedBy:        shared.ActorID(ctx),
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		existing, err := repo.GetByCode(ctx, companyID, code)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
		if existing != nil {
			return ErrAlreadyExists
		}
		customer.ID, err = repo.Create(ctx, customer)
		return err
	})
	if err != nil {
		return nil, mapError(err)
	}
	s.record(ctx, "customer:create", customer.ID)
	return &customer, nil
}

func (s *Service) Update(ctx context.Context, id int64, req UpdateCustomerRequest) (*Customer, error) {
	existing, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	c := *existing
	if req.Name != nil {
		c.Name = strings.TrimSpace(*req.Name)
	}
	if req.Email != nil {
		c.Email = *req.Email
	}
	if req.Phone != nil {
		c.Phone = *req.Phone
	}
	if req.TaxID != nil {
		c.TaxID = *req.TaxID
	}
	if req.CreditLimit != nil {
		if req.CreditLimit.IsNegative() {
			return nil, shared.Validation("credit limit must be >= 0")
		}
		c.CreditLimit = *req.CreditLimit
	}
	if req.PaymentTermsDays != nil {
		c.PaymentTermsDays = *req.PaymentTermsDays
	}
	if req.Address != nil {
		c.Address = *req.Address
	}
	if req.City != nil {
		c.City = *req.City
	}
	if req.Country != nil {
		c.Country = strings.ToUpper(*req.Country)
	}
	if req.IsActive != nil {
		c.IsActive = *req.IsActive
	}
	if req.Notes != nil {
		c.Notes = *req.Notes
	}
	if err := s.repo.Update(ctx, c); err != nil {
		return nil, mapError(err)
	}
	s.record(ctx, "customer:update", id)
	return s.Get(ctx, id)
}

func (s *Service) Get(ctx context.Context, id int64) (*Customer, error) {
	companyID, err := shared.CompanyID(ctx)
	if err != nil {
		return nil, err
	}
	c, err := s.repo.Get(ctx, companyID, id)
	if err != nil {
		return nil, mapError(err)
	}
	return c, nil
}

// RequireActive returns the customer when it exists and is active.
func (s *Service) RequireActive(ctx context.Context, id int64) (*Customer, error) {
	c, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !c.IsActive {
		return nil, shared.Business("CUSTOMER_INACTIVE", "customer "+c.Code+" is inactive", nil)
	}
	return c, nil
}

func (s *Service) List(ctx context.Context, req ListCustomersRequest, page shared.Page) (shared.Paged[Customer], error) {
	companyID, err := shared.CompanyID(ctx)
	if err != nil {
		return shared.Paged[Customer]{}, err
	}
	items, total, err := s.repo.List(ctx, companyID, req, page)
	if err != nil {
		return shared.Paged[Customer]{}, mapError(err)
	}
	if items == nil {
		items = []Customer{}
	}
	return shared.Paged[Customer]{Items: items, Pagination: shared.NewPagination(page.Page, page.PerPage, total)}, nil
}

func (s *Service) record(ctx context.Context, action string, id int64) {
	if s.audit == nil {
		return
	}
	companyID, _ := shared.CompanyID(ctx)
	_ = s.audit.Record(ctx, shared.AuditLog{
		CompanyID: companyID,
		ActorID:   shared.ActorID(ctx),
		Action:    action,
		Entity:    "customer",
		EntityID:  strconv.FormatInt(id, 10),
	})
}

func mapError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound):
		return shared.Missing("customer", err)
	case errors.Is(err, ErrAlreadyExists):
		return shared.Conflict("customer code already exists", err)
	}
	if _, ok := shared.AsAppError(err); ok {
		return err
	}
	return shared.Database("customers", err)
}
