package suppliers

import (
	"context"
	"errors"

	"github.com/odyssey-erp/factory-erp/internal/masterdata/shared"
	appshared "github.com/odyssey-erp/factory-erp/internal/shared"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) List(ctx context.Context, filters shared.ListFilters) ([]Supplier, int, error) {
	companyID, err := appshared.CompanyID(ctx)
	if err != nil {
		return nil, 0, err
	}
	items, total, err := s.repo.List(ctx, companyID, filters)
	if err != nil {
		return nil, 0, mapError(err)
	}
	if items == nil {
		items = []Supplier{}
	}
	return items, total, nil
}

func (s *Service) Get(ctx context.Context, id int64) (Supplier, error) {
	companyID, err := appshared.CompanyID(ctx)
	if err != nil {
		return Supplier{}, err
	}
	if id <= 0 {
		return Supplier{}, appshared.Validation("invalid supplier ID")
	}
	sup, err := s.repo.Get(ctx, companyID, id)
	if err != nil {
		return Supplier{}, mapError(err)
	}
	return sup, nil
}

// RequireActive returns the supplier when it exists and accepts new orders.
func (s *Service) RequireActive(ctx context.Context, id int64) (Supplier, error) {
	sup, err := s.Get(ctx, id)
	if err != nil {
		return Supplier{}, err
	}
	if !sup.IsActive {
		return Supplier{}, appshared.Business("SUPPLIER_INACTIVE", "supplier is inactive", shared.ErrInactive)
	}
	return sup, nil
}

func (s *Service) Create(ctx context.Context, supplier Supplier) (Supplier, error) {
	companyID, err := appshared.CompanyID(ctx)
	if err != nil {
		return Supplier{}, err
	}
	if err := s.validate(&supplier); err != nil {
		return Supplier{}, err
	}
	supplier.CompanyID = companyID
	created, err := s.repo.Create(ctx, supplier)
	if err != nil {
		return Supplier{}, mapError(err)
	}
	return created, nil
}

func (s *Service) Update(ctx context.Context, id int64, supplier Supplier) (Supplier, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return Supplier{}, err
	}
	if err := s.validate(&supplier); err != nil {
		return Supplier{}, err
	}
	supplier.ID = current.ID
	supplier.CompanyID = current.CompanyID
	if err := s.repo.Update(ctx, supplier); err != nil {
		return Supplier{}, mapError(err)
	}
	return s.Get(ctx, id)
}

func (s *Service) SetActive(ctx context.Context, id int64, active bool) error {
	companyID, err := appshared.CompanyID(ctx)
	if err != nil {
		return err
	}
	return mapError(s.repo.SetActive(ctx, companyID, id, active))
}

func mapError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, shared.ErrNotFound):
		return appshared.Missing("supplier", err)
	case errors.Is(err, shared.ErrDuplicate):
		return appshared.Conflict("supplier code already exists", err)
	}
	if _, ok := appshared.AsAppError(err); ok {
		return err
	}
	return appshared.Database("suppliers", err)
}
