package warehouses

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

func (s *Service) List(ctx context.Context, filters shared.ListFilters) ([]Warehouse, int, error) {
	companyID, err := appshared.CompanyID(ctx)
	if err != nil {
		return nil, 0, err
	}
	items, total, err := s.repo.List(ctx, companyID, filters)
	if err != nil {
		return nil, 0, mapError(err)
	}
	if items == nil {
		items = []Warehouse{}
	}
	return items, total, nil
}

func (s *Service) Get(ctx context.Context, id int64) (Warehouse, error) {
	companyID, err := appshared.CompanyID(ctx)
	if err != nil {
		return Warehouse{}, err
	}
	if id <= 0 {
		return Warehouse{}, appshared.Validation("invalid warehouse ID")
	}
	w, err := s.repo.Get(ctx, companyID, id)
	if err != nil {
		return Warehouse{}, mapError(err)
	}
	return w, nil
}

// RequireActive returns the warehouse when it exists and can receive stock.
func (s *Service) RequireActive(ctx context.Context, id int64) (Warehouse, error) {
	w, err := s.Get(ctx, id)
	if err != nil {
		return Warehouse{}, err
	}
	if !w.IsActive {
		return Warehouse{}, appshared.Business("WAREHOUSE_INACTIVE", "warehouse is inactive", shared.ErrInactive)
	}
	return w, nil
}

func (s *Service) Create(ctx context.Context, w Warehouse) (Warehouse, error) {
	companyID, err := appshared.CompanyID(ctx)
	if err != nil {
		return Warehouse{}, err
	}
	if err := s.validate(&w); err != nil {
		return Warehouse{}, err
	}
	w.CompanyID = companyID
	created, err := s.repo.Create(ctx, w)
	if err != nil {
		return Warehouse{}, mapError(err)
	}
	return created, nil
}

func (s *Service) Update(ctx context.Context, id int64, w Warehouse) (Warehouse, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return Warehouse{}, err
	}
	if err := s.validate(&w); err != nil {
		return Warehouse{}, err
	}
	w.ID = current.ID
	w.CompanyID = current.CompanyID
	if err := s.repo.Update(ctx, w); err != nil {
		return Warehouse{}, mapError(err)
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
		return appshared.Missing("warehouse", err)
	case errors.Is(err, shared.ErrDuplicate):
		return appshared.Conflict("warehouse code already exists", err)
	}
	if _, ok := appshared.AsAppError(err); ok {
		return err
	}
	return appshared.Database("warehouses", err)
}
