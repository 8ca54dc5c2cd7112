package visitors

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/odyssey-erp/factory-erp/internal/shared"
)

type Service struct {
	repo    Repository
	numbers *shared.Numberer
	audit   shared.AuditPort
	logger  *slog.Logger
	now     func() time.Time
}

func NewService(repo Repository, numbers *shared.Numberer, audit shared.AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:    repo,
		numbers: numbers,
		audit:   audit,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Register books an expected visit and assigns its VIS number.
func (s *Service) Register(ctx context.Context, req CreateVisitorRequest) (*Visitor, error) {
	companyID, err := shared.CompanyID(ctx)
	if err != nil {
		return nil, err
	}
	v := Visitor{
		CompanyID:  companyID,
		Name:       strings.TrimSpace(req.Name),
		Phone:      strings.TrimSpace(req.Phone),
		Company:    strings.TrimSpace(req.Company),
		Purpose:    strings.TrimSpace(req.Purpose),
		HostName:   strings.TrimSpace(req.HostName),
		IDNumber:   strings.TrimSpace(req.IDNumber),
		ExpectedAt: req.ExpectedAt,
		Status:     StatusExpected,
		Notes:      req.Notes,
		CreatedBy:  shared.ActorID(ctx),
	}
	if v.Name == "" || v.Purpose == "" || v.HostName == "" {
		return nil, shared.Validation("name, purpose and hostName are required")
	}
	if v.VisitorNumber, err = s.numbers.Daily(ctx, companyID, "VIS"); err != nil {
		return nil, shared.Database("next visitor number", err)
	}
	if v.ID, err = s.repo.Create(ctx, v); err != nil {
		return nil, mapError(err)
	}
	s.record(ctx, "visitor:register", v.ID, map[string]any{"visitor_number": v.VisitorNumber, "host": v.HostName})
	return s.Get(ctx, v.ID)
}

// Update edits a visit that has not started yet.
func (s *Service) Update(ctx context.Context, id int64, req UpdateVisitorRequest) (*Visitor, error) {
	v, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if v.Status != StatusExpected {
		return nil, shared.Business("VISITOR_LOCKED", "only expected visits can be edited", nil)
	}
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = strings.TrimSpace(*src)
		}
	}
	set(&v.Name, req.Name)
	set(&v.Phone, req.Phone)
	set(&v.Company, req.Company)
	set(&v.Purpose, req.Purpose)
	set(&v.HostName, req.HostName)
	if req.Notes != nil {
		v.Notes = *req.Notes
	}
	if req.ExpectedAt != nil {
		v.ExpectedAt = req.ExpectedAt
	}
	if v.Name == "" || v.Purpose == "" || v.HostName == "" {
		return nil, shared.Validation("name, purpose and hostName cannot be blank")
	}
	if err := s.repo.Update(ctx, *v); err != nil {
		return nil, mapError(err)
	}
	s.record(ctx, "visitor:update", id, nil)
	return v, nil
}

func (s *Service) CheckIn(ctx context.Context, id int64, req CheckInRequest) (*Visitor, error) {
	return s.move(ctx, id, StatusCheckedIn, func(v *Visitor, at time.Time) {
		v.CheckInAt = &at
		v.BadgeNumber = strings.TrimSpace(req.BadgeNumber)
	})
}

func (s *Service) CheckOut(ctx context.Context, id int64) (*Visitor, error) {
	return s.move(ctx, id, StatusCheckedOut, func(v *Visitor, at time.Time) {
		v.CheckOutAt = &at
	})
}

func (s *Service) Cancel(ctx context.Context, id int64) (*Visitor, error) {
	return s.move(ctx, id, StatusCancelled, func(*Visitor, time.Time) {})
}

func (s *Service) move(ctx context.Context, id int64, to Status, apply func(*Visitor, time.Time)) (*Visitor, error) {
	v, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := Transitions.Check("visitor", v.Status, to); err != nil {
		return nil, err
	}
	from := v.Status
	v.Status = to
	apply(v, s.now())
	if err := s.repo.UpdateStatus(ctx, *v, from); err != nil {
		return nil, mapError(err)
	}
	s.record(ctx, "visitor:"+string(to), id, map[string]any{"from": string(from)})
	return v, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*Visitor, error) {
	companyID, err := shared.CompanyID(ctx)
	if err != nil {
		return nil, err
	}
	v, err := s.repo.Get(ctx, companyID, id)
	if err != nil {
		return nil, mapError(err)
	}
	return v, nil
}

func (s *Service) List(ctx context.Context, req ListVisitorsRequest, page shared.Page) (shared.Paged[Visitor], error) {
	companyID, err := shared.CompanyID(ctx)
	if err != nil {
		return shared.Paged[Visitor]{}, err
	}
	items, total, err := s.repo.List(ctx, companyID, req, page)
	if err != nil {
		return shared.Paged[Visitor]{}, mapError(err)
	}
	if items == nil {
		items = []Visitor{}
	}
	return shared.Paged[Visitor]{Items: items, Pagination: shared.NewPagination(page.Page, page.PerPage, total)}, nil
}

// Stats counts the visits of day, defaulting to today.
func (s *Service) Stats(ctx context.Context, day *time.Time) (Stats, error) {
	companyID, err := shared.CompanyID(ctx)
	if err != nil {
		return Stats{}, err
	}
	target := s.now()
	if day != nil {
		target = *day
	}
	stats, err := s.repo.Stats(ctx, companyID, target)
	if err != nil {
		return Stats{}, mapError(err)
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
		Entity:    "visitor",
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
		return shared.Missing("visitor", err)
	}
	return shared.Database("visitors", err)
}
