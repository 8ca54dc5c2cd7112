package visitors

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/factory-erp/internal/platform/db"
	"github.com/odyssey-erp/factory-erp/internal/shared"
)

type Repository interface {
	Get(ctx context.Context, companyID, id int64) (*Visitor, error)
	List(ctx context.Context, companyID int64, req ListVisitorsRequest, page shared.Page) ([]Visitor, int, error)
	Create(ctx context.Context, v Visitor) (int64, error)
	Update(ctx context.Context, v Visitor) error
	// UpdateStatus moves the visit only while it is still in from.
	UpdateStatus(ctx context.Context, v Visitor, from Status) error
	Stats(ctx context.Context, companyID int64, day time.Time) (Stats, error)
}

type repository struct {
	db db.DBTX
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool}
}

const visitorColumns = `id, company_id, visitor_number, name, phone, company, purpose, host_name, id_number,
	badge_number, expected_at, status, check_in_at, check_out_at, notes, created_by, created_at, updated_at`

func scanVisitor(row pgx.Row) (*Visitor, error) {
	var v Visitor
	var status string
	err := row.Scan(&v.ID, &v.CompanyID, &v.VisitorNumber, &v.Name, &v.Phone, &v.Company, &v.Purpose, &v.HostName,
		&v.IDNumber, &v.BadgeNumber, &v.ExpectedAt, &status, &v.CheckInAt, &v.CheckOutAt, &v.Notes, &v.CreatedBy,
		&v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	v.Status = Status(status)
	return &v, nil
}

func (r *repository) Get(ctx context.Context, companyID, id int64) (*Visitor, error) {
	return scanVisitor(r.db.QueryRow(ctx, `SELECT `+visitorColumns+` FROM visitors WHERE company_id=$1 AND id=$2`, companyID, id))
}

func (r *repository) List(ctx context.Context, companyID int64, req ListVisitorsRequest, page shared.Page) ([]Visitor, int, error) {
	conditions := []string{"company_id = $1"}
	args := []any{companyID}
	if req.Status != "" {
		args = append(args, string(req.Status))
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if req.Date != nil {
		args = append(args, req.Date.Format("2006-01-02"))
		conditions = append(conditions, fmt.Sprintf("COALESCE(check_in_at, expected_at, created_at)::date = $%d::date", len(args)))
	}
	if s := strings.TrimSpace(req.Search); s != "" {
		args = append(args, "%"+s+"%")
		n := len(args)
		conditions = append(conditions, fmt.Sprintf("(visitor_number ILIKE $%d OR name ILIKE $%d OR company ILIKE $%d OR host_name ILIKE $%d)", n, n, n, n))
	}
	where := strings.Join(conditions, " AND ")

	var total int
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM visitors WHERE "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count visitors: %w", err)
	}
	args = append(args, page.PerPage, page.Offset())
	rows, err := r.db.Query(ctx, fmt.Sprintf("SELECT %s FROM visitors WHERE %s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d",
		visitorColumns, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list visitors: %w", err)
	}
	defer rows.Close()

	var out []Visitor
	for rows.Next() {
		v, err := scanVisitor(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *v)
	}
	return out, total, rows.Err()
}

func (r *repository) Create(ctx context.Context, v Visitor) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `INSERT INTO visitors (company_id, visitor_number, name, phone, company, purpose, host_name,
	id_number, expected_at, status, notes, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12) RETURNING id`,
		v.CompanyID, v.VisitorNumber, v.Name, v.Phone, v.Company, v.Purpose, v.HostName, v.IDNumber, v.ExpectedAt,
		string(v.Status), v.Notes, v.CreatedBy).Scan(&id)
	if db.IsUniqueViolation(err) {
		return 0, shared.Conflict("visitor number already exists", err)
	}
	return id, err
}

func (r *repository) Update(ctx context.Context, v Visitor) error {
	tag, err := r.db.Exec(ctx, `UPDATE visitors SET name=$3, phone=$4, company=$5, purpose=$6, host_name=$7,
	expected_at=$8, notes=$9, updated_at=NOW()
WHERE company_id=$1 AND id=$2`,
		v.CompanyID, v.ID, v.Name, v.Phone, v.Company, v.Purpose, v.HostName, v.ExpectedAt, v.Notes)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) UpdateStatus(ctx context.Context, v Visitor, from Status) error {
	tag, err := r.db.Exec(ctx, `UPDATE visitors SET status=$4, badge_number=$5, check_in_at=$6, check_out_at=$7, updated_at=NOW()
WHERE company_id=$1 AND id=$2 AND status=$3`,
		v.CompanyID, v.ID, string(from), string(v.Status), v.BadgeNumber, v.CheckInAt, v.CheckOutAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.Conflict("visitor was modified concurrently", nil)
	}
	return nil
}

func (r *repository) Stats(ctx context.Context, companyID int64, day time.Time) (Stats, error) {
	stats := Stats{Date: day.Format("2006-01-02"), ByStatus: map[Status]int{}}
	rows, err := r.db.Query(ctx, `SELECT status, COUNT(*) FROM visitors
WHERE company_id=$1 AND COALESCE(check_in_at, expected_at, created_at)::date = $2::date
GROUP BY status`, companyID, stats.Date)
	if err != nil {
		return Stats{}, fmt.Errorf("visitor stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return Stats{}, err
		}
		stats.ByStatus[Status(status)] = n
	}
	if err := rows.Err(); err != nil {
		return Stats{}, err
	}
	stats.Expected = stats.ByStatus[StatusExpected]
	stats.OnSite = stats.ByStatus[StatusCheckedIn]
	stats.CheckedOut = stats.ByStatus[StatusCheckedOut]
	return stats, nil
}
