package suppliers

import (
	"context"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/factory-erp/internal/masterdata/shared"
	"github.com/odyssey-erp/factory-erp/internal/platform/db"
)

type Repository interface {
	List(ctx context.Context, companyID int64, filters shared.ListFilters) ([]Supplier, int, error)
	Get(ctx context.Context, companyID, id int64) (Supplier, error)
	Create(ctx context.Context, supplier Supplier) (Supplier, error)
	Update(ctx context.Context, supplier Supplier) error
	SetActive(ctx context.Context, companyID, id int64, active bool) error
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const supplierColumns = `id, company_id, code, name, contact_person, address, email, phone, tax_id, payment_terms_days,
	is_active, created_at, updated_at`

var sortColumns = map[string]string{"code": "code", "name": "name", "created_at": "created_at"}

func scanSupplier(row pgx.Row) (Supplier, error) {
	var s Supplier
	err := row.Scan(&s.ID, &s.CompanyID, &s.Code, &s.Name, &s.ContactPerson, &s.Address, &s.Email, &s.Phone,
		&s.TaxID, &s.PaymentTermsDays, &s.IsActive, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Supplier{}, shared.ErrNotFound
	}
	return s, err
}

func (r *repository) List(ctx context.Context, companyID int64, filters shared.ListFilters) ([]Supplier, int, error) {
	where := ` WHERE company_id = $1`
	args := []interface{}{companyID}
	if filters.Search != "" {
		args = append(args, "%"+filters.Search+"%")
		n := strconv.Itoa(len(args))
		where += ` AND (name ILIKE $` + n + ` OR code ILIKE $` + n + `)`
	}
	if filters.IsActive != nil {
		args = append(args, *filters.IsActive)
		where += ` AND is_active = $` + strconv.Itoa(len(args))
	}

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM suppliers`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + supplierColumns + ` FROM suppliers` + where + ` ORDER BY ` + shared.OrderBy(filters, sortColumns, "name")
	args = append(args, filters.Limit, filters.Offset())
	query += ` LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var suppliers []Supplier
	for rows.Next() {
		s, err := scanSupplier(rows)
		if err != nil {
			return nil, 0, err
		}
		suppliers = append(suppliers, s)
	}
	return suppliers, total, rows.Err()
}

func (r *repository) Get(ctx context.Context, companyID, id int64) (Supplier, error) {
	return scanSupplier(r.db.QueryRow(ctx, `SELECT `+supplierColumns+` FROM suppliers WHERE company_id = $1 AND id = $2`, companyID, id))
}

func (r *repository) Create(ctx context.Context, s Supplier) (Supplier, error) {
	err := r.db.QueryRow(ctx, `INSERT INTO suppliers (company_id, code, name, contact_person, address, email, phone, tax_id,
	payment_terms_days, is_active)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, TRUE) RETURNING id, is_active, created_at, updated_at`,
		s.CompanyID, s.Code, s.Name, s.ContactPerson, s.Address, s.Email, s.Phone, s.TaxID, s.PaymentTermsDays).
		Scan(&s.ID, &s.IsActive, &s.CreatedAt, &s.UpdatedAt)
	if db.IsUniqueViolation(err) {
		return Supplier{}, shared.ErrDuplicate
	}
	return s, err
}

func (r *repository) Update(ctx context.Context, s Supplier) error {
	tag, err := r.db.Exec(ctx, `UPDATE suppliers SET code = $3, name = $4, contact_person = $5, address = $6, email = $7,
	phone = $8, tax_id = $9, payment_terms_days = $10, updated_at = NOW()
WHERE company_id = $1 AND id = $2`,
		s.CompanyID, s.ID, s.Code, s.Name, s.ContactPerson, s.Address, s.Email, s.Phone, s.TaxID, s.PaymentTermsDays)
	if db.IsUniqueViolation(err) {
		return shared.ErrDuplicate
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *repository) SetActive(ctx context.Context, companyID, id int64, active bool) error {
	tag, err := r.db.Exec(ctx, `UPDATE suppliers SET is_active = $3, updated_at = NOW() WHERE company_id = $1 AND id = $2`,
		companyID, id, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}
