package customers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/factory-erp/internal/platform/db"
	"github.com/odyssey-erp/factory-erp/internal/shared"
)

type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
	Get(ctx context.Context, companyID, id int64) (*Customer, error)
	GetByCode(ctx context.Context, companyID int64, code string) (*Customer, error)
	List(ctx context.Context, companyID int64, req ListCustomersRequest, page shared.Page) ([]Customer, int, error)
	Create(ctx context.Context, c Customer) (int64, error)
	Update(ctx context.Context, c Customer) error
	GenerateCode(ctx context.Context, companyID int64) (string, error)
}

type repository struct {
	db   db.DBTX
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool, pool: pool}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &repository{db: tx, pool: r.pool})
	})
}

const customerColumns = `id, company_id, code, name, email, phone, tax_id, credit_limit, payment_terms_days,
	address, city, country, is_active, notes, created_by, created_at, updated_at`

func scanCustomer(row pgx.Row) (*Customer, error) {
	var c Customer
	err := row.Scan(&c.ID, &c.CompanyID, &c.Code, &c.Name, &c.Email, &c.Phone, &c.TaxID, &c.CreditLimit,
		&c.PaymentTermsDays, &c.Address, &c.City, &c.Country, &c.IsActive, &c.Notes, &c.CreatedBy,
		&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (r *repository) Get(ctx context.Context, companyID, id int64) (*Customer, error) {
	return scanCustomer(r.db.QueryRow(ctx, `SELECT `+customerColumns+` FROM customers WHERE company_id=$1 AND id=$2`, companyID, id))
}

func (r *repository) GetByCode(ctx context.Context, companyID int64, code string) (*Customer, error) {
	return scanCustomer(r.db.QueryRow(ctx, `SELECT `+customerColumns+` FROM customers WHERE company_id=$1 AND code=$2`, companyID, code))
}

func (r *repository) List(ctx context.Context, companyID int64, req ListCustomersRequest, page shared.Page) ([]Customer, int, error) {
	conditions := []string{"company_id = $1"}
	args := []any{companyID}
	if req.IsActive != nil {
		args = append(args, *req.IsActive)
		conditions = append(conditions, fmt.Sprintf("is_active = $%d", len(args)))
	}
	if s := strings.TrimSpace(req.Search); s != "" {
		args = append(args, "%"+s+"%")
		conditions = append(conditions, fmt.Sprintf("(code ILIKE $%[1]d OR name ILIKE $%[1]d OR email ILIKE $%[1]d)", len(args)))
	}
	where := strings.Join(conditions, " AND ")

	var total int
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM customers WHERE "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count customers: %w", err)
	}
	args = append(args, page.PerPage, page.Offset())
	rows, err := r.db.Query(ctx, fmt.Sprintf("SELECT %s FROM customers WHERE %s ORDER BY name LIMIT $%d OFFSET $%d",
		customerColumns, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list customers: %w", err)
	}
	defer rows.Close()

	var out []Customer
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *c)
	}
	return out, total, rows.Err()
}

func (r *repository) Create(ctx context.Context, c Customer) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `INSERT INTO customers (company_id, code, name, email, phone, tax_id, credit_limit,
	payment_terms_days, address, city, country, is_active, notes, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14) RETURNING id`,
		c.CompanyID, c.Code, c.Name, c.Email, c.Phone, c.TaxID, c.CreditLimit, c.PaymentTermsDays,
		c.Address, c.City, c.Country, c.IsActive, c.Notes, c.CreatedBy).Scan(&id)
	if db.IsUniqueViolation(err) {
		return 0, ErrAlreadyExists
	}
	return id, err
}

func (r *repository) Update(ctx context.Context, c Customer) error {
	tag, err := r.db.Exec(ctx, `UPDATE customers SET name=$3, email=$4, phone=$5, tax_id=$6, credit_limit=$7,
	payment_terms_days=$8, address=$9, city=$10, country=$11, is_active=$12, notes=$13, updated_at=NOW()
WHERE company_id=$1 AND id=$2`,
		c.CompanyID, c.ID, c.Name, c.Email, c.Phone, c.TaxID, c.CreditLimit, c.PaymentTermsDays,
		c.Address, c.City, c.Country, c.IsActive, c.Notes)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// GenerateCode returns the next CUST-NNNN code for a company.
func (r *repository) GenerateCode(ctx context.Context, companyID int64) (string, error) {
	var next int
	err := r.db.QueryRow(ctx, `SELECT COALESCE(MAX(CAST(SUBSTRING(code FROM 6) AS INTEGER)), 0) + 1
FROM customers WHERE company_id=$1 AND code ~ '^CUST-[0-9]+$'`, companyID).Scan(&next)
	if err != nil {
		return "", fmt.Errorf("generate customer code: %w", err)
	}
	return fmt.Sprintf("CUST-%04d", next), nil
}
