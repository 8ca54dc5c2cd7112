package warehouses

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
	List(ctx context.Context, companyID int64, filters shared.ListFilters) ([]Warehouse, int, error)
	Get(ctx context.Context, companyID, id int64) (Warehouse, error)
	Create(ctx context.Context, warehouse Warehouse) (Warehouse, error)
	Update(ctx context.Context, warehouse Warehouse) error
	SetActive(ctx context.Context, companyID, id int64, active bool) error
}

type repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const warehouseColumns = `id, company_id, code, name, address, manager, is_active, created_at, updated_at`

var sortColumns = map[string]string{"code": "code", "name": "name", "created_at": "created_at"}

func scanWarehouse(row pgx.Row) (Warehouse, error) {
	var w Warehouse
	err := row.Scan(&w.ID, &w.CompanyID, &w.Code, &w.Name, &w.Address, &w.Manager, &w.IsActive, &w.CreatedAt, &w.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Warehouse{}, shared.ErrNotFound
	}
	return w, err
}

func (r *repository) List(ctx context.Context, companyID int64, filters shared.ListFilters) ([]Warehouse, int, error) {
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
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM warehouses`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	args = append(args, filters.Limit, filters.Offset())
	rows, err := r.pool.Query(ctx, `SELECT `+warehouseColumns+` FROM warehouses`+where+
		` ORDER BY `+shared.OrderBy(filters, sortColumns, "code")+
		` LIMIT $`+strconv.Itoa(len(args)-1)+` OFFSET $`+strconv.Itoa(len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Warehouse
	for rows.Next() {
		w, err := scanWarehouse(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, w)
	}
	return out, total, rows.Err()
}

func (r *repository) Get(ctx context.Context, companyID, id int64) (Warehouse, error) {
	return scanWarehouse(r.pool.QueryRow(ctx, `SELECT `+warehouseColumns+` FROM warehouses WHERE company_id = $1 AND id = $2`, companyID, id))
}

func (r *repository) Create(ctx context.Context, w Warehouse) (Warehouse, error) {
	err := r.pool.QueryRow(ctx, `INSERT INTO warehouses (company_id, code, name, address, manager, is_active)
VALUES ($1, $2, $3, $4, $5, TRUE) RETURNING id, is_active, created_at, updated_at`,
		w.CompanyID, w.Code, w.Name, w.Address, w.Manager).Scan(&w.ID, &w.IsActive, &w.CreatedAt, &w.UpdatedAt)
	if db.IsUniqueViolation(err) {
		return Warehouse{}, shared.ErrDuplicate
	}
	return w, err
}

func (r *repository) Update(ctx context.Context, w Warehouse) error {
	tag, err := r.pool.Exec(ctx, `UPDATE warehouses SET code = $3, name = $4, address = $5, manager = $6, updated_at = NOW()
WHERE company_id = $1 AND id = $2`, w.CompanyID, w.ID, w.Code, w.Name, w.Address, w.Manager)
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
	tag, err := r.pool.Exec(ctx, `UPDATE warehouses SET is_active = $3, updated_at = NOW() WHERE company_id = $1 AND id = $2`,
		companyID, id, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}
