package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/factory-erp/internal/platform/db"
	"github.com/odyssey-erp/factory-erp/internal/shared"
)

// Repository persists inventory data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes the row-locked operations used when posting movements.
type TxRepository interface {
	GetItemForUpdate(ctx context.Context, companyID, id int64) (Item, error)
	SaveStock(ctx context.Context, item Item) error
	InsertMovement(ctx context.Context, m Movement) (Movement, error)
}

type txRepo struct {
	tx pgx.Tx
}

const itemColumns = `id, company_id, item_code, name, description, category, unit, warehouse_id,
	current_stock, reserved_stock, available_stock, in_transit_stock, damaged_stock, reorder_level,
	average_cost, total_value, is_active, created_by, created_at, updated_at`

const movementColumns = `id, company_id, movement_number, item_id, movement_type, quantity, rate, total_value,
	stock_before, stock_after, average_cost_before, average_cost_after, warehouse_id, COALESCE(to_warehouse_id, 0),
	reference_type, reference_id, reference_number, remarks, approval_status, COALESCE(approved_by, 0), approved_at,
	created_by, created_at`

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

// CreateItem inserts a new item.
func (r *Repository) CreateItem(ctx context.Context, item Item) (Item, error) {
	row := r.pool.QueryRow(ctx, `INSERT INTO inventory_items (company_id, item_code, name, description, category, unit,
	warehouse_id, current_stock, reserved_stock, available_stock, in_transit_stock, damaged_stock, reorder_level,
	average_cost, total_value, is_active, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
RETURNING `+itemColumns,
		item.CompanyID, item.ItemCode, item.Name, item.Description, item.Category, item.Unit,
		item.WarehouseID, item.CurrentStock, item.ReservedStock, item.AvailableStock, item.InTransitStock,
		item.DamagedStock, item.ReorderLevel, item.AverageCost, item.TotalValue, item.IsActive, item.CreatedBy)
	created, err := scanItem(row)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return Item{}, ErrDuplicateCode
		}
		return Item{}, err
	}
	return created, nil
}

// GetItem loads an item of the company.
func (r *Repository) GetItem(ctx context.Context, companyID, id int64) (Item, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+itemColumns+` FROM inventory_items WHERE company_id=$1 AND id=$2`, companyID, id)
	item, err := scanItem(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Item{}, ErrItemNotFound
	}
	return item, err
}

// UpdateItem persists descriptive fields.
func (r *Repository) UpdateItem(ctx context.Context, item Item) (Item, error) {
	row := r.pool.QueryRow(ctx, `UPDATE inventory_items SET name=$3, description=$4, category=$5, unit=$6,
	warehouse_id=$7, reorder_level=$8, is_active=$9, updated_at=NOW()
WHERE company_id=$1 AND id=$2
RETURNING `+itemColumns,
		item.CompanyID, item.ID, item.Name, item.Description, item.Category, item.Unit,
		item.WarehouseID, item.ReorderLevel, item.IsActive)
	updated, err := scanItem(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Item{}, ErrItemNotFound
	}
	return updated, err
}

// ListItems returns a page of items and the total count.
func (r *Repository) ListItems(ctx context.Context, companyID int64, filter ListFilter, page shared.Page) ([]Item, int, error) {
	where, args := listWhere(companyID, filter)
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM inventory_items WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	args = append(args, page.PerPage, page.Offset())
	query := fmt.Sprintf(`SELECT %s FROM inventory_items WHERE %s ORDER BY item_code LIMIT $%d OFFSET $%d`,
		itemColumns, where, len(args)-1, len(args))
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, item)
	}
	return items, total, rows.Err()
}

func listWhere(companyID int64, filter ListFilter) (string, []any) {
	clauses := []string{"company_id = $1"}
	args := []any{companyID}
	add := func(clause string, arg any) {
		args = append(args, arg)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}
	if s := strings.TrimSpace(filter.Search); s != "" {
		add("(item_code ILIKE $%[1]d OR name ILIKE $%[1]d)", "%"+s+"%")
	}
	if filter.Category != "" {
		add("category = $%d", filter.Category)
	}
	if filter.WarehouseID != 0 {
		add("warehouse_id = $%d", filter.WarehouseID)
	}
	if filter.Active != nil {
		add("is_active = $%d", *filter.Active)
	}
	if filter.LowStock {
		clauses = append(clauses, "reorder_level > 0 AND current_stock <= reorder_level")
	}
	return strings.Join(clauses, " AND "), args
}

// Reserve increments reserved stock only when enough is available. The
// condition and the increment run as one statement.
func (r *Repository) Reserve(ctx context.Context, companyID, id int64, qty decimal.Decimal) (Item, error) {
	row := r.pool.QueryRow(ctx, `UPDATE inventory_items
SET reserved_stock = reserved_stock + $3,
	available_stock = GREATEST(current_stock - (reserved_stock + $3), 0),
	updated_at = NOW()
WHERE company_id=$1 AND id=$2 AND is_active AND current_stock - reserved_stock >= $3
RETURNING `+itemColumns, companyID, id, qty)
	item, err := scanItem(row)
	if errors.Is(err, pgx.ErrNoRows) {
		existing, getErr := r.GetItem(ctx, companyID, id)
		if getErr != nil {
			return Item{}, getErr
		}
		if !existing.IsActive {
			return existing, ErrItemInactive
		}
		return existing, ErrInsufficientStock
	}
	return item, err
}

// Release decrements reserved stock, floored at zero.
func (r *Repository) Release(ctx context.Context, companyID, id int64, qty decimal.Decimal) (Item, error) {
	row := r.pool.QueryRow(ctx, `UPDATE inventory_items
SET reserved_stock = GREATEST(reserved_stock - $3, 0),
	available_stock = GREATEST(current_stock - GREATEST(reserved_stock - $3, 0), 0),
	updated_at = NOW()
WHERE company_id=$1 AND id=$2
RETURNING `+itemColumns, companyID, id, qty)
	item, err := scanItem(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Item{}, ErrItemNotFound
	}
	return item, err
}

// ListMovements returns an item's ledger, newest first.
func (r *Repository) ListMovements(ctx context.Context, companyID, itemID int64, page shared.Page) ([]Movement, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM stock_movements WHERE company_id=$1 AND item_id=$2`,
		companyID, itemID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `SELECT `+movementColumns+` FROM stock_movements
WHERE company_id=$1 AND item_id=$2 ORDER BY created_at DESC, id DESC LIMIT $3 OFFSET $4`,
		companyID, itemID, page.PerPage, page.Offset())
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Movement
	for rows.Next() {
		m, err := scanMovement(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, m)
	}
	return out, total, rows.Err()
}

// GetMovement loads a movement.
func (r *Repository) GetMovement(ctx context.Context, companyID, id int64) (Movement, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+movementColumns+` FROM stock_movements WHERE company_id=$1 AND id=$2`, companyID, id)
	m, err := scanMovement(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Movement{}, ErrMovementNotFound
	}
	return m, err
}

// SetMovementApproval records the review outcome of a pending movement.
func (r *Repository) SetMovementApproval(ctx context.Context, companyID, id int64, status ApprovalStatus, actorID int64, at time.Time) (Movement, error) {
	row := r.pool.QueryRow(ctx, `UPDATE stock_movements SET approval_status=$3, approved_by=$4, approved_at=$5
WHERE company_id=$1 AND id=$2
RETURNING `+movementColumns, companyID, id, string(status), actorID, at)
	m, err := scanMovement(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Movement{}, ErrMovementNotFound
	}
	return m, err
}

// Stats aggregates inventory figures for the company.
func (r *Repository) Stats(ctx context.Context, companyID int64) (Stats, error) {
	var stats Stats
	err := r.pool.QueryRow(ctx, `SELECT
	COUNT(*),
	COUNT(*) FILTER (WHERE is_active),
	COALESCE(SUM(total_value) FILTER (WHERE is_active), 0),
	COUNT(*) FILTER (WHERE is_active AND reorder_level > 0 AND current_stock <= reorder_level),
	COUNT(*) FILTER (WHERE is_active AND current_stock <= 0),
	COALESCE(SUM(reserved_stock * average_cost) FILTER (WHERE is_active), 0)
FROM inventory_items WHERE company_id=$1`, companyID).Scan(
		&stats.TotalItems, &stats.ActiveItems, &stats.TotalValue, &stats.LowStockItems,
		&stats.OutOfStockItems, &stats.ReservedValue)
	if err != nil {
		return Stats{}, err
	}
	rows, err := r.pool.Query(ctx, `SELECT category, COUNT(*), COALESCE(SUM(total_value), 0)
FROM inventory_items WHERE company_id=$1 AND is_active GROUP BY category ORDER BY category`, companyID)
	if err != nil {
		return Stats{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var cv CategoryValue
		if err := rows.Scan(&cv.Category, &cv.ItemCount, &cv.TotalValue); err != nil {
			return Stats{}, err
		}
		stats.ByCategory = append(stats.ByCategory, cv)
	}
	stats.ReservedValue = stats.ReservedValue.Round(2)
	return stats, rows.Err()
}

// CompaniesWithLowStock lists companies having at least one low-stock item.
func (r *Repository) CompaniesWithLowStock(ctx context.Context) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT company_id FROM inventory_items
WHERE is_active AND reorder_level > 0 AND current_stock <= reorder_level ORDER BY company_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *txRepo) GetItemForUpdate(ctx context.Context, companyID, id int64) (Item, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+itemColumns+` FROM inventory_items WHERE company_id=$1 AND id=$2 FOR UPDATE`, companyID, id)
	item, err := scanItem(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Item{}, ErrItemNotFound
	}
	return item, err
}

func (r *txRepo) SaveStock(ctx context.Context, item Item) error {
	tag, err := r.tx.Exec(ctx, `UPDATE inventory_items SET current_stock=$3, reserved_stock=$4, available_stock=$5,
	in_transit_stock=$6, damaged_stock=$7, average_cost=$8, total_value=$9, updated_at=NOW()
WHERE company_id=$1 AND id=$2`,
		item.CompanyID, item.ID, item.CurrentStock, item.ReservedStock, item.AvailableStock,
		item.InTransitStock, item.DamagedStock, item.AverageCost, item.TotalValue)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrItemNotFound
	}
	return nil
}

func (r *txRepo) InsertMovement(ctx context.Context, m Movement) (Movement, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO stock_movements (company_id, movement_number, item_id, movement_type,
	quantity, rate, total_value, stock_before, stock_after, average_cost_before, average_cost_after,
	warehouse_id, to_warehouse_id, reference_type, reference_id, reference_number, remarks, approval_status, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
RETURNING `+movementColumns,
		m.CompanyID, m.MovementNumber, m.ItemID, string(m.MovementType), m.Quantity, m.Rate, m.TotalValue,
		m.StockBefore, m.StockAfter, m.AverageCostBefore, m.AverageCostAfter, m.WarehouseID, db.NullID(m.ToWarehouseID),
		m.ReferenceType, m.ReferenceID, m.ReferenceNumber, m.Remarks, string(m.ApprovalStatus), m.CreatedBy)
	return scanMovement(row)
}

func scanItem(row pgx.Row) (Item, error) {
	var item Item
	err := row.Scan(&item.ID, &item.CompanyID, &item.ItemCode, &item.Name, &item.Description, &item.Category,
		&item.Unit, &item.WarehouseID, &item.CurrentStock, &item.ReservedStock, &item.AvailableStock,
		&item.InTransitStock, &item.DamagedStock, &item.ReorderLevel, &item.AverageCost, &item.TotalValue,
		&item.IsActive, &item.CreatedBy, &item.CreatedAt, &item.UpdatedAt)
	return item, err
}

func scanMovement(row pgx.Row) (Movement, error) {
	var m Movement
	var movementType, approval string
	err := row.Scan(&m.ID, &m.CompanyID, &m.MovementNumber, &m.ItemID, &movementType, &m.Quantity, &m.Rate,
		&m.TotalValue, &m.StockBefore, &m.StockAfter, &m.AverageCostBefore, &m.AverageCostAfter, &m.WarehouseID,
		&m.ToWarehouseID, &m.ReferenceType, &m.ReferenceID, &m.ReferenceNumber, &m.Remarks, &approval,
		&m.ApprovedBy, &m.ApprovedAt, &m.CreatedBy, &m.CreatedAt)
	m.MovementType = MovementType(movementType)
	m.ApprovalStatus = ApprovalStatus(approval)
	return m, err
}
