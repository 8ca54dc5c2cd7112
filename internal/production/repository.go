package production

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

// Repository persists production orders in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const orderColumns = `id, company_id, order_number, product_name, COALESCE(output_item_id, 0), COALESCE(customer_order_id, 0),
	order_quantity, completed_quantity, rejected_quantity, pending_quantity, status, priority,
	planned_start, planned_end, actual_start, actual_end, material_cost, labour_cost, overhead_cost,
	total_cost, cost_per_unit, hold_reason, cancel_reason, remarks, created_by, COALESCE(approved_by, 0),
	created_at, updated_at`

// Create inserts the order with its materials and stages.
func (r *Repository) Create(ctx context.Context, o Order) (Order, error) {
	var created Order
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `INSERT INTO production_orders (company_id, order_number, product_name, output_item_id,
	customer_order_id, order_quantity, completed_quantity, rejected_quantity, pending_quantity, status, priority,
	planned_start, planned_end, material_cost, labour_cost, overhead_cost, total_cost, cost_per_unit, remarks, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)
RETURNING `+orderColumns,
			o.CompanyID, o.OrderNumber, o.ProductName, db.NullID(o.OutputItemID), db.NullID(o.CustomerOrderID),
			o.OrderQuantity, o.CompletedQuantity, o.RejectedQuantity, o.PendingQuantity, string(o.Status), string(o.Priority),
			o.PlannedStart, o.PlannedEnd, o.Cost.MaterialCost, o.Cost.LabourCost, o.Cost.OverheadCost, o.Cost.TotalCost,
			o.Cost.CostPerUnit, o.Remarks, o.CreatedBy)
		var err error
		created, err = scanOrder(row)
		if err != nil {
			return err
		}
		created.RawMaterials = o.RawMaterials
		created.Stages = o.Stages
		return writeChildren(ctx, tx, created)
	})
	if err != nil {
		if db.IsUniqueViolation(err) {
			return Order{}, shared.Conflict("order number already exists", err)
		}
		return Order{}, err
	}
	return created, nil
}

// Get loads an order with its materials and stages.
func (r *Repository) Get(ctx context.Context, companyID, id int64) (Order, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM production_orders WHERE company_id=$1 AND id=$2`, companyID, id)
	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, ErrNotFound
		}
		return Order{}, err
	}
	if err := loadChildren(ctx, r.pool, &o); err != nil {
		return Order{}, err
	}
	return o, nil
}

// Save updates the header and replaces materials and stages.
func (r *Repository) Save(ctx context.Context, o Order) (Order, error) {
	var saved Order
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `UPDATE production_orders SET product_name=$3, output_item_id=$4, order_quantity=$5,
	completed_quantity=$6, rejected_quantity=$7, pending_quantity=$8, status=$9, priority=$10, planned_start=$11,
	planned_end=$12, actual_start=$13, actual_end=$14, material_cost=$15, labour_cost=$16, overhead_cost=$17,
	total_cost=$18, cost_per_unit=$19, hold_reason=$20, cancel_reason=$21, remarks=$22, approved_by=$23, updated_at=NOW()
WHERE company_id=$1 AND id=$2
RETURNING `+orderColumns,
			o.CompanyID, o.ID, o.ProductName, db.NullID(o.OutputItemID), o.OrderQuantity, o.CompletedQuantity,
			o.RejectedQuantity, o.PendingQuantity, string(o.Status), string(o.Priority), o.PlannedStart, o.PlannedEnd,
			o.ActualStart, o.ActualEnd, o.Cost.MaterialCost, o.Cost.LabourCost, o.Cost.OverheadCost, o.Cost.TotalCost,
			o.Cost.CostPerUnit, o.HoldReason, o.CancelReason, o.Remarks, db.NullID(o.ApprovedBy))
		var err error
		saved, err = scanOrder(row)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
		saved.RawMaterials = o.RawMaterials
		saved.Stages = o.Stages
		if _, err := tx.Exec(ctx, `DELETE FROM production_order_materials WHERE order_id=$1`, o.ID); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM production_order_stages WHERE order_id=$1`, o.ID); err != nil {
			return err
		}
		return writeChildren(ctx, tx, saved)
	})
	return saved, err
}

// Delete removes an order.
func (r *Repository) Delete(ctx context.Context, companyID, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM production_orders WHERE company_id=$1 AND id=$2`, companyID, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns a page of order headers.
func (r *Repository) List(ctx context.Context, companyID int64, filter ListFilter, page shared.Page) ([]Order, int, error) {
	clauses := []string{"company_id = $1"}
	args := []any{companyID}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		clauses = append(clauses, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.Priority != "" {
		args = append(args, string(filter.Priority))
		clauses = append(clauses, fmt.Sprintf("priority = $%d", len(args)))
	}
	if s := strings.TrimSpace(filter.Search); s != "" {
		args = append(args, "%"+s+"%")
		clauses = append(clauses, fmt.Sprintf("(order_number ILIKE $%[1]d OR product_name ILIKE $%[1]d)", len(args)))
	}
	where := strings.Join(clauses, " AND ")
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM production_orders WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	args = append(args, page.PerPage, page.Offset())
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`SELECT %s FROM production_orders WHERE %s
ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`, orderColumns, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, o)
	}
	return out, total, rows.Err()
}

// Stats aggregates order counts and quantities.
func (r *Repository) Stats(ctx context.Context, companyID int64) (Stats, error) {
	stats := Stats{ByStatus: map[Status]int{}}
	rows, err := r.pool.Query(ctx, `SELECT status, COUNT(*), COALESCE(SUM(order_quantity), 0),
	COALESCE(SUM(completed_quantity), 0), COALESCE(SUM(rejected_quantity), 0), COALESCE(SUM(total_cost), 0)
FROM production_orders WHERE company_id=$1 GROUP BY status`, companyID)
	if err != nil {
		return Stats{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var count int
		var row Stats
		if err := rows.Scan(&status, &count, &row.PlannedQuantity, &row.CompletedQuantity, &row.RejectedQuantity, &row.TotalCost); err != nil {
			return Stats{}, err
		}
		stats.ByStatus[Status(status)] = count
		stats.TotalOrders += count
		stats.PlannedQuantity = stats.PlannedQuantity.Add(row.PlannedQuantity)
		stats.CompletedQuantity = stats.CompletedQuantity.Add(row.CompletedQuantity)
		stats.RejectedQuantity = stats.RejectedQuantity.Add(row.RejectedQuantity)
		stats.TotalCost = stats.TotalCost.Add(row.TotalCost)
	}
	return stats, rows.Err()
}

func writeChildren(ctx context.Context, tx pgx.Tx, o Order) error {
	for i, m := range o.RawMaterials {
		if _, err := tx.Exec(ctx, `INSERT INTO production_order_materials (order_id, line_no, item_id, item_code, item_name,
	unit, required_quantity, allocated_quantity, consumed_quantity, rate, total_cost)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`, o.ID, i+1, m.ItemID, m.ItemCode, m.ItemName, m.Unit,
			m.RequiredQuantity, m.AllocatedQuantity, m.ConsumedQuantity, m.Rate, m.TotalCost); err != nil {
			return err
		}
	}
	for _, s := range o.Stages {
		if _, err := tx.Exec(ctx, `INSERT INTO production_order_stages (order_id, sequence, stage_name, status,
	completed_quantity, rejected_quantity, labour_cost, overhead_cost, remarks, started_at, completed_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`, o.ID, s.Sequence, s.StageName, string(s.Status), s.CompletedQuantity,
			s.RejectedQuantity, s.LabourCost, s.OverheadCost, s.Remarks, s.StartedAt, s.CompletedAt); err != nil {
			return err
		}
	}
	return nil
}

func loadChildren(ctx context.Context, q db.DBTX, o *Order) error {
	rows, err := q.Query(ctx, `SELECT item_id, item_code, item_name, unit, required_quantity, allocated_quantity,
	consumed_quantity, rate, total_cost FROM production_order_materials WHERE order_id=$1 ORDER BY line_no`, o.ID)
	if err != nil {
		return err
	}
	for rows.Next() {
		var m RawMaterial
		if err := rows.Scan(&m.ItemID, &m.ItemCode, &m.ItemName, &m.Unit, &m.RequiredQuantity, &m.AllocatedQuantity,
			&m.ConsumedQuantity, &m.Rate, &m.TotalCost); err != nil {
			rows.Close()
			return err
		}
		o.RawMaterials = append(o.RawMaterials, m)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	rows, err = q.Query(ctx, `SELECT sequence, stage_name, status, completed_quantity, rejected_quantity, labour_cost,
	overhead_cost, remarks, started_at, completed_at FROM production_order_stages WHERE order_id=$1 ORDER BY sequence`, o.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var s Stage
		var status string
		if err := rows.Scan(&s.Sequence, &s.StageName, &status, &s.CompletedQuantity, &s.RejectedQuantity,
			&s.LabourCost, &s.OverheadCost, &s.Remarks, &s.StartedAt, &s.CompletedAt); err != nil {
			return err
		}
		s.Status = StageStatus(status)
		o.Stages = append(o.Stages, s)
	}
	return rows.Err()
}

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	var status, priority string
	err := row.Scan(&o.ID, &o.CompanyID, &o.OrderNumber, &o.ProductName, &o.OutputItemID, &o.CustomerOrderID,
		&o.OrderQuantity, &o.CompletedQuantity, &o.RejectedQuantity, &o.PendingQuantity, &status, &priority,
		&o.PlannedStart, &o.PlannedEnd, &o.ActualStart, &o.ActualEnd, &o.Cost.MaterialCost, &o.Cost.LabourCost,
		&o.Cost.OverheadCost, &o.Cost.TotalCost, &o.Cost.CostPerUnit, &o.HoldReason, &o.CancelReason, &o.Remarks,
		&o.CreatedBy, &o.ApprovedBy, &o.CreatedAt, &o.UpdatedAt)
	o.Status = Status(status)
	o.Priority = Priority(priority)
	return o, err
}
