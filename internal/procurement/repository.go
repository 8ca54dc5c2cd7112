package procurement

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

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	CreatePO(ctx context.Context, po PurchaseOrder) (int64, error)
	GetPOForUpdate(ctx context.Context, companyID, id int64) (PurchaseOrder, error)
	UpdatePO(ctx context.Context, po PurchaseOrder) error
	ReplaceLines(ctx context.Context, poID int64, lines []Line) error
	SetReceivedQuantity(ctx context.Context, line Line) error
	InsertReceipt(ctx context.Context, receipt Receipt) (int64, error)
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx wraps callback in repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

const poColumns = `id, company_id, po_number, supplier_id, warehouse_id, order_date, expected_date, status,
	subtotal, discount_total, tax_total, shipping_charges, grand_total, notes, COALESCE(approved_by, 0), approved_at,
	cancel_reason, created_by, created_at, updated_at`

const lineColumns = `id, COALESCE(item_id, 0), description, quantity, received_quantity, unit, rate, discount_percent,
	tax_percent, discount_amount, tax_amount, line_total`

func scanPO(row pgx.Row) (PurchaseOrder, error) {
	var po PurchaseOrder
	var status string
	err := row.Scan(&po.ID, &po.CompanyID, &po.PONumber, &po.SupplierID, &po.WarehouseID, &po.OrderDate,
		&po.ExpectedDate, &status, &po.Subtotal, &po.DiscountTotal, &po.TaxTotal, &po.ShippingCharges,
		&po.GrandTotal, &po.Notes, &po.ApprovedBy, &po.ApprovedAt, &po.CancelReason, &po.CreatedBy,
		&po.CreatedAt, &po.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PurchaseOrder{}, ErrNotFound
		}
		return PurchaseOrder{}, err
	}
	po.Status = Status(status)
	return po, nil
}

func loadPO(ctx context.Context, q db.DBTX, query string, companyID, id int64) (PurchaseOrder, error) {
	po, err := scanPO(q.QueryRow(ctx, query, companyID, id))
	if err != nil {
		return PurchaseOrder{}, err
	}
	rows, err := q.Query(ctx, `SELECT `+lineColumns+` FROM purchase_order_items WHERE po_id=$1 ORDER BY line_no`, po.ID)
	if err != nil {
		return PurchaseOrder{}, fmt.Errorf("load po lines: %w", err)
	}
	defer rows.Close()
	po.Lines = []Line{}
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.ID, &l.ItemID, &l.Description, &l.Quantity, &l.ReceivedQuantity, &l.Unit, &l.Rate,
			&l.DiscountPercent, &l.TaxPercent, &l.DiscountAmount, &l.TaxAmount, &l.LineTotal); err != nil {
			return PurchaseOrder{}, err
		}
		po.Lines = append(po.Lines, l)
	}
	return po, rows.Err()
}

// GetPO returns purchase order and lines.
func (r *Repository) GetPO(ctx context.Context, companyID, id int64) (PurchaseOrder, error) {
	return loadPO(ctx, r.pool, `SELECT `+poColumns+` FROM purchase_orders WHERE company_id=$1 AND id=$2`, companyID, id)
}

// ListPOs returns purchase order headers.
func (r *Repository) ListPOs(ctx context.Context, companyID int64, filter ListFilter, page shared.Page) ([]PurchaseOrder, int, error) {
	conditions := []string{"company_id = $1"}
	args := []any{companyID}
	if filter.SupplierID != 0 {
		args = append(args, filter.SupplierID)
		conditions = append(conditions, fmt.Sprintf("supplier_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if s := strings.TrimSpace(filter.Search); s != "" {
		args = append(args, "%"+s+"%")
		conditions = append(conditions, fmt.Sprintf("po_number ILIKE $%d", len(args)))
	}
	where := strings.Join(conditions, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM purchase_orders WHERE "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count purchase orders: %w", err)
	}
	args = append(args, page.PerPage, page.Offset())
	rows, err := r.pool.Query(ctx, fmt.Sprintf("SELECT %s FROM purchase_orders WHERE %s ORDER BY order_date DESC, id DESC LIMIT $%d OFFSET $%d",
		poColumns, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list purchase orders: %w", err)
	}
	defer rows.Close()
	var out []PurchaseOrder
	for rows.Next() {
		po, err := scanPO(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, po)
	}
	return out, total, rows.Err()
}

// DeletePO removes a purchase order; lines cascade.
func (r *Repository) DeletePO(ctx context.Context, companyID, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM purchase_orders WHERE company_id=$1 AND id=$2`, companyID, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListReceipts returns the goods receipts of a purchase order, oldest first.
func (r *Repository) ListReceipts(ctx context.Context, companyID, poID int64) ([]Receipt, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, company_id, po_id, receipt_number, warehouse_id, received_at, notes, created_by
FROM purchase_order_receipts WHERE company_id=$1 AND po_id=$2 ORDER BY received_at, id`, companyID, poID)
	if err != nil {
		return nil, err
	}
	var receipts []Receipt
	for rows.Next() {
		var rc Receipt
		if err := rows.Scan(&rc.ID, &rc.CompanyID, &rc.POID, &rc.ReceiptNumber, &rc.WarehouseID, &rc.ReceivedAt,
			&rc.Notes, &rc.CreatedBy); err != nil {
			rows.Close()
			return nil, err
		}
		receipts = append(receipts, rc)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range receipts {
		lines, err := r.pool.Query(ctx, `SELECT line_id, item_id, quantity, rate, movement_number
FROM purchase_order_receipt_items WHERE receipt_id=$1 ORDER BY id`, receipts[i].ID)
		if err != nil {
			return nil, err
		}
		receipts[i].Lines = []ReceiptLine{}
		for lines.Next() {
			var l ReceiptLine
			if err := lines.Scan(&l.LineID, &l.ItemID, &l.Quantity, &l.Rate, &l.MovementNumber); err != nil {
				lines.Close()
				return nil, err
			}
			receipts[i].Lines = append(receipts[i].Lines, l)
		}
		lines.Close()
		if err := lines.Err(); err != nil {
			return nil, err
		}
	}
	return receipts, nil
}

// Stats aggregates purchase orders by status.
func (r *Repository) Stats(ctx context.Context, companyID int64) (Stats, error) {
	rows, err := r.pool.Query(ctx, `SELECT status, COUNT(*), COALESCE(SUM(grand_total), 0)
FROM purchase_orders WHERE company_id=$1 GROUP BY status`, companyID)
	if err != nil {
		return Stats{}, err
	}
	defer rows.Close()
	var values []statusValue
	for rows.Next() {
		var v statusValue
		var status string
		if err := rows.Scan(&status, &v.Count, &v.Value); err != nil {
			return Stats{}, err
		}
		v.Status = Status(status)
		values = append(values, v)
	}
	if err := rows.Err(); err != nil {
		return Stats{}, err
	}
	return summarise(values), nil
}

func (t *txRepo) CreatePO(ctx context.Context, po PurchaseOrder) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO purchase_orders (company_id, po_number, supplier_id, warehouse_id, order_date,
	expected_date, status, subtotal, discount_total, tax_total, shipping_charges, grand_total, notes, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14) RETURNING id`,
		po.CompanyID, po.PONumber, po.SupplierID, po.WarehouseID, po.OrderDate, po.ExpectedDate, string(po.Status),
		po.Subtotal, po.DiscountTotal, po.TaxTotal, po.ShippingCharges, po.GrandTotal, po.Notes, po.CreatedBy).Scan(&id)
	if db.IsUniqueViolation(err) {
		return 0, shared.Conflict("purchase order number already exists", err)
	}
	return id, err
}

func (t *txRepo) GetPOForUpdate(ctx context.Context, companyID, id int64) (PurchaseOrder, error) {
	return loadPO(ctx, t.tx, `SELECT `+poColumns+` FROM purchase_orders WHERE company_id=$1 AND id=$2 FOR UPDATE`, companyID, id)
}

func (t *txRepo) UpdatePO(ctx context.Context, po PurchaseOrder) error {
	tag, err := t.tx.Exec(ctx, `UPDATE purchase_orders SET expected_date=$3, status=$4, subtotal=$5, discount_total=$6,
	tax_total=$7, shipping_charges=$8, grand_total=$9, notes=$10, approved_by=$11, approved_at=$12, cancel_reason=$13,
	updated_at=NOW()
WHERE company_id=$1 AND id=$2`,
		po.CompanyID, po.ID, po.ExpectedDate, string(po.Status), po.Subtotal, po.DiscountTotal, po.TaxTotal,
		po.ShippingCharges, po.GrandTotal, po.Notes, db.NullID(po.ApprovedBy), po.ApprovedAt, po.CancelReason)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *txRepo) ReplaceLines(ctx context.Context, poID int64, lines []Line) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM purchase_order_items WHERE po_id=$1`, poID); err != nil {
		return err
	}
	for i, l := range lines {
		_, err := t.tx.Exec(ctx, `INSERT INTO purchase_order_items (po_id, line_no, item_id, description, quantity,
	received_quantity, unit, rate, discount_percent, tax_percent, discount_amount, tax_amount, line_total)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
			poID, i+1, db.NullID(l.ItemID), l.Description, l.Quantity, l.ReceivedQuantity, l.Unit, l.Rate,
			l.DiscountPercent, l.TaxPercent, l.DiscountAmount, l.TaxAmount, l.LineTotal)
		if err != nil {
			return fmt.Errorf("insert po line %d: %w", i+1, err)
		}
	}
	return nil
}

func (t *txRepo) SetReceivedQuantity(ctx context.Context, line Line) error {
	_, err := t.tx.Exec(ctx, `UPDATE purchase_order_items SET received_quantity=$2 WHERE id=$1`, line.ID, line.ReceivedQuantity)
	return err
}

func (t *txRepo) InsertReceipt(ctx context.Context, rc Receipt) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO purchase_order_receipts (company_id, po_id, receipt_number, warehouse_id,
	received_at, notes, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id`,
		rc.CompanyID, rc.POID, rc.ReceiptNumber, rc.WarehouseID, rc.ReceivedAt, rc.Notes, rc.CreatedBy).Scan(&id)
	if err != nil {
		return 0, err
	}
	for _, l := range rc.Lines {
		if _, err := t.tx.Exec(ctx, `INSERT INTO purchase_order_receipt_items (receipt_id, line_id, item_id, quantity, rate,
	movement_number) VALUES ($1,$2,$3,$4,$5,$6)`, id, l.LineID, l.ItemID, l.Quantity, l.Rate, l.MovementNumber); err != nil {
			return 0, fmt.Errorf("insert receipt line: %w", err)
		}
	}
	return id, nil
}
