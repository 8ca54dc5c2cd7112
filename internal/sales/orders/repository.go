package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/factory-erp/internal/platform/db"
	salesshared "github.com/odyssey-erp/factory-erp/internal/sales/shared"
	"github.com/odyssey-erp/factory-erp/internal/shared"
)

type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
	Get(ctx context.Context, companyID, id int64) (*CustomerOrder, error)
	List(ctx context.Context, companyID int64, req ListOrdersRequest, page shared.Page) ([]CustomerOrder, int, error)
	Create(ctx context.Context, o CustomerOrder) (int64, error)
	Update(ctx context.Context, o CustomerOrder) error
	ReplaceLines(ctx context.Context, orderID int64, lines []salesshared.Line) error
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

const orderColumns = `id, company_id, order_number, customer_id, COALESCE(quotation_id, 0), order_date, expected_delivery,
	status, subtotal, discount_total, tax_total, shipping_charges, grand_total, paid_amount, balance_amount,
	payment_status, notes, cancel_reason, created_by, created_at, updated_at`

func scanOrder(row pgx.Row) (*CustomerOrder, error) {
	var o CustomerOrder
	var status, payment string
	err := row.Scan(&o.ID, &o.CompanyID, &o.OrderNumber, &o.CustomerID, &o.QuotationID, &o.OrderDate,
		&o.ExpectedDelivery, &status, &o.Subtotal, &o.DiscountTotal, &o.TaxTotal, &o.ShippingCharges,
		&o.GrandTotal, &o.PaidAmount, &o.BalanceAmount, &payment, &o.Notes, &o.CancelReason, &o.CreatedBy,
		&o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	o.Status = Status(status)
	o.PaymentStatus = salesshared.PaymentStatus(payment)
	return &o, nil
}

func (r *repository) Get(ctx context.Context, companyID, id int64) (*CustomerOrder, error) {
	o, err := scanOrder(r.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM customer_orders WHERE company_id=$1 AND id=$2`, companyID, id))
	if err != nil {
		return nil, err
	}
	if o.Lines, err = salesshared.LoadLines(ctx, r.db, salesshared.CustomerOrderLines, o.ID); err != nil {
		return nil, fmt.Errorf("load order lines: %w", err)
	}
	return o, nil
}

func (r *repository) List(ctx context.Context, companyID int64, req ListOrdersRequest, page shared.Page) ([]CustomerOrder, int, error) {
	conditions := []string{"company_id = $1"}
	args := []any{companyID}
	if req.CustomerID != 0 {
		args = append(args, req.CustomerID)
		conditions = append(conditions, fmt.Sprintf("customer_id = $%d", len(args)))
	}
	if req.Status != "" {
		args = append(args, string(req.Status))
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if s := strings.TrimSpace(req.Search); s != "" {
		args = append(args, "%"+s+"%")
		conditions = append(conditions, fmt.Sprintf("order_number ILIKE $%d", len(args)))
	}
	where := strings.Join(conditions, " AND ")

	var total int
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM customer_orders WHERE "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count orders: %w", err)
	}
	args = append(args, page.PerPage, page.Offset())
	rows, err := r.db.Query(ctx, fmt.Sprintf("SELECT %s FROM customer_orders WHERE %s ORDER BY order_date DESC, id DESC LIMIT $%d OFFSET $%d",
		orderColumns, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var out []CustomerOrder
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *o)
	}
	return out, total, rows.Err()
}

func (r *repository) Create(ctx context.Context, o CustomerOrder) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `INSERT INTO customer_orders (company_id, order_number, customer_id, quotation_id, order_date,
	expected_delivery, status, subtotal, discount_total, tax_total, shipping_charges, grand_total, paid_amount,
	balance_amount, payment_status, notes, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17) RETURNING id`,
		o.CompanyID, o.OrderNumber, o.CustomerID, db.NullID(o.QuotationID), o.OrderDate, o.ExpectedDelivery,
		string(o.Status), o.Subtotal, o.DiscountTotal, o.TaxTotal, o.ShippingCharges, o.GrandTotal, o.PaidAmount,
		o.BalanceAmount, string(o.PaymentStatus), o.Notes, o.CreatedBy).Scan(&id)
	if db.IsUniqueViolation(err) {
		return 0, shared.Conflict("order number already exists", err)
	}
	return id, err
}

func (r *repository) Update(ctx context.Context, o CustomerOrder) error {
	tag, err := r.db.Exec(ctx, `UPDATE customer_orders SET expected_delivery=$3, status=$4, subtotal=$5, discount_total=$6,
	tax_total=$7, shipping_charges=$8, grand_total=$9, paid_amount=$10, balance_amount=$11, payment_status=$12,
	notes=$13, cancel_reason=$14, updated_at=NOW()
WHERE company_id=$1 AND id=$2`,
		o.CompanyID, o.ID, o.ExpectedDelivery, string(o.Status), o.Subtotal, o.DiscountTotal, o.TaxTotal,
		o.ShippingCharges, o.GrandTotal, o.PaidAmount, o.BalanceAmount, string(o.PaymentStatus), o.Notes, o.CancelReason)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) ReplaceLines(ctx context.Context, orderID int64, lines []salesshared.Line) error {
	return salesshared.ReplaceLines(ctx, r.db, salesshared.CustomerOrderLines, orderID, lines)
}
