package invoices

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/factory-erp/internal/platform/db"
	salesshared "github.com/odyssey-erp/factory-erp/internal/sales/shared"
	"github.com/odyssey-erp/factory-erp/internal/shared"
)

type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
	Get(ctx context.Context, companyID, id int64) (*Invoice, error)
	GetForUpdate(ctx context.Context, companyID, id int64) (*Invoice, error)
	List(ctx context.Context, companyID int64, req ListInvoicesRequest, page shared.Page) ([]Invoice, int, error)
	Create(ctx context.Context, inv Invoice) (int64, error)
	Update(ctx context.Context, inv Invoice) error
	ReplaceLines(ctx context.Context, invoiceID int64, lines []salesshared.Line) error
	InsertPayment(ctx context.Context, p Payment) (int64, error)
	Stats(ctx context.Context, companyID int64, now time.Time) (Stats, error)
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

const invoiceColumns = `id, company_id, invoice_number, customer_id, COALESCE(order_id, 0), invoice_date, due_date, status,
	subtotal, discount_total, tax_total, shipping_charges, grand_total, paid_amount, balance_amount, payment_status,
	notes, cancel_reason, created_by, created_at, updated_at`

func scanInvoice(row pgx.Row) (*Invoice, error) {
	var inv Invoice
	var status, payment string
	err := row.Scan(&inv.ID, &inv.CompanyID, &inv.InvoiceNumber, &inv.CustomerID, &inv.OrderID, &inv.InvoiceDate,
		&inv.DueDate, &status, &inv.Subtotal, &inv.DiscountTotal, &inv.TaxTotal, &inv.ShippingCharges,
		&inv.GrandTotal, &inv.PaidAmount, &inv.BalanceAmount, &payment, &inv.Notes, &inv.CancelReason,
		&inv.CreatedBy, &inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	inv.Status = Status(status)
	inv.PaymentStatus = salesshared.PaymentStatus(payment)
	return &inv, nil
}

func (r *repository) Get(ctx context.Context, companyID, id int64) (*Invoice, error) {
	return r.load(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE company_id=$1 AND id=$2`, companyID, id)
}

// GetForUpdate locks the invoice row; it must run inside WithTx.
func (r *repository) GetForUpdate(ctx context.Context, companyID, id int64) (*Invoice, error) {
	return r.load(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE company_id=$1 AND id=$2 FOR UPDATE`, companyID, id)
}

func (r *repository) load(ctx context.Context, query string, companyID, id int64) (*Invoice, error) {
	inv, err := scanInvoice(r.db.QueryRow(ctx, query, companyID, id))
	if err != nil {
		return nil, err
	}
	if inv.Lines, err = salesshared.LoadLines(ctx, r.db, salesshared.InvoiceLines, inv.ID); err != nil {
		return nil, fmt.Errorf("load invoice lines: %w", err)
	}
	rows, err := r.db.Query(ctx, `SELECT id, invoice_id, amount, method, reference, paid_at, created_by
FROM invoice_payments WHERE invoice_id=$1 ORDER BY paid_at, id`, inv.ID)
	if err != nil {
		return nil, fmt.Errorf("load payments: %w", err)
	}
	defer rows.Close()
	inv.Payments = []Payment{}
	for rows.Next() {
		var p Payment
		var method string
		if err := rows.Scan(&p.ID, &p.InvoiceID, &p.Amount, &method, &p.Reference, &p.PaidAt, &p.CreatedBy); err != nil {
			return nil, err
		}
		p.Method = PaymentMethod(method)
		inv.Payments = append(inv.Payments, p)
	}
	return inv, rows.Err()
}

func (r *repository) List(ctx context.Context, companyID int64, req ListInvoicesRequest, page shared.Page) ([]Invoice, int, error) {
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
	if req.PaymentStatus != "" {
		args = append(args, string(req.PaymentStatus))
		conditions = append(conditions, fmt.Sprintf("payment_status = $%d", len(args)))
	}
	if s := strings.TrimSpace(req.Search); s != "" {
		args = append(args, "%"+s+"%")
		conditions = append(conditions, fmt.Sprintf("invoice_number ILIKE $%d", len(args)))
	}
	where := strings.Join(conditions, " AND ")

	var total int
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM invoices WHERE "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count invoices: %w", err)
	}
	args = append(args, page.PerPage, page.Offset())
	rows, err := r.db.Query(ctx, fmt.Sprintf("SELECT %s FROM invoices WHERE %s ORDER BY invoice_date DESC, id DESC LIMIT $%d OFFSET $%d",
		invoiceColumns, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list invoices: %w", err)
	}
	defer rows.Close()

	var out []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *inv)
	}
	return out, total, rows.Err()
}

func (r *repository) Create(ctx context.Context, inv Invoice) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `INSERT INTO invoices (company_id, invoice_number, customer_id, order_id, invoice_date, due_date,
	status, subtotal, discount_total, tax_total, shipping_charges, grand_total, paid_amount, balance_amount,
	payment_status, notes, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17) RETURNING id`,
		inv.CompanyID, inv.InvoiceNumber, inv.CustomerID, db.NullID(inv.OrderID), inv.InvoiceDate, inv.DueDate,
		string(inv.Status), inv.Subtotal, inv.DiscountTotal, inv.TaxTotal, inv.ShippingCharges, inv.GrandTotal,
		inv.PaidAmount, inv.BalanceAmount, string(inv.PaymentStatus), inv.Notes, inv.CreatedBy).Scan(&id)
	if db.IsUniqueViolation(err) {
		return 0, shared.Conflict("invoice number already exists", err)
	}
	return id, err
}

func (r *repository) Update(ctx context.Context, inv Invoice) error {
	tag, err := r.db.Exec(ctx, `UPDATE invoices SET due_date=$3, status=$4, subtotal=$5, discount_total=$6, tax_total=$7,
	shipping_charges=$8, grand_total=$9, paid_amount=$10, balance_amount=$11, payment_status=$12, notes=$13,
	cancel_reason=$14, updated_at=NOW()
WHERE company_id=$1 AND id=$2`,
		inv.CompanyID, inv.ID, inv.DueDate, string(inv.Status), inv.Subtotal, inv.DiscountTotal, inv.TaxTotal,
		inv.ShippingCharges, inv.GrandTotal, inv.PaidAmount, inv.BalanceAmount, string(inv.PaymentStatus),
		inv.Notes, inv.CancelReason)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) ReplaceLines(ctx context.Context, invoiceID int64, lines []salesshared.Line) error {
	return salesshared.ReplaceLines(ctx, r.db, salesshared.InvoiceLines, invoiceID, lines)
}

func (r *repository) InsertPayment(ctx context.Context, p Payment) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `INSERT INTO invoice_payments (invoice_id, amount, method, reference, paid_at, created_by)
VALUES ($1,$2,$3,$4,$5,$6) RETURNING id`, p.InvoiceID, p.Amount, string(p.Method), p.Reference, p.PaidAt, p.CreatedBy).Scan(&id)
	return id, err
}

func (r *repository) Stats(ctx context.Context, companyID int64, now time.Time) (Stats, error) {
	stats := Stats{ByPaymentStatus: map[salesshared.PaymentStatus]int{}}
	err := r.db.QueryRow(ctx, `SELECT COUNT(*), COALESCE(SUM(grand_total), 0), COALESCE(SUM(paid_amount), 0),
	COALESCE(SUM(GREATEST(balance_amount, 0)), 0),
	COUNT(*) FILTER (WHERE due_date < $2 AND balance_amount > 0),
	COALESCE(SUM(balance_amount) FILTER (WHERE due_date < $2 AND balance_amount > 0), 0)
FROM invoices WHERE company_id=$1 AND status='issued'`, companyID, now).Scan(
		&stats.TotalInvoices, &stats.TotalInvoiced, &stats.TotalPaid, &stats.TotalOutstanding,
		&stats.OverdueCount, &stats.OverdueAmount)
	if err != nil {
		return Stats{}, fmt.Errorf("invoice totals: %w", err)
	}
	rows, err := r.db.Query(ctx, `SELECT payment_status, COUNT(*) FROM invoices
WHERE company_id=$1 AND status='issued' GROUP BY payment_status`, companyID)
	if err != nil {
		return Stats{}, fmt.Errorf("invoice payment status: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return Stats{}, err
		}
		stats.ByPaymentStatus[salesshared.PaymentStatus(status)] = count
	}
	return stats, rows.Err()
}
