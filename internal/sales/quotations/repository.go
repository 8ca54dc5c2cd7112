package quotations

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
	Get(ctx context.Context, companyID, id int64) (*Quotation, error)
	List(ctx context.Context, companyID int64, req ListQuotationsRequest, page shared.Page) ([]Quotation, int, error)
	Create(ctx context.Context, q Quotation) (int64, error)
	Update(ctx context.Context, q Quotation) error
	ReplaceLines(ctx context.Context, quotationID int64, lines []salesshared.Line) error
	ExpireDue(ctx context.Context, asOf time.Time) ([]ExpiredRef, error)
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

const quotationColumns = `id, company_id, quotation_number, customer_id, quote_date, valid_until, status,
	subtotal, discount_total, tax_total, shipping_charges, grand_total, COALESCE(converted_order_id, 0),
	reject_reason, notes, created_by, COALESCE(approved_by, 0), created_at, updated_at`

func scanQuotation(row pgx.Row) (*Quotation, error) {
	var q Quotation
	var status string
	err := row.Scan(&q.ID, &q.CompanyID, &q.QuotationNumber, &q.CustomerID, &q.QuoteDate, &q.ValidUntil, &status,
		&q.Subtotal, &q.DiscountTotal, &q.TaxTotal, &q.ShippingCharges, &q.GrandTotal, &q.ConvertedOrderID,
		&q.RejectReason, &q.Notes, &q.CreatedBy, &q.ApprovedBy, &q.CreatedAt, &q.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	q.Status = Status(status)
	return &q, nil
}

func (r *repository) Get(ctx context.Context, companyID, id int64) (*Quotation, error) {
	q, err := scanQuotation(r.db.QueryRow(ctx, `SELECT `+quotationColumns+` FROM quotations WHERE company_id=$1 AND id=$2`, companyID, id))
	if err != nil {
		return nil, err
	}
	if q.Lines, err = salesshared.LoadLines(ctx, r.db, salesshared.QuotationLines, q.ID); err != nil {
		return nil, fmt.Errorf("load quotation lines: %w", err)
	}
	return q, nil
}

func (r *repository) List(ctx context.Context, companyID int64, req ListQuotationsRequest, page shared.Page) ([]Quotation, int, error) {
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
		conditions = append(conditions, fmt.Sprintf("quotation_number ILIKE $%d", len(args)))
	}
	where := strings.Join(conditions, " AND ")

	var total int
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM quotations WHERE "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count quotations: %w", err)
	}
	args = append(args, page.PerPage, page.Offset())
	rows, err := r.db.Query(ctx, fmt.Sprintf("SELECT %s FROM quotations WHERE %s ORDER BY quote_date DESC, id DESC LIMIT $%d OFFSET $%d",
		quotationColumns, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list quotations: %w", err)
	}
	defer rows.Close()

	var out []Quotation
	for rows.Next() {
		q, err := scanQuotation(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *q)
	}
	return out, total, rows.Err()
}

func (r *repository) Create(ctx context.Context, q Quotation) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `INSERT INTO quotations (company_id, quotation_number, customer_id, quote_date, valid_until,
	status, subtotal, discount_total, tax_total, shipping_charges, grand_total, notes, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13) RETURNING id`,
		q.CompanyID, q.QuotationNumber, q.CustomerID, q.QuoteDate, q.ValidUntil, string(q.Status), q.Subtotal,
		q.DiscountTotal, q.TaxTotal, q.ShippingCharges, q.GrandTotal, q.Notes, q.CreatedBy).Scan(&id)
	if db.IsUniqueViolation(err) {
		return 0, shared.Conflict("quotation number already exists", err)
	}
	return id, err
}

func (r *repository) Update(ctx context.Context, q Quotation) error {
	tag, err := r.db.Exec(ctx, `UPDATE quotations SET valid_until=$3, status=$4, subtotal=$5, discount_total=$6, tax_total=$7,
	shipping_charges=$8, grand_total=$9, converted_order_id=$10, reject_reason=$11, notes=$12, approved_by=$13,
	updated_at=NOW()
WHERE company_id=$1 AND id=$2`,
		q.CompanyID, q.ID, q.ValidUntil, string(q.Status), q.Subtotal, q.DiscountTotal, q.TaxTotal, q.ShippingCharges,
		q.GrandTotal, db.NullID(q.ConvertedOrderID), q.RejectReason, q.Notes, db.NullID(q.ApprovedBy))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) ReplaceLines(ctx context.Context, quotationID int64, lines []salesshared.Line) error {
	return salesshared.ReplaceLines(ctx, r.db, salesshared.QuotationLines, quotationID, lines)
}

// ExpireDue moves every approved or sent quotation whose validity ended
// before asOf to expired, across all companies.
func (r *repository) ExpireDue(ctx context.Context, asOf time.Time) ([]ExpiredRef, error) {
	statuses := make([]string, 0, len(expirable))
	for _, s := range expirable {
		statuses = append(statuses, string(s))
	}
	rows, err := r.db.Query(ctx, `UPDATE quotations SET status=$1, updated_at=NOW()
WHERE status = ANY($2) AND valid_until < $3
RETURNING company_id, id, quotation_number`, string(StatusExpired), statuses, asOf)
	if err != nil {
		return nil, fmt.Errorf("expire quotations: %w", err)
	}
	defer rows.Close()
	var out []ExpiredRef
	for rows.Next() {
		var ref ExpiredRef
		if err := rows.Scan(&ref.CompanyID, &ref.ID, &ref.QuotationNumber); err != nil {
			return nil, err
		}
		out = append(out, ref)
	}
	return out, rows.Err()
}
