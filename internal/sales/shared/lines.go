package shared

import (
	"context"
	"fmt"

	"github.com/odyssey-erp/factory-erp/internal/platform/db"
)

// Line tables share one column layout keyed by document_id.
const (
	QuotationLines     = "quotation_items"
	CustomerOrderLines = "customer_order_items"
	InvoiceLines       = "invoice_items"
)

const lineColumns = `COALESCE(item_id, 0), description, quantity, unit, rate, discount_percent, tax_percent,
	discount_amount, tax_amount, line_total`

// ReplaceLines deletes and rewrites the lines of a document.
func ReplaceLines(ctx context.Context, q db.DBTX, table string, documentID int64, lines []Line) error {
	if _, err := q.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE document_id=$1`, table), documentID); err != nil {
		return err
	}
	for i, l := range lines {
		_, err := q.Exec(ctx, fmt.Sprintf(`INSERT INTO %s (document_id, line_no, item_id, description, quantity, unit, rate,
	discount_percent, tax_percent, discount_amount, tax_amount, line_total)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`, table),
			documentID, i+1, db.NullID(l.ItemID), l.Description, l.Quantity, l.Unit, l.Rate,
			l.DiscountPercent, l.TaxPercent, l.DiscountAmount, l.TaxAmount, l.LineTotal)
		if err != nil {
			return fmt.Errorf("insert %s line %d: %w", table, i+1, err)
		}
	}
	return nil
}

// LoadLines reads the lines of a document in order.
func LoadLines(ctx context.Context, q db.DBTX, table string, documentID int64) ([]Line, error) {
	rows, err := q.Query(ctx, fmt.Sprintf(`SELECT %s FROM %s WHERE document_id=$1 ORDER BY line_no`, lineColumns, table), documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	lines := []Line{}
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.ItemID, &l.Description, &l.Quantity, &l.Unit, &l.Rate, &l.DiscountPercent,
			&l.TaxPercent, &l.DiscountAmount, &l.TaxAmount, &l.LineTotal); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}
