package reports

import (
	"context"
	"fmt"

	"github.com/xuri/excelize/v2"
)

const (
	valuationSheet = "Stock Valuation"
	summarySheet   = "Summary"
	moneyFormat    = "#,##0.00"
	qtyFormat      = "#,##0.####"
)

var valuationHeaders = []string{
	"Item Code", "Item Name", "Category", "Unit", "Warehouse",
	"Current Stock", "Reserved", "Available", "Average Cost", "Stock Value",
}

// StockValuationWorkbook renders StockValuation as an xlsx workbook and
// returns it with a dated file name.
func (s *Service) StockValuationWorkbook(ctx context.Context, req ValuationRequest) (*excelize.File, string, error) {
	v, err := s.StockValuation(ctx, req)
	if err != nil {
		return nil, "", err
	}
	f, err := s.renderValuation(v)
	if err != nil {
		return nil, "", fmt.Errorf("render stock valuation: %w", err)
	}
	return f, fmt.Sprintf("stock-valuation-%s.xlsx", v.GeneratedAt.Format("20060102")), nil
}

func (s *Service) renderValuation(v Valuation) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", valuationSheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(summarySheet); err != nil {
		return nil, err
	}
	if err := f.SetDocProps(&excelize.DocProperties{
		Title:   "Stock valuation",
		Creator: "factory-erp",
		Created: v.GeneratedAt.Format("2006-01-02T15:04:05Z"),
	}); err != nil {
		return nil, err
	}

	header, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true},
		Fill:      excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"D9E1F2"}},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return nil, err
	}
	money := moneyFormat
	moneyStyle, err := f.NewStyle(&excelize.Style{CustomNumFmt: &money})
	if err != nil {
		return nil, err
	}
	qty := qtyFormat
	qtyStyle, err := f.NewStyle(&excelize.Style{CustomNumFmt: &qty})
	if err != nil {
		return nil, err
	}
	lowStock, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Color: "C00000"}})
	if err != nil {
		return nil, err
	}

	for i, h := range valuationHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(valuationSheet, cell, h); err != nil {
			return nil, err
		}
	}
	last, _ := excelize.CoordinatesToCellName(len(valuationHeaders), 1)
	if err := f.SetCellStyle(valuationSheet, "A1", last, header); err != nil {
		return nil, err
	}

	for i, row := range v.Rows {
		r := i + 2
		values := []any{
			row.ItemCode, row.Name, row.Category, row.Unit, row.WarehouseID,
			row.CurrentStock.InexactFloat64(), row.Reserved.InexactFloat64(), row.Available.InexactFloat64(),
			row.AverageCost.InexactFloat64(), row.Value.InexactFloat64(),
		}
		start, _ := excelize.CoordinatesToCellName(1, r)
		if err := f.SetSheetRow(valuationSheet, start, &values); err != nil {
			return nil, err
		}
		if err := f.SetCellStyle(valuationSheet, fmt.Sprintf("F%d", r), fmt.Sprintf("H%d", r), qtyStyle); err != nil {
			return nil, err
		}
		if err := f.SetCellStyle(valuationSheet, fmt.Sprintf("I%d", r), fmt.Sprintf("J%d", r), moneyStyle); err != nil {
			return nil, err
		}
		if row.LowStock {
			if err := f.SetCellStyle(valuationSheet, start, start, lowStock); err != nil {
				return nil, err
			}
		}
	}
	totalRow := len(v.Rows) + 2
	if err := f.SetCellValue(valuationSheet, fmt.Sprintf("I%d", totalRow), "Total"); err != nil {
		return nil, err
	}
	totalCell := fmt.Sprintf("J%d", totalRow)
	if err := f.SetCellFloat(valuationSheet, totalCell, v.TotalValue.InexactFloat64(), -1, 64); err != nil {
		return nil, err
	}
	if err := f.SetCellStyle(valuationSheet, totalCell, totalCell, moneyStyle); err != nil {
		return nil, err
	}
	if err := f.SetColWidth(valuationSheet, "A", "C", 18); err != nil {
		return nil, err
	}
	if err := f.SetColWidth(valuationSheet, "F", "J", 15); err != nil {
		return nil, err
	}
	if err := f.SetPanes(valuationSheet, &excelize.Panes{
		Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft",
	}); err != nil {
		return nil, err
	}

	if err := s.renderSummary(f, v, header, moneyStyle); err != nil {
		return nil, err
	}
	return f, nil
}

func (s *Service) renderSummary(f *excelize.File, v Valuation, header, moneyStyle int) error {
	rows := [][]any{
		{"Generated at", v.GeneratedAt.Format("2006-01-02 15:04 MST")},
		{"Items", len(v.Rows)},
		{"Low stock items", v.LowStockItems},
		{"Total value", s.money(v.TotalValue)},
		{},
		{"Category", "Items", "Value"},
	}
	for _, c := range v.Categories {
		rows = append(rows, []any{c.Category, c.Items, c.Value.InexactFloat64()})
	}
	for i := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(summarySheet, cell, &rows[i]); err != nil {
			return err
		}
	}
	if err := f.SetCellStyle(summarySheet, "A6", "C6", header); err != nil {
		return err
	}
	if len(v.Categories) > 0 {
		end := fmt.Sprintf("C%d", 6+len(v.Categories))
		if err := f.SetCellStyle(summarySheet, "C7", end, moneyStyle); err != nil {
			return err
		}
	}
	return f.SetColWidth(summarySheet, "A", "C", 20)
}
