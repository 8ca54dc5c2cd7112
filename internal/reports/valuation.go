// Package reports builds downloadable reports over inventory data.
package reports

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/odyssey-erp/factory-erp/internal/inventory"
	"github.com/odyssey-erp/factory-erp/internal/shared"
)

// ItemSource pages through the caller's inventory items.
type ItemSource interface {
	ListItems(ctx context.Context, filter inventory.ListFilter, page shared.Page) (shared.Paged[inventory.Item], error)
}

type Service struct {
	items   ItemSource
	printer *message.Printer
	logger  *slog.Logger
	now     func() time.Time
}

// NewService builds a report service. Summary figures are formatted for lang.
func NewService(items ItemSource, lang language.Tag, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		items:   items,
		printer: message.NewPrinter(lang),
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

type ValuationRequest struct {
	Category        string
	WarehouseID     int64
	IncludeInactive bool
}

type ValuationRow struct {
	ItemCode     string          `json:"itemCode"`
	Name         string          `json:"name"`
	Category     string          `json:"category"`
	Unit         string          `json:"unit"`
	WarehouseID  int64           `json:"warehouseId"`
	CurrentStock decimal.Decimal `json:"currentStock"`
	Reserved     decimal.Decimal `json:"reservedStock"`
	Available    decimal.Decimal `json:"availableStock"`
	AverageCost  decimal.Decimal `json:"averageCost"`
	Value        decimal.Decimal `json:"value"`
	LowStock     bool            `json:"lowStock"`
}

type CategoryTotal struct {
	Category string          `json:"category"`
	Items    int             `json:"items"`
	Value    decimal.Decimal `json:"value"`
}

type Valuation struct {
	GeneratedAt   time.Time       `json:"generatedAt"`
	Rows          []ValuationRow  `json:"rows"`
	Categories    []CategoryTotal `json:"categories"`
	LowStockItems int             `json:"lowStockItems"`
	TotalValue    decimal.Decimal `json:"totalValue"`
}

// StockValuation values every matching item at its moving average cost.
func (s *Service) StockValuation(ctx context.Context, req ValuationRequest) (Valuation, error) {
	filter := inventory.ListFilter{Category: req.Category, WarehouseID: req.WarehouseID}
	if !req.IncludeInactive {
		active := true
		filter.Active = &active
	}
	out := Valuation{GeneratedAt: s.now(), Rows: []ValuationRow{}, Categories: []CategoryTotal{}}
	byCategory := map[string]*CategoryTotal{}
	for page := 1; ; page++ {
		batch, err := s.items.ListItems(ctx, filter, shared.Page{Page: page, PerPage: shared.MaxPerPage})
		if err != nil {
			return Valuation{}, err
		}
		for _, item := range batch.Items {
			row := ValuationRow{
				ItemCode:     item.ItemCode,
				Name:         item.Name,
				Category:     item.Category,
				Unit:         item.Unit,
				WarehouseID:  item.WarehouseID,
				CurrentStock: item.CurrentStock,
				Reserved:     item.ReservedStock,
				Available:    item.CurrentStock.Sub(item.ReservedStock),
				AverageCost:  item.AverageCost,
				Value:        item.CurrentStock.Mul(item.AverageCost).Round(2),
				LowStock:     item.LowStock(),
			}
			out.Rows = append(out.Rows, row)
			out.TotalValue = out.TotalValue.Add(row.Value)
			if row.LowStock {
				out.LowStockItems++
			}
			total, ok := byCategory[row.Category]
			if !ok {
				total = &CategoryTotal{Category: row.Category}
				byCategory[row.Category] = total
			}
			total.Items++
			total.Value = total.Value.Add(row.Value)
		}
		if page >= batch.Pagination.TotalPages {
			break
		}
	}
	for _, total := range byCategory {
		out.Categories = append(out.Categories, *total)
	}
	sort.Slice(out.Categories, func(i, j int) bool { return out.Categories[i].Category < out.Categories[j].Category })
	return out, nil
}

// money formats v with the service locale's grouping, e.g. 1,234.50.
func (s *Service) money(v decimal.Decimal) string {
	return s.printer.Sprintf("%.2f", v.InexactFloat64())
}
