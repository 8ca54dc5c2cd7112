package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/factory-erp/internal/inventory"
	jobmetrics "github.com/odyssey-erp/factory-erp/internal/jobs"
	"github.com/odyssey-erp/factory-erp/internal/shared"
)

// LowStockCompanies lists the companies that currently hold low-stock items.
type LowStockCompanies interface {
	CompaniesWithLowStock(ctx context.Context) ([]int64, error)
}

// ItemLister pages through the items of the company carried by ctx.
type ItemLister interface {
	ListItems(ctx context.Context, filter inventory.ListFilter, page shared.Page) (shared.Paged[inventory.Item], error)
}

// LowStockScanJob logs and audits every active item at or below its reorder level.
type LowStockScanJob struct {
	Companies LowStockCompanies
	Items     ItemLister
	Audit     shared.AuditPort
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
	clock     func() time.Time
}

// NewLowStockScanJob initialises the low-stock scan handler.
func NewLowStockScanJob(companies LowStockCompanies, items ItemLister, audit shared.AuditPort, logger *slog.Logger, metrics *jobmetrics.Metrics) *LowStockScanJob {
	return &LowStockScanJob{
		Companies: companies,
		Items:     items,
		Audit:     audit,
		Logger:    logger,
		Metrics:   metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes the scan.
func (j *LowStockScanJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Companies == nil || j.Items == nil {
		return errors.New("low stock scan: handler not configured")
	}
	var payload LowStockScanPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}

	start := j.clock()
	tracker := j.Metrics.Track(TaskInventoryLowStockScan)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	companies := []int64{payload.CompanyID}
	if payload.CompanyID == 0 {
		ids, err := j.Companies.CompaniesWithLowStock(ctx)
		if err != nil {
			resultErr = fmt.Errorf("low stock scan: list companies: %w", err)
			return resultErr
		}
		companies = ids
	}

	total := 0
	for _, companyID := range companies {
		n, err := j.scanCompany(ctx, companyID, start)
		if err != nil {
			resultErr = fmt.Errorf("low stock scan company %d: %w", companyID, err)
			return resultErr
		}
		total += n
	}
	j.logger().Info("completed low stock scan",
		slog.Int("companies", len(companies)),
		slog.Int("items", total),
		slog.Duration("duration", time.Since(start)),
	)
	return resultErr
}

// Run scans every company outside of asynq, e.g. from a one-off command.
func (j *LowStockScanJob) Run(ctx context.Context) error {
	return j.Handle(ctx, asynq.NewTask(TaskInventoryLowStockScan, nil))
}

func (j *LowStockScanJob) scanCompany(ctx context.Context, companyID int64, at time.Time) (int, error) {
	ctx = shared.ContextWithTenant(ctx, shared.Tenant{CompanyID: companyID})
	active := true
	filter := inventory.ListFilter{LowStock: true, Active: &active}
	logger := j.logger().With(slog.Int64("company_id", companyID))
	found := 0
	for page := 1; ; page++ {
		batch, err := j.Items.ListItems(ctx, filter, shared.Page{Page: page, PerPage: shared.MaxPerPage})
		if err != nil {
			return found, err
		}
		for _, item := range batch.Items {
			found++
			logger.Warn("item below reorder level",
				slog.String("item_code", item.ItemCode),
				slog.String("current_stock", item.CurrentStock.String()),
				slog.String("reorder_level", item.ReorderLevel.String()),
			)
			j.record(ctx, companyID, item, at)
		}
		if page >= batch.Pagination.TotalPages {
			break
		}
	}
	j.Metrics.SetLowStock(companyID, found)
	return found, nil
}

func (j *LowStockScanJob) record(ctx context.Context, companyID int64, item inventory.Item, at time.Time) {
	if j.Audit == nil {
		return
	}
	err := j.Audit.Record(ctx, shared.AuditLog{
		CompanyID: companyID,
		Action:    "inventory:low_stock",
		Entity:    "inventory_item",
		EntityID:  strconv.FormatInt(item.ID, 10),
		Meta: map[string]any{
			"current_stock": item.CurrentStock.String(),
			"reorder_level": item.ReorderLevel.String(),
		},
		At: at,
	})
	if err != nil {
		j.logger().Warn("audit low stock", slog.Int64("item_id", item.ID), slog.Any("error", err))
	}
}

func (j *LowStockScanJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
