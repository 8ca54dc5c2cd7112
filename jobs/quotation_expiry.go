package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/factory-erp/internal/jobs"
	"github.com/odyssey-erp/factory-erp/internal/sales/quotations"
)

// QuotationExpirer expires quotations whose validity has ended.
type QuotationExpirer interface {
	ExpireDue(ctx context.Context) ([]quotations.ExpiredRef, error)
}

// QuotationExpiryJob moves sent and approved quotations past validUntil to expired.
type QuotationExpiryJob struct {
	Quotations QuotationExpirer
	Logger     *slog.Logger
	Metrics    *jobmetrics.Metrics
}

func NewQuotationExpiryJob(expirer QuotationExpirer, logger *slog.Logger, metrics *jobmetrics.Metrics) *QuotationExpiryJob {
	return &QuotationExpiryJob{Quotations: expirer, Logger: logger, Metrics: metrics}
}

// Handle executes the expiry sweep. The payload is informational only.
func (j *QuotationExpiryJob) Handle(ctx context.Context, _ *asynq.Task) error {
	if j == nil || j.Quotations == nil {
		return errors.New("quotation expiry: handler not configured")
	}
	logger := j.Logger
	if logger == nil {
		logger = slog.Default()
	}
	start := time.Now()
	tracker := j.Metrics.Track(TaskQuotationExpiry)

	refs, err := j.Quotations.ExpireDue(ctx)
	if err != nil {
		logger.Error("quotation expiry failed", slog.Any("error", err))
		return tracker.End(err)
	}
	for _, ref := range refs {
		logger.Info("quotation expired",
			slog.Int64("company_id", ref.CompanyID),
			slog.String("quotation_number", ref.QuotationNumber),
		)
	}
	j.Metrics.AddProcessed(TaskQuotationExpiry, len(refs))
	logger.Info("completed quotation expiry", slog.Int("expired", len(refs)), slog.Duration("duration", time.Since(start)))
	return tracker.End(nil)
}
