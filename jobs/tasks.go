package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskInventoryLowStockScan reports items at or below their reorder level.
	TaskInventoryLowStockScan = "inventory:low_stock_scan"
	// TaskQuotationExpiry expires quotations past their validity date.
	TaskQuotationExpiry = "sales:quotation_expiry"
)

// LowStockScanPayload optionally restricts the scan to one company.
type LowStockScanPayload struct {
	CompanyID int64 `json:"company_id,omitempty"`
}

// QuotationExpiryPayload carries scheduling metadata.
type QuotationExpiryPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewLowStockScanTask constructs an Asynq task for the low-stock scan.
func NewLowStockScanTask(companyID int64) (*asynq.Task, error) {
	body, err := json.Marshal(LowStockScanPayload{CompanyID: companyID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskInventoryLowStockScan, body, asynq.Queue(QueueDefault)), nil
}

// NewQuotationExpiryTask constructs an Asynq task for quotation expiry.
func NewQuotationExpiryTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(QuotationExpiryPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskQuotationExpiry, body, asynq.Queue(QueueDefault)), nil
}
