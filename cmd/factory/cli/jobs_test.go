package cli

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/factory-erp/jobs"
)

func TestBuildTask(t *testing.T) {
	task, err := BuildTask(jobs.TaskInventoryLowStockScan, 4)
	require.NoError(t, err)
	require.Equal(t, jobs.TaskInventoryLowStockScan, task.Type())
	var payload jobs.LowStockScanPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	require.Equal(t, int64(4), payload.CompanyID)

	task, err = BuildTask(jobs.TaskQuotationExpiry, 0)
	require.NoError(t, err)
	require.Equal(t, jobs.TaskQuotationExpiry, task.Type())

	_, err = BuildTask("mail:send", 0)
	require.ErrorContains(t, err, "unsupported job")
}

func TestTriggerWithoutClient(t *testing.T) {
	var c *JobsCLI
	_, err := c.Trigger(context.Background(), jobs.TaskQuotationExpiry, 0)
	require.Error(t, err)
	_, err = c.InspectQueue(context.Background())
	require.Error(t, err)
}
