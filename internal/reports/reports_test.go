package reports

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/language"

	"github.com/odyssey-erp/factory-erp/internal/inventory"
	"github.com/odyssey-erp/factory-erp/internal/platform/cache"
	"github.com/odyssey-erp/factory-erp/internal/rbac"
	"github.com/odyssey-erp/factory-erp/internal/shared"
)

func testCtx() context.Context {
	return shared.ContextWithTenant(context.Background(), shared.Tenant{CompanyID: 1, UserID: 5})
}

func d(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func seededInventory(t *testing.T) *inventory.Service {
	t.Helper()
	clock := func() time.Time { return time.Date(2024, 3, 4, 8, 0, 0, 0, time.UTC) }
	svc := inventory.NewService(inventory.NewMemoryRepository(), nil,
		shared.NewNumberer(shared.NewMemorySequenceStore(), clock),
		cache.NewEntityCache(nil, "inventory:item", time.Minute), nil, nil, nil, inventory.ServiceConfig{})
	seed := []inventory.CreateItemInput{
		{ItemCode: "RM-001", Name: "Steel sheet", Category: "raw", Unit: "kg", WarehouseID: 1,
			OpeningStock: d("1200"), OpeningRate: d("15.5")},
		{ItemCode: "RM-002", Name: "Bolt M8", Category: "raw", Unit: "pcs", WarehouseID: 1,
			OpeningStock: d("40"), OpeningRate: d("2.25"), ReorderLevel: d("50")},
		{ItemCode: "FG-001", Name: "Bracket", Category: "finished", Unit: "pcs", WarehouseID: 2,
			OpeningStock: d("10"), OpeningRate: d("120")},
	}
	for _, in := range seed {
		_, err := svc.CreateItem(testCtx(), in)
		require.NoError(t, err)
	}
	return svc
}

func newTestService(t *testing.T, lang language.Tag) *Service {
	svc := NewService(seededInventory(t), lang, nil)
	svc.now = func() time.Time { return time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC) }
	return svc
}

func TestStockValuationTotals(t *testing.T) {
	svc := newTestService(t, language.English)
	v, err := svc.StockValuation(testCtx(), ValuationRequest{})
	require.NoError(t, err)
	require.Len(t, v.Rows, 3)
	require.True(t, d("19890").Equal(v.TotalValue), v.TotalValue.String())
	require.Equal(t, 1, v.LowStockItems)
	require.Len(t, v.Categories, 2)
	require.Equal(t, "finished", v.Categories[0].Category)
	require.True(t, d("1200").Equal(v.Categories[0].Value))
	require.Equal(t, "raw", v.Categories[1].Category)
	require.Equal(t, 2, v.Categories[1].Items)
	require.True(t, d("18690").Equal(v.Categories[1].Value))

	raw, err := svc.StockValuation(testCtx(), ValuationRequest{WarehouseID: 2})
	require.NoError(t, err)
	require.Len(t, raw.Rows, 1)
	require.Equal(t, "FG-001", raw.Rows[0].ItemCode)
}

func TestStockValuationRequiresTenant(t *testing.T) {
	svc := newTestService(t, language.English)
	_, err := svc.StockValuation(context.Background(), ValuationRequest{})
	require.ErrorIs(t, err, shared.ErrTenantRequired)
}

func TestStockValuationWorkbook(t *testing.T) {
	svc := newTestService(t, language.English)
	f, name, err := svc.StockValuationWorkbook(testCtx(), ValuationRequest{})
	require.NoError(t, err)
	require.Equal(t, "stock-valuation-20240304.xlsx", name)

	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	book, err := excelize.OpenReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	defer book.Close()

	require.Equal(t, []string{valuationSheet, summarySheet}, book.GetSheetList())
	rows, err := book.GetRows(valuationSheet, excelize.Options{RawCellValue: true})
	require.NoError(t, err)
	require.Len(t, rows, 5)
	require.Equal(t, valuationHeaders, rows[0])
	require.Equal(t, "FG-001", rows[1][0])
	require.Equal(t, "1200", rows[1][9])
	require.Equal(t, "19890", rows[4][9])

	total, err := book.GetCellValue(summarySheet, "B4")
	require.NoError(t, err)
	require.Equal(t, "19,890.00", total)
}

func TestSummaryUsesLocaleGrouping(t *testing.T) {
	svc := newTestService(t, language.Indonesian)
	require.Equal(t, "19.890,00", svc.money(d("19890")))
}

func TestExportRoute(t *testing.T) {
	svc := newTestService(t, language.English)
	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(testCtx()))
		})
	})
	router.Route("/reports", NewHandler(nil, svc, rbac.Middleware{}).MountRoutes)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/reports/stock-valuation.xlsx", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, xlsxContentType, rr.Header().Get("Content-Type"))
	require.Contains(t, rr.Header().Get("Content-Disposition"), "stock-valuation-20240304.xlsx")
	require.Equal(t, "PK", rr.Body.String()[:2])

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/reports/stock-valuation.xlsx?warehouseId=x", nil))
	require.Equal(t, http.StatusBadRequest, rr.Code)
}
