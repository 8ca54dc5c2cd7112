package visitors

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/factory-erp/internal/rbac"
	"github.com/odyssey-erp/factory-erp/internal/shared"
)

type memoryRepo struct {
	mu   sync.Mutex
	rows map[int64]Visitor
	next int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{rows: map[int64]Visitor{}}
}

func (m *memoryRepo) Get(_ context.Context, companyID, id int64) (*Visitor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.rows[id]
	if !ok || v.CompanyID != companyID {
		return nil, ErrNotFound
	}
	return &v, nil
}

func (m *memoryRepo) List(_ context.Context, companyID int64, req ListVisitorsRequest, _ shared.Page) ([]Visitor, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Visitor
	for _, v := range m.rows {
		if v.CompanyID != companyID || (req.Status != "" && v.Status != req.Status) {
			continue
		}
		out = append(out, v)
	}
	return out, len(out), nil
}

func (m *memoryRepo) Create(_ context.Context, v Visitor) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	v.ID = m.next
	m.rows[v.ID] = v
	return v.ID, nil
}

func (m *memoryRepo) Update(_ context.Context, v Visitor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[v.ID]; !ok {
		return ErrNotFound
	}
	m.rows[v.ID] = v
	return nil
}

func (m *memoryRepo) UpdateStatus(_ context.Context, v Visitor, from Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rows[v.ID].Status != from {
		return shared.Conflict("visitor was modified concurrently", nil)
	}
	m.rows[v.ID] = v
	return nil
}

func (m *memoryRepo) Stats(_ context.Context, companyID int64, day time.Time) (Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := Stats{Date: day.Format("2006-01-02"), ByStatus: map[Status]int{}}
	for _, v := range m.rows {
		if v.CompanyID == companyID {
			stats.ByStatus[v.Status]++
		}
	}
	stats.Expected = stats.ByStatus[StatusExpected]
	stats.OnSite = stats.ByStatus[StatusCheckedIn]
	stats.CheckedOut = stats.ByStatus[StatusCheckedOut]
	return stats, nil
}

func testCtx() context.Context {
	return shared.ContextWithTenant(context.Background(), shared.Tenant{CompanyID: 1, UserID: 5})
}

func requireCode(t *testing.T, err error, code string) {
	t.Helper()
	appErr, ok := shared.AsAppError(err)
	require.True(t, ok, "expected app error, got %v", err)
	require.Equal(t, code, appErr.Code)
}

func newTestService() (*Service, *time.Time) {
	now := time.Date(2024, 3, 4, 8, 30, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	svc := NewService(newMemoryRepo(), shared.NewNumberer(shared.NewMemorySequenceStore(), clock), nil, nil)
	svc.now = clock
	return svc, &now
}

func register(t *testing.T, svc *Service) *Visitor {
	t.Helper()
	v, err := svc.Register(testCtx(), CreateVisitorRequest{
		Name: " Dewi Lestari ", Company: "PT Baja", Purpose: "Supplier audit", HostName: "Budi",
	})
	require.NoError(t, err)
	return v
}

func TestRegisterAssignsDailyNumbers(t *testing.T) {
	svc, _ := newTestService()
	first := register(t, svc)
	second := register(t, svc)
	require.Equal(t, "VIS-20240304-0001", first.VisitorNumber)
	require.Equal(t, "VIS-20240304-0002", second.VisitorNumber)
	require.Equal(t, "Dewi Lestari", first.Name)
	require.Equal(t, StatusExpected, first.Status)

	_, err := svc.Register(testCtx(), CreateVisitorRequest{Name: "x", Purpose: " ", HostName: "y"})
	requireCode(t, err, "VALIDATION_ERROR")
}

func TestVisitLifecycle(t *testing.T) {
	svc, now := newTestService()
	v := register(t, svc)

	in, err := svc.CheckIn(testCtx(), v.ID, CheckInRequest{BadgeNumber: "B-12"})
	require.NoError(t, err)
	require.Equal(t, StatusCheckedIn, in.Status)
	require.Equal(t, "B-12", in.BadgeNumber)
	require.NotNil(t, in.CheckInAt)

	*now = now.Add(95 * time.Minute)
	out, err := svc.CheckOut(testCtx(), v.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCheckedOut, out.Status)
	require.Equal(t, 95*time.Minute, out.Duration())

	_, err = svc.CheckIn(testCtx(), v.ID, CheckInRequest{})
	requireCode(t, err, "INVALID_STATUS_TRANSITION")
	_, err = svc.Cancel(testCtx(), v.ID)
	requireCode(t, err, "INVALID_STATUS_TRANSITION")
}

func TestCheckOutRequiresCheckIn(t *testing.T) {
	svc, _ := newTestService()
	v := register(t, svc)
	_, err := svc.CheckOut(testCtx(), v.ID)
	requireCode(t, err, "INVALID_STATUS_TRANSITION")

	cancelled, err := svc.Cancel(testCtx(), v.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, cancelled.Status)
	_, err = svc.Update(testCtx(), v.ID, UpdateVisitorRequest{})
	requireCode(t, err, "VISITOR_LOCKED")
}

func TestUpdateExpectedVisit(t *testing.T) {
	svc, _ := newTestService()
	v := register(t, svc)
	host := "Sari"
	updated, err := svc.Update(testCtx(), v.ID, UpdateVisitorRequest{HostName: &host})
	require.NoError(t, err)
	require.Equal(t, "Sari", updated.HostName)

	blank := ""
	_, err = svc.Update(testCtx(), v.ID, UpdateVisitorRequest{Name: &blank})
	requireCode(t, err, "VALIDATION_ERROR")
}

func TestVisitorsAreCompanyScoped(t *testing.T) {
	svc, _ := newTestService()
	v := register(t, svc)
	other := shared.ContextWithTenant(context.Background(), shared.Tenant{CompanyID: 2, UserID: 5})
	_, err := svc.Get(other, v.ID)
	requireCode(t, err, "NOT_FOUND")

	_, err = svc.Get(context.Background(), v.ID)
	require.ErrorIs(t, err, shared.ErrTenantRequired)
}

func TestStatsCountsOnSite(t *testing.T) {
	svc, _ := newTestService()
	a := register(t, svc)
	register(t, svc)
	_, err := svc.CheckIn(testCtx(), a.ID, CheckInRequest{})
	require.NoError(t, err)

	stats, err := svc.Stats(testCtx(), nil)
	require.NoError(t, err)
	require.Equal(t, "2024-03-04", stats.Date)
	require.Equal(t, 1, stats.Expected)
	require.Equal(t, 1, stats.OnSite)
}

func TestCheckInRoute(t *testing.T) {
	svc, _ := newTestService()
	v := register(t, svc)
	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(testCtx()))
		})
	})
	router.Route("/visitors", NewHandler(nil, svc, rbac.Middleware{}).MountRoutes)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/visitors/1/check-in", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var body struct {
		Data Visitor `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, v.ID, body.Data.ID)
	require.Equal(t, StatusCheckedIn, body.Data.Status)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/visitors/1/check-in", strings.NewReader(`{}`)))
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/visitors/abc/check-out", nil))
	require.Equal(t, http.StatusBadRequest, rr.Code)
}
