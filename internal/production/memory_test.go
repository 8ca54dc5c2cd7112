package production

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/odyssey-erp/factory-erp/internal/shared"
)

type memoryRepo struct {
	mu     sync.Mutex
	orders map[int64]Order
	next   int64
	saves  int
	failOn int
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{orders: make(map[int64]Order)}
}

func cloneOrder(o Order) Order {
	o.RawMaterials = append([]RawMaterial(nil), o.RawMaterials...)
	o.Stages = append([]Stage(nil), o.Stages...)
	return o
}

func (r *memoryRepo) Create(_ context.Context, o Order) (Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	o.ID = r.next
	o.CreatedAt = time.Now().UTC()
	o.UpdatedAt = o.CreatedAt
	r.orders[o.ID] = cloneOrder(o)
	return cloneOrder(o), nil
}

func (r *memoryRepo) Get(_ context.Context, companyID, id int64) (Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok || o.CompanyID != companyID {
		return Order{}, ErrNotFound
	}
	return cloneOrder(o), nil
}

func (r *memoryRepo) Save(_ context.Context, o Order) (Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saves++
	if r.failOn > 0 && r.saves == r.failOn {
		return Order{}, context.DeadlineExceeded
	}
	if existing, ok := r.orders[o.ID]; !ok || existing.CompanyID != o.CompanyID {
		return Order{}, ErrNotFound
	}
	o.UpdatedAt = time.Now().UTC()
	r.orders[o.ID] = cloneOrder(o)
	return cloneOrder(o), nil
}

func (r *memoryRepo) Delete(_ context.Context, companyID, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if o, ok := r.orders[id]; !ok || o.CompanyID != companyID {
		return ErrNotFound
	}
	delete(r.orders, id)
	return nil
}

func (r *memoryRepo) List(_ context.Context, companyID int64, filter ListFilter, page shared.Page) ([]Order, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Order
	for _, o := range r.orders {
		if o.CompanyID != companyID {
			continue
		}
		if filter.Status != "" && o.Status != filter.Status {
			continue
		}
		if filter.Search != "" && !strings.Contains(strings.ToLower(o.ProductName), strings.ToLower(filter.Search)) {
			continue
		}
		out = append(out, cloneOrder(o))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	total := len(out)
	start := page.Offset()
	if start > total {
		start = total
	}
	end := start + page.PerPage
	if end > total {
		end = total
	}
	return out[start:end], total, nil
}

func (r *memoryRepo) Stats(_ context.Context, companyID int64) (Stats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stats := Stats{ByStatus: map[Status]int{}}
	for _, o := range r.orders {
		if o.CompanyID != companyID {
			continue
		}
		stats.TotalOrders++
		stats.ByStatus[o.Status]++
		stats.PlannedQuantity = stats.PlannedQuantity.Add(o.OrderQuantity)
		stats.CompletedQuantity = stats.CompletedQuantity.Add(o.CompletedQuantity)
		stats.RejectedQuantity = stats.RejectedQuantity.Add(o.RejectedQuantity)
		stats.TotalCost = stats.TotalCost.Add(o.Cost.TotalCost)
	}
	return stats, nil
}
