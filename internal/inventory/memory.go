package inventory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/factory-erp/internal/shared"
)

// MemoryRepository is an in-process RepositoryPort used by tests and tooling.
// Transactions are serialised by a single mutex and rolled back by restoring
// a snapshot.
type MemoryRepository struct {
	mu        sync.Mutex
	items     map[int64]Item
	movements []Movement
	nextItem  int64
	nextMove  int64
}

// NewMemoryRepository constructs an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{items: make(map[int64]Item)}
}

type memoryTx struct {
	repo *MemoryRepository
}

// WithTx runs fn holding the repository lock.
func (r *MemoryRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	items := make(map[int64]Item, len(r.items))
	for k, v := range r.items {
		items[k] = v
	}
	movements := len(r.movements)
	nextMove := r.nextMove
	if err := fn(ctx, &memoryTx{repo: r}); err != nil {
		r.items = items
		r.movements = r.movements[:movements]
		r.nextMove = nextMove
		return err
	}
	return nil
}

func (r *MemoryRepository) CreateItem(_ context.Context, item Item) (Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.items {
		if existing.CompanyID == item.CompanyID && existing.ItemCode == item.ItemCode {
			return Item{}, ErrDuplicateCode
		}
	}
	r.nextItem++
	now := time.Now().UTC()
	item.ID = r.nextItem
	item.CreatedAt = now
	item.UpdatedAt = now
	r.items[item.ID] = item
	return item, nil
}

func (r *MemoryRepository) GetItem(_ context.Context, companyID, id int64) (Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.get(companyID, id)
}

func (r *MemoryRepository) get(companyID, id int64) (Item, error) {
	item, ok := r.items[id]
	if !ok || item.CompanyID != companyID {
		return Item{}, ErrItemNotFound
	}
	return item, nil
}

func (r *MemoryRepository) UpdateItem(_ context.Context, item Item) (Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, err := r.get(item.CompanyID, item.ID)
	if err != nil {
		return Item{}, err
	}
	existing.Name = item.Name
	existing.Description = item.Description
	existing.Category = item.Category
	existing.Unit = item.Unit
	existing.WarehouseID = item.WarehouseID
	existing.ReorderLevel = item.ReorderLevel
	existing.IsActive = item.IsActive
	existing.UpdatedAt = time.Now().UTC()
	r.items[item.ID] = existing
	return existing, nil
}

func (r *MemoryRepository) ListItems(_ context.Context, companyID int64, filter ListFilter, page shared.Page) ([]Item, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var matched []Item
	search := strings.ToLower(strings.TrimSpace(filter.Search))
	for _, item := range r.items {
		if item.CompanyID != companyID {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(item.ItemCode), search) && !strings.Contains(strings.ToLower(item.Name), search) {
			continue
		}
		if filter.Category != "" && item.Category != filter.Category {
			continue
		}
		if filter.WarehouseID != 0 && item.WarehouseID != filter.WarehouseID {
			continue
		}
		if filter.Active != nil && item.IsActive != *filter.Active {
			continue
		}
		if filter.LowStock && !item.LowStock() {
			continue
		}
		matched = append(matched, item)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ItemCode < matched[j].ItemCode })
	total := len(matched)
	start := page.Offset()
	if start > total {
		start = total
	}
	end := start + page.PerPage
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func (r *MemoryRepository) Reserve(_ context.Context, companyID, id int64, qty decimal.Decimal) (Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, err := r.get(companyID, id)
	if err != nil {
		return Item{}, err
	}
	if !item.IsActive {
		return item, ErrItemInactive
	}
	if item.CurrentStock.Sub(item.ReservedStock).LessThan(qty) {
		return item, ErrInsufficientStock
	}
	item.ReservedStock = item.ReservedStock.Add(qty)
	Recompute(&item)
	r.items[id] = item
	return item, nil
}

func (r *MemoryRepository) Release(_ context.Context, companyID, id int64, qty decimal.Decimal) (Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, err := r.get(companyID, id)
	if err != nil {
		return Item{}, err
	}
	item.ReservedStock = decimal.Max(item.ReservedStock.Sub(qty), decimal.Zero)
	Recompute(&item)
	r.items[id] = item
	return item, nil
}

func (r *MemoryRepository) ListMovements(_ context.Context, companyID, itemID int64, page shared.Page) ([]Movement, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var matched []Movement
	for i := len(r.movements) - 1; i >= 0; i-- {
		m := r.movements[i]
		if m.CompanyID == companyID && m.ItemID == itemID {
			matched = append(matched, m)
		}
	}
	total := len(matched)
	start := page.Offset()
	if start > total {
		start = total
	}
	end := start + page.PerPage
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func (r *MemoryRepository) GetMovement(_ context.Context, companyID, id int64) (Movement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.movements {
		if m.ID == id && m.CompanyID == companyID {
			return m, nil
		}
	}
	return Movement{}, ErrMovementNotFound
}

func (r *MemoryRepository) SetMovementApproval(_ context.Context, companyID, id int64, status ApprovalStatus, actorID int64, at time.Time) (Movement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, m := range r.movements {
		if m.ID == id && m.CompanyID == companyID {
			m.ApprovalStatus = status
			m.ApprovedBy = actorID
			m.ApprovedAt = &at
			r.movements[i] = m
			return m, nil
		}
	}
	return Movement{}, ErrMovementNotFound
}

func (r *MemoryRepository) Stats(_ context.Context, companyID int64) (Stats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stats := Stats{}
	categories := map[string]*CategoryValue{}
	for _, item := range r.items {
		if item.CompanyID != companyID {
			continue
		}
		stats.TotalItems++
		if !item.IsActive {
			continue
		}
		stats.ActiveItems++
		stats.TotalValue = stats.TotalValue.Add(item.TotalValue)
		stats.ReservedValue = stats.ReservedValue.Add(item.ReservedStock.Mul(item.AverageCost))
		if item.LowStock() {
			stats.LowStockItems++
		}
		if !item.CurrentStock.IsPositive() {
			stats.OutOfStockItems++
		}
		cv, ok := categories[item.Category]
		if !ok {
			cv = &CategoryValue{Category: item.Category}
			categories[item.Category] = cv
		}
		cv.ItemCount++
		cv.TotalValue = cv.TotalValue.Add(item.TotalValue)
	}
	for _, cv := range categories {
		stats.ByCategory = append(stats.ByCategory, *cv)
	}
	sort.Slice(stats.ByCategory, func(i, j int) bool { return stats.ByCategory[i].Category < stats.ByCategory[j].Category })
	stats.ReservedValue = stats.ReservedValue.Round(2)
	return stats, nil
}

// Movements returns a copy of every ledger entry in insertion order.
func (r *MemoryRepository) Movements() []Movement {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Movement, len(r.movements))
	copy(out, r.movements)
	return out
}

func (tx *memoryTx) GetItemForUpdate(_ context.Context, companyID, id int64) (Item, error) {
	return tx.repo.get(companyID, id)
}

func (tx *memoryTx) SaveStock(_ context.Context, item Item) error {
	if _, ok := tx.repo.items[item.ID]; !ok {
		return ErrItemNotFound
	}
	item.UpdatedAt = time.Now().UTC()
	tx.repo.items[item.ID] = item
	return nil
}

func (tx *memoryTx) InsertMovement(_ context.Context, m Movement) (Movement, error) {
	tx.repo.nextMove++
	m.ID = tx.repo.nextMove
	m.CreatedAt = time.Now().UTC()
	tx.repo.movements = append(tx.repo.movements, m)
	return m, nil
}
