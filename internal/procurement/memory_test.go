package procurement

import (
	"context"
	"errors"
	"sync"

	"github.com/odyssey-erp/factory-erp/internal/shared"
)

// memoryRepo implements RepositoryPort and TxRepository without a database.
// WithTx restores the previous orders when fn fails.
type memoryRepo struct {
	mu          sync.Mutex
	orders      map[int64]PurchaseOrder
	receipts    []Receipt
	next        int64
	nextLine    int64
	failReceipt bool
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{orders: map[int64]PurchaseOrder{}}
}

func clonePO(po PurchaseOrder) PurchaseOrder {
	po.Lines = append([]Line(nil), po.Lines...)
	return po
}

func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	m.mu.Lock()
	snapshot := make(map[int64]PurchaseOrder, len(m.orders))
	for id, po := range m.orders {
		snapshot[id] = clonePO(po)
	}
	m.mu.Unlock()
	if err := fn(ctx, m); err != nil {
		m.mu.Lock()
		m.orders = snapshot
		m.mu.Unlock()
		return err
	}
	return nil
}

func (m *memoryRepo) GetPO(_ context.Context, companyID, id int64) (PurchaseOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	po, ok := m.orders[id]
	if !ok || po.CompanyID != companyID {
		return PurchaseOrder{}, ErrNotFound
	}
	return clonePO(po), nil
}

func (m *memoryRepo) GetPOForUpdate(ctx context.Context, companyID, id int64) (PurchaseOrder, error) {
	return m.GetPO(ctx, companyID, id)
}

func (m *memoryRepo) ListPOs(_ context.Context, companyID int64, filter ListFilter, _ shared.Page) ([]PurchaseOrder, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []PurchaseOrder
	for _, po := range m.orders {
		if po.CompanyID == companyID && (filter.Status == "" || po.Status == filter.Status) {
			out = append(out, clonePO(po))
		}
	}
	return out, len(out), nil
}

func (m *memoryRepo) DeletePO(_ context.Context, companyID, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if po, ok := m.orders[id]; !ok || po.CompanyID != companyID {
		return ErrNotFound
	}
	delete(m.orders, id)
	return nil
}

func (m *memoryRepo) ListReceipts(_ context.Context, companyID, poID int64) ([]Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Receipt
	for _, rc := range m.receipts {
		if rc.CompanyID == companyID && rc.POID == poID {
			out = append(out, rc)
		}
	}
	return out, nil
}

func (m *memoryRepo) Stats(_ context.Context, companyID int64) (Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	byStatus := map[Status]*statusValue{}
	for _, po := range m.orders {
		if po.CompanyID != companyID {
			continue
		}
		v, ok := byStatus[po.Status]
		if !ok {
			v = &statusValue{Status: po.Status}
			byStatus[po.Status] = v
		}
		v.Count++
		v.Value = v.Value.Add(po.GrandTotal)
	}
	values := make([]statusValue, 0, len(byStatus))
	for _, v := range byStatus {
		values = append(values, *v)
	}
	return summarise(values), nil
}

func (m *memoryRepo) CreatePO(_ context.Context, po PurchaseOrder) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	po.ID = m.next
	m.orders[po.ID] = clonePO(po)
	return po.ID, nil
}

func (m *memoryRepo) UpdatePO(_ context.Context, po PurchaseOrder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.orders[po.ID]
	if !ok {
		return ErrNotFound
	}
	po.Lines = existing.Lines
	m.orders[po.ID] = po
	return nil
}

func (m *memoryRepo) ReplaceLines(_ context.Context, poID int64, lines []Line) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	po := m.orders[poID]
	po.Lines = make([]Line, len(lines))
	for i, l := range lines {
		m.nextLine++
		l.ID = m.nextLine
		po.Lines[i] = l
	}
	m.orders[poID] = po
	return nil
}

func (m *memoryRepo) SetReceivedQuantity(_ context.Context, line Line) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, po := range m.orders {
		for i := range po.Lines {
			if po.Lines[i].ID == line.ID {
				po.Lines[i].ReceivedQuantity = line.ReceivedQuantity
				m.orders[id] = po
				return nil
			}
		}
	}
	return ErrNotFound
}

func (m *memoryRepo) InsertReceipt(_ context.Context, rc Receipt) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failReceipt {
		return 0, errors.New("receipt insert failed")
	}
	rc.ID = int64(len(m.receipts) + 1)
	m.receipts = append(m.receipts, rc)
	return rc.ID, nil
}
