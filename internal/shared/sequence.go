package shared

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// SequenceStore hands out per company/doc-type/period counters.
type SequenceStore interface {
	Next(ctx context.Context, companyID int64, docType, period string) (int64, error)
}

// PGSequenceStore increments counters in document_sequences.
type PGSequenceStore struct {
	pool *pgxpool.Pool
}

// NewPGSequenceStore constructs the store.
func NewPGSequenceStore(pool *pgxpool.Pool) *PGSequenceStore {
	return &PGSequenceStore{pool: pool}
}

// Next bumps the counter atomically and returns the new value.
func (s *PGSequenceStore) Next(ctx context.Context, companyID int64, docType, period string) (int64, error) {
	var seq int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO document_sequences (company_id, doc_type, period, seq)
		VALUES ($1, $2, $3, 1)
		ON CONFLICT (company_id, doc_type, period)
		DO UPDATE SET seq = document_sequences.seq + 1
		RETURNING seq`, companyID, docType, period).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("next sequence %s/%s: %w", docType, period, err)
	}
	return seq, nil
}

// MemorySequenceStore is an in-process SequenceStore used by tests and tooling.
type MemorySequenceStore struct {
	mu   sync.Mutex
	seqs map[string]int64
}

// NewMemorySequenceStore constructs an empty store.
func NewMemorySequenceStore() *MemorySequenceStore {
	return &MemorySequenceStore{seqs: make(map[string]int64)}
}

// Next implements SequenceStore.
func (s *MemorySequenceStore) Next(_ context.Context, companyID int64, docType, period string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := fmt.Sprintf("%d:%s:%s", companyID, docType, period)
	s.seqs[key]++
	return s.seqs[key], nil
}

// Numberer formats document numbers from a SequenceStore.
type Numberer struct {
	store SequenceStore
	now   func() time.Time
}

// NewNumberer builds a Numberer. now defaults to time.Now in UTC.
func NewNumberer(store SequenceStore, now func() time.Time) *Numberer {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Numberer{store: store, now: now}
}

// Daily returns numbers like PO-20240115-0007, restarting every day.
func (n *Numberer) Daily(ctx context.Context, companyID int64, prefix string) (string, error) {
	period := n.now().Format("20060102")
	seq, err := n.store.Next(ctx, companyID, prefix, period)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%s-%04d", prefix, period, seq), nil
}

// Monthly returns numbers like IN2024010001, restarting every month.
func (n *Numberer) Monthly(ctx context.Context, companyID int64, prefix string) (string, error) {
	period := n.now().Format("200601")
	seq, err := n.store.Next(ctx, companyID, prefix, period)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s%s%04d", prefix, period, seq), nil
}
