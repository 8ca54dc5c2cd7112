package shared

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// IdempotencyPort guards replayed client requests.
type IdempotencyPort interface {
	Claim(ctx context.Context, companyID int64, module, key string) error
	Release(ctx context.Context, companyID int64, module, key string) error
}

// IdempotencyStore persists processed keys.
type IdempotencyStore struct {
	pool *pgxpool.Pool
}

// NewIdempotencyStore constructs the store.
func NewIdempotencyStore(pool *pgxpool.Pool) *IdempotencyStore {
	return &IdempotencyStore{pool: pool}
}

// ErrIdempotencyConflict indicates a duplicate key.
var ErrIdempotencyConflict = errors.New("idempotent request already processed")

// Claim records key for the company/module, failing when it already exists.
func (s *IdempotencyStore) Claim(ctx context.Context, companyID int64, module, key string) error {
	if s == nil {
		return errors.New("idempotency store not initialised")
	}
	if key == "" || module == "" {
		return errors.New("idempotency key and module required")
	}
	_, err := s.pool.Exec(ctx, `INSERT INTO idempotency_keys (company_id, module, key, created_at) VALUES ($1, $2, $3, $4)`,
		companyID, module, key, time.Now().UTC())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Conflict("request already processed", ErrIdempotencyConflict)
		}
		return err
	}
	return nil
}

// Release removes a key, used to roll back failed processing.
func (s *IdempotencyStore) Release(ctx context.Context, companyID int64, module, key string) error {
	if s == nil || key == "" {
		return nil
	}
	_, err := s.pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE company_id=$1 AND module=$2 AND key=$3`, companyID, module, key)
	return err
}

// Cleanup removes entries older than retention.
func (s *IdempotencyStore) Cleanup(ctx context.Context, olderThan time.Duration) error {
	if s == nil {
		return nil
	}
	cutoff := time.Now().Add(-olderThan)
	_, err := s.pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE created_at < $1`, cutoff)
	return err
}

// MemoryIdempotencyStore keeps keys in process memory.
type MemoryIdempotencyStore struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

// NewMemoryIdempotencyStore returns an empty store.
func NewMemoryIdempotencyStore() *MemoryIdempotencyStore {
	return &MemoryIdempotencyStore{keys: make(map[string]struct{})}
}

func (s *MemoryIdempotencyStore) Claim(_ context.Context, companyID int64, module, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := fmt.Sprintf("%d:%s:%s", companyID, module, key)
	if _, ok := s.keys[k]; ok {
		return Conflict("request already processed", ErrIdempotencyConflict)
	}
	s.keys[k] = struct{}{}
	return nil
}

func (s *MemoryIdempotencyStore) Release(_ context.Context, companyID int64, module, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.keys, fmt.Sprintf("%d:%s:%s", companyID, module, key))
	return nil
}
