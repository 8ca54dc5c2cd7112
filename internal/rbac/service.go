package rbac

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/factory-erp/internal/platform/cache"
)

// Store resolves the permission masks granted to a user.
type Store interface {
	UserPermissions(ctx context.Context, companyID, userID int64) (PermissionSet, error)
}

// PGStore reads role grants from PostgreSQL.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore constructs PGStore.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// UserPermissions ORs the masks of every role assigned to the user.
func (s *PGStore) UserPermissions(ctx context.Context, companyID, userID int64) (PermissionSet, error) {
	rows, err := s.pool.Query(ctx, `SELECT rp.module, BIT_OR(rp.mask)
FROM user_roles ur
JOIN roles r ON r.id = ur.role_id AND r.company_id = ur.company_id
JOIN role_permissions rp ON rp.role_id = r.id
WHERE ur.company_id = $1 AND ur.user_id = $2
GROUP BY rp.module`, companyID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	set := PermissionSet{}
	for rows.Next() {
		var module string
		var mask int32
		if err := rows.Scan(&module, &mask); err != nil {
			return nil, err
		}
		set[Module(module)] = Action(mask)
	}
	return set, rows.Err()
}

// Service answers permission questions, caching resolved sets briefly.
type Service struct {
	store Store
	cache *cache.EntityCache
}

// NewService constructs a Service. permCache may be built with a nil client.
func NewService(store Store, permCache *cache.EntityCache) *Service {
	if permCache == nil {
		permCache = cache.NewEntityCache(nil, "rbac", time.Minute)
	}
	return &Service{store: store, cache: permCache}
}

// EffectivePermissions returns the merged permission set of a user.
func (s *Service) EffectivePermissions(ctx context.Context, companyID, userID int64) (PermissionSet, error) {
	set := PermissionSet{}
	err := s.cache.Fetch(ctx, s.cache.Key(companyID, userID), &set, func(ctx context.Context) (any, error) {
		return s.store.UserPermissions(ctx, companyID, userID)
	})
	if err != nil {
		return nil, fmt.Errorf("rbac: effective permissions: %w", err)
	}
	return set, nil
}

// Allowed reports whether the user may perform action on module.
func (s *Service) Allowed(ctx context.Context, companyID, userID int64, module Module, action Action) (bool, error) {
	set, err := s.EffectivePermissions(ctx, companyID, userID)
	if err != nil {
		return false, err
	}
	return set.Allows(module, action), nil
}

// Forget drops cached permissions for the users, used after role changes.
func (s *Service) Forget(ctx context.Context, companyID int64, userIDs ...int64) error {
	keys := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		keys = append(keys, s.cache.Key(companyID, id))
	}
	return s.cache.Invalidate(ctx, keys...)
}
