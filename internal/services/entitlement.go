package services

import (
	"context"
	"errors"
	"time"

	"github.com/postline/postline/internal/core"
	"github.com/postline/postline/internal/store"
)

const entitlementCacheTTL = 5 * time.Minute

// EntitlementService answers how many connections a user's plan allows.
// Plan rows change rarely, so lookups go through a short-lived cache.
type EntitlementService struct {
	store     *store.Store
	cache     core.Cache[int]
	freeLimit int
}

// NewEntitlementService creates a new entitlement service. freeLimit is the
// connection cap for free-plan users; 0 disables the cap entirely.
func NewEntitlementService(s *store.Store, cache core.Cache[int], freeLimit int) *EntitlementService {
	return &EntitlementService{
		store:     s,
		cache:     cache,
		freeLimit: freeLimit,
	}
}

// ConnectionLimit returns the maximum number of connections the user may
// hold. 0 means unlimited. Users without a row are treated as free-plan;
// a connect attempt for a nonexistent user fails later on the upsert's
// foreign key, not here.
func (s *EntitlementService) ConnectionLimit(ctx context.Context, userID string) (int, error) {
	return s.cache.GetWithFetch(ctx, "entitlement:limit:"+userID, entitlementCacheTTL,
		func(ctx context.Context, _ string) (int, error) {
			user, err := s.store.GetUserByID(userID)
			if err != nil {
				if errors.Is(err, store.ErrRecordNotFound) {
					return s.freeLimit, nil
				}
				return 0, err
			}
			if user.IsFreePlan() {
				return s.freeLimit, nil
			}
			return 0, nil
		})
}

// Invalidate drops the cached limit for a user, for plan-change hooks.
func (s *EntitlementService) Invalidate(ctx context.Context, userID string) {
	_ = s.cache.Delete(ctx, "entitlement:limit:"+userID)
}
