package redis

import (
	"context"

	"github.com/telar-hub/progression-engine/internal/domain/milestone"
	"github.com/telar-hub/progression-engine/internal/domain/shared"
)

// CachedProgressRepository is a write-through cache in front of the durable
// milestone.ProgressRepository. Reads hit Redis first and fall back to the
// inner repository; every Save writes both.
//
// A cache failure never fails the operation: the durable store is the
// source of truth and the cache entry just expires.
type CachedProgressRepository struct {
	cache *Cache
	inner milestone.ProgressRepository
}

// NewCachedProgressRepository wraps a durable repository with the Redis cache.
func NewCachedProgressRepository(cache *Cache, inner milestone.ProgressRepository) *CachedProgressRepository {
	return &CachedProgressRepository{
		cache: cache,
		inner: inner,
	}
}

// Get returns the vector from cache, falling back to the inner repository
// and repopulating the cache on a miss.
func (r *CachedProgressRepository) Get(ctx context.Context, userID shared.UserID) (milestone.Vector, error) {
	key := VectorKey(userID.String())

	// Any cache error degrades to the durable store.
	var vector milestone.Vector
	if err := r.cache.Get(ctx, key, &vector); err == nil {
		return vector, nil
	}

	vector, err := r.inner.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	_ = r.cache.Set(ctx, key, vector, TTLVectorCache)
	return vector, nil
}

// Save writes through to the inner repository first, then refreshes the
// cache entry.
func (r *CachedProgressRepository) Save(ctx context.Context, userID shared.UserID, vector milestone.Vector) error {
	if err := r.inner.Save(ctx, userID, vector); err != nil {
		return err
	}

	_ = r.cache.Set(ctx, VectorKey(userID.String()), vector, TTLVectorCache)
	return nil
}

// Invalidate drops the cached vector for a user.
func (r *CachedProgressRepository) Invalidate(ctx context.Context, userID shared.UserID) error {
	return r.cache.Delete(ctx, VectorKey(userID.String()))
}
