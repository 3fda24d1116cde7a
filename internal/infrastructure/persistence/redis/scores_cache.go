package redis

import (
	"context"

	"github.com/telar-hub/progression-engine/internal/domain/maturity"
	"github.com/telar-hub/progression-engine/internal/domain/shared"
)

// CachedScoresRepository is a write-through cache in front of the durable
// maturity.ScoresRepository, same shape as CachedProgressRepository.
type CachedScoresRepository struct {
	cache *Cache
	inner maturity.ScoresRepository
}

// NewCachedScoresRepository wraps a durable repository with the Redis cache.
func NewCachedScoresRepository(cache *Cache, inner maturity.ScoresRepository) *CachedScoresRepository {
	return &CachedScoresRepository{
		cache: cache,
		inner: inner,
	}
}

// Get returns the scores from cache, falling back to the inner repository
// and repopulating the cache on a miss.
func (r *CachedScoresRepository) Get(ctx context.Context, userID shared.UserID) (*maturity.Scores, error) {
	key := ScoresKey(userID.String())

	// Any cache error degrades to the durable store.
	var scores maturity.Scores
	if err := r.cache.Get(ctx, key, &scores); err == nil {
		return &scores, nil
	}

	fresh, err := r.inner.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	_ = r.cache.Set(ctx, key, fresh, TTLScoresCache)
	return fresh, nil
}

// Save writes through to the inner repository first, then refreshes the
// cache entry.
func (r *CachedScoresRepository) Save(ctx context.Context, scores *maturity.Scores) error {
	if err := r.inner.Save(ctx, scores); err != nil {
		return err
	}

	_ = r.cache.Set(ctx, ScoresKey(scores.UserID.String()), scores, TTLScoresCache)
	return nil
}

// Invalidate drops the cached scores for a user.
func (r *CachedScoresRepository) Invalidate(ctx context.Context, userID shared.UserID) error {
	return r.cache.Delete(ctx, ScoresKey(userID.String()))
}
