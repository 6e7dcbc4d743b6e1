package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/weiawesome/wes-io-live/relay-service/internal/cache"
	"github.com/weiawesome/wes-io-live/relay-service/internal/domain"
	"github.com/weiawesome/wes-io-live/relay-service/pkg/log"
)

// CachedStreamRepository puts a read-through cache in front of a
// StreamRepository. Writes go to the database first and then invalidate
// the cached entry.
type CachedStreamRepository struct {
	repo     StreamRepository
	cache    cache.StreamCache
	cacheTTL time.Duration
	sf       singleflight.Group
}

func NewCachedStreamRepository(repo StreamRepository, streamCache cache.StreamCache, cacheTTL time.Duration) *CachedStreamRepository {
	return &CachedStreamRepository{
		repo:     repo,
		cache:    streamCache,
		cacheTTL: cacheTTL,
	}
}

func (r *CachedStreamRepository) GetByID(ctx context.Context, id string) (*domain.Stream, error) {
	cacheKey := r.cache.BuildKeyByID(id)

	// Use singleflight to prevent duplicate requests for the same key
	result, err, _ := r.sf.Do(cacheKey, func() (interface{}, error) {
		return r.fetchWithCache(ctx, id, cacheKey)
	})
	if err != nil {
		return nil, err
	}

	cacheResult, ok := result.(*cache.StreamCacheResult)
	if !ok {
		return nil, fmt.Errorf("unexpected result type from singleflight")
	}

	stream := cacheResult.Stream
	return &stream, nil
}

func (r *CachedStreamRepository) fetchWithCache(ctx context.Context, id, cacheKey string) (*cache.StreamCacheResult, error) {
	cached, err := r.cache.Get(ctx, cacheKey)
	if err == nil {
		return cached, nil
	}

	if !errors.Is(err, cache.ErrCacheMiss) {
		// Log error but continue to fetch from DB
		l := log.Ctx(ctx)
		l.Warn().Err(err).Str(log.FieldRoomID, id).Msg("cache get error")
	}

	stream, err := r.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	result := &cache.StreamCacheResult{Stream: *stream}

	// Store in cache (async to avoid blocking response)
	go func() {
		cacheCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := r.cache.Set(cacheCtx, cacheKey, result, r.cacheTTL); err != nil {
			l := log.L()
			l.Warn().Err(err).Msg("cache set error")
		}
	}()

	return result, nil
}

func (r *CachedStreamRepository) List(ctx context.Context) ([]domain.Stream, error) {
	return r.repo.List(ctx)
}

func (r *CachedStreamRepository) SetLive(ctx context.Context, id string, live bool, broadcasterID string) error {
	if err := r.repo.SetLive(ctx, id, live, broadcasterID); err != nil {
		return err
	}

	if err := r.cache.Delete(ctx, r.cache.BuildKeyByID(id)); err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Str(log.FieldRoomID, id).Msg("cache invalidate error")
	}
	return nil
}

func (r *CachedStreamRepository) ClearLive(ctx context.Context) ([]string, error) {
	ids, err := r.repo.ClearLive(ctx)
	if err != nil {
		return nil, err
	}

	for _, id := range ids {
		if err := r.cache.Delete(ctx, r.cache.BuildKeyByID(id)); err != nil {
			l := log.Ctx(ctx)
			l.Warn().Err(err).Str(log.FieldRoomID, id).Msg("cache invalidate error")
		}
	}
	return ids, nil
}

func (r *CachedStreamRepository) Seed(ctx context.Context, streams []domain.Stream) (int, error) {
	return r.repo.Seed(ctx, streams)
}
