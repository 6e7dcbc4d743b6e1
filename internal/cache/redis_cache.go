package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrCacheMiss = errors.New("cache miss")

type RedisStreamCache struct {
	client *redis.Client
	prefix string
}

// NewRedisStreamCache wraps a client owned by the caller.
func NewRedisStreamCache(client *redis.Client, prefix string) *RedisStreamCache {
	return &RedisStreamCache{
		client: client,
		prefix: prefix,
	}
}

func (c *RedisStreamCache) BuildKeyByID(streamID string) string {
	return fmt.Sprintf("%sid:%s", c.prefix, streamID)
}

func (c *RedisStreamCache) Get(ctx context.Context, key string) (*StreamCacheResult, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("failed to get from redis: %w", err)
	}

	var result StreamCacheResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cache data: %w", err)
	}

	return &result, nil
}

func (c *RedisStreamCache) Set(ctx context.Context, key string, result *StreamCacheResult, ttl time.Duration) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal cache data: %w", err)
	}

	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set in redis: %w", err)
	}

	return nil
}

func (c *RedisStreamCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete from redis: %w", err)
	}

	return nil
}
