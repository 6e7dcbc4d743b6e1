package cache

import (
	"context"
	"time"

	"github.com/weiawesome/wes-io-live/relay-service/internal/domain"
)

type StreamCacheResult struct {
	Stream domain.Stream `json:"stream"`
}

type StreamCache interface {
	Get(ctx context.Context, key string) (*StreamCacheResult, error)
	Set(ctx context.Context, key string, result *StreamCacheResult, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	BuildKeyByID(streamID string) string
}
