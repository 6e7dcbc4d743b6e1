package kafka

import (
	"context"

	"github.com/weiawesome/wes-io-live/relay-service/internal/domain"
)

type LifecycleProducer interface {
	ProduceLifecycle(ctx context.Context, evt *domain.LifecycleEvent) error
	Close() error
}
