package repository

import (
	"context"

	"github.com/weiawesome/wes-io-live/relay-service/internal/domain"
)

var (
	ErrStreamNotFound = domain.ErrStreamNotFound
)

// StreamRepository is the durable registry of streams.
type StreamRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Stream, error)
	List(ctx context.Context) ([]domain.Stream, error)
	SetLive(ctx context.Context, id string, live bool, broadcasterID string) error
	// Seed inserts streams only when the registry is empty and returns how
	// many were inserted.
	Seed(ctx context.Context, streams []domain.Stream) (int, error)
	// ClearLive marks every stream still flagged live as offline and returns
	// the ids it changed.
	ClearLive(ctx context.Context) ([]string, error)
}
