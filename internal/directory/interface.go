package directory

import "context"

// Directory advertises which relay instance hosts which rooms.
type Directory interface {
	Register(ctx context.Context, roomID string) error
	Deregister(ctx context.Context, roomID string) error
	Lookup(ctx context.Context, roomID string) (string, error)
	StartHeartbeat(ctx context.Context, rooms func() []string) error
	StopHeartbeat()
	Close() error
}
