package directory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/weiawesome/wes-io-live/relay-service/internal/config"
	"github.com/weiawesome/wes-io-live/relay-service/pkg/log"
)

// ErrNotFound is returned by Lookup when no instance advertises the room.
var ErrNotFound = errors.New("room not hosted")

// RedisDirectory stores one key per hosted room, valued with this
// instance's address. Keys expire unless the heartbeat refreshes them, so a
// crashed instance drops out of the directory after KeyTTL.
type RedisDirectory struct {
	client            *redis.Client
	advertiseAddress  string
	prefix            string
	keyTTL            time.Duration
	heartbeatInterval time.Duration
	cancel            context.CancelFunc
	done              chan struct{}
}

func NewRedisDirectory(client *redis.Client, cfg config.DirectoryConfig) *RedisDirectory {
	return &RedisDirectory{
		client:            client,
		advertiseAddress:  cfg.AdvertiseAddress,
		prefix:            cfg.Prefix,
		keyTTL:            cfg.KeyTTL,
		heartbeatInterval: cfg.HeartbeatInterval,
	}
}

func (d *RedisDirectory) keyFor(roomID string) string {
	return fmt.Sprintf("%s:room:%s", d.prefix, roomID)
}

func (d *RedisDirectory) Register(ctx context.Context, roomID string) error {
	if err := d.client.Set(ctx, d.keyFor(roomID), d.advertiseAddress, d.keyTTL).Err(); err != nil {
		return fmt.Errorf("failed to register room: %w", err)
	}

	l := log.Ctx(ctx)
	l.Debug().Str(log.FieldRoomID, roomID).Str("address", d.advertiseAddress).Msg("registered room")
	return nil
}

// Deregister removes the key only while it still points at this instance.
func (d *RedisDirectory) Deregister(ctx context.Context, roomID string) error {
	key := d.keyFor(roomID)

	addr, err := d.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to deregister room: %w", err)
	}
	if addr != d.advertiseAddress {
		return nil
	}

	if err := d.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to deregister room: %w", err)
	}

	l := log.Ctx(ctx)
	l.Debug().Str(log.FieldRoomID, roomID).Msg("deregistered room")
	return nil
}

func (d *RedisDirectory) Lookup(ctx context.Context, roomID string) (string, error) {
	addr, err := d.client.Get(ctx, d.keyFor(roomID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("room %s: %w", roomID, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("failed to lookup room: %w", err)
	}
	return addr, nil
}

// StartHeartbeat re-registers every room returned by rooms on each tick.
// The in-memory registry is the source of truth, so a missed Deregister
// only leaves a key behind until it expires.
func (d *RedisDirectory) StartHeartbeat(ctx context.Context, rooms func() []string) error {
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.done = make(chan struct{})

	go d.heartbeatLoop(ctx, rooms)
	l := log.L()
	l.Info().Dur("interval", d.heartbeatInterval).Dur("ttl", d.keyTTL).Msg("directory heartbeat started")
	return nil
}

func (d *RedisDirectory) heartbeatLoop(ctx context.Context, rooms func() []string) {
	defer close(d.done)

	ticker := time.NewTicker(d.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.refresh(ctx, rooms())
		}
	}
}

func (d *RedisDirectory) refresh(ctx context.Context, roomIDs []string) {
	if len(roomIDs) == 0 {
		return
	}

	pipe := d.client.Pipeline()
	for _, id := range roomIDs {
		pipe.Set(ctx, d.keyFor(id), d.advertiseAddress, d.keyTTL)
	}
	if _, err := pipe.Exec(ctx); err != nil && ctx.Err() == nil {
		l := log.L()
		l.Error().Err(err).Int("rooms", len(roomIDs)).Msg("failed to refresh directory")
	}
}

func (d *RedisDirectory) StopHeartbeat() {
	if d.cancel != nil {
		d.cancel()
		<-d.done
		d.cancel = nil
	}
}

// Close stops the heartbeat. The Redis client is owned by the caller.
func (d *RedisDirectory) Close() error {
	d.StopHeartbeat()
	return nil
}
