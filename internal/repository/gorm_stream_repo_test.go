package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/weiawesome/wes-io-live/relay-service/internal/cache"
	"github.com/weiawesome/wes-io-live/relay-service/internal/domain"
	"github.com/weiawesome/wes-io-live/relay-service/pkg/database"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.New(&database.Config{
		Driver:   "sqlite",
		FilePath: filepath.Join(t.TempDir(), "relay.db"),
		LogLevel: "silent",
	})
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db, &domain.StreamModel{}))
	t.Cleanup(func() { database.Close(db) })
	return db
}

func TestGormStreamRepository_SeedOnlyWhenEmpty(t *testing.T) {
	repo := NewGormStreamRepository(newTestDB(t))
	ctx := context.Background()

	n, err := repo.Seed(ctx, domain.DefaultStreams())
	require.NoError(t, err)
	require.Equal(t, 3, n)

	n, err = repo.Seed(ctx, domain.DefaultStreams())
	require.NoError(t, err)
	require.Zero(t, n)

	streams, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, streams, 3)
	require.Equal(t, "1", streams[0].ID)
	require.Equal(t, "Uffizi Gallery", streams[0].Title)
	require.False(t, streams[0].IsLive)
}

func TestGormStreamRepository_SetLive(t *testing.T) {
	repo := NewGormStreamRepository(newTestDB(t))
	ctx := context.Background()
	_, err := repo.Seed(ctx, domain.DefaultStreams())
	require.NoError(t, err)

	require.NoError(t, repo.SetLive(ctx, "2", true, "user-7"))
	s, err := repo.GetByID(ctx, "2")
	require.NoError(t, err)
	require.True(t, s.IsLive)
	require.Equal(t, "user-7", s.BroadcasterID)

	// Writing the same value again still succeeds.
	require.NoError(t, repo.SetLive(ctx, "2", true, "user-7"))

	require.NoError(t, repo.SetLive(ctx, "2", false, "user-7"))
	s, err = repo.GetByID(ctx, "2")
	require.NoError(t, err)
	require.False(t, s.IsLive)
	require.Empty(t, s.BroadcasterID)

	require.ErrorIs(t, repo.SetLive(ctx, "404", true, "user-7"), ErrStreamNotFound)
	_, err = repo.GetByID(ctx, "404")
	require.ErrorIs(t, err, ErrStreamNotFound)
}

func TestCachedStreamRepository_ReadThroughAndInvalidate(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	base := NewGormStreamRepository(newTestDB(t))
	streamCache := cache.NewRedisStreamCache(client, "relay:stream:")
	repo := NewCachedStreamRepository(base, streamCache, time.Minute)
	ctx := context.Background()

	_, err := repo.Seed(ctx, domain.DefaultStreams())
	require.NoError(t, err)

	s, err := repo.GetByID(ctx, "1")
	require.NoError(t, err)
	require.False(t, s.IsLive)

	key := streamCache.BuildKeyByID("1")
	require.Eventually(t, func() bool { return mr.Exists(key) }, time.Second, 10*time.Millisecond)

	require.NoError(t, repo.SetLive(ctx, "1", true, "user-1"))
	require.False(t, mr.Exists(key))

	s, err = repo.GetByID(ctx, "1")
	require.NoError(t, err)
	require.True(t, s.IsLive)

	_, err = repo.GetByID(ctx, "404")
	require.ErrorIs(t, err, ErrStreamNotFound)
}

func TestGormStreamRepository_ClearLive(t *testing.T) {
	repo := NewGormStreamRepository(newTestDB(t))
	ctx := context.Background()
	_, err := repo.Seed(ctx, domain.DefaultStreams())
	require.NoError(t, err)

	ids, err := repo.ClearLive(ctx)
	require.NoError(t, err)
	require.Empty(t, ids)

	require.NoError(t, repo.SetLive(ctx, "1", true, "user-1"))
	require.NoError(t, repo.SetLive(ctx, "3", true, "user-3"))

	ids, err = repo.ClearLive(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"1", "3"}, ids)

	streams, err := repo.List(ctx)
	require.NoError(t, err)
	for _, s := range streams {
		require.False(t, s.IsLive, s.ID)
		require.Empty(t, s.BroadcasterID, s.ID)
	}
}

func TestCachedStreamRepository_ClearLiveInvalidates(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	base := NewGormStreamRepository(newTestDB(t))
	streamCache := cache.NewRedisStreamCache(client, "relay:stream:")
	repo := NewCachedStreamRepository(base, streamCache, time.Minute)
	ctx := context.Background()

	_, err := repo.Seed(ctx, domain.DefaultStreams())
	require.NoError(t, err)
	require.NoError(t, repo.SetLive(ctx, "2", true, "user-2"))

	s, err := repo.GetByID(ctx, "2")
	require.NoError(t, err)
	require.True(t, s.IsLive)
	key := streamCache.BuildKeyByID("2")
	require.Eventually(t, func() bool { return mr.Exists(key) }, time.Second, 10*time.Millisecond)

	ids, err := repo.ClearLive(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"2"}, ids)
	require.False(t, mr.Exists(key))

	s, err = repo.GetByID(ctx, "2")
	require.NoError(t, err)
	require.False(t, s.IsLive)
}
