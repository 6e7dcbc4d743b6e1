package handler

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/wes-io-live/relay-service/internal/config"
	"github.com/weiawesome/wes-io-live/relay-service/internal/domain"
	"github.com/weiawesome/wes-io-live/relay-service/internal/hub"
	"github.com/weiawesome/wes-io-live/relay-service/internal/identity"
	"github.com/weiawesome/wes-io-live/relay-service/internal/metrics"
	"github.com/weiawesome/wes-io-live/relay-service/internal/repository"
	"github.com/weiawesome/wes-io-live/relay-service/internal/service"
	"github.com/weiawesome/wes-io-live/relay-service/pkg/database"
	"github.com/weiawesome/wes-io-live/relay-service/pkg/jwt"
	"github.com/weiawesome/wes-io-live/relay-service/pkg/log"
)

const testInternalToken = "internal-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	server   *httptest.Server
	registry *hub.Registry
	repo     repository.StreamRepository
	jwt      *jwt.Manager
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	db, err := database.New(&database.Config{
		Driver:   "sqlite",
		FilePath: filepath.Join(t.TempDir(), "relay.db"),
		LogLevel: "silent",
	})
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db, &domain.StreamModel{}))
	t.Cleanup(func() { database.Close(db) })

	repo := repository.NewGormStreamRepository(db)
	_, err = repo.Seed(context.Background(), domain.DefaultStreams())
	require.NoError(t, err)

	manager, err := jwt.NewManager("test-secret", time.Hour, "relay-test")
	require.NoError(t, err)

	wsCfg := testWSConfig()
	relayCfg := testRelayConfig()

	m := metrics.New()
	registry := hub.NewRegistry()
	reconciler := service.NewReconciler(repo, nil, m, relayCfg.PersistTimeout)
	router := service.NewRouter(registry, reconciler, nil, m, relayCfg)
	gateway := service.NewGateway(router, m)

	logger := log.New(log.Config{Level: "disabled"})
	r := gin.New()
	r.Use(log.GinMiddleware(logger))
	NewHTTPHandler(repo, registry, gateway, m, testInternalToken).RegisterRoutes(r)
	NewWSHandler(router, identity.NewJWTProvider(manager, "streamer"), wsCfg, relayCfg).RegisterRoutes(r)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	return &testServer{
		server:   srv,
		registry: registry,
		repo:     repo,
		jwt:      manager,
	}
}

func testWSConfig() config.WebSocketConfig {
	return config.WebSocketConfig{
		PingInterval:   time.Minute,
		PongWait:       2 * time.Minute,
		WriteWait:      time.Second,
		MaxMessageSize: 1 << 20,
	}
}

func testRelayConfig() config.RelayConfig {
	return config.RelayConfig{
		FramePolicy:      config.FramePolicyBroadcaster,
		FrameQueueSize:   64,
		ControlQueueSize: 1024,
		PersistTimeout:   time.Second,
	}
}

func (s *testServer) token(t *testing.T, userID, username string, roles ...string) string {
	t.Helper()
	token, err := s.jwt.GenerateAccessToken(userID, username, roles)
	require.NoError(t, err)
	return token
}
