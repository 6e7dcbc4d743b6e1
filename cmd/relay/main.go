package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/weiawesome/wes-io-live/relay-service/internal/cache"
	"github.com/weiawesome/wes-io-live/relay-service/internal/config"
	"github.com/weiawesome/wes-io-live/relay-service/internal/directory"
	"github.com/weiawesome/wes-io-live/relay-service/internal/domain"
	"github.com/weiawesome/wes-io-live/relay-service/internal/handler"
	"github.com/weiawesome/wes-io-live/relay-service/internal/hub"
	"github.com/weiawesome/wes-io-live/relay-service/internal/identity"
	"github.com/weiawesome/wes-io-live/relay-service/internal/kafka"
	"github.com/weiawesome/wes-io-live/relay-service/internal/metrics"
	"github.com/weiawesome/wes-io-live/relay-service/internal/repository"
	"github.com/weiawesome/wes-io-live/relay-service/internal/service"
	"github.com/weiawesome/wes-io-live/relay-service/pkg/database"
	"github.com/weiawesome/wes-io-live/relay-service/pkg/jwt"
	pkglog "github.com/weiawesome/wes-io-live/relay-service/pkg/log"
	"github.com/weiawesome/wes-io-live/relay-service/pkg/pubsub"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		l := pkglog.L()
		l.Fatal().Err(err).Msg("failed to load config")
	}

	// Initialize structured logger
	pkglog.Init(pkglog.Config{
		Level:       cfg.Log.Level,
		Pretty:      cfg.Log.Pretty || cfg.Log.Level == "debug",
		ServiceName: "relay-service",
	})
	logger := pkglog.L()

	// Connect to database using GORM
	db, err := database.New(&database.Config{
		Driver:          cfg.Database.Driver,
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		DBName:          cfg.Database.DBName,
		SSLMode:         cfg.Database.SSLMode,
		FilePath:        cfg.Database.FilePath,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		LogLevel:        cfg.Database.LogLevel,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer database.Close(db)

	// Auto-migrate
	if err := database.AutoMigrate(db, &domain.StreamModel{}); err != nil {
		logger.Fatal().Err(err).Msg("failed to auto-migrate")
	}
	logger.Info().Msg("database migration completed")

	var streamRepo repository.StreamRepository = repository.NewGormStreamRepository(db)

	if cfg.Streams.Seed {
		if _, err := streamRepo.Seed(context.Background(), domain.DefaultStreams()); err != nil {
			logger.Fatal().Err(err).Msg("failed to seed streams")
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Optional Redis: stream cache, instance directory and tip subscriber
	var (
		redisClient *redis.Client
		dir         directory.Directory
	)
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
		err := redisClient.Ping(pingCtx).Err()
		pingCancel()
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer redisClient.Close()
		logger.Info().Str("address", cfg.Redis.Address).Msg("redis connected")

		if cfg.Cache.Enabled {
			streamCache := cache.NewRedisStreamCache(redisClient, cfg.Cache.KeyPrefix)
			streamRepo = repository.NewCachedStreamRepository(streamRepo, streamCache, cfg.Cache.TTL)
		}

		if cfg.Directory.Enabled {
			if cfg.Directory.InstanceID == "" {
				cfg.Directory.InstanceID = uuid.New().String()
			}
			dir = directory.NewRedisDirectory(redisClient, cfg.Directory)
		}
	}

	// Optional Kafka lifecycle producer
	var producer kafka.LifecycleProducer
	if cfg.Kafka.Enabled {
		cp, err := kafka.NewConfluentProducer(cfg.Kafka)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to create kafka producer")
		}
		producer = cp
		defer cp.Close()
		logger.Info().Str("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("kafka producer initialized")
	}

	// Identity
	jwtManager, err := jwt.NewManager(cfg.Auth.JWTSecret, 0, cfg.Auth.Issuer)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create jwt manager")
	}
	provider := identity.NewJWTProvider(jwtManager, cfg.Auth.BroadcasterRole)

	// Relay core
	m := metrics.New()
	registry := hub.NewRegistry()
	reconciler := service.NewReconciler(streamRepo, producer, m, cfg.Relay.PersistTimeout)
	if cfg.Streams.ResetLiveOnStart {
		if n, err := reconciler.ResetStaleLive(ctx); err != nil {
			logger.Warn().Err(err).Msg("failed to reset stale live streams")
		} else if n > 0 {
			logger.Info().Int("count", n).Msg("reset stale live streams")
		}
	}

	router := service.NewRouter(registry, reconciler, dir, m, cfg.Relay)
	gateway := service.NewGateway(router, m)

	if dir != nil {
		if err := dir.StartHeartbeat(ctx, registry.Rooms); err != nil {
			logger.Fatal().Err(err).Msg("failed to start directory heartbeat")
		}
		defer dir.Close()
	}

	if redisClient != nil && cfg.Gateway.SubscribeRedis {
		ps := pubsub.NewRedisPubSubFromClient(redisClient, 0)
		defer ps.Close()
		if err := service.NewTipSubscriber(ps, gateway).Start(ctx); err != nil {
			logger.Fatal().Err(err).Msg("failed to start tip subscriber")
		}
	}

	// Setup Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(pkglog.GinMiddleware(logger))

	handler.NewHTTPHandler(streamRepo, registry, gateway, m, cfg.Gateway.InternalToken).RegisterRoutes(r)
	handler.NewWSHandler(router, provider, cfg.WebSocket, cfg.Relay).RegisterRoutes(r)

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info().
			Str("addr", server.Addr).
			Str("driver", cfg.Database.Driver).
			Str("frame_policy", cfg.Relay.FramePolicy).
			Bool("redis", cfg.Redis.Enabled).
			Bool("kafka", cfg.Kafka.Enabled).
			Msg("relay-service starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down relay-service")
	cancel()

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
	}

	logger.Info().Msg("relay-service stopped")
}
