package config

import (
	"time"

	"github.com/spf13/viper"
	pkgconfig "github.com/weiawesome/wes-io-live/relay-service/pkg/config"
)

type Config struct {
	Server    ServerConfig
	WebSocket WebSocketConfig
	Relay     RelayConfig
	Auth      AuthConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Cache     CacheConfig
	Directory DirectoryConfig
	Kafka     KafkaConfig
	Gateway   GatewayConfig
	Log       LogConfig
	Streams   StreamsConfig
}

type ServerConfig struct {
	Host            string
	Port            int
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type WebSocketConfig struct {
	PingInterval   time.Duration `mapstructure:"ping_interval"`
	PongWait       time.Duration `mapstructure:"pong_wait"`
	WriteWait      time.Duration `mapstructure:"write_wait"`
	MaxMessageSize int64         `mapstructure:"max_message_size"`
}

// Frame policies.
const (
	FramePolicyBroadcaster = "broadcaster"
	FramePolicyMember      = "member"
)

type RelayConfig struct {
	FramePolicy        string        `mapstructure:"frame_policy"`
	RejectUnauthorized bool          `mapstructure:"reject_unauthorized"`
	FrameQueueSize     int           `mapstructure:"frame_queue_size"`
	ControlQueueSize   int           `mapstructure:"control_queue_size"`
	PersistTimeout     time.Duration `mapstructure:"persist_timeout"`
}

type AuthConfig struct {
	JWTSecret       string `mapstructure:"jwt_secret"`
	Issuer          string
	BroadcasterRole string `mapstructure:"broadcaster_role"`
}

type DatabaseConfig struct {
	Driver          string
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string `mapstructure:"dbname"`
	SSLMode         string `mapstructure:"sslmode"`
	FilePath        string `mapstructure:"file_path"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
	LogLevel        string `mapstructure:"log_level"`
}

type RedisConfig struct {
	Enabled  bool
	Address  string
	Password string
	DB       int
}

type CacheConfig struct {
	Enabled   bool
	KeyPrefix string        `mapstructure:"key_prefix"`
	TTL       time.Duration `mapstructure:"ttl"`
}

type DirectoryConfig struct {
	Enabled           bool
	Prefix            string
	InstanceID        string        `mapstructure:"instance_id"`
	AdvertiseAddress  string        `mapstructure:"advertise_address"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	KeyTTL            time.Duration `mapstructure:"key_ttl"`
}

type KafkaConfig struct {
	Enabled    bool
	Brokers    string
	Topic      string
	Partitions int
}

type GatewayConfig struct {
	InternalToken  string `mapstructure:"internal_token"`
	SubscribeRedis bool   `mapstructure:"subscribe_redis"`
}

type LogConfig struct {
	Level  string
	Pretty bool
}

type StreamsConfig struct {
	Seed bool
	// ResetLiveOnStart clears live flags left behind by a previous run.
	// Disable it when several instances share the database.
	ResetLiveOnStart bool `mapstructure:"reset_live_on_start"`
}

func Load() (*Config, error) {
	v, err := pkgconfig.Load("./config", "config")
	if err != nil {
		return nil, err
	}

	// Set defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("websocket.ping_interval", "30s")
	v.SetDefault("websocket.pong_wait", "60s")
	v.SetDefault("websocket.write_wait", "10s")
	v.SetDefault("websocket.max_message_size", 1<<20)
	v.SetDefault("relay.frame_policy", FramePolicyBroadcaster)
	v.SetDefault("relay.reject_unauthorized", false)
	v.SetDefault("relay.frame_queue_size", 64)
	v.SetDefault("relay.control_queue_size", 1024)
	v.SetDefault("relay.persist_timeout", "3s")
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", "wes-io-live")
	v.SetDefault("auth.broadcaster_role", "streamer")
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "relay")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.file_path", "relay.db")
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.max_open_conns", 50)
	v.SetDefault("database.conn_max_lifetime", 30)
	v.SetDefault("database.log_level", "warn")
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.key_prefix", "relay:stream:")
	v.SetDefault("cache.ttl", "5m")
	v.SetDefault("directory.enabled", true)
	v.SetDefault("directory.prefix", "relay:directory")
	v.SetDefault("directory.instance_id", "")
	v.SetDefault("directory.advertise_address", "localhost:8080")
	v.SetDefault("directory.heartbeat_interval", "10s")
	v.SetDefault("directory.key_ttl", "30s")
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", "localhost:9092")
	v.SetDefault("kafka.topic", "stream-lifecycle")
	v.SetDefault("kafka.partitions", 4)
	v.SetDefault("gateway.internal_token", "")
	v.SetDefault("gateway.subscribe_redis", true)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
	v.SetDefault("streams.seed", true)
	v.SetDefault("streams.reset_live_on_start", true)

	// Override from environment
	v.BindEnv("server.port", "PORT")
	v.BindEnv("relay.frame_policy", "RELAY_FRAME_POLICY")
	v.BindEnv("relay.reject_unauthorized", "RELAY_REJECT_UNAUTHORIZED")
	v.BindEnv("auth.jwt_secret", "JWT_SECRET")
	v.BindEnv("auth.issuer", "JWT_ISSUER")
	v.BindEnv("database.driver", "DB_DRIVER")
	v.BindEnv("database.host", "DB_HOST")
	v.BindEnv("database.port", "DB_PORT")
	v.BindEnv("database.user", "DB_USER")
	v.BindEnv("database.password", "DB_PASSWORD")
	v.BindEnv("database.dbname", "DB_NAME")
	v.BindEnv("database.file_path", "DB_FILE_PATH")
	v.BindEnv("redis.enabled", "REDIS_ENABLED")
	v.BindEnv("redis.address", "REDIS_ADDRESS")
	v.BindEnv("redis.password", "REDIS_PASSWORD")
	v.BindEnv("directory.instance_id", "INSTANCE_ID")
	v.BindEnv("directory.advertise_address", "ADVERTISE_ADDRESS")
	v.BindEnv("kafka.enabled", "KAFKA_ENABLED")
	v.BindEnv("kafka.brokers", "KAFKA_BROKERS")
	v.BindEnv("kafka.topic", "KAFKA_TOPIC")
	v.BindEnv("gateway.internal_token", "INTERNAL_TOKEN")
	v.BindEnv("log.level", "LOG_LEVEL")
	v.BindEnv("streams.reset_live_on_start", "RESET_LIVE_ON_START")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Parse durations
	cfg.Server.ShutdownTimeout = parseDuration(v, "server.shutdown_timeout", 10*time.Second)
	cfg.WebSocket.PingInterval = parseDuration(v, "websocket.ping_interval", 30*time.Second)
	cfg.WebSocket.PongWait = parseDuration(v, "websocket.pong_wait", 60*time.Second)
	cfg.WebSocket.WriteWait = parseDuration(v, "websocket.write_wait", 10*time.Second)
	cfg.Relay.PersistTimeout = parseDuration(v, "relay.persist_timeout", 3*time.Second)
	cfg.Cache.TTL = parseDuration(v, "cache.ttl", 5*time.Minute)
	cfg.Directory.HeartbeatInterval = parseDuration(v, "directory.heartbeat_interval", 10*time.Second)
	cfg.Directory.KeyTTL = parseDuration(v, "directory.key_ttl", 30*time.Second)

	if cfg.Relay.FramePolicy != FramePolicyMember {
		cfg.Relay.FramePolicy = FramePolicyBroadcaster
	}

	return &cfg, nil
}

func parseDuration(v *viper.Viper, key string, defaultVal time.Duration) time.Duration {
	str := v.GetString(key)
	d, err := time.ParseDuration(str)
	if err != nil {
		return defaultVal
	}
	return d
}
