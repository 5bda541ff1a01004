package config

import (
	"errors"
	"time"

	"github.com/spf13/viper"

	pkgconfig "github.com/rusikfsk/unichat/pkg/config"
	"github.com/rusikfsk/unichat/pkg/database"
	"github.com/rusikfsk/unichat/pkg/storage"
)

type Config struct {
	Server      ServerConfig
	WebSocket   WebSocketConfig
	Database    database.Config
	Redis       RedisConfig
	Cache       CacheConfig
	Presence    PresenceConfig
	Storage     storage.Config
	Kafka       KafkaConfig
	Nats        NatsConfig
	Auth        AuthConfig
	Attachments AttachmentsConfig
	Message     MessageConfig
	Log         LogConfig
}

type ServerConfig struct {
	Host            string
	Port            int
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type WebSocketConfig struct {
	PingInterval    time.Duration `mapstructure:"ping_interval"`
	PongWait        time.Duration `mapstructure:"pong_wait"`
	WriteWait       time.Duration `mapstructure:"write_wait"`
	MaxMessageSize  int64         `mapstructure:"max_message_size"`
	SendBuffer      int           `mapstructure:"send_buffer"`
	BroadcastBuffer int           `mapstructure:"broadcast_buffer"`
}

type RedisConfig struct {
	Address  string
	Password string
	DB       int
}

type CacheConfig struct {
	Enabled bool
	Prefix  string
	TTL     time.Duration
}

type PresenceConfig struct {
	Store     string // memory, redis
	KeyPrefix string `mapstructure:"key_prefix"`
}

type KafkaConfig struct {
	Enabled    bool
	Brokers    string
	Topic      string
	Partitions int
}

// NatsConfig enables the NATS event sink. Kafka wins when both are enabled.
type NatsConfig struct {
	Enabled       bool
	Servers       string
	SubjectPrefix string `mapstructure:"subject_prefix"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	Issuer    string
	AccessTTL time.Duration `mapstructure:"access_ttl"`
}

type AttachmentsConfig struct {
	MaxSize       int64 `mapstructure:"max_size"`
	Retention     time.Duration
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	SweepBatch    int           `mapstructure:"sweep_batch"`

	// RedirectDownloads answers downloads with a redirect to Storage.URL
	// instead of streaming through the server. Use it with the s3 driver.
	RedirectDownloads bool `mapstructure:"redirect_downloads"`
	URLTTL            time.Duration
}

type MessageConfig struct {
	MaxTextLength    int           `mapstructure:"max_text_length"`
	HistoryDefault   int           `mapstructure:"history_default"`
	HistoryMax       int           `mapstructure:"history_max"`
	OperationTimeout time.Duration `mapstructure:"operation_timeout"`
}

type LogConfig struct {
	Level  string
	Pretty bool
}

var defaults = map[string]interface{}{
	"server.host":                    "0.0.0.0",
	"server.port":                    8080,
	"server.shutdown_timeout":        "30s",
	"websocket.ping_interval":        "30s",
	"websocket.pong_wait":            "60s",
	"websocket.write_wait":           "10s",
	"websocket.max_message_size":     4096,
	"websocket.send_buffer":          256,
	"websocket.broadcast_buffer":     1024,
	"database.driver":                "sqlite",
	"database.file_path":             "unichat.db",
	"database.host":                  "localhost",
	"database.port":                  5432,
	"database.sslmode":               "disable",
	"database.max_idle_conns":        10,
	"database.max_open_conns":        50,
	"database.conn_max_lifetime":     30,
	"database.log_level":             "warn",
	"redis.address":                  "localhost:6379",
	"redis.password":                 "",
	"redis.db":                       0,
	"cache.enabled":                  false,
	"cache.prefix":                   "unichat:user",
	"cache.ttl":                      "5m",
	"presence.store":                 "memory",
	"presence.key_prefix":            "unichat:presence",
	"storage.driver":                 "local",
	"storage.local.base_path":        "./data/blobs",
	"storage.s3.region":              "us-east-1",
	"storage.s3.use_path_style":      true,
	"kafka.enabled":                  false,
	"kafka.brokers":                  "localhost:9092",
	"kafka.topic":                    "chat-events",
	"kafka.partitions":               8,
	"nats.enabled":                   false,
	"nats.servers":                   "nats://localhost:4222",
	"nats.subject_prefix":            "chat.events",
	"auth.issuer":                    "",
	"auth.access_ttl":                "1h",
	"attachments.max_size":           200 << 20,
	"attachments.retention":          "24h",
	"attachments.sweep_interval":     "1h",
	"attachments.sweep_batch":        500,
	"attachments.redirect_downloads": false,
	"attachments.url_ttl":            "15m",
	"message.max_text_length":        4000,
	"message.history_default":        50,
	"message.history_max":            200,
	"message.operation_timeout":      "10s",
	"log.level":                      "info",
	"log.pretty":                     false,
}

var envBindings = map[string]string{
	"server.port":                    "PORT",
	"database.driver":                "DB_DRIVER",
	"database.host":                  "DB_HOST",
	"database.port":                  "DB_PORT",
	"database.user":                  "DB_USER",
	"database.password":              "DB_PASSWORD",
	"database.dbname":                "DB_NAME",
	"database.file_path":             "DB_FILE_PATH",
	"redis.address":                  "REDIS_ADDRESS",
	"redis.password":                 "REDIS_PASSWORD",
	"cache.enabled":                  "CACHE_ENABLED",
	"presence.store":                 "PRESENCE_STORE",
	"storage.driver":                 "STORAGE_DRIVER",
	"storage.s3.endpoint":            "S3_ENDPOINT",
	"storage.s3.bucket":              "S3_BUCKET",
	"storage.s3.access_key_id":       "S3_ACCESS_KEY_ID",
	"storage.s3.secret_access_key":   "S3_SECRET_ACCESS_KEY",
	"kafka.enabled":                  "KAFKA_ENABLED",
	"kafka.brokers":                  "KAFKA_BROKERS",
	"kafka.topic":                    "KAFKA_TOPIC",
	"nats.enabled":                   "NATS_ENABLED",
	"nats.servers":                   "NATS_SERVERS",
	"auth.jwt_secret":                "JWT_SECRET",
	"attachments.redirect_downloads": "ATTACHMENTS_REDIRECT_DOWNLOADS",
	"log.level":                      "LOG_LEVEL",
}

func Load() (*Config, error) {
	v, err := pkgconfig.Load("./config", "config")
	if err != nil {
		return nil, err
	}
	return FromViper(v)
}

// FromViper applies defaults and environment bindings to v and decodes it.
func FromViper(v *viper.Viper) (*Config, error) {
	pkgconfig.SetDefaults(v, defaults)
	if err := pkgconfig.BindEnvs(v, envBindings); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	cfg.Server.ShutdownTimeout = pkgconfig.Duration(v, "server.shutdown_timeout", 30*time.Second)
	cfg.WebSocket.PingInterval = pkgconfig.Duration(v, "websocket.ping_interval", 30*time.Second)
	cfg.WebSocket.PongWait = pkgconfig.Duration(v, "websocket.pong_wait", 60*time.Second)
	cfg.WebSocket.WriteWait = pkgconfig.Duration(v, "websocket.write_wait", 10*time.Second)
	cfg.Cache.TTL = pkgconfig.Duration(v, "cache.ttl", 5*time.Minute)
	cfg.Auth.AccessTTL = pkgconfig.Duration(v, "auth.access_ttl", time.Hour)
	cfg.Attachments.Retention = pkgconfig.Duration(v, "attachments.retention", 24*time.Hour)
	cfg.Attachments.SweepInterval = pkgconfig.Duration(v, "attachments.sweep_interval", time.Hour)
	cfg.Attachments.URLTTL = pkgconfig.Duration(v, "attachments.url_ttl", 15*time.Minute)
	cfg.Message.OperationTimeout = pkgconfig.Duration(v, "message.operation_timeout", 10*time.Second)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret (JWT_SECRET) is required")
	}
	if c.WebSocket.PingInterval >= c.WebSocket.PongWait {
		return errors.New("websocket.ping_interval must be shorter than websocket.pong_wait")
	}
	if c.Message.HistoryDefault < 1 || c.Message.HistoryMax < c.Message.HistoryDefault {
		return errors.New("message.history_default must be in [1, message.history_max]")
	}
	if c.Message.MaxTextLength < 1 {
		return errors.New("message.max_text_length must be positive")
	}
	return nil
}
