// Package config reads the storefront's settings from the environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Server captures HTTP server level configuration.
type Server struct {
	Addr         string
	Environment  string
	LogLevel     string
	PublicOrigin string

	RequestTimeout   time.Duration
	MaxBodyBytes     int64
	StreamKeepalive  time.Duration
	// StreamHistoryTTL bounds how long an idle subject's replay history is kept.
	StreamHistoryTTL time.Duration
	ShutdownTimeout  time.Duration

	Authorizer Authorizer
	Polling    Polling
	State      State
	Redis      RedisConfig
	Database   DatabaseConfig
	Kafka      KafkaConfig
}

// Authorizer configures the remote verification service client.
type Authorizer struct {
	BaseURL      string
	APIKey       string
	Timeout      time.Duration
	BypassHeader string
}

// Polling is the direct_post status polling schedule.
type Polling struct {
	Initial    time.Duration
	Multiplier float64
	Max        time.Duration
	Ceiling    time.Duration
}

// State selects where VerificationState records live.
type State struct {
	Backend string
	TTL     time.Duration
}

// Supported state backends.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// RedisConfig configures the shared state store connection.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DatabaseConfig configures the durable state store connection.
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	// AutoMigrate applies the embedded schema on start.
	AutoMigrate bool
}

// KafkaConfig configures the audit trail producer. Empty Brokers keeps the
// audit trail in memory.
type KafkaConfig struct {
	Brokers    string
	AuditTopic string
}

// Defaults.
var (
	DefaultRequestTimeout   = 15 * time.Second
	DefaultStreamKeepalive  = 15 * time.Second
	DefaultStreamHistoryTTL = 10 * time.Minute
	DefaultStateTTL         = 24 * time.Hour
)

// FromEnv builds a Server config from environment variables so main stays lean.
// A .env file in the working directory is loaded first when present; real
// environment variables win over it.
func FromEnv() Server {
	_ = godotenv.Load() //nolint:errcheck // the file is optional

	return Server{
		Addr:             envString("STOREFRONT_ADDR", ":8080"),
		Environment:      envString("ENVIRONMENT", "development"),
		LogLevel:         envString("LOG_LEVEL", "info"),
		PublicOrigin:     envString("PUBLIC_ORIGIN", "http://localhost:8080"),
		RequestTimeout:   envDuration("REQUEST_TIMEOUT", DefaultRequestTimeout),
		MaxBodyBytes:     int64(envInt("MAX_BODY_BYTES", 1<<20)),
		StreamKeepalive:  envDuration("STREAM_KEEPALIVE", DefaultStreamKeepalive),
		StreamHistoryTTL: envDuration("STREAM_HISTORY_TTL", DefaultStreamHistoryTTL),
		ShutdownTimeout:  envDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		Authorizer: Authorizer{
			BaseURL:      strings.TrimRight(envString("AUTHORIZER_BASE_URL", "http://localhost:8090"), "/"),
			APIKey:       os.Getenv("AUTHORIZER_API_KEY"),
			Timeout:      envDuration("AUTHORIZER_TIMEOUT", 10*time.Second),
			BypassHeader: os.Getenv("AUTHORIZER_BYPASS_HEADER"),
		},
		Polling: Polling{
			Initial:    envDuration("POLL_INITIAL_INTERVAL", time.Second),
			Multiplier: envFloat("POLL_MULTIPLIER", 1.5),
			Max:        envDuration("POLL_MAX_INTERVAL", 5*time.Second),
			Ceiling:    envDuration("POLL_CEILING", 5*time.Minute),
		},
		State: State{
			Backend: strings.ToLower(envString("STATE_BACKEND", BackendMemory)),
			TTL:     envDuration("STATE_TTL", DefaultStateTTL),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     envInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
			AutoMigrate:     envBool("DB_AUTO_MIGRATE", true),
		},
		Kafka: KafkaConfig{
			Brokers:    os.Getenv("KAFKA_BROKERS"),
			AuditTopic: os.Getenv("KAFKA_AUDIT_TOPIC"),
		},
	}
}

func envString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// envDuration falls back to def when the value is missing or unparseable.
func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
