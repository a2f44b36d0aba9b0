package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFromEnvDefaults(t *testing.T) {
	for _, key := range []string{
		"STOREFRONT_ADDR", "STATE_BACKEND", "POLL_INITIAL_INTERVAL", "POLL_MULTIPLIER",
		"POLL_MAX_INTERVAL", "POLL_CEILING", "STREAM_KEEPALIVE", "AUTHORIZER_BASE_URL",
		"DB_AUTO_MIGRATE",
	} {
		t.Setenv(key, "")
	}

	cfg := FromEnv()

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, BackendMemory, cfg.State.Backend)
	assert.Equal(t, time.Second, cfg.Polling.Initial)
	assert.Equal(t, 1.5, cfg.Polling.Multiplier)
	assert.Equal(t, 5*time.Second, cfg.Polling.Max)
	assert.Equal(t, 5*time.Minute, cfg.Polling.Ceiling)
	assert.Equal(t, 15*time.Second, cfg.StreamKeepalive)
	assert.Equal(t, 10*time.Minute, cfg.StreamHistoryTTL)
	assert.Equal(t, "http://localhost:8090", cfg.Authorizer.BaseURL)
	assert.True(t, cfg.Database.AutoMigrate)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("STOREFRONT_ADDR", ":9000")
	t.Setenv("STATE_BACKEND", "Redis")
	t.Setenv("POLL_INITIAL_INTERVAL", "500ms")
	t.Setenv("POLL_MULTIPLIER", "2")
	t.Setenv("POLL_CEILING", "90s")
	t.Setenv("AUTHORIZER_BASE_URL", "https://authorizer.example/")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092,kafka-2:9092")
	t.Setenv("DB_AUTO_MIGRATE", "false")

	cfg := FromEnv()

	assert.Equal(t, ":9000", cfg.Addr)
	assert.Equal(t, BackendRedis, cfg.State.Backend)
	assert.Equal(t, 500*time.Millisecond, cfg.Polling.Initial)
	assert.Equal(t, 2.0, cfg.Polling.Multiplier)
	assert.Equal(t, 90*time.Second, cfg.Polling.Ceiling)
	assert.Equal(t, "https://authorizer.example", cfg.Authorizer.BaseURL)
	assert.Equal(t, "kafka-1:9092,kafka-2:9092", cfg.Kafka.Brokers)
	assert.False(t, cfg.Database.AutoMigrate)
}

func TestFromEnvIgnoresUnparseable(t *testing.T) {
	t.Setenv("POLL_MAX_INTERVAL", "soon")
	t.Setenv("REDIS_POOL_SIZE", "many")

	cfg := FromEnv()

	assert.Equal(t, 5*time.Second, cfg.Polling.Max)
	assert.Equal(t, 10, cfg.Redis.PoolSize)
}
