// Package redis opens the connection behind the shared VerificationState
// store and exports its pool statistics.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"

	"eudi-storefront/internal/platform/config"
)

var (
	poolEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_redis_pool_events_total",
		Help: "Connection pool events of the state store client, labeled by event",
	}, []string{"event"})
	poolConns = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "storefront_redis_pool_conns",
		Help: "Connections held by the state store client, labeled by state",
	}, []string{"state"})
)

// connectWindow bounds how long New keeps pinging a store that is still
// starting.
const connectWindow = 10 * time.Second

// Client is the state store connection. It satisfies redis.UniversalClient,
// so store.NewRedis takes it as is.
type Client struct {
	*redis.Client
	last redis.PoolStats
}

// New connects to cfg.URL. An empty URL means the Redis backend is not in
// use and yields a nil client.
func New(ctx context.Context, cfg config.RedisConfig) (*Client, error) {
	if cfg.URL == "" {
		return nil, nil
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	applyPoolConfig(opts, cfg)

	client := redis.NewClient(opts)
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond
	bo.MaxElapsedTime = connectWindow
	if err := backoff.Retry(func() error {
		return client.Ping(ctx).Err()
	}, backoff.WithContext(bo, ctx)); err != nil {
		client.Close() //nolint:errcheck // nothing to report beyond the ping failure
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{Client: client}, nil
}

func applyPoolConfig(opts *redis.Options, cfg config.RedisConfig) {
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	opts.MinIdleConns = cfg.MinIdleConns
	if cfg.DialTimeout > 0 {
		opts.DialTimeout = cfg.DialTimeout
	}
	if cfg.ReadTimeout > 0 {
		opts.ReadTimeout = cfg.ReadTimeout
	}
	if cfg.WriteTimeout > 0 {
		opts.WriteTimeout = cfg.WriteTimeout
	}
}

// Health is the readiness probe for the Redis backend.
func (c *Client) Health(ctx context.Context) error {
	return c.Ping(ctx).Err()
}

// RecordPoolStats exports the pool counters accumulated since the previous
// call. metrics.Collect drives it from a single goroutine.
func (c *Client) RecordPoolStats() {
	stats := *c.PoolStats()

	poolConns.WithLabelValues("total").Set(float64(stats.TotalConns))
	poolConns.WithLabelValues("idle").Set(float64(stats.IdleConns))
	for event, delta := range poolDeltas(c.last, stats) {
		poolEvents.WithLabelValues(event).Add(float64(delta))
	}
	c.last = stats
}

// poolDeltas returns how far each monotonic pool counter moved. A counter
// that went backwards (pool recreated) contributes nothing.
func poolDeltas(prev, cur redis.PoolStats) map[string]uint32 {
	out := make(map[string]uint32, 4)
	add := func(event string, before, after uint32) {
		if after > before {
			out[event] = after - before
		}
	}
	add("hit", prev.Hits, cur.Hits)
	add("miss", prev.Misses, cur.Misses)
	add("timeout", prev.Timeouts, cur.Timeouts)
	add("stale", prev.StaleConns, cur.StaleConns)
	return out
}
