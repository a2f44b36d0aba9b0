package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"eudi-storefront/internal/platform/config"
	"eudi-storefront/internal/platform/database"
	"eudi-storefront/internal/platform/health"
	"eudi-storefront/internal/platform/kafka"
	"eudi-storefront/internal/platform/kafka/producer"
	platformmetrics "eudi-storefront/internal/platform/metrics"
	"eudi-storefront/internal/platform/redis"
	"eudi-storefront/internal/verification/audit"
	"eudi-storefront/internal/verification/lifecycle"
	"eudi-storefront/internal/verification/metrics"
	"eudi-storefront/internal/verification/store"
)

const (
	auditBuffer      = 1024
	poolSamplePeriod = 15 * time.Second
)

// backends holds the state store, the audit trail and whatever connections
// they need.
type backends struct {
	store lifecycle.Store
	audit *audit.Publisher

	redis    *redis.Client
	db       *database.Pool
	producer *producer.Producer

	stopSampling context.CancelFunc
	log          *slog.Logger
}

// openBackends picks the state store from STATE_BACKEND and the audit sink
// from what is configured: Kafka first, then Postgres, else memory. Every
// opened connection is registered as a readiness check.
func openBackends(ctx context.Context, cfg config.Server, m *metrics.Metrics, hh *health.Handler, log *slog.Logger) (*backends, error) {
	sampleCtx, cancel := context.WithCancel(context.Background())
	b := &backends{log: log, stopSampling: cancel}
	var recorders []func()

	switch cfg.State.Backend {
	case config.BackendMemory:
		b.store = store.NewInMemory(cfg.State.TTL)
	case config.BackendRedis:
		client, err := redis.New(ctx, cfg.Redis)
		if err != nil {
			cancel()
			return nil, err
		}
		if client == nil {
			cancel()
			return nil, fmt.Errorf("STATE_BACKEND=redis requires REDIS_URL")
		}
		b.redis = client
		b.store = store.NewRedis(client, cfg.State.TTL)
		hh.RegisterCheck("redis", client.Health)
		recorders = append(recorders, client.RecordPoolStats)
	case config.BackendPostgres:
		if err := b.openDatabase(ctx, cfg, hh); err != nil {
			cancel()
			return nil, err
		}
		if b.db == nil {
			cancel()
			return nil, fmt.Errorf("STATE_BACKEND=postgres requires DATABASE_URL")
		}
		pg := store.NewPostgres(b.db.DB())
		b.store = pg
		recorders = append(recorders, func() {
			counts, err := pg.CountByLifecycle(sampleCtx)
			if err != nil {
				log.Warn("failed to count stored states", "error", err)
				return
			}
			m.SetStoredStates(counts)
		})
	default:
		cancel()
		return nil, fmt.Errorf("unknown STATE_BACKEND %q", cfg.State.Backend)
	}

	sink, err := b.openAuditSink(ctx, cfg, hh)
	if err != nil {
		b.Close()
		return nil, err
	}
	b.audit = audit.NewPublisher(sink,
		audit.WithAsyncBuffer(auditBuffer),
		audit.WithPublisherLogger(log),
	)

	if b.db != nil {
		dbMetrics := platformmetrics.NewDBPool(nil)
		recorders = append(recorders, func() { dbMetrics.Record(b.db.Stats()) })
	}
	if len(recorders) > 0 {
		go platformmetrics.Collect(sampleCtx, poolSamplePeriod, recorders...)
	}
	return b, nil
}

func (b *backends) openDatabase(ctx context.Context, cfg config.Server, hh *health.Handler) error {
	if b.db != nil {
		return nil
	}
	pool, err := database.New(ctx, cfg.Database)
	if err != nil {
		return err
	}
	if pool != nil {
		b.db = pool
		hh.RegisterCheck("postgres", pool.Health)
	}
	return nil
}

func (b *backends) openAuditSink(ctx context.Context, cfg config.Server, hh *health.Handler) (audit.Sink, error) {
	if cfg.Kafka.Brokers != "" {
		p, err := producer.New(kafka.DefaultProducerConfig(cfg.Kafka.Brokers), b.log)
		if err != nil {
			return nil, err
		}
		b.producer = p
		hh.RegisterChecker(kafka.NewHealthChecker(p))
		topic := cfg.Kafka.AuditTopic
		if topic == "" {
			topic = kafka.DefaultAuditTopic
		}
		b.log.Info("audit trail on kafka", "topic", topic)
		return audit.NewKafkaSink(p, topic), nil
	}

	if err := b.openDatabase(ctx, cfg, hh); err != nil {
		return nil, err
	}
	if b.db != nil {
		b.log.Info("audit trail on postgres")
		return audit.NewPostgresSink(b.db.DB()), nil
	}

	b.log.Info("audit trail in memory")
	return audit.NewInMemorySink(), nil
}

// Close flushes the audit trail before closing the connections it may use.
func (b *backends) Close() {
	if b.stopSampling != nil {
		b.stopSampling()
	}
	if b.audit != nil {
		b.audit.Close()
	}
	if b.producer != nil {
		if err := b.producer.Close(shutdownGrace); err != nil {
			b.log.Warn("failed to close kafka producer", "error", err)
		}
	}
	if b.redis != nil {
		if err := b.redis.Close(); err != nil {
			b.log.Warn("failed to close redis", "error", err)
		}
	}
	if err := b.db.Close(); err != nil {
		b.log.Warn("failed to close database", "error", err)
	}
}
