// Package metrics holds Prometheus collectors for the storefront's backing
// connection pools and the loop that samples them.
package metrics

import (
	"context"
	"database/sql"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// DBPool mirrors sql.DBStats for the Postgres state store.
type DBPool struct {
	OpenConns   prometheus.Gauge
	InUseConns  prometheus.Gauge
	IdleConns   prometheus.Gauge
	WaitCount   prometheus.Counter
	WaitSeconds prometheus.Counter

	lastWaitCount    int64
	lastWaitDuration time.Duration
}

// NewDBPool registers the pool collectors on reg. A nil reg uses the
// default registry.
func NewDBPool(reg prometheus.Registerer) *DBPool {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &DBPool{
		OpenConns: factory.NewGauge(prometheus.GaugeOpts{
			Name: "storefront_db_pool_open_conns",
			Help: "Number of established database connections",
		}),
		InUseConns: factory.NewGauge(prometheus.GaugeOpts{
			Name: "storefront_db_pool_in_use_conns",
			Help: "Number of database connections currently in use",
		}),
		IdleConns: factory.NewGauge(prometheus.GaugeOpts{
			Name: "storefront_db_pool_idle_conns",
			Help: "Number of idle database connections",
		}),
		WaitCount: factory.NewCounter(prometheus.CounterOpts{
			Name: "storefront_db_pool_waits_total",
			Help: "Total number of connections waited for",
		}),
		WaitSeconds: factory.NewCounter(prometheus.CounterOpts{
			Name: "storefront_db_pool_wait_seconds_total",
			Help: "Total time blocked waiting for a new connection",
		}),
	}
}

// Record updates the collectors from stats. Counters advance by the delta
// since the previous call.
func (m *DBPool) Record(stats sql.DBStats) {
	m.OpenConns.Set(float64(stats.OpenConnections))
	m.InUseConns.Set(float64(stats.InUse))
	m.IdleConns.Set(float64(stats.Idle))

	if d := stats.WaitCount - m.lastWaitCount; d > 0 {
		m.WaitCount.Add(float64(d))
	}
	if d := stats.WaitDuration - m.lastWaitDuration; d > 0 {
		m.WaitSeconds.Add(d.Seconds())
	}
	m.lastWaitCount = stats.WaitCount
	m.lastWaitDuration = stats.WaitDuration
}

// Collect calls every recorder now and then once per interval until ctx is
// done.
func Collect(ctx context.Context, interval time.Duration, recorders ...func()) {
	run := func() {
		for _, r := range recorders {
			r()
		}
	}
	run()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			run()
		}
	}
}
