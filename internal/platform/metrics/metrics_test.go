package metrics

import (
	"context"
	"database/sql"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestDBPoolRecord(t *testing.T) {
	m := NewDBPool(prometheus.NewRegistry())

	m.Record(sql.DBStats{OpenConnections: 4, InUse: 3, Idle: 1, WaitCount: 2, WaitDuration: time.Second})
	m.Record(sql.DBStats{OpenConnections: 5, InUse: 1, Idle: 4, WaitCount: 5, WaitDuration: 3 * time.Second})

	assert.Equal(t, 5.0, testutil.ToFloat64(m.OpenConns))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.InUseConns))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.IdleConns))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.WaitCount))
	assert.InDelta(t, 3.0, testutil.ToFloat64(m.WaitSeconds), 1e-9)
}

func TestCollectRunsImmediatelyAndStops(t *testing.T) {
	var calls atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		Collect(ctx, time.Hour, func() { calls.Add(1) })
		close(done)
	}()

	assert.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Collect did not return after cancel")
	}
}
