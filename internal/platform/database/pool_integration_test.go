//go:build integration

package database

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eudi-storefront/internal/platform/config"
	"eudi-storefront/pkg/testutil/containers"
)

func TestNewAppliesSchemaTwice(t *testing.T) {
	pg := containers.GetManager().GetPostgres(t)
	ctx := context.Background()
	cfg := config.DatabaseConfig{URL: pg.DSN, MaxOpenConns: 2, MaxIdleConns: 1, ConnMaxLifetime: time.Minute, AutoMigrate: true}

	pool, err := New(ctx, cfg)
	require.NoError(t, err)
	defer pool.Close()

	require.NoError(t, pool.Health(ctx))
	_, err = pool.DB().ExecContext(ctx, "SELECT subject_id FROM verification_states LIMIT 1")
	assert.NoError(t, err)

	again, err := New(ctx, cfg)
	require.NoError(t, err, "migrations are idempotent")
	assert.NoError(t, again.Close())
}
