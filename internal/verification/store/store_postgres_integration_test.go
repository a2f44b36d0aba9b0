//go:build integration

package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"eudi-storefront/internal/verification/lifecycle"
	"eudi-storefront/internal/verification/models"
	"eudi-storefront/pkg/testutil"
	"eudi-storefront/pkg/testutil/containers"
)

func TestPostgresStore(t *testing.T) {
	pg := containers.GetManager().GetPostgres(t)
	suite.Run(t, &contractSuite{newStore: func() lifecycle.Store {
		if err := pg.Truncate(context.Background()); err != nil {
			t.Fatalf("truncate: %v", err)
		}
		return NewPostgres(pg.DB)
	}})
}

type PostgresStoreSuite struct {
	suite.Suite
	pg    *containers.PostgresContainer
	store *PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.pg = containers.GetManager().GetPostgres(s.T())
	s.store = NewPostgres(s.pg.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.pg.Truncate(context.Background()))
}

func (s *PostgresStoreSuite) TestCountByLifecycle() {
	ctx := context.Background()
	s.Require().NoError(s.store.Put(ctx, testutil.NewState(testutil.TestIDs.Subject1, models.LifecyclePendingWallet, testutil.TestIDs.Nonce1)))
	s.Require().NoError(s.store.Put(ctx, testutil.NewState(testutil.TestIDs.Subject2, models.LifecycleSuccess, testutil.TestIDs.Nonce2)))

	counts, err := s.store.CountByLifecycle(ctx)
	s.Require().NoError(err)
	s.Equal(1, counts[models.LifecyclePendingWallet])
	s.Equal(1, counts[models.LifecycleSuccess])
}

func (s *PostgresStoreSuite) TestUpsertKeepsOneRow() {
	ctx := context.Background()
	st := testutil.NewState(testutil.TestIDs.Subject1, models.LifecycleCreated, testutil.TestIDs.Nonce1)
	s.Require().NoError(s.store.Put(ctx, st))
	st.Lifecycle = models.LifecycleProcessing
	s.Require().NoError(s.store.Put(ctx, st))

	n, err := s.pg.CountRows(ctx, "verification_states")
	s.Require().NoError(err)
	s.Equal(1, n)

	got, err := s.store.Get(ctx, st.SubjectID)
	s.Require().NoError(err)
	s.Equal(models.LifecycleProcessing, got.Lifecycle)
}
