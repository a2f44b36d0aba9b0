//go:build integration

package audit

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"eudi-storefront/pkg/testutil/containers"
)

type PostgresSinkSuite struct {
	suite.Suite
	pg   *containers.PostgresContainer
	sink *PostgresSink
}

func TestPostgresSinkSuite(t *testing.T) {
	suite.Run(t, new(PostgresSinkSuite))
}

func (s *PostgresSinkSuite) SetupSuite() {
	s.pg = containers.GetManager().GetPostgres(s.T())
	s.sink = NewPostgresSink(s.pg.DB)
}

func (s *PostgresSinkSuite) SetupTest() {
	s.Require().NoError(s.pg.Truncate(context.Background()))
}

func (s *PostgresSinkSuite) TestAppendAndList() {
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, action := range []Action{ActionAttemptStarted, ActionTransition, ActionReset} {
		s.Require().NoError(s.sink.Append(ctx, Record{
			ID:         uuid.New(),
			OccurredAt: base.Add(time.Duration(i) * time.Second),
			SubjectID:  "order_42",
			Action:     action,
			To:         "created",
			Attempt:    1,
		}))
	}

	got, err := s.sink.ListBySubject(ctx, "order_42")
	s.Require().NoError(err)
	s.Require().Len(got, 3)
	s.Equal(ActionAttemptStarted, got[0].Action)
	s.Equal(ActionReset, got[2].Action)
}
