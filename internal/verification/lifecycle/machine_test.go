package lifecycle_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/suite"

	"eudi-storefront/internal/verification/lifecycle"
	"eudi-storefront/internal/verification/models"
	"eudi-storefront/internal/verification/store"
	id "eudi-storefront/pkg/domain"
	dErrors "eudi-storefront/pkg/domain-errors"
	"eudi-storefront/pkg/platform/sentinel"
	"eudi-storefront/pkg/testutil"
)

type MachineSuite struct {
	suite.Suite
	ctx     context.Context
	clock   *clock.Mock
	store   *store.InMemory
	machine *lifecycle.Machine

	mu      sync.Mutex
	changes []lifecycle.Change
}

func TestMachineSuite(t *testing.T) {
	suite.Run(t, new(MachineSuite))
}

func (s *MachineSuite) SetupTest() {
	s.ctx = context.Background()
	s.clock = clock.NewMock()
	s.clock.Set(testutil.Epoch)
	s.store = store.NewInMemory(time.Hour)
	s.changes = nil
	s.machine = lifecycle.NewMachine(s.store,
		lifecycle.WithClock(s.clock),
		lifecycle.WithListener(func(_ context.Context, c lifecycle.Change) {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.changes = append(s.changes, c)
		}),
	)
}

func (s *MachineSuite) start(nonce string) models.VerificationState {
	req := testutil.NewPIDRequest(testutil.TestIDs.Subject1, nonce)
	st, err := s.machine.Update(s.ctx, testutil.TestIDs.Subject1, "start",
		func(cur models.VerificationState, now time.Time) (models.VerificationState, error) {
			return lifecycle.Restart(cur, req, models.ModeDirectPost, now), nil
		})
	s.Require().NoError(err)
	return st
}

func (s *MachineSuite) TestUpdateCreatesAndNotifies() {
	st := s.start(testutil.TestIDs.Nonce1)
	s.Equal(models.LifecycleCreated, st.Lifecycle)
	s.Equal(1, st.Attempt)

	s.Require().Len(s.changes, 1)
	s.Nil(s.changes[0].Prev)
	s.Equal(models.LifecycleCreated, s.changes[0].Next.Lifecycle)
	s.Equal("start", s.changes[0].Reason)
}

func (s *MachineSuite) TestRejectedTransitionIsRecorded() {
	s.start(testutil.TestIDs.Nonce1)
	s.clock.Add(time.Second)

	st, err := s.machine.Update(s.ctx, testutil.TestIDs.Subject1, "bogus",
		func(cur models.VerificationState, now time.Time) (models.VerificationState, error) {
			return lifecycle.Transition(cur, models.LifecycleSuccess, now)
		})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeTransitionNotAllowed))
	s.Equal(models.LifecycleCreated, st.Lifecycle)
	s.Equal("transition not allowed: created -> success", st.Error())

	stored, err := s.machine.Get(s.ctx, testutil.TestIDs.Subject1)
	s.Require().NoError(err)
	s.Equal(st.Error(), stored.Error(), "lastError persisted")

	s.Require().Len(s.changes, 2)
	s.Error(s.changes[1].Err)
}

func (s *MachineSuite) TestNoOpIsNotPersisted() {
	s.start(testutil.TestIDs.Nonce1)

	_, err := s.machine.Update(s.ctx, testutil.TestIDs.Subject1, "noop",
		func(cur models.VerificationState, now time.Time) (models.VerificationState, error) {
			return lifecycle.Transition(cur, models.LifecycleCreated, now)
		})
	s.Require().NoError(err)
	s.Len(s.changes, 1)
}

func (s *MachineSuite) TestStaleResultIsDropped() {
	s.start(testutil.TestIDs.Nonce1)
	s.start(testutil.TestIDs.Nonce2)

	called := false
	_, err := s.machine.UpdateIfCurrent(s.ctx, testutil.TestIDs.Subject1, testutil.TestIDs.Nonce1, "late",
		func(cur models.VerificationState, now time.Time) (models.VerificationState, error) {
			called = true
			return cur, nil
		})
	s.ErrorIs(err, sentinel.ErrStale)
	s.False(called)

	st, err := s.machine.Get(s.ctx, testutil.TestIDs.Subject1)
	s.Require().NoError(err)
	s.Equal(testutil.TestIDs.Nonce2, st.Nonce())
	s.Equal(2, st.Attempt)
}

func (s *MachineSuite) TestResultAfterResetIsStale() {
	s.start(testutil.TestIDs.Nonce1)
	s.Require().NoError(s.machine.Reset(s.ctx, testutil.TestIDs.Subject1))

	_, err := s.machine.UpdateIfCurrent(s.ctx, testutil.TestIDs.Subject1, testutil.TestIDs.Nonce1, "late",
		func(cur models.VerificationState, now time.Time) (models.VerificationState, error) {
			return cur, nil
		})
	s.ErrorIs(err, sentinel.ErrStale)

	_, err = s.machine.Get(s.ctx, testutil.TestIDs.Subject1)
	s.ErrorIs(err, sentinel.ErrNotFound)

	last := s.changes[len(s.changes)-1]
	s.Nil(last.Next)
	s.Equal("reset", last.Reason)
}

func (s *MachineSuite) TestResetMissingIsNoop() {
	s.NoError(s.machine.Reset(s.ctx, testutil.TestIDs.Subject2))
	s.Empty(s.changes)
}

func (s *MachineSuite) TestEmptyNonceIsStale() {
	_, err := s.machine.UpdateIfCurrent(s.ctx, testutil.TestIDs.Subject1, "", "x",
		func(cur models.VerificationState, now time.Time) (models.VerificationState, error) {
			return cur, nil
		})
	s.ErrorIs(err, sentinel.ErrStale)
}

func (s *MachineSuite) TestConcurrentResultsApplyOnce() {
	s.start(testutil.TestIDs.Nonce1)
	_, err := s.machine.Update(s.ctx, testutil.TestIDs.Subject1, "open",
		func(cur models.VerificationState, now time.Time) (models.VerificationState, error) {
			return lifecycle.AwaitingWallet(cur, now)
		})
	s.Require().NoError(err)

	claims := &models.NormalizedDisclosedClaims{GivenName: "Erika"}
	result := testutil.RunConcurrent(20, func(int) error {
		_, err := s.machine.UpdateIfCurrent(s.ctx, testutil.TestIDs.Subject1, testutil.TestIDs.Nonce1, "result",
			func(cur models.VerificationState, now time.Time) (models.VerificationState, error) {
				return lifecycle.Succeed(cur, nil, claims, now)
			})
		return err
	})
	s.Equal(int32(20), result.Successes)

	successes := 0
	for _, c := range s.changes {
		if c.Next != nil && c.Next.Lifecycle == models.LifecycleSuccess {
			successes++
		}
	}
	s.Equal(1, successes, "only the first result transitions")
}

func (s *MachineSuite) TestListenersSeeOrderedChanges() {
	s.start(testutil.TestIDs.Nonce1)
	steps := []func(models.VerificationState, time.Time) (models.VerificationState, error){
		lifecycle.AwaitingWallet,
		func(cur models.VerificationState, now time.Time) (models.VerificationState, error) {
			return lifecycle.ApplyRemote(cur, models.RemotePending, now)
		},
		func(cur models.VerificationState, now time.Time) (models.VerificationState, error) {
			return lifecycle.Succeed(cur, nil, nil, now)
		},
	}
	for _, fn := range steps {
		_, err := s.machine.Update(s.ctx, testutil.TestIDs.Subject1, "step", fn)
		s.Require().NoError(err)
	}

	var seen []models.Lifecycle
	for _, c := range s.changes {
		seen = append(seen, c.Next.Lifecycle)
	}
	s.Equal([]models.Lifecycle{
		models.LifecycleCreated,
		models.LifecyclePendingWallet,
		models.LifecycleProcessing,
		models.LifecycleSuccess,
	}, seen)
}

func (s *MachineSuite) TestStoreErrorSurfaces() {
	broken := lifecycle.NewMachine(failingStore{})
	_, err := broken.Update(s.ctx, testutil.TestIDs.Subject1, "x",
		func(cur models.VerificationState, now time.Time) (models.VerificationState, error) {
			return cur, nil
		})
	s.ErrorIs(err, errBoom)
}

var errBoom = errors.New("boom")

type failingStore struct{ lifecycle.Store }

func (failingStore) Get(context.Context, id.SubjectID) (models.VerificationState, error) {
	return models.VerificationState{}, errBoom
}
