package audit

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"eudi-storefront/internal/platform/kafka/producer"
	"eudi-storefront/internal/verification/lifecycle"
	"eudi-storefront/internal/verification/models"
	"eudi-storefront/pkg/testutil"
)

type PublisherSuite struct {
	suite.Suite
	sink *InMemorySink
}

func TestPublisherSuite(t *testing.T) {
	suite.Run(t, new(PublisherSuite))
}

func (s *PublisherSuite) SetupTest() {
	s.sink = NewInMemorySink()
}

func (s *PublisherSuite) TestSyncEmitFillsDefaults() {
	p := NewPublisher(s.sink)
	s.Require().NoError(p.Emit(context.Background(), Record{SubjectID: "s1", Action: ActionReset}))

	got, err := s.sink.ListBySubject(context.Background(), "s1")
	s.Require().NoError(err)
	s.Require().Len(got, 1)
	s.NotEqual(uuid.Nil, got[0].ID)
	s.False(got[0].OccurredAt.IsZero())
}

func (s *PublisherSuite) TestAsyncCloseDrains() {
	p := NewPublisher(s.sink, WithAsyncBuffer(100))
	for i := 0; i < 50; i++ {
		s.Require().NoError(p.Emit(context.Background(), Record{SubjectID: "s1", Action: ActionTransition, Attempt: i}))
	}
	p.Close()

	got, err := s.sink.ListBySubject(context.Background(), "s1")
	s.Require().NoError(err)
	s.Len(got, 50)
	s.Equal(49, got[49].Attempt, "order preserved")
}

func (s *PublisherSuite) TestAsyncSinkErrorsAreLogged() {
	p := NewPublisher(failingSink{}, WithAsyncBuffer(1))
	s.NoError(p.Emit(context.Background(), Record{SubjectID: "s1"}))
	p.Close()
}

func (s *PublisherSuite) TestListenerRecordsChanges() {
	p := NewPublisher(s.sink)
	m := lifecycle.NewMachine(testStore(), lifecycle.WithListener(p.Listener()))
	ctx := context.Background()

	req := testutil.NewPIDRequest(testutil.TestIDs.Subject1, testutil.TestIDs.Nonce1)
	_, err := m.Update(ctx, testutil.TestIDs.Subject1, "start", func(cur models.VerificationState, now time.Time) (models.VerificationState, error) {
		return lifecycle.Restart(cur, req, models.ModeDirectPost, now), nil
	})
	s.Require().NoError(err)
	_, err = m.Update(ctx, testutil.TestIDs.Subject1, "bad", func(cur models.VerificationState, now time.Time) (models.VerificationState, error) {
		return lifecycle.Transition(cur, models.LifecycleSuccess, now)
	})
	s.Require().Error(err)
	s.Require().NoError(m.Reset(ctx, testutil.TestIDs.Subject1))

	got, err := s.sink.ListBySubject(ctx, string(testutil.TestIDs.Subject1))
	s.Require().NoError(err)
	s.Require().Len(got, 3)
	s.Equal(ActionAttemptStarted, got[0].Action)
	s.Equal(ActionTransitionRejected, got[1].Action)
	s.Contains(got[1].Detail, "created -> success")
	s.Equal(ActionReset, got[2].Action)
	s.Equal("created", got[2].From)
}

func TestRecordFor(t *testing.T) {
	prev := testutil.NewState(testutil.TestIDs.Subject1, models.LifecyclePendingWallet, testutil.TestIDs.Nonce1)
	next := prev
	next.Lifecycle = models.LifecycleRejected
	next.LastError = models.Ptr("The presentation was rejected")

	r := RecordFor(lifecycle.Change{Subject: prev.SubjectID, Prev: &prev, Next: &next, Reason: "status"})
	assert.Equal(t, ActionTransition, r.Action)
	assert.Equal(t, "pending_wallet", r.From)
	assert.Equal(t, "rejected", r.To)
	assert.Equal(t, "The presentation was rejected", r.Detail)
	assert.Equal(t, "status", r.Reason)

	retried := next
	retried.Attempt = 2
	retried.Lifecycle = models.LifecycleCreated
	r = RecordFor(lifecycle.Change{Subject: prev.SubjectID, Prev: &next, Next: &retried})
	assert.Equal(t, ActionAttemptStarted, r.Action)
	assert.Equal(t, 2, r.Attempt)
}

type capturedProducer struct {
	msgs []*producer.Message
	err  error
}

func (c *capturedProducer) Produce(_ context.Context, msg *producer.Message) error {
	c.msgs = append(c.msgs, msg)
	return c.err
}

func TestKafkaSinkKeysBySubject(t *testing.T) {
	prod := &capturedProducer{}
	sink := NewKafkaSink(prod, "audit")
	rec := Record{ID: uuid.New(), SubjectID: "order_42", Action: ActionTransition, To: "success", Attempt: 1}

	require.NoError(t, sink.Append(context.Background(), rec))
	require.Len(t, prod.msgs, 1)
	msg := prod.msgs[0]
	assert.Equal(t, "audit", msg.Topic)
	assert.Equal(t, "order_42", string(msg.Key))
	assert.Equal(t, "transition", msg.Headers["action"])

	var decoded Record
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, rec.ID, decoded.ID)
	assert.Equal(t, "success", decoded.To)

	prod.err = errors.New("broker down")
	assert.Error(t, sink.Append(context.Background(), rec))
}

type failingSink struct{}

func (failingSink) Append(context.Context, Record) error { return errors.New("sink down") }
