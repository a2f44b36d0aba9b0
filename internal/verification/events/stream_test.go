package events

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"eudi-storefront/internal/verification/models"
	id "eudi-storefront/pkg/domain"
	"eudi-storefront/pkg/platform/sentinel"
)

type stateMap map[id.SubjectID]models.VerificationState

func (m stateMap) Get(_ context.Context, subject id.SubjectID) (models.VerificationState, error) {
	st, ok := m[subject]
	if !ok {
		return models.VerificationState{}, sentinel.ErrNotFound
	}
	return st, nil
}

func next(t *testing.T, sub *Subscription) Message {
	t.Helper()
	select {
	case m, ok := <-sub.C:
		require.True(t, ok, "subscription closed")
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("no message")
		return Message{}
	}
}

type StreamSuite struct {
	suite.Suite
	hub    *Hub
	states stateMap
	server *httptest.Server
}

func TestStreamSuite(t *testing.T) {
	suite.Run(t, new(StreamSuite))
}

func (s *StreamSuite) SetupTest() {
	s.hub = NewHub()
	s.states = stateMap{}
	h := NewStreamHandler(s.hub, s.states, 20*time.Millisecond, nil)
	s.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.Serve(w, r, id.SubjectID(r.URL.Query().Get("subject")))
	}))
}

func (s *StreamSuite) TearDownTest() {
	s.hub.Close()
	s.server.Close()
}

func (s *StreamSuite) url(subject string) string {
	return s.server.URL + "/?subject=" + subject
}

func (s *StreamSuite) TestConnectedThenSnapshotThenLive() {
	s.states["s1"] = models.VerificationState{
		SubjectID: "s1", Lifecycle: models.LifecyclePendingWallet, Attempt: 1, UpdatedAt: at,
	}
	sub := Subscribe(context.Background(), s.url("s1"))
	defer sub.Close()

	first := next(s.T(), sub)
	s.Require().NoError(first.Err)
	s.Equal(TypeConnected, first.Event.Type)
	s.Equal("s1", first.Event.Payload.(*Connected).SubjectID)

	snap := next(s.T(), sub)
	s.Require().NoError(snap.Err)
	s.Equal(TypeAuthorizationStatus, snap.Event.Type)
	s.Equal("pending_wallet", snap.Event.Payload.(*AuthorizationStatus).Lifecycle)

	s.Require().Eventually(func() bool { return s.hub.Subscribers("s1") == 1 }, time.Second, 5*time.Millisecond)
	s.Require().NoError(s.hub.Publish("s1", CallbackReceived{SubjectID: "s1", AuthorizationID: "a", Status: "pending"}))

	live := next(s.T(), sub)
	s.Require().NoError(live.Err)
	s.Equal(ChannelCallback, live.Event.Channel)
	s.NotEmpty(live.ID)
	s.True(sub.Opened())
}

func (s *StreamSuite) TestNoSnapshotForUnknownSubject() {
	sub := Subscribe(context.Background(), s.url("nobody"))
	defer sub.Close()

	s.Equal(TypeConnected, next(s.T(), sub).Event.Type)
	s.Require().Eventually(func() bool { return s.hub.Subscribers("nobody") == 1 }, time.Second, 5*time.Millisecond)
	s.Require().NoError(s.hub.Publish("nobody", AuthorizationReset{SubjectID: "nobody"}))
	s.Equal(TypeAuthorizationReset, next(s.T(), sub).Event.Type)
}

func (s *StreamSuite) TestCloseIsIdempotentAndStopsDelivery() {
	sub := Subscribe(context.Background(), s.url("s1"))
	next(s.T(), sub)
	s.Require().Eventually(func() bool { return s.hub.Subscribers("s1") == 1 }, time.Second, 5*time.Millisecond)

	sub.Close()
	sub.Close()
	_ = s.hub.Publish("s1", AuthorizationReset{SubjectID: "s1"})

	_, open := <-sub.C
	s.False(open)
	s.Eventually(func() bool { return s.hub.Subscribers("s1") == 0 }, time.Second, 5*time.Millisecond,
		"server side releases the subscription")
}

func (s *StreamSuite) TestRawFramingAndKeepalive() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url("raw"), nil)
	s.Require().NoError(err)
	resp, err := http.DefaultClient.Do(req)
	s.Require().NoError(err)
	defer resp.Body.Close()

	s.Equal("text/event-stream", resp.Header.Get("Content-Type"))
	s.Equal("no-cache", resp.Header.Get("Cache-Control"))

	sc := bufio.NewScanner(resp.Body)
	s.Require().True(sc.Scan())
	s.Equal("event: connected", sc.Text())
	s.Require().True(sc.Scan())
	s.Contains(sc.Text(), "data: {")

	sawKeepalive := false
	for i := 0; i < 10 && sc.Scan(); i++ {
		if sc.Text() == ": keepalive" {
			sawKeepalive = true
			break
		}
	}
	s.True(sawKeepalive)
}

func connectedFrame(t *testing.T) []byte {
	t.Helper()
	frame, err := Encode(Connected{ConnectionID: "c1", SubjectID: "s1"}, at)
	require.NoError(t, err)
	return frame
}

func writeConnected(w http.ResponseWriter, frame []byte) {
	fmt.Fprintf(w, "event: connected\ndata: %s\n\n", frame)
}

func TestStreamErrorWhenNeverOpened(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	sub := Subscribe(context.Background(), srv.URL)
	defer sub.Close()

	m := next(t, sub)
	require.Error(t, m.Err)
	assert.ErrorIs(t, m.Err, ErrStream)
	assert.False(t, m.IsParseError())
	assert.False(t, sub.Opened())

	_, open := <-sub.C
	assert.False(t, open)
}

func TestParseErrorsAreSurfaced(t *testing.T) {
	good, err := Encode(AuthorizationReset{SubjectID: "s1"}, at)
	require.NoError(t, err)
	hello := connectedFrame(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		writeConnected(w, hello)
		fmt.Fprint(w, ": keepalive\n\n")
		fmt.Fprint(w, "event: debug.log\ndata: {\"type\":\"debug.log\",\"channel\":\"authorization\",\"at\":\"2026-03-01T12:00:00Z\",\"data\":{\"level\":\"info\",\"message\":\"x\"}}\n\n")
		fmt.Fprintf(w, "id: 7\nevent: authorization.reset\ndata: %s\n\n", good)
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer srv.Close()

	sub := Subscribe(context.Background(), srv.URL)
	defer sub.Close()

	require.Equal(t, TypeConnected, next(t, sub).Event.Type)
	bad := next(t, sub)
	assert.True(t, bad.IsParseError())
	assert.Nil(t, bad.Event)

	ok := next(t, sub)
	require.NoError(t, ok.Err)
	assert.Equal(t, "7", ok.ID)
	assert.Equal(t, "7", ok.Event.ID)
}

func TestReconnectsWithLastEventID(t *testing.T) {
	frame, err := Encode(AuthorizationReset{SubjectID: "s1"}, at)
	require.NoError(t, err)
	hello := connectedFrame(t)

	var calls atomic.Int32
	var resumedFrom atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		w.Header().Set("Content-Type", "text/event-stream")
		writeConnected(w, hello)
		if n == 1 {
			fmt.Fprintf(w, "id: 41\nevent: authorization.reset\ndata: %s\n\n", frame)
			return
		}
		resumedFrom.Store(r.Header.Get("Last-Event-ID"))
		fmt.Fprintf(w, "id: 42\nevent: authorization.reset\ndata: %s\n\n", frame)
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer srv.Close()

	sub := Subscribe(context.Background(), srv.URL, WithReconnectBackOff(func() backoff.BackOff {
		return backoff.NewConstantBackOff(10 * time.Millisecond)
	}))
	defer sub.Close()

	require.Equal(t, TypeConnected, next(t, sub).Event.Type)
	assert.Equal(t, "41", next(t, sub).ID)
	require.Equal(t, TypeConnected, next(t, sub).Event.Type)
	second := next(t, sub)
	require.NoError(t, second.Err, "a dropped open stream reconnects silently")
	assert.Equal(t, "42", second.ID)
	assert.Equal(t, "41", resumedFrom.Load())
}

func TestReconnectGivesUp(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) > 1 {
			http.Error(w, "gone", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sub := Subscribe(context.Background(), srv.URL, WithReconnectBackOff(func() backoff.BackOff {
		return backoff.WithMaxRetries(backoff.NewConstantBackOff(time.Millisecond), 2)
	}))
	defer sub.Close()

	m := next(t, sub)
	assert.ErrorIs(t, m.Err, ErrStream)
	assert.Contains(t, m.Err.Error(), "gave up")
	assert.True(t, sub.Opened())
}

// flakyStream serves connected plus one reset frame per connection, holds the
// connection for hold, then closes it.
func flakyStream(t *testing.T, hold time.Duration) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	frame, err := Encode(AuthorizationReset{SubjectID: "s1"}, at)
	require.NoError(t, err)
	hello := connectedFrame(t)

	calls := &atomic.Int32{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		w.Header().Set("Content-Type", "text/event-stream")
		writeConnected(w, hello)
		fmt.Fprintf(w, "id: %d\nevent: authorization.reset\ndata: %s\n\n", n, frame)
		w.(http.Flusher).Flush()
		select {
		case <-time.After(hold):
		case <-r.Context().Done():
		}
	}))
	return srv, calls
}

func expectResets(t *testing.T, sub *Subscription, n int) {
	t.Helper()
	for i := 1; i <= n; i++ {
		connected := next(t, sub)
		require.NoError(t, connected.Err, "connection %d", i)
		require.Equal(t, TypeConnected, connected.Event.Type)
		reset := next(t, sub)
		require.NoError(t, reset.Err, "connection %d", i)
		assert.Equal(t, fmt.Sprint(i), reset.ID)
	}
}

func TestReconnectAfterStreamOutlivesElapsedBudget(t *testing.T) {
	srv, calls := flakyStream(t, 150*time.Millisecond)
	defer srv.Close()

	sub := Subscribe(context.Background(), srv.URL, WithReconnectBackOff(func() backoff.BackOff {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = 5 * time.Millisecond
		b.MaxElapsedTime = 100 * time.Millisecond
		return b
	}))
	defer sub.Close()

	expectResets(t, sub, 3)
	assert.GreaterOrEqual(t, calls.Load(), int32(3))
}

func TestSuccessfulReconnectsDoNotSpendRetryBudget(t *testing.T) {
	srv, _ := flakyStream(t, 5*time.Millisecond)
	defer srv.Close()

	sub := Subscribe(context.Background(), srv.URL, WithReconnectBackOff(func() backoff.BackOff {
		return backoff.WithMaxRetries(backoff.NewConstantBackOff(time.Millisecond), 1)
	}))
	defer sub.Close()

	expectResets(t, sub, 4)
}

func TestFirstFrameMustBeConnected(t *testing.T) {
	frame, err := Encode(AuthorizationReset{SubjectID: "s1"}, at)
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprintf(w, "id: 9\nevent: authorization.reset\ndata: %s\n\n", frame)
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer srv.Close()

	sub := Subscribe(context.Background(), srv.URL)
	defer sub.Close()

	bad := next(t, sub)
	require.True(t, bad.IsParseError())
	assert.Contains(t, bad.Err.Error(), "expected \"connected\"")

	ev := next(t, sub)
	require.NoError(t, ev.Err)
	assert.Equal(t, TypeAuthorizationReset, ev.Event.Type)
}
