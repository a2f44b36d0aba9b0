package events

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "eudi-storefront/pkg/domain"
)

func idOf(s string) id.AuthorizationID { return id.AuthorizationID(s) }

func callback(subject string) CallbackReceived {
	return CallbackReceived{SubjectID: subject, AuthorizationID: "az_1", Status: "pending"}
}

func TestHubFanOut(t *testing.T) {
	h := NewHub()
	a, _ := h.Subscribe("s1", "")
	b, _ := h.Subscribe("s1", "")
	other, _ := h.Subscribe("s2", "")
	defer other.Cancel()

	require.NoError(t, h.Publish("s1", AuthorizationReset{SubjectID: "s1"}))

	fa := <-a.C
	fb := <-b.C
	assert.Equal(t, fa.ID, fb.ID)
	assert.Equal(t, TypeAuthorizationReset, fa.Type)
	assert.Empty(t, other.C)

	a.Cancel()
	a.Cancel()
	_, open := <-a.C
	assert.False(t, open)
	assert.Equal(t, 1, h.Subscribers("s1"))
	b.Cancel()
	assert.Equal(t, 0, h.Subscribers("s1"))
}

func TestHubReplayAfterLastEventID(t *testing.T) {
	h := NewHub()
	for i := 0; i < 3; i++ {
		require.NoError(t, h.Publish("s1", callback("s1")))
	}

	sub, replay := h.Subscribe("s1", "1")
	defer sub.Cancel()
	require.Len(t, replay, 2)
	assert.Equal(t, "2", replay[0].ID)
	assert.Equal(t, "3", replay[1].ID)

	_, none := h.Subscribe("s1", "")
	assert.Empty(t, none)
	_, junk := h.Subscribe("s1", "not-a-number")
	assert.Empty(t, junk)
	_, unknown := h.Subscribe("s9", "0")
	assert.Empty(t, unknown)
}

func TestHubHistoryIsBounded(t *testing.T) {
	h := NewHub()
	for i := 0; i < historySize+10; i++ {
		require.NoError(t, h.Publish("s1", callback("s1")))
	}
	_, replay := h.Subscribe("s1", "0")
	assert.Len(t, replay, historySize)
	assert.Equal(t, "11", replay[0].ID)
}

func TestHubDropsSlowSubscriber(t *testing.T) {
	var gauge float64
	h := NewHub(WithSubscriberGauge(func(d float64) { gauge += d }))
	sub, _ := h.Subscribe("s1", "")
	assert.Equal(t, 1.0, gauge)

	for i := 0; i < subscriberBuffer+1; i++ {
		require.NoError(t, h.Publish("s1", AuthorizationReset{SubjectID: "s1"}))
	}
	assert.Equal(t, 0, h.Subscribers("s1"))
	assert.Equal(t, 0.0, gauge)

	n := 0
	for range sub.C {
		n++
	}
	assert.Equal(t, subscriberBuffer, n, "buffered frames drain, then the channel closes")
	sub.Cancel()
}

func TestHubClose(t *testing.T) {
	h := NewHub()
	sub, _ := h.Subscribe("s1", "")
	h.Close()
	_, open := <-sub.C
	assert.False(t, open)
}

func TestHubResetCollapsesHistory(t *testing.T) {
	h := NewHub()
	for i := 0; i < 5; i++ {
		require.NoError(t, h.Publish("s1", callback("s1")))
	}
	require.Equal(t, 5, h.historyLen("s1"))

	require.NoError(t, h.Publish("s1", AuthorizationReset{SubjectID: "s1"}))
	assert.Equal(t, 1, h.historyLen("s1"))

	_, replay := h.Subscribe("s1", "0")
	require.Len(t, replay, 1)
	assert.Equal(t, TypeAuthorizationReset, replay[0].Type)
}

func TestHubEvictsIdleHistory(t *testing.T) {
	clk := clock.NewMock()
	h := NewHub(WithHubClock(clk), WithHistoryTTL(time.Minute))

	require.NoError(t, h.Publish("gone", AuthorizationReset{SubjectID: "gone"}))
	require.NoError(t, h.Publish("watched", callback("watched")))
	sub, _ := h.Subscribe("watched", "")
	defer sub.Cancel()

	clk.Add(30 * time.Second)
	require.NoError(t, h.Publish("fresh", callback("fresh")))
	assert.Equal(t, 1, h.historyLen("gone"), "not idle for a full TTL yet")

	clk.Add(45 * time.Second)
	require.NoError(t, h.Publish("fresh", callback("fresh")))

	assert.Equal(t, 0, h.historyLen("gone"))
	assert.Equal(t, 1, h.historyLen("watched"), "subjects with subscribers keep history")
	assert.Equal(t, 2, h.historyLen("fresh"))
	assert.Len(t, h.history, 2)
}
