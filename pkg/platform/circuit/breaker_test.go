package circuit

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	b := New("authorizer", WithFailureThreshold(3))

	assert.False(t, b.Record(false).Changed())
	assert.False(t, b.Record(false).Changed())
	change := b.Record(false)

	assert.True(t, change.Opened)
	assert.Equal(t, StateOpen, b.State())
	assert.False(t, b.Record(false).Changed(), "already open")
}

func TestBreakerSuccessResetsFailureRun(t *testing.T) {
	b := New("authorizer", WithFailureThreshold(2))

	b.Record(false)
	b.Record(true)
	b.Record(false)

	assert.Equal(t, StateClosed, b.State())
	assert.NoError(t, b.Err())
}

func TestBreakerClosesAfterSuccesses(t *testing.T) {
	b := New("authorizer", WithFailureThreshold(1), WithSuccessThreshold(2))
	b.Record(false)
	require.Equal(t, StateOpen, b.State())

	assert.False(t, b.Record(true).Changed())
	b.Record(false)
	assert.False(t, b.Record(true).Changed(), "failure restarts the success run")
	change := b.Record(true)

	assert.True(t, change.Closed)
	assert.Equal(t, StateClosed, b.State())
}

func TestBreakerErrReportsOutageDuration(t *testing.T) {
	clk := clock.NewMock()
	b := New("authorizer", WithFailureThreshold(1), WithClock(clk))

	b.Record(false)
	clk.Add(42 * time.Second)

	err := b.Err()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "authorizer circuit open for 42s")

	b.Reset()
	assert.NoError(t, b.Err())
	assert.Equal(t, "closed", b.State().String())
}
