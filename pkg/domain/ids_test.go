package domain

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "eudi-storefront/pkg/domain-errors"
)

func TestParseSubjectID(t *testing.T) {
	t.Run("accepts storefront ids", func(t *testing.T) {
		for _, in := range []string{"order_42", "booking-7", "bank.onboarding.1"} {
			id, err := ParseSubjectID(in)
			require.NoError(t, err)
			assert.Equal(t, in, id.String())
		}
	})

	t.Run("trims whitespace", func(t *testing.T) {
		id, err := ParseSubjectID("  order_42 ")
		require.NoError(t, err)
		assert.Equal(t, SubjectID("order_42"), id)
	})

	t.Run("rejects empty, long and odd input", func(t *testing.T) {
		for _, in := range []string{"", "   ", strings.Repeat("a", 129), "order/42", "order 42"} {
			_, err := ParseSubjectID(in)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest), in)
		}
	})
}

func TestParseRequestID(t *testing.T) {
	id := NewRequestID()
	parsed, err := ParseRequestID(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, parsed)

	_, err = ParseRequestID("nope")
	assert.Error(t, err)
	_, err = ParseRequestID("")
	assert.Error(t, err)
}

func TestRequestIDJSON(t *testing.T) {
	id := NewRequestID()
	raw, err := json.Marshal(struct{ ID RequestID }{id})
	require.NoError(t, err)
	assert.Contains(t, string(raw), id.String())

	var out struct{ ID RequestID }
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Equal(t, id, out.ID)
}

func TestIsNil(t *testing.T) {
	assert.True(t, SubjectID("").IsNil())
	assert.True(t, AuthorizationID("").IsNil())
	assert.True(t, RequestID{}.IsNil())
	assert.False(t, NewRequestID().IsNil())
}
