package events

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBufferEvictsOldestFirst(t *testing.T) {
	b := NewBuffer(3)
	for i := 1; i <= 5; i++ {
		b.Add(Message{ID: strconv.Itoa(i)})
	}
	got := b.Snapshot()
	assert.Len(t, got, 3)
	assert.Equal(t, []string{"3", "4", "5"}, []string{got[0].ID, got[1].ID, got[2].ID})
}

func TestBufferDefaultCapacity(t *testing.T) {
	b := NewBuffer(0)
	assert.Equal(t, DefaultBufferSize, b.Cap())
	for i := 0; i < 2*DefaultBufferSize; i++ {
		b.Add(Message{ID: strconv.Itoa(i)})
	}
	assert.Equal(t, DefaultBufferSize, b.Len())
	assert.Equal(t, strconv.Itoa(DefaultBufferSize), b.Snapshot()[0].ID)
}

func TestBufferPartial(t *testing.T) {
	b := NewBuffer(10)
	b.Add(Message{ID: "a"})
	b.Add(Message{ID: "b"})
	assert.Equal(t, 2, b.Len())
	assert.Equal(t, "a", b.Snapshot()[0].ID)
}
