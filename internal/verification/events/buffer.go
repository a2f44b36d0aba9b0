package events

import "sync"

// DefaultBufferSize bounds the debug console history.
const DefaultBufferSize = 500

// Buffer keeps the most recent messages, evicting oldest first. It exists for
// display only.
type Buffer struct {
	mu    sync.Mutex
	items []Message
	start int
	size  int
}

// NewBuffer creates a Buffer holding at most capacity messages.
func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultBufferSize
	}
	return &Buffer{items: make([]Message, capacity)}
}

// Add appends m, evicting the oldest message when full.
func (b *Buffer) Add(m Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	capacity := len(b.items)
	if b.size < capacity {
		b.items[(b.start+b.size)%capacity] = m
		b.size++
		return
	}
	b.items[b.start] = m
	b.start = (b.start + 1) % capacity
}

// Snapshot returns the buffered messages, oldest first.
func (b *Buffer) Snapshot() []Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Message, b.size)
	for i := 0; i < b.size; i++ {
		out[i] = b.items[(b.start+i)%len(b.items)]
	}
	return out
}

func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

func (b *Buffer) Cap() int {
	return len(b.items)
}
