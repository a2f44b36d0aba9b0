package audit

import (
	"context"
	"sync"
)

// InMemorySink keeps records per subject.
type InMemorySink struct {
	mu      sync.RWMutex
	records map[string][]Record
}

func NewInMemorySink() *InMemorySink {
	return &InMemorySink{records: make(map[string][]Record)}
}

func (s *InMemorySink) Append(_ context.Context, r Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[r.SubjectID] = append(s.records[r.SubjectID], r)
	return nil
}

// ListBySubject returns the subject's records in append order.
func (s *InMemorySink) ListBySubject(_ context.Context, subject string) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Record{}, s.records[subject]...), nil
}

func (s *InMemorySink) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make(map[string][]Record)
}
