package store

import (
	"context"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"eudi-storefront/internal/verification/models"
	id "eudi-storefront/pkg/domain"
	"eudi-storefront/pkg/platform/sentinel"
)

// InMemory keeps states in process with a sliding TTL. Suitable for a single
// instance and for tests.
type InMemory struct {
	states *gocache.Cache
	index  *gocache.Cache
	ttl    time.Duration
}

// NewInMemory creates an InMemory store. ttl <= 0 uses DefaultTTL.
func NewInMemory(ttl time.Duration) *InMemory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &InMemory{
		states: gocache.New(ttl, ttl/2),
		index:  gocache.New(ttl, ttl/2),
		ttl:    ttl,
	}
}

func (s *InMemory) Get(_ context.Context, subject id.SubjectID) (models.VerificationState, error) {
	v, ok := s.states.Get(string(subject))
	if !ok {
		return models.VerificationState{}, fmt.Errorf("state %s: %w", subject, sentinel.ErrNotFound)
	}
	return v.(models.VerificationState), nil
}

// Put replaces the record and re-points the Authorizer index. go-cache is
// safe for concurrent use; callers serialize writes per subject.
func (s *InMemory) Put(_ context.Context, st models.VerificationState) error {
	key := string(st.SubjectID)
	if prev, ok := s.states.Get(key); ok {
		if old := prev.(models.VerificationState).Authorizer(); old != "" && old != st.Authorizer() {
			s.index.Delete(string(old))
		}
	}
	s.states.Set(key, st, s.ttl)
	if a := st.Authorizer(); a != "" {
		s.index.Set(string(a), st.SubjectID, s.ttl)
	}
	return nil
}

func (s *InMemory) Delete(_ context.Context, subject id.SubjectID) error {
	key := string(subject)
	if prev, ok := s.states.Get(key); ok {
		if a := prev.(models.VerificationState).Authorizer(); a != "" {
			s.index.Delete(string(a))
		}
	}
	s.states.Delete(key)
	return nil
}

func (s *InMemory) FindByAuthorization(_ context.Context, authzID id.AuthorizationID) (id.SubjectID, error) {
	v, ok := s.index.Get(string(authzID))
	if !ok {
		return "", fmt.Errorf("authorization %s: %w", authzID, sentinel.ErrNotFound)
	}
	return v.(id.SubjectID), nil
}

// Len returns the number of live records.
func (s *InMemory) Len() int {
	return s.states.ItemCount()
}
