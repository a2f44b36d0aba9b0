package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"

	"eudi-storefront/internal/verification/models"
	id "eudi-storefront/pkg/domain"
	"eudi-storefront/pkg/platform/sentinel"
	s "eudi-storefront/pkg/platform/strings"
	psync "eudi-storefront/pkg/platform/sync"
)

// Store persists one VerificationState per subject.
type Store interface {
	Get(ctx context.Context, subject id.SubjectID) (models.VerificationState, error)
	Put(ctx context.Context, st models.VerificationState) error
	Delete(ctx context.Context, subject id.SubjectID) error
	FindByAuthorization(ctx context.Context, authzID id.AuthorizationID) (id.SubjectID, error)
}

// Change describes one persisted state change. Prev is nil for a new record
// and Next is nil after a reset. Err is set when the change only recorded a
// rejected transition.
type Change struct {
	Subject id.SubjectID
	Prev    *models.VerificationState
	Next    *models.VerificationState
	Err     error
	Reason  string
}

// Listener observes persisted changes in order, per subject. Listeners run
// while the subject is locked and must not block.
type Listener func(ctx context.Context, c Change)

// UpdateFunc derives the next state from the current one.
type UpdateFunc func(current models.VerificationState, now time.Time) (models.VerificationState, error)

// Machine serializes every write to a subject's state.
type Machine struct {
	store     Store
	locks     *psync.ShardedMutex
	clock     clock.Clock
	logger    *slog.Logger
	listeners []Listener
}

// Option configures a Machine.
type Option func(*Machine)

func WithClock(c clock.Clock) Option {
	return func(m *Machine) {
		m.clock = c
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(m *Machine) {
		m.logger = l
	}
}

// WithListener registers a change listener.
func WithListener(l Listener) Option {
	return func(m *Machine) {
		m.listeners = append(m.listeners, l)
	}
}

// NewMachine creates a Machine over store.
func NewMachine(store Store, opts ...Option) *Machine {
	m := &Machine{
		store:  store,
		locks:  psync.NewShardedMutex(),
		clock:  clock.New(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Now returns the machine's clock time.
func (m *Machine) Now() time.Time {
	return m.clock.Now()
}

// Get returns the stored state or sentinel.ErrNotFound.
func (m *Machine) Get(ctx context.Context, subject id.SubjectID) (models.VerificationState, error) {
	return m.store.Get(ctx, subject)
}

// SubjectFor resolves an Authorizer id to its subject.
func (m *Machine) SubjectFor(ctx context.Context, authzID id.AuthorizationID) (id.SubjectID, error) {
	return m.store.FindByAuthorization(ctx, authzID)
}

// Update applies fn to the subject's state under its lock. A missing record
// starts from a fresh created state. The result is persisted whenever fn
// changed UpdatedAt, including when fn also returned an error, so a rejected
// transition still records lastError.
func (m *Machine) Update(ctx context.Context, subject id.SubjectID, reason string, fn UpdateFunc) (models.VerificationState, error) {
	return m.update(ctx, subject, "", reason, fn)
}

// UpdateIfCurrent is Update guarded by nonce: when the stored request nonce
// differs the result belongs to a superseded attempt and sentinel.ErrStale is
// returned without calling fn.
func (m *Machine) UpdateIfCurrent(ctx context.Context, subject id.SubjectID, nonce, reason string, fn UpdateFunc) (models.VerificationState, error) {
	if nonce == "" {
		return models.VerificationState{}, fmt.Errorf("empty nonce: %w", sentinel.ErrStale)
	}
	return m.update(ctx, subject, nonce, reason, fn)
}

func (m *Machine) update(ctx context.Context, subject id.SubjectID, nonce, reason string, fn UpdateFunc) (models.VerificationState, error) {
	key := string(subject)
	m.locks.Lock(key)
	defer m.locks.Unlock(key)

	now := m.clock.Now().UTC()
	current, err := m.store.Get(ctx, subject)
	found := true
	if errors.Is(err, sentinel.ErrNotFound) {
		if nonce != "" {
			return models.VerificationState{}, fmt.Errorf("subject %s was reset: %w", subject, sentinel.ErrStale)
		}
		found = false
		current = models.NewVerificationState(subject, now)
	} else if err != nil {
		return models.VerificationState{}, fmt.Errorf("load state: %w", err)
	}

	if nonce != "" && !current.IsCurrent(nonce) {
		m.logger.DebugContext(ctx, "dropping result for superseded attempt",
			"subject_id", subject,
			"result_nonce", s.Prefix(nonce, 8),
			"current_nonce", s.Prefix(current.Nonce(), 8),
			"reason", reason,
		)
		return current, sentinel.ErrStale
	}

	next, fnErr := fn(current, now)
	if next.UpdatedAt.Equal(current.UpdatedAt) && (found || fnErr != nil) {
		return current, fnErr
	}

	if err := m.store.Put(ctx, next); err != nil {
		return current, fmt.Errorf("save state: %w", err)
	}

	change := Change{Subject: subject, Next: &next, Err: fnErr, Reason: reason}
	if found {
		change.Prev = &current
	}
	m.notify(ctx, change)
	return next, fnErr
}

// Reset discards the subject's state.
func (m *Machine) Reset(ctx context.Context, subject id.SubjectID) error {
	key := string(subject)
	m.locks.Lock(key)
	defer m.locks.Unlock(key)

	current, err := m.store.Get(ctx, subject)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load state: %w", err)
	}
	if err := m.store.Delete(ctx, subject); err != nil {
		return fmt.Errorf("delete state: %w", err)
	}
	m.notify(ctx, Change{Subject: subject, Prev: &current, Reason: "reset"})
	return nil
}

func (m *Machine) notify(ctx context.Context, c Change) {
	for _, l := range m.listeners {
		l(ctx, c)
	}
}
