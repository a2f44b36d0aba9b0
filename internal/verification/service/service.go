// Package service drives verification attempts end to end: it builds the
// request, talks to the Authorizer or waits on the browser exchange, and
// funnels every result through the lifecycle Machine.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"eudi-storefront/internal/platform/tracer"
	"eudi-storefront/internal/verification/authorizer"
	"eudi-storefront/internal/verification/events"
	"eudi-storefront/internal/verification/lifecycle"
	"eudi-storefront/internal/verification/metrics"
	"eudi-storefront/internal/verification/models"
	"eudi-storefront/internal/verification/presentation"
	"eudi-storefront/internal/verification/request"
	id "eudi-storefront/pkg/domain"
	dErrors "eudi-storefront/pkg/domain-errors"
	"eudi-storefront/pkg/platform/sentinel"
)

// Authorizer is the remote verification service.
type Authorizer interface {
	CreateAuthorization(ctx context.Context, nonce string, mode models.Mode, query request.DCQL) (*authorizer.Authorization, error)
	GetStatus(ctx context.Context, authzID id.AuthorizationID) (models.RemoteStatus, error)
	GetPolicyResponse(ctx context.Context, authzID id.AuthorizationID) (json.RawMessage, error)
	GetCredentials(ctx context.Context, authzID id.AuthorizationID) (json.RawMessage, error)
}

// EventPublisher fans events out to a subject's subscribers. Publish must not
// block.
type EventPublisher interface {
	Publish(subject id.SubjectID, p events.Payload) error
}

// Service orchestrates verification attempts. There is at most one running
// attempt per subject; starting a new one or resetting cancels the old one,
// and anything the old one still produces is dropped as stale.
type Service struct {
	machine    *lifecycle.Machine
	builder    *request.Builder
	authorizer Authorizer
	poller     *presentation.Poller
	exchange   *presentation.Exchange
	events     EventPublisher
	tracer     tracer.Tracer
	metrics    *metrics.Metrics
	logger     *slog.Logger
	origin     string

	mu   sync.Mutex
	runs map[id.SubjectID]*run
	wg   sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
}

// run is the background half of one attempt.
type run struct {
	nonce  string
	cancel context.CancelFunc
	done   chan struct{}
}

// Option configures the Service.
type Option func(*Service)

// WithPoller sets the direct_post poller. Defaults to the standard schedule.
func WithPoller(p *presentation.Poller) Option {
	return func(s *Service) {
		s.poller = p
	}
}

// WithExchange sets the dc_api rendezvous.
func WithExchange(e *presentation.Exchange) Option {
	return func(s *Service) {
		s.exchange = e
	}
}

// WithEvents sets where callback events are published. Lifecycle events are
// published by the listener returned from NewEventListener.
func WithEvents(p EventPublisher) Option {
	return func(s *Service) {
		s.events = p
	}
}

func WithTracer(t tracer.Tracer) Option {
	return func(s *Service) {
		s.tracer = t
	}
}

// WithMetrics sets the metrics collector for the service.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithLogger sets the logger for the service.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		s.logger = l
	}
}

// WithOrigin sets the page origin dc_api requests are scoped to.
func WithOrigin(origin string) Option {
	return func(s *Service) {
		s.origin = origin
	}
}

// New creates a Service. Panics if a required dependency is nil.
func New(machine *lifecycle.Machine, builder *request.Builder, authz Authorizer, opts ...Option) *Service {
	if machine == nil {
		panic("service.New: lifecycle machine is required")
	}
	if builder == nil {
		panic("service.New: request builder is required")
	}
	if authz == nil {
		panic("service.New: authorizer is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{
		machine:    machine,
		builder:    builder,
		authorizer: authz,
		logger:     slog.Default(),
		runs:       make(map[id.SubjectID]*run),
		ctx:        ctx,
		cancel:     cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.poller == nil {
		s.poller = presentation.NewPoller(presentation.DefaultSchedule(), presentation.WithPollerLogger(s.logger))
	}
	if s.exchange == nil {
		s.exchange = presentation.NewExchange()
	}
	if s.tracer == nil {
		s.tracer = tracer.NewNoop()
	}
	return s
}

// Close cancels every running attempt and waits for them to return. States
// are left as they are; a restarted process picks them up with Refresh.
func (s *Service) Close() {
	s.cancel()
	s.wg.Wait()
}

// Get returns the subject's current state.
func (s *Service) Get(ctx context.Context, subject id.SubjectID) (*models.VerificationState, error) {
	st, err := s.machine.Get(ctx, subject)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "no verification for this subject")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load verification")
	}
	return &st, nil
}

// Reset cancels the running attempt and discards the subject's state.
func (s *Service) Reset(ctx context.Context, subject id.SubjectID) error {
	s.stopRun(subject)
	if err := s.machine.Reset(ctx, subject); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to reset verification")
	}
	s.logger.InfoContext(ctx, "verification reset", "subject_id", subject)
	return nil
}

// Running reports whether a background attempt is active for subject.
func (s *Service) Running(subject id.SubjectID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.runs[subject]
	return ok
}

// launch starts fn as the subject's background attempt, cancelling any
// previous one.
func (s *Service) launch(subject id.SubjectID, nonce string, fn func(ctx context.Context)) *run {
	ctx, cancel := context.WithCancel(s.ctx)
	r := &run{nonce: nonce, cancel: cancel, done: make(chan struct{})}

	s.mu.Lock()
	if prev, ok := s.runs[subject]; ok {
		prev.cancel()
	}
	s.runs[subject] = r
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		defer close(r.done)
		defer cancel()
		defer func() {
			s.mu.Lock()
			if s.runs[subject] == r {
				delete(s.runs, subject)
			}
			s.mu.Unlock()
		}()
		fn(ctx)
	}()
	return r
}

func (s *Service) stopRun(subject id.SubjectID) {
	s.mu.Lock()
	r, ok := s.runs[subject]
	if ok {
		delete(s.runs, subject)
	}
	s.mu.Unlock()
	if ok {
		r.cancel()
	}
}

func (s *Service) runFor(subject id.SubjectID, nonce string) (*run, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[subject]
	if !ok || r.nonce != nonce {
		return nil, false
	}
	return r, true
}

func (s *Service) dropStale(ctx context.Context, subject id.SubjectID, stage string) {
	if s.metrics != nil {
		s.metrics.IncrementStaleDropped(stage)
	}
	s.logger.DebugContext(ctx, "stale result dropped", "subject_id", subject, "stage", stage)
}
