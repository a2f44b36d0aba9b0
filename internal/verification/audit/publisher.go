package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"eudi-storefront/internal/verification/lifecycle"
)

// Publisher hands records to a Sink. With an async buffer, records are
// written by a background goroutine and Emit never blocks.
type Publisher struct {
	sink    Sink
	records chan Record
	wg      sync.WaitGroup
	logger  *slog.Logger
	async   bool
	now     func() time.Time
}

// PublisherOption configures the Publisher.
type PublisherOption func(*Publisher)

// WithAsyncBuffer queues up to size records for background delivery.
func WithAsyncBuffer(size int) PublisherOption {
	return func(p *Publisher) {
		if size > 0 {
			p.records = make(chan Record, size)
			p.async = true
		}
	}
}

func WithPublisherLogger(logger *slog.Logger) PublisherOption {
	return func(p *Publisher) {
		p.logger = logger
	}
}

func NewPublisher(sink Sink, opts ...PublisherOption) *Publisher {
	p := &Publisher{sink: sink, logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	if p.async {
		p.wg.Add(1)
		go p.drain()
	}
	return p
}

func (p *Publisher) drain() {
	defer p.wg.Done()
	for r := range p.records {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := p.sink.Append(ctx, r); err != nil {
			p.logger.Error("failed to persist audit record",
				"error", err,
				"action", r.Action,
				"subject", r.SubjectID,
			)
		}
		cancel()
	}
}

// Close stops the background writer after pending records are written.
func (p *Publisher) Close() {
	if p.async && p.records != nil {
		close(p.records)
		p.wg.Wait()
	}
}

// Emit records r, filling ID and OccurredAt when unset.
func (p *Publisher) Emit(ctx context.Context, r Record) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.OccurredAt.IsZero() {
		r.OccurredAt = p.now().UTC()
	}
	if p.async {
		select {
		case p.records <- r:
		default:
			p.logger.Warn("audit buffer full, record dropped",
				"action", r.Action,
				"subject", r.SubjectID,
			)
		}
		return nil
	}
	return p.sink.Append(ctx, r)
}

// Listener turns lifecycle changes into audit records.
func (p *Publisher) Listener() lifecycle.Listener {
	return func(ctx context.Context, c lifecycle.Change) {
		if err := p.Emit(ctx, RecordFor(c)); err != nil {
			p.logger.ErrorContext(ctx, "audit emit failed", "error", err, "subject", c.Subject)
		}
	}
}

// RecordFor classifies a change.
func RecordFor(c lifecycle.Change) Record {
	r := Record{SubjectID: string(c.Subject), Reason: c.Reason}
	if c.Prev != nil {
		r.From = string(c.Prev.Lifecycle)
		r.Attempt = c.Prev.Attempt
	}
	switch {
	case c.Next == nil:
		r.Action = ActionReset
	case c.Err != nil:
		r.Action = ActionTransitionRejected
		r.To = string(c.Next.Lifecycle)
		r.Attempt = c.Next.Attempt
		r.Detail = c.Err.Error()
	case c.Prev == nil || c.Prev.Attempt != c.Next.Attempt:
		r.Action = ActionAttemptStarted
		r.To = string(c.Next.Lifecycle)
		r.Attempt = c.Next.Attempt
	default:
		r.Action = ActionTransition
		r.To = string(c.Next.Lifecycle)
		r.Attempt = c.Next.Attempt
		r.Detail = c.Next.Error()
	}
	if c.Next != nil {
		r.OccurredAt = c.Next.UpdatedAt
	}
	return r
}
