package presentation

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"
)

// ErrCeilingReached is returned by Poller.Run when the elapsed-time ceiling
// passed without a terminal result.
var ErrCeilingReached = errors.New("polling ceiling reached")

// CheckFunc performs one status fetch. done ends polling.
type CheckFunc func(ctx context.Context, attempt int) (done bool, err error)

// Poller runs CheckFunc on the backoff schedule until it reports done, fails,
// the context ends, or the ceiling passes.
type Poller struct {
	schedule Schedule
	clock    clock.Clock
	logger   *slog.Logger
}

// PollerOption configures a Poller.
type PollerOption func(*Poller)

func WithPollerClock(c clock.Clock) PollerOption {
	return func(p *Poller) {
		p.clock = c
	}
}

func WithPollerLogger(l *slog.Logger) PollerOption {
	return func(p *Poller) {
		p.logger = l
	}
}

// NewPoller creates a Poller. Zero schedule fields take their defaults.
func NewPoller(schedule Schedule, opts ...PollerOption) *Poller {
	p := &Poller{
		schedule: schedule.withDefaults(),
		clock:    clock.New(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Schedule returns the effective schedule.
func (p *Poller) Schedule() Schedule {
	return p.schedule
}

// Run polls until done. The ceiling is measured from the call to Run and is
// enforced through the context handed to check, so an in-flight fetch is
// abandoned when it passes and no further fetch is issued.
func (p *Poller) Run(ctx context.Context, check CheckFunc) error {
	start := p.clock.Now()
	pollCtx, cancel := p.clock.WithDeadline(ctx, start.Add(p.schedule.Ceiling))
	defer cancel()

	for attempt := 0; ; attempt++ {
		delay := p.schedule.NextDelay(attempt)
		timer := p.clock.Timer(delay)
		select {
		case <-pollCtx.Done():
			timer.Stop()
			return p.stopReason(ctx, start)
		case <-timer.C:
		}

		done, err := check(pollCtx, attempt)
		if err == nil && done {
			return nil
		}
		if pollCtx.Err() != nil {
			return p.stopReason(ctx, start)
		}
		if err != nil {
			return err
		}
	}
}

func (p *Poller) stopReason(parent context.Context, start time.Time) error {
	if err := parent.Err(); err != nil {
		return err
	}
	p.logger.Debug("polling ceiling reached", "elapsed", p.clock.Since(start))
	return ErrCeilingReached
}
