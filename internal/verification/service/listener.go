package service

import (
	"context"
	"log/slog"
	"strings"

	"eudi-storefront/internal/verification/events"
	"eudi-storefront/internal/verification/lifecycle"
	"eudi-storefront/internal/verification/metrics"
	"eudi-storefront/internal/verification/models"
)

// NewEventListener mirrors persisted lifecycle changes onto the subject's
// event stream and counts outcomes. It runs under the subject lock, so it
// only does non-blocking work.
func NewEventListener(pub EventPublisher, m *metrics.Metrics, logger *slog.Logger) lifecycle.Listener {
	if logger == nil {
		logger = slog.Default()
	}
	send := func(c lifecycle.Change, p events.Payload) {
		if err := pub.Publish(c.Subject, p); err != nil {
			logger.Warn("event publish failed", "subject_id", c.Subject, "type", p.EventType(), "error", err)
		}
	}

	return func(_ context.Context, c lifecycle.Change) {
		send(c, transitionEvent(c))

		if c.Next == nil {
			send(c, events.AuthorizationReset{SubjectID: string(c.Subject)})
			return
		}
		next := *c.Next

		if c.Err != nil {
			if m != nil && c.Prev != nil {
				m.IncrementTransitionRejected(string(c.Prev.Lifecycle), attemptedTarget(c))
			}
			send(c, events.StatusFromState(next))
			return
		}

		send(c, events.StatusFromState(next))
		if next.Lifecycle.IsSettled() && (c.Prev == nil || c.Prev.Lifecycle != next.Lifecycle || c.Prev.Attempt != next.Attempt) {
			send(c, events.CompletedFromState(next))
			if m != nil {
				m.IncrementOutcome(string(next.Lifecycle))
			}
		}
	}
}

func transitionEvent(c lifecycle.Change) events.DebugTransition {
	ev := events.DebugTransition{Reason: c.Reason}
	if c.Reason == "" {
		ev.Reason = "unspecified"
	}
	if c.Prev != nil {
		ev.From = string(c.Prev.Lifecycle)
	}
	if c.Next != nil {
		ev.To = string(c.Next.Lifecycle)
	}
	if c.Err != nil {
		ev.Error = c.Err.Error()
	}
	return ev
}

// attemptedTarget recovers the refused target from the change reason when it
// names a remote status, for the metric label.
func attemptedTarget(c lifecycle.Change) string {
	if remote, ok := strings.CutPrefix(c.Reason, "status:"); ok {
		if target, err := lifecycle.MapRemoteStatus(models.RemoteStatus(remote)); err == nil {
			return string(target)
		}
	}
	return "unknown"
}
