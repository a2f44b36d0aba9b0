package events

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"eudi-storefront/internal/verification/models"
	id "eudi-storefront/pkg/domain"
	"eudi-storefront/pkg/platform/sentinel"
)

// DefaultKeepalive is the interval between keepalive comments.
const DefaultKeepalive = 15 * time.Second

// StateReader returns the subject's current state for the connect snapshot.
type StateReader interface {
	Get(ctx context.Context, subject id.SubjectID) (models.VerificationState, error)
}

// StreamHandler serves the event stream of one subject.
type StreamHandler struct {
	hub       *Hub
	states    StateReader
	keepalive time.Duration
	logger    *slog.Logger
}

// NewStreamHandler creates a StreamHandler. keepalive <= 0 uses DefaultKeepalive.
func NewStreamHandler(hub *Hub, states StateReader, keepalive time.Duration, logger *slog.Logger) *StreamHandler {
	if keepalive <= 0 {
		keepalive = DefaultKeepalive
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &StreamHandler{hub: hub, states: states, keepalive: keepalive, logger: logger}
}

// Serve streams events for subject until the client goes away or the hub
// drops the subscription. The first frame is always connected, followed by
// a snapshot of the current state when one exists, then any frames after
// the request's Last-Event-ID.
func (h *StreamHandler) Serve(w http.ResponseWriter, r *http.Request, subject id.SubjectID) {
	rc := http.NewResponseController(w)
	ctx := r.Context()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	sub, replay := h.hub.Subscribe(subject, r.Header.Get("Last-Event-ID"))
	defer sub.Cancel()

	connID := uuid.NewString()
	start := h.hub.clock.Now()
	logger := h.logger.With("subject_id", subject, "connection_id", connID)
	logger.InfoContext(ctx, "event stream opened", "replay", len(replay))
	defer func() {
		logger.InfoContext(ctx, "event stream closed", "duration", h.hub.since(start))
	}()

	if err := h.writePayload(w, "", Connected{ConnectionID: connID, SubjectID: string(subject)}); err != nil {
		return
	}
	if st, err := h.states.Get(ctx, subject); err == nil {
		if err := h.writePayload(w, "", StatusFromState(st)); err != nil {
			return
		}
	} else if !errors.Is(err, sentinel.ErrNotFound) {
		logger.WarnContext(ctx, "snapshot unavailable", "error", err)
	}
	for _, f := range replay {
		if err := writeFrame(w, f); err != nil {
			return
		}
	}
	if err := rc.Flush(); err != nil {
		logger.WarnContext(ctx, "streaming unsupported", "error", err)
		return
	}

	ticker := h.hub.clock.Ticker(h.keepalive)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := io.WriteString(w, ": keepalive\n\n"); err != nil {
				return
			}
		case f, ok := <-sub.C:
			if !ok {
				return
			}
			if err := writeFrame(w, f); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

func (h *StreamHandler) writePayload(w io.Writer, frameID string, p Payload) error {
	data, err := Encode(p, h.hub.clock.Now())
	if err != nil {
		return err
	}
	return writeFrame(w, Frame{ID: frameID, Type: p.EventType(), Data: data})
}

func writeFrame(w io.Writer, f Frame) error {
	var err error
	if f.ID != "" {
		_, err = fmt.Fprintf(w, "id: %s\n", f.ID)
	}
	if err == nil {
		_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", f.Type, f.Data)
	}
	return err
}
