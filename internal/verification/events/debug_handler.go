package events

import (
	"context"
	"log/slog"

	id "eudi-storefront/pkg/domain"
)

// DebugHandler is a slog.Handler that passes every record to next and also
// publishes records carrying a subject_id attribute onto that subject's
// debug channel.
type DebugHandler struct {
	next    slog.Handler
	hub     *Hub
	level   slog.Leveler
	attrs   []slog.Attr
	subject id.SubjectID
}

// NewDebugHandler wraps next. Records below level are not mirrored.
func NewDebugHandler(next slog.Handler, hub *Hub, level slog.Leveler) *DebugHandler {
	return &DebugHandler{next: next, hub: hub, level: level}
}

func (h *DebugHandler) Enabled(ctx context.Context, l slog.Level) bool {
	return l >= h.level.Level() || h.next.Enabled(ctx, l)
}

func (h *DebugHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.subject != "" || r.NumAttrs() > 0 {
		h.mirror(ctx, r)
	}
	if !h.next.Enabled(ctx, r.Level) {
		return nil
	}
	return h.next.Handle(ctx, r)
}

func (h *DebugHandler) mirror(ctx context.Context, r slog.Record) {
	if r.Level < h.level.Level() {
		return
	}
	subject := h.subject
	attrs := make(map[string]any, len(h.attrs)+r.NumAttrs())
	for _, a := range h.attrs {
		attrs[a.Key] = stringify(a.Value.Resolve())
	}
	r.Attrs(func(a slog.Attr) bool {
		if a.Key == "subject_id" {
			subject = id.SubjectID(a.Value.Resolve().String())
		}
		attrs[a.Key] = stringify(a.Value.Resolve())
		return true
	})
	if subject == "" {
		return
	}
	delete(attrs, "subject_id")
	err := h.hub.Publish(subject, DebugLog{
		Level:   levelName(r.Level),
		Message: r.Message,
		Attrs:   attrs,
	})
	if err != nil && h.next.Enabled(ctx, slog.LevelWarn) {
		// Straight to next: going through h would mirror this record too.
		warn := slog.NewRecord(r.Time, slog.LevelWarn, "debug event not published", 0)
		warn.AddAttrs(
			slog.String("subject_id", string(subject)),
			slog.String("dropped_message", r.Message),
			slog.String("error", err.Error()),
		)
		_ = h.next.Handle(ctx, warn)
	}
}

func (h *DebugHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.next = h.next.WithAttrs(attrs)
	clone.attrs = append(append([]slog.Attr(nil), h.attrs...), attrs...)
	for _, a := range attrs {
		if a.Key == "subject_id" {
			clone.subject = id.SubjectID(a.Value.Resolve().String())
		}
	}
	return &clone
}

func (h *DebugHandler) WithGroup(name string) slog.Handler {
	clone := *h
	clone.next = h.next.WithGroup(name)
	return &clone
}

func stringify(v slog.Value) any {
	switch v.Kind() {
	case slog.KindString, slog.KindInt64, slog.KindUint64, slog.KindFloat64, slog.KindBool:
		return v.Any()
	default:
		return v.String()
	}
}

func levelName(l slog.Level) string {
	switch {
	case l >= slog.LevelError:
		return "error"
	case l >= slog.LevelWarn:
		return "warn"
	case l >= slog.LevelInfo:
		return "info"
	default:
		return "debug"
	}
}
