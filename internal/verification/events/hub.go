package events

import (
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	id "eudi-storefront/pkg/domain"
)

const (
	subscriberBuffer = 64
	historySize      = 64

	// DefaultHistoryTTL is how long an idle subject's history outlives its
	// last subscriber.
	DefaultHistoryTTL = 10 * time.Minute
)

// Frame is one encoded event ready to be written to a stream.
type Frame struct {
	ID   string
	Type Type
	Data []byte
}

// Hub fans frames out to the streams open for a subject. It keeps a short
// per-subject history so a reconnecting client can resume from Last-Event-ID.
// A reset collapses the history to the reset frame, and histories of subjects
// without subscribers are evicted once idle for the history TTL.
type Hub struct {
	mu         sync.Mutex
	seq        uint64
	subs       map[id.SubjectID]map[*HubSubscription]struct{}
	history    map[id.SubjectID]*subjectHistory
	historyTTL time.Duration
	lastSweep  time.Time
	clock      clock.Clock
	logger     *slog.Logger
	gauge      func(delta float64)
}

type subjectHistory struct {
	frames  []Frame
	touched time.Time
}

// HubOption configures a Hub.
type HubOption func(*Hub)

func WithHubClock(c clock.Clock) HubOption {
	return func(h *Hub) {
		h.clock = c
	}
}

func WithHubLogger(l *slog.Logger) HubOption {
	return func(h *Hub) {
		h.logger = l
	}
}

// WithHistoryTTL sets how long an idle subject keeps its history.
func WithHistoryTTL(d time.Duration) HubOption {
	return func(h *Hub) {
		if d > 0 {
			h.historyTTL = d
		}
	}
}

// WithSubscriberGauge reports subscriber count changes.
func WithSubscriberGauge(fn func(delta float64)) HubOption {
	return func(h *Hub) {
		h.gauge = fn
	}
}

// NewHub creates an empty Hub.
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		subs:       make(map[id.SubjectID]map[*HubSubscription]struct{}),
		history:    make(map[id.SubjectID]*subjectHistory),
		historyTTL: DefaultHistoryTTL,
		clock:      clock.New(),
		logger:     slog.Default(),
		gauge:      func(float64) {},
	}
	for _, opt := range opts {
		opt(h)
	}
	h.lastSweep = h.clock.Now()
	return h
}

// HubSubscription receives frames for one subject. C is closed when the
// subscription is cancelled or dropped for falling behind.
type HubSubscription struct {
	C       <-chan Frame
	ch      chan Frame
	subject id.SubjectID
	hub     *Hub
	once    sync.Once
}

// Cancel detaches the subscription. Safe to call more than once.
func (s *HubSubscription) Cancel() {
	s.hub.remove(s)
}

// Publish encodes p and delivers it to every subscriber of subject. A
// subscriber whose buffer is full is dropped; its client reconnects and
// resumes from history.
func (h *Hub) Publish(subject id.SubjectID, p Payload) error {
	dropped, err := h.publish(subject, p)
	if dropped > 0 {
		h.logger.Warn("dropped slow event subscribers", "subject", subject, "count", dropped)
	}
	return err
}

func (h *Hub) publish(subject id.SubjectID, p Payload) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := h.clock.Now()
	data, err := Encode(p, now)
	if err != nil {
		return 0, err
	}
	h.seq++
	f := Frame{ID: strconv.FormatUint(h.seq, 10), Type: p.EventType(), Data: data}

	h.rememberLocked(subject, f, now)
	h.sweepLocked(now)

	dropped := 0
	for sub := range h.subs[subject] {
		select {
		case sub.ch <- f:
		default:
			h.removeLocked(sub)
			dropped++
		}
	}
	return dropped, nil
}

// Subscribe attaches to subject. Frames published after lastEventID that are
// still in history are returned for replay; an unknown or empty id replays
// nothing.
func (h *Hub) Subscribe(subject id.SubjectID, lastEventID string) (*HubSubscription, []Frame) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan Frame, subscriberBuffer)
	sub := &HubSubscription{C: ch, ch: ch, subject: subject, hub: h}
	if h.subs[subject] == nil {
		h.subs[subject] = make(map[*HubSubscription]struct{})
	}
	h.subs[subject][sub] = struct{}{}
	h.gauge(1)

	return sub, h.replayLocked(subject, lastEventID)
}

func (h *Hub) replayLocked(subject id.SubjectID, lastEventID string) []Frame {
	if lastEventID == "" {
		return nil
	}
	last, err := strconv.ParseUint(lastEventID, 10, 64)
	if err != nil {
		return nil
	}
	hist := h.history[subject]
	if hist == nil {
		return nil
	}
	var out []Frame
	for _, f := range hist.frames {
		n, _ := strconv.ParseUint(f.ID, 10, 64)
		if n > last {
			out = append(out, f)
		}
	}
	return out
}

func (h *Hub) rememberLocked(subject id.SubjectID, f Frame, now time.Time) {
	hist := h.history[subject]
	if hist == nil || f.Type == TypeAuthorizationReset {
		// Nothing before a reset is worth replaying.
		hist = &subjectHistory{}
		h.history[subject] = hist
	}
	hist.frames = append(hist.frames, f)
	if len(hist.frames) > historySize {
		hist.frames = append([]Frame(nil), hist.frames[len(hist.frames)-historySize:]...)
	}
	hist.touched = now
}

// sweepLocked evicts idle histories at most twice per TTL.
func (h *Hub) sweepLocked(now time.Time) {
	if now.Sub(h.lastSweep) < h.historyTTL/2 {
		return
	}
	h.lastSweep = now
	for subject, hist := range h.history {
		if len(h.subs[subject]) == 0 && now.Sub(hist.touched) >= h.historyTTL {
			delete(h.history, subject)
		}
	}
}

// historyLen returns the number of frames kept for subject.
func (h *Hub) historyLen(subject id.SubjectID) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if hist := h.history[subject]; hist != nil {
		return len(hist.frames)
	}
	return 0
}

// Subscribers returns the number of open subscriptions for subject.
func (h *Hub) Subscribers(subject id.SubjectID) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[subject])
}

// Close drops every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, subs := range h.subs {
		for sub := range subs {
			h.removeLocked(sub)
		}
	}
}

func (h *Hub) remove(sub *HubSubscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(sub)
}

func (h *Hub) removeLocked(sub *HubSubscription) {
	sub.once.Do(func() {
		subs := h.subs[sub.subject]
		delete(subs, sub)
		if len(subs) == 0 {
			delete(h.subs, sub.subject)
		}
		close(sub.ch)
		h.gauge(-1)
	})
}

// since is used by the stream handler to log connection age.
func (h *Hub) since(t time.Time) time.Duration {
	return h.clock.Since(t)
}
