package events

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ErrStream is the terminal stream_error signal: the connection failed
// before it ever opened, or reconnecting gave up.
var ErrStream = errors.New("stream_error")

// Message is one delivery on a Subscription. Exactly one of Event and Err is
// set. Err is a *ParseError for frames that failed their schema, or wraps
// ErrStream as the last message before C closes.
type Message struct {
	ID    string
	Event *Event
	Err   error
}

// IsParseError reports whether m carries a schema failure.
func (m Message) IsParseError() bool {
	return m.Err != nil && IsParseError(m.Err)
}

// Subscription consumes an event stream over HTTP.
type Subscription struct {
	C <-chan Message

	out    chan Message
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once

	url     string
	client  *http.Client
	logger  *slog.Logger
	backoff func() backoff.BackOff

	mu          sync.Mutex
	opened      bool
	lastEventID string
}

// ClientOption configures a Subscription.
type ClientOption func(*Subscription)

func WithHTTPClient(c *http.Client) ClientOption {
	return func(s *Subscription) {
		s.client = c
	}
}

func WithClientLogger(l *slog.Logger) ClientOption {
	return func(s *Subscription) {
		s.logger = l
	}
}

// WithReconnectBackOff sets the policy used after an opened stream drops.
func WithReconnectBackOff(fn func() backoff.BackOff) ClientOption {
	return func(s *Subscription) {
		s.backoff = fn
	}
}

func defaultReconnect() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 2 * time.Minute
	return b
}

// Subscribe opens url and starts delivering messages on C.
func Subscribe(ctx context.Context, url string, opts ...ClientOption) *Subscription {
	ctx, cancel := context.WithCancel(ctx)
	out := make(chan Message)
	s := &Subscription{
		C:       out,
		out:     out,
		cancel:  cancel,
		done:    make(chan struct{}),
		url:     url,
		client:  &http.Client{},
		logger:  slog.Default(),
		backoff: defaultReconnect,
	}
	for _, opt := range opts {
		opt(s)
	}
	go s.run(ctx)
	return s
}

// Close stops delivery and releases the connection. It is idempotent and
// safe after the stream ended on its own; once it returns no further
// message is delivered.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.cancel()
	})
	<-s.done
}

// Opened reports whether the stream has ever been established.
func (s *Subscription) Opened() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opened
}

func (s *Subscription) run(ctx context.Context) {
	defer close(s.done)
	defer close(s.out)

	bo := backoff.WithContext(s.backoff(), ctx)
	for {
		frames, err := s.connect(ctx)
		if ctx.Err() != nil {
			return
		}
		if !s.Opened() {
			s.emit(ctx, Message{Err: fmt.Errorf("%w: %v", ErrStream, err)})
			return
		}
		// The reconnect budget covers one outage, not the subscription's lifetime.
		if frames > 0 {
			bo.Reset()
		}
		wait := bo.NextBackOff()
		if wait == backoff.Stop {
			s.emit(ctx, Message{Err: fmt.Errorf("%w: gave up reconnecting: %v", ErrStream, err)})
			return
		}
		s.logger.Debug("event stream dropped, reconnecting", "error", err, "wait", wait)
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

// connect runs one connection until it ends and returns how many frames it
// delivered. A clean server close is reported as an error so the caller
// reconnects.
func (s *Subscription) connect(ctx context.Context) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept", "text/event-stream")
	s.mu.Lock()
	if s.lastEventID != "" {
		req.Header.Set("Last-Event-ID", s.lastEventID)
	}
	s.mu.Unlock()

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		return 0, fmt.Errorf("unexpected content type %q", ct)
	}

	s.mu.Lock()
	s.opened = true
	s.mu.Unlock()

	return s.read(ctx, bufio.NewScanner(resp.Body))
}

func (s *Subscription) read(ctx context.Context, sc *bufio.Scanner) (int, error) {
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)

	frames := 0
	var frameID, frameType string
	var data strings.Builder
	for sc.Scan() {
		line := sc.Text()
		switch {
		case line == "":
			if data.Len() > 0 {
				s.dispatch(ctx, frameID, frameType, data.String(), frames == 0)
				frames++
			}
			frameID, frameType = "", ""
			data.Reset()
		case strings.HasPrefix(line, ":"):
			// comment, e.g. keepalive
		default:
			field, value, _ := strings.Cut(line, ":")
			value = trimFrameValue(value)
			switch field {
			case "id":
				frameID = value
			case "event":
				frameType = value
			case "data":
				if data.Len() > 0 {
					data.WriteByte('\n')
				}
				data.WriteString(value)
			}
		}
		if ctx.Err() != nil {
			return frames, ctx.Err()
		}
	}
	if err := sc.Err(); err != nil {
		return frames, err
	}
	return frames, errors.New("stream closed by server")
}

// dispatch decodes one frame. The first frame of a connection must be
// connected; anything else is reported as a parse error and then delivered.
func (s *Subscription) dispatch(ctx context.Context, frameID, frameType, data string, first bool) {
	if frameID != "" {
		s.mu.Lock()
		s.lastEventID = frameID
		s.mu.Unlock()
	}
	ev, err := Decode(frameType, []byte(data))
	if err != nil {
		s.emit(ctx, Message{ID: frameID, Err: err})
		return
	}
	if first && ev.Type != TypeConnected {
		s.emit(ctx, Message{ID: frameID, Err: parseErr(string(ev.Type), data,
			"connection opened with %q, expected %q", ev.Type, TypeConnected)})
	}
	ev.ID = frameID
	s.emit(ctx, Message{ID: frameID, Event: ev})
}

func (s *Subscription) emit(ctx context.Context, m Message) {
	select {
	case <-ctx.Done():
	case s.out <- m:
	}
}
