package events

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"

	dErrors "eudi-storefront/pkg/domain-errors"
	"eudi-storefront/pkg/validation"
)

// envelope is the JSON carried in an SSE data field.
type envelope struct {
	Type    Type            `json:"type"`
	Channel Channel         `json:"channel"`
	At      time.Time       `json:"at"`
	Data    json.RawMessage `json:"data"`
}

// ParseError reports a frame that failed its schema. It is returned to the
// consumer instead of being dropped; Raw keeps the original data field.
type ParseError struct {
	Type    string
	Raw     string
	Message string
}

func (e *ParseError) Error() string {
	if e.Type == "" {
		return "event parse error: " + e.Message
	}
	return fmt.Sprintf("event parse error (%s): %s", e.Type, e.Message)
}

func (e *ParseError) Unwrap() error {
	return &dErrors.Error{Code: dErrors.CodeParseError, Message: e.Message}
}

func parseErr(typ, raw, format string, args ...any) *ParseError {
	return &ParseError{Type: typ, Raw: raw, Message: fmt.Sprintf(format, args...)}
}

// Encode marshals p into the data field of a frame.
func Encode(p Payload, at time.Time) ([]byte, error) {
	s, ok := registry[p.EventType()]
	if !ok {
		return nil, fmt.Errorf("encode event: unknown type %q", p.EventType())
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode event: %w", err)
	}
	return json.Marshal(envelope{Type: p.EventType(), Channel: s.channel, At: at.UTC(), Data: data})
}

// Decode validates one frame. sseType is the SSE event field and may be
// empty. The payload must match the schema of its type exactly, and its
// channel must be the channel that type is registered on.
func Decode(sseType string, data []byte) (*Event, error) {
	raw := string(data)

	var env envelope
	if err := strictUnmarshal(data, &env); err != nil {
		return nil, parseErr(sseType, raw, "malformed envelope: %v", err)
	}
	if sseType != "" && Type(sseType) != env.Type {
		return nil, parseErr(sseType, raw, "event field %q does not match type %q", sseType, env.Type)
	}
	s, ok := registry[env.Type]
	if !ok {
		return nil, parseErr(string(env.Type), raw, "unknown event type")
	}
	if env.Channel != s.channel {
		return nil, parseErr(string(env.Type), raw, "type belongs to channel %q, got %q", s.channel, env.Channel)
	}
	if len(env.Data) == 0 {
		return nil, parseErr(string(env.Type), raw, "missing data")
	}

	p := s.newFn()
	if err := strictUnmarshal(env.Data, p); err != nil {
		return nil, parseErr(string(env.Type), raw, "%v", err)
	}
	if err := validation.Validator().Struct(p); err != nil {
		return nil, parseErr(string(env.Type), raw, "%s", validation.ErrorMessage(err))
	}

	return &Event{Type: env.Type, Channel: env.Channel, At: env.At, Payload: p}, nil
}

func strictUnmarshal(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return fmt.Errorf("trailing data")
	}
	return nil
}

// IsParseError reports whether err is a schema failure.
func IsParseError(err error) bool {
	return dErrors.HasCode(err, dErrors.CodeParseError)
}

func trimFrameValue(v string) string {
	return strings.TrimPrefix(v, " ")
}
