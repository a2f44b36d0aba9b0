// Package tracer is a small tracing abstraction over OpenTelemetry so callers
// do not import otel types directly.
//
// Implementations:
//   - NoopTracer: for tests
//   - OTelTracer: OpenTelemetry adapter for production
package tracer

import (
	"context"
	"time"
)

// Span represents an active trace span.
type Span interface {
	// End completes the span, marking it failed when err is non-nil.
	// End must be called exactly once, typically via defer.
	End(err error)

	SetAttributes(attrs ...Attribute)

	AddEvent(name string, attrs ...Attribute)
}

// Tracer creates spans. Implementations must be safe for concurrent use.
//
// Example:
//
//	ctx, span := t.Start(ctx, tracer.SpanAuthorizerStatus,
//	    tracer.String(tracer.AttrAuthorizationID, string(authzID)),
//	)
//	defer func() { span.End(err) }()
type Tracer interface {
	Start(ctx context.Context, name string, attrs ...Attribute) (context.Context, Span)
}

// Attribute represents a key-value pair attached to spans.
type Attribute struct {
	Key   string
	Value any
}

func String(key, value string) Attribute {
	return Attribute{Key: key, Value: value}
}

func Bool(key string, value bool) Attribute {
	return Attribute{Key: key, Value: value}
}

func Int(key string, value int) Attribute {
	return Attribute{Key: key, Value: int64(value)}
}

// Duration creates a duration attribute in milliseconds.
func Duration(key string, value time.Duration) Attribute {
	return Attribute{Key: key, Value: value.Milliseconds()}
}

// Span names.
const (
	SpanAuthorizerCreate      = "authorizer.create_authorization"
	SpanAuthorizerStatus      = "authorizer.get_status"
	SpanAuthorizerPolicy      = "authorizer.get_policy_response"
	SpanAuthorizerCredentials = "authorizer.get_credentials"
	SpanPostAuthorization     = "presentation.fetch_authorized"
)

// Attribute keys.
const (
	AttrAuthorizationID = "authorization.id"
	AttrNoncePrefix     = "nonce.prefix"
	AttrHTTPStatus      = "http.status_code"
	AttrRemoteStatus    = "authorization.status"
	AttrResponseMode    = "response_mode"
)
