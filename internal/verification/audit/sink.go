package audit

import "context"

// Sink persists records.
type Sink interface {
	Append(ctx context.Context, r Record) error
}
