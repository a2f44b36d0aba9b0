package sentinel

import "errors"

// Sentinel dependency errors. Stores and adapters return these (optionally
// wrapped) so services can translate them into domain errors exactly once.
var (
	ErrNotFound    = errors.New("not found")
	ErrStale       = errors.New("stale attempt")
	ErrClosed      = errors.New("closed")
	ErrUnavailable = errors.New("unavailable")
)
