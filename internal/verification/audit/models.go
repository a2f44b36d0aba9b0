// Package audit records every persisted verification change. Records are
// append-only and go to Kafka, Postgres or memory.
package audit

import (
	"time"

	"github.com/google/uuid"
)

// Action names what happened to a subject.
type Action string

const (
	ActionAttemptStarted     Action = "attempt_started"
	ActionTransition         Action = "transition"
	ActionTransitionRejected Action = "transition_rejected"
	ActionReset              Action = "reset"
)

// Record is one audit entry.
type Record struct {
	ID         uuid.UUID `json:"id"`
	OccurredAt time.Time `json:"occurredAt"`
	SubjectID  string    `json:"subjectId"`
	Action     Action    `json:"action"`
	From       string    `json:"from,omitempty"`
	To         string    `json:"to,omitempty"`
	Attempt    int       `json:"attempt"`
	Reason     string    `json:"reason,omitempty"`
	Detail     string    `json:"detail,omitempty"`
}
