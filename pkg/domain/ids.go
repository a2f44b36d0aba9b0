// Package domain provides type-safe identifiers to prevent mixing up IDs at compile time.
package domain

import (
	"strings"

	"github.com/google/uuid"

	dErrors "eudi-storefront/pkg/domain-errors"
)

// SubjectID names the booking, order or onboarding session that owns a
// verification. Storefronts choose the format, e.g. "order_42".
type SubjectID string

// AuthorizationID is the Authorizer's correlation id for one attempt.
type AuthorizationID string

// RequestID identifies one built VerificationRequest.
type RequestID uuid.UUID

const maxSubjectLength = 128

// Parse functions - use at trust boundaries (handlers, API inputs).

func ParseSubjectID(s string) (SubjectID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", dErrors.New(dErrors.CodeBadRequest, "subject ID cannot be empty")
	}
	if len(s) > maxSubjectLength {
		return "", dErrors.New(dErrors.CodeBadRequest, "subject ID is too long")
	}
	for _, r := range s {
		if !(r == '_' || r == '-' || r == '.' || r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z') {
			return "", dErrors.New(dErrors.CodeBadRequest, "subject ID contains invalid characters")
		}
	}
	return SubjectID(s), nil
}

func ParseAuthorizationID(s string) (AuthorizationID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", dErrors.New(dErrors.CodeBadRequest, "authorization ID cannot be empty")
	}
	return AuthorizationID(s), nil
}

func ParseRequestID(s string) (RequestID, error) {
	if s == "" {
		return RequestID(uuid.Nil), dErrors.New(dErrors.CodeBadRequest, "request ID cannot be empty")
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return RequestID(uuid.Nil), dErrors.New(dErrors.CodeBadRequest, "invalid request ID")
	}
	return RequestID(id), nil
}

// NewRequestID returns a random request id.
func NewRequestID() RequestID { return RequestID(uuid.New()) }

// String methods - for logging and debugging.

func (id SubjectID) String() string       { return string(id) }
func (id AuthorizationID) String() string { return string(id) }
func (id RequestID) String() string       { return uuid.UUID(id).String() }

// IsNil checks - used for service-layer validation.

func (id SubjectID) IsNil() bool       { return id == "" }
func (id AuthorizationID) IsNil() bool { return id == "" }
func (id RequestID) IsNil() bool       { return uuid.UUID(id) == uuid.Nil }

// MarshalText and UnmarshalText keep RequestID readable in JSON.

func (id RequestID) MarshalText() ([]byte, error) {
	return []byte(uuid.UUID(id).String()), nil
}

func (id *RequestID) UnmarshalText(b []byte) error {
	u, err := uuid.ParseBytes(b)
	if err != nil {
		return err
	}
	*id = RequestID(u)
	return nil
}
