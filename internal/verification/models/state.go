package models

import (
	"time"

	id "eudi-storefront/pkg/domain"
)

// VerificationState is the live record for one subject. Values are replaced
// whole; the lifecycle package is the only code that derives a new state from
// an old one.
type VerificationState struct {
	SubjectID        id.SubjectID               `json:"subjectId"`
	Lifecycle        Lifecycle                  `json:"lifecycle"`
	Mode             Mode                       `json:"mode,omitempty"`
	Attempt          int                        `json:"attempt"`
	AuthorizerID     *id.AuthorizationID        `json:"authorizerId"`
	AuthorizationURL *string                    `json:"authorizationUrl"`
	ExpiresAt        *time.Time                 `json:"expiresAt,omitempty"`
	Request          *VerificationRequest       `json:"request"`
	Policy           *VerificationPolicy        `json:"policy"`
	DisclosedClaims  *NormalizedDisclosedClaims `json:"disclosedClaims"`
	LastError        *string                    `json:"lastError"`
	UpdatedAt        time.Time                  `json:"updatedAt"`
}

// NewVerificationState returns the initial record for a subject.
func NewVerificationState(subject id.SubjectID, now time.Time) VerificationState {
	return VerificationState{
		SubjectID: subject,
		Lifecycle: LifecycleCreated,
		UpdatedAt: now,
	}
}

// Nonce returns the nonce of the request in effect, or "".
func (s VerificationState) Nonce() string {
	if s.Request == nil {
		return ""
	}
	return s.Request.Nonce
}

// Authorizer returns the remote correlation id, or "".
func (s VerificationState) Authorizer() id.AuthorizationID {
	if s.AuthorizerID == nil {
		return ""
	}
	return *s.AuthorizerID
}

// Error returns lastError, or "".
func (s VerificationState) Error() string {
	if s.LastError == nil {
		return ""
	}
	return *s.LastError
}

// IsCurrent reports whether a result produced for nonce still applies.
func (s VerificationState) IsCurrent(nonce string) bool {
	return nonce != "" && s.Nonce() == nonce
}

// Ptr returns a pointer to a copy of v.
func Ptr[T any](v T) *T {
	return &v
}
