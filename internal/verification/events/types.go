// Package events carries verification progress to storefront pages over a
// single Server-Sent Events connection split into three logical channels.
// Every frame is checked against the schema registered for its type before
// it reaches application code.
package events

import (
	"time"

	"eudi-storefront/internal/verification/models"
)

// Channel is a logical stream multiplexed over one connection.
type Channel string

const (
	ChannelAuthorization Channel = "authorization"
	ChannelCallback      Channel = "callback"
	ChannelDebug         Channel = "debug"
)

// IsBusiness reports whether consumers act on events of this channel.
func (c Channel) IsBusiness() bool {
	return c == ChannelAuthorization || c == ChannelCallback
}

// Type tags an event and selects its schema.
type Type string

const (
	TypeConnected              Type = "connected"
	TypeAuthorizationStatus    Type = "authorization.status"
	TypeAuthorizationCompleted Type = "authorization.completed"
	TypeAuthorizationReset     Type = "authorization.reset"
	TypeCallbackReceived       Type = "callback.received"
	TypeDebugLog               Type = "debug.log"
	TypeDebugTransition        Type = "debug.transition"
)

// Payload is implemented by every event body.
type Payload interface {
	EventType() Type
}

// Connected is the first event on every connection.
type Connected struct {
	ConnectionID string `json:"connectionId" validate:"required"`
	SubjectID    string `json:"subjectId" validate:"required"`
}

func (Connected) EventType() Type { return TypeConnected }

// AuthorizationStatus mirrors the subject's state after every change.
type AuthorizationStatus struct {
	SubjectID    string     `json:"subjectId" validate:"required"`
	Lifecycle    string     `json:"lifecycle" validate:"required,oneof=created pending_wallet processing success rejected expired error"`
	Mode         string     `json:"mode,omitempty" validate:"omitempty,oneof=direct_post dc_api"`
	Attempt      int        `json:"attempt" validate:"gte=0"`
	AuthorizerID string     `json:"authorizerId,omitempty"`
	AuthorizeURL string     `json:"authorizeUrl,omitempty"`
	ExpiresAt    *time.Time `json:"expiresAt,omitempty"`
	LastError    string     `json:"lastError,omitempty"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

func (AuthorizationStatus) EventType() Type { return TypeAuthorizationStatus }

// AuthorizationCompleted is sent once an attempt settles.
type AuthorizationCompleted struct {
	SubjectID       string                            `json:"subjectId" validate:"required"`
	Lifecycle       string                            `json:"lifecycle" validate:"required,oneof=success rejected expired error"`
	Attempt         int                               `json:"attempt" validate:"gte=0"`
	Retryable       bool                              `json:"retryable"`
	Policy          *models.VerificationPolicy        `json:"policy,omitempty"`
	DisclosedClaims *models.NormalizedDisclosedClaims `json:"disclosedClaims,omitempty"`
	LastError       string                            `json:"lastError,omitempty"`
}

func (AuthorizationCompleted) EventType() Type { return TypeAuthorizationCompleted }

// AuthorizationReset is sent when the subject's state was discarded.
type AuthorizationReset struct {
	SubjectID string `json:"subjectId" validate:"required"`
}

func (AuthorizationReset) EventType() Type { return TypeAuthorizationReset }

// CallbackReceived reports an Authorizer push for the subject.
type CallbackReceived struct {
	SubjectID       string `json:"subjectId" validate:"required"`
	AuthorizationID string `json:"authorizationId" validate:"required"`
	Status          string `json:"status" validate:"required,oneof=created pending authorized rejected expired error"`
}

func (CallbackReceived) EventType() Type { return TypeCallbackReceived }

// DebugLog mirrors a service log record.
type DebugLog struct {
	Level   string         `json:"level" validate:"required,oneof=debug info warn error"`
	Message string         `json:"message" validate:"required"`
	Attrs   map[string]any `json:"attrs,omitempty"`
}

func (DebugLog) EventType() Type { return TypeDebugLog }

// DebugTransition records one persisted change, including rejected ones.
type DebugTransition struct {
	From   string `json:"from,omitempty"`
	To     string `json:"to,omitempty"`
	Reason string `json:"reason" validate:"required"`
	Error  string `json:"error,omitempty"`
}

func (DebugTransition) EventType() Type { return TypeDebugTransition }

// schema binds a type to its channel and a constructor for its payload.
type schema struct {
	channel Channel
	newFn   func() Payload
}

var registry = map[Type]schema{
	TypeConnected:              {ChannelAuthorization, func() Payload { return &Connected{} }},
	TypeAuthorizationStatus:    {ChannelAuthorization, func() Payload { return &AuthorizationStatus{} }},
	TypeAuthorizationCompleted: {ChannelAuthorization, func() Payload { return &AuthorizationCompleted{} }},
	TypeAuthorizationReset:     {ChannelAuthorization, func() Payload { return &AuthorizationReset{} }},
	TypeCallbackReceived:       {ChannelCallback, func() Payload { return &CallbackReceived{} }},
	TypeDebugLog:               {ChannelDebug, func() Payload { return &DebugLog{} }},
	TypeDebugTransition:        {ChannelDebug, func() Payload { return &DebugTransition{} }},
}

// ChannelOf returns the channel a type belongs to.
func ChannelOf(t Type) (Channel, bool) {
	s, ok := registry[t]
	return s.channel, ok
}

// Event is a decoded, validated frame.
type Event struct {
	ID      string    `json:"-"`
	Type    Type      `json:"type"`
	Channel Channel   `json:"channel"`
	At      time.Time `json:"at"`
	Payload Payload   `json:"data"`
}

// StatusFromState builds the status payload for st.
func StatusFromState(st models.VerificationState) AuthorizationStatus {
	return AuthorizationStatus{
		SubjectID:    string(st.SubjectID),
		Lifecycle:    string(st.Lifecycle),
		Mode:         string(st.Mode),
		Attempt:      st.Attempt,
		AuthorizerID: string(st.Authorizer()),
		AuthorizeURL: deref(st.AuthorizationURL),
		ExpiresAt:    st.ExpiresAt,
		LastError:    st.Error(),
		UpdatedAt:    st.UpdatedAt,
	}
}

// CompletedFromState builds the completion payload for a settled st.
func CompletedFromState(st models.VerificationState) AuthorizationCompleted {
	return AuthorizationCompleted{
		SubjectID:       string(st.SubjectID),
		Lifecycle:       string(st.Lifecycle),
		Attempt:         st.Attempt,
		Retryable:       st.Lifecycle.IsRecoverable(),
		Policy:          st.Policy,
		DisclosedClaims: st.DisclosedClaims,
		LastError:       st.Error(),
	}
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
