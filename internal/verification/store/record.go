// Package store persists VerificationState records. All implementations keep
// an index from Authorizer id to subject so callbacks can be routed.
package store

import (
	"encoding/json"
	"fmt"
	"time"

	"eudi-storefront/internal/verification/models"
	id "eudi-storefront/pkg/domain"
)

// DefaultTTL bounds how long an idle state is kept.
const DefaultTTL = 24 * time.Hour

// stateJSON is the serialized form shared by the Redis and Postgres stores.
// Timestamps are Unix nanoseconds so round-trips are exact.
type stateJSON struct {
	SubjectID        string                            `json:"subject_id"`
	Lifecycle        string                            `json:"lifecycle"`
	Mode             string                            `json:"mode,omitempty"`
	Attempt          int                               `json:"attempt"`
	AuthorizerID     *string                           `json:"authorizer_id,omitempty"`
	AuthorizationURL *string                           `json:"authorization_url,omitempty"`
	ExpiresAt        *int64                            `json:"expires_at,omitempty"`
	Request          *models.VerificationRequest       `json:"request,omitempty"`
	Policy           *models.VerificationPolicy        `json:"policy,omitempty"`
	DisclosedClaims  *models.NormalizedDisclosedClaims `json:"disclosed_claims,omitempty"`
	LastError        *string                           `json:"last_error,omitempty"`
	UpdatedAt        int64                             `json:"updated_at"`
}

func marshalState(st models.VerificationState) ([]byte, error) {
	j := stateJSON{
		SubjectID:        string(st.SubjectID),
		Lifecycle:        string(st.Lifecycle),
		Mode:             string(st.Mode),
		Attempt:          st.Attempt,
		AuthorizationURL: st.AuthorizationURL,
		Request:          st.Request,
		Policy:           st.Policy,
		DisclosedClaims:  st.DisclosedClaims,
		LastError:        st.LastError,
		UpdatedAt:        st.UpdatedAt.UnixNano(),
	}
	if st.AuthorizerID != nil {
		j.AuthorizerID = models.Ptr(string(*st.AuthorizerID))
	}
	if st.ExpiresAt != nil {
		j.ExpiresAt = models.Ptr(st.ExpiresAt.UnixNano())
	}
	data, err := json.Marshal(j)
	if err != nil {
		return nil, fmt.Errorf("marshal state: %w", err)
	}
	return data, nil
}

func unmarshalState(data []byte) (models.VerificationState, error) {
	var j stateJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return models.VerificationState{}, fmt.Errorf("unmarshal state: %w", err)
	}
	lc := models.Lifecycle(j.Lifecycle)
	if !lc.IsValid() {
		return models.VerificationState{}, fmt.Errorf("unmarshal state: unknown lifecycle %q", j.Lifecycle)
	}
	st := models.VerificationState{
		SubjectID:        id.SubjectID(j.SubjectID),
		Lifecycle:        lc,
		Mode:             models.Mode(j.Mode),
		Attempt:          j.Attempt,
		AuthorizationURL: j.AuthorizationURL,
		Request:          j.Request,
		Policy:           j.Policy,
		DisclosedClaims:  j.DisclosedClaims,
		LastError:        j.LastError,
		UpdatedAt:        time.Unix(0, j.UpdatedAt).UTC(),
	}
	if j.AuthorizerID != nil {
		st.AuthorizerID = models.Ptr(id.AuthorizationID(*j.AuthorizerID))
	}
	if j.ExpiresAt != nil {
		st.ExpiresAt = models.Ptr(time.Unix(0, *j.ExpiresAt).UTC())
	}
	return st, nil
}
