package testutil

import (
	"time"

	"github.com/google/uuid"

	"eudi-storefront/internal/verification/models"
	id "eudi-storefront/pkg/domain"
)

// Fixed values for deterministic test data.
var TestIDs = struct {
	Subject1 id.SubjectID
	Subject2 id.SubjectID
	Authz1   id.AuthorizationID
	Authz2   id.AuthorizationID
	Request1 id.RequestID
	Nonce1   string
	Nonce2   string
}{
	Subject1: id.SubjectID("shopper-1"),
	Subject2: id.SubjectID("shopper-2"),
	Authz1:   id.AuthorizationID("authz-0001"),
	Authz2:   id.AuthorizationID("authz-0002"),
	Request1: id.RequestID(uuid.MustParse("11111111-1111-1111-1111-111111111111")),
	Nonce1:   "0123456789abcdef0123456789abcdef",
	Nonce2:   "fedcba9876543210fedcba9876543210",
}

// Epoch is a fixed reference time for fixtures.
var Epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// NewPIDRequest returns a minimal valid SD-JWT PID request.
func NewPIDRequest(subject id.SubjectID, nonce string) *models.VerificationRequest {
	return &models.VerificationRequest{
		RequestID:      TestIDs.Request1,
		SubjectID:      subject,
		Flow:           models.FlowBankOnboarding,
		Nonce:          nonce,
		Purpose:        "Open a bank account",
		CredentialID:   "pid",
		CredentialType: "urn:eudi:pid:1",
		Format:         models.FormatSDJWT,
		Claims: []models.CredentialClaimRequest{
			{ID: "given_name", Path: []string{"given_name"}, Required: true},
			{ID: "family_name", Path: []string{"family_name"}, Required: true},
		},
		CreatedAt: Epoch,
	}
}

// NewState returns a state in lifecycle lc bound to a PID request.
func NewState(subject id.SubjectID, lc models.Lifecycle, nonce string) models.VerificationState {
	st := models.NewVerificationState(subject, Epoch)
	st.Lifecycle = lc
	st.Mode = models.ModeDirectPost
	st.Attempt = 1
	st.Request = NewPIDRequest(subject, nonce)
	return st
}

// WithAuthorization binds an Authorizer id and URL to st.
func WithAuthorization(st models.VerificationState, authz id.AuthorizationID) models.VerificationState {
	st.AuthorizerID = models.Ptr(authz)
	st.AuthorizationURL = models.Ptr("openid4vp://authorize?request_uri=https%3A%2F%2Fverifier.example%2F" + string(authz))
	st.ExpiresAt = models.Ptr(Epoch.Add(5 * time.Minute))
	return st
}
