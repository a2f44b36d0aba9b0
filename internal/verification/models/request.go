package models

import (
	"time"

	id "eudi-storefront/pkg/domain"
)

// Format discriminates the credential encoding requested from the wallet.
type Format string

const (
	FormatMsoMdoc Format = "mso_mdoc"
	FormatSDJWT   Format = "dc+sd-jwt"
)

func (f Format) IsValid() bool {
	return f == FormatMsoMdoc || f == FormatSDJWT
}

// Mode selects how the presentation reaches the verifier.
type Mode string

const (
	ModeDirectPost Mode = "direct_post"
	ModeDCAPI      Mode = "dc_api"
)

func (m Mode) IsValid() bool {
	return m == ModeDirectPost || m == ModeDCAPI
}

// Flow is the storefront journey a request is built for.
type Flow string

const (
	FlowBankOnboarding Flow = "bank_onboarding"
	FlowBankPayment    Flow = "bank_payment"
	FlowCarRental      Flow = "car_rental"
	FlowWinePurchase   Flow = "wine_purchase"
)

func (f Flow) IsValid() bool {
	switch f {
	case FlowBankOnboarding, FlowBankPayment, FlowCarRental, FlowWinePurchase:
		return true
	}
	return false
}

// CredentialClaimRequest asks for one claim by path. mDoc paths are
// namespace-qualified 2-tuples, SD-JWT paths are flat.
type CredentialClaimRequest struct {
	ID       string   `json:"id" validate:"required,notblank"`
	Path     []string `json:"path" validate:"min=1,dive,notblank"`
	Required bool     `json:"required"`
}

// VerificationRequest is one built request. It is never modified after the
// builder returns it; a retry builds a new one.
type VerificationRequest struct {
	RequestID      id.RequestID             `json:"requestId"`
	SubjectID      id.SubjectID             `json:"subjectId" validate:"required"`
	Flow           Flow                     `json:"flow"`
	Nonce          string                   `json:"nonce" validate:"required,nonce"`
	Purpose        string                   `json:"purpose" validate:"required,notblank"`
	CredentialID   string                   `json:"credentialId" validate:"required,notblank"`
	CredentialType string                   `json:"credentialType" validate:"required,notblank"`
	Format         Format                   `json:"format" validate:"required,oneof=mso_mdoc dc+sd-jwt"`
	Claims         []CredentialClaimRequest `json:"claims" validate:"min=1,unique=ID,dive"`
	Requirements   Requirements             `json:"requirements"`
	CreatedAt      time.Time                `json:"createdAt"`
}

// Requirements are the flow inputs disclosed claims are checked against once
// the wallet has answered.
type Requirements struct {
	VehicleCategory string `json:"vehicleCategory,omitempty"`
	MinimumAge      string `json:"minimumAge,omitempty"`
}

// ClaimIDs returns the claim ids in request order.
func (r *VerificationRequest) ClaimIDs() []string {
	ids := make([]string, len(r.Claims))
	for i, c := range r.Claims {
		ids[i] = c.ID
	}
	return ids
}

// Capabilities describes what the calling runtime can do.
type Capabilities struct {
	DigitalCredentials bool   `json:"digitalCredentials"`
	UserAgent          string `json:"-"`
}
