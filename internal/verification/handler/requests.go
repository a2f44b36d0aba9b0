package handler

import (
	"strings"

	"eudi-storefront/internal/verification/models"
	"eudi-storefront/internal/verification/presentation"
	"eudi-storefront/internal/verification/request"
	"eudi-storefront/internal/verification/service"
	id "eudi-storefront/pkg/domain"
	dErrors "eudi-storefront/pkg/domain-errors"
	"eudi-storefront/pkg/validation"
)

// StartRequest opens a new attempt for the subject in the path.
type StartRequest struct {
	Flow          string            `json:"flow" validate:"required,oneof=bank_onboarding bank_payment car_rental wine_purchase"`
	Mode          string            `json:"mode" validate:"omitempty,oneof=direct_post dc_api"`
	PreviousNonce string            `json:"previousNonce"`
	Context       FlowContext       `json:"context"`
	Capabilities  CapabilitiesInput `json:"capabilities"`
}

// FlowContext carries the flow-specific inputs. Which fields are required
// depends on the flow and is checked by the request builder.
type FlowContext struct {
	Payee           string `json:"payee"`
	Amount          string `json:"amount"`
	Currency        string `json:"currency"`
	VehicleCategory string `json:"vehicleCategory"`
	Destination     string `json:"destination"`
}

// CapabilitiesInput is what the browser reported about itself.
type CapabilitiesInput struct {
	DigitalCredentials bool `json:"digitalCredentials"`
}

func (r *StartRequest) Normalize() {
	if r == nil {
		return
	}
	r.Flow = strings.TrimSpace(r.Flow)
	r.Mode = strings.TrimSpace(r.Mode)
	r.PreviousNonce = strings.TrimSpace(r.PreviousNonce)
	r.Context.Payee = strings.TrimSpace(r.Context.Payee)
	r.Context.Amount = strings.TrimSpace(r.Context.Amount)
	r.Context.Currency = strings.ToUpper(strings.TrimSpace(r.Context.Currency))
	r.Context.VehicleCategory = strings.ToUpper(strings.TrimSpace(r.Context.VehicleCategory))
	r.Context.Destination = strings.ToUpper(strings.TrimSpace(r.Context.Destination))
}

func (r *StartRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	return validation.Validate(r)
}

// ToCommand builds the service command. userAgent feeds the delivery hint.
func (r *StartRequest) ToCommand(subject id.SubjectID, userAgent string) service.StartCommand {
	return service.StartCommand{
		Context: request.Context{
			SubjectID:       subject,
			Flow:            models.Flow(r.Flow),
			PreviousNonce:   r.PreviousNonce,
			Payee:           r.Context.Payee,
			Amount:          r.Context.Amount,
			Currency:        r.Context.Currency,
			VehicleCategory: r.Context.VehicleCategory,
			Destination:     r.Context.Destination,
		},
		Mode:         models.Mode(r.Mode),
		Capabilities: presentation.DetectCapabilities(userAgent, r.Capabilities.DigitalCredentials),
	}
}

// RetryRequest is the optional body of a retry.
type RetryRequest struct {
	Capabilities CapabilitiesInput `json:"capabilities"`
}

// DCAPISubmission is the browser's answer to navigator.credentials.get,
// tagged with the nonce of the attempt it answers.
type DCAPISubmission struct {
	Nonce    string                      `json:"nonce" validate:"required,nonce"`
	Response *presentation.DCAPIResponse `json:"response,omitempty"`
	Error    *presentation.DCAPIError    `json:"error,omitempty"`
}

func (r *DCAPISubmission) Normalize() {
	if r == nil {
		return
	}
	r.Nonce = strings.ToLower(strings.TrimSpace(r.Nonce))
}

func (r *DCAPISubmission) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	if err := validation.Validate(r); err != nil {
		return err
	}
	return r.Result().Validate()
}

func (r *DCAPISubmission) Result() presentation.DCAPIResult {
	return presentation.DCAPIResult{Response: r.Response, Error: r.Error}
}

// CallbackRequest is the Authorizer's push. Status is only a hint.
type CallbackRequest struct {
	AuthorizationID string `json:"authorizationId" validate:"required,max=256"`
	Status          string `json:"status" validate:"required,oneof=created pending authorized rejected expired error"`
}

func (r *CallbackRequest) Normalize() {
	if r == nil {
		return
	}
	r.AuthorizationID = strings.TrimSpace(r.AuthorizationID)
	r.Status = strings.ToLower(strings.TrimSpace(r.Status))
}

func (r *CallbackRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	return validation.Validate(r)
}
