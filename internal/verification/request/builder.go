// Package request builds fresh, validated verification requests from
// storefront context.
package request

import (
	"fmt"
	"io"
	"strings"

	"github.com/benbjohnson/clock"

	"eudi-storefront/internal/verification/models"
	id "eudi-storefront/pkg/domain"
	dErrors "eudi-storefront/pkg/domain-errors"
	"eudi-storefront/pkg/validation"
)

// Context is the domain input for one build.
type Context struct {
	SubjectID     id.SubjectID `json:"subjectId" validate:"required"`
	Flow          models.Flow  `json:"flow" validate:"required,oneof=bank_onboarding bank_payment car_rental wine_purchase"`
	PreviousNonce string       `json:"previousNonce,omitempty"`

	// bank_payment
	Payee    string `json:"payee,omitempty" validate:"omitempty,max=140"`
	Amount   string `json:"amount,omitempty" validate:"omitempty,numeric"`
	Currency string `json:"currency,omitempty" validate:"omitempty,len=3,alpha"`

	// car_rental
	VehicleCategory string `json:"vehicleCategory,omitempty" validate:"omitempty,max=4,alphanum"`

	// wine_purchase
	Destination string `json:"destination,omitempty" validate:"omitempty,len=2,alpha"`
}

func (c Context) currency() string {
	if c.Currency == "" {
		return "EUR"
	}
	return strings.ToUpper(c.Currency)
}

// Builder assembles VerificationRequests. It has no side effects beyond
// drawing randomness.
type Builder struct {
	entropy io.Reader
	clock   clock.Clock
}

// Option configures a Builder.
type Option func(*Builder)

// WithEntropy replaces crypto/rand as the nonce source.
func WithEntropy(r io.Reader) Option {
	return func(b *Builder) {
		b.entropy = r
	}
}

// WithClock sets the clock stamped on CreatedAt.
func WithClock(c clock.Clock) Option {
	return func(b *Builder) {
		b.clock = c
	}
}

// NewBuilder creates a Builder.
func NewBuilder(opts ...Option) *Builder {
	b := &Builder{clock: clock.New()}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build returns a new request or a validation error. Nothing here touches the
// network.
func (b *Builder) Build(c Context) (*models.VerificationRequest, error) {
	if err := validation.Validate(c); err != nil {
		return nil, err
	}

	tmpl, err := templateFor(c)
	if err != nil {
		return nil, err
	}

	nonce, err := NewNonce(b.entropy, c.PreviousNonce)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate nonce")
	}

	claims := make([]models.CredentialClaimRequest, len(tmpl.claims))
	for i, cl := range tmpl.claims {
		cl.Path = append([]string(nil), cl.Path...)
		claims[i] = cl
	}

	req := &models.VerificationRequest{
		RequestID:      id.NewRequestID(),
		SubjectID:      c.SubjectID,
		Flow:           c.Flow,
		Nonce:          nonce,
		Purpose:        tmpl.purpose,
		CredentialID:   tmpl.credentialID,
		CredentialType: tmpl.credentialType,
		Format:         tmpl.format,
		Claims:         claims,
		Requirements:   tmpl.requirements,
		CreatedAt:      b.clock.Now().UTC(),
	}
	if err := Validate(req); err != nil {
		return nil, err
	}
	return req, nil
}

// Renew builds the request for a new attempt of prev: same credential query
// and requirements, fresh id and a nonce that differs from prev's.
func (b *Builder) Renew(prev *models.VerificationRequest) (*models.VerificationRequest, error) {
	if prev == nil {
		return nil, dErrors.New(dErrors.CodeValidation, "no previous request to renew")
	}
	nonce, err := NewNonce(b.entropy, prev.Nonce)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate nonce")
	}
	next := *prev
	next.RequestID = id.NewRequestID()
	next.Nonce = nonce
	next.Claims = make([]models.CredentialClaimRequest, len(prev.Claims))
	for i, cl := range prev.Claims {
		cl.Path = append([]string(nil), cl.Path...)
		next.Claims[i] = cl
	}
	next.CreatedAt = b.clock.Now().UTC()
	if err := Validate(&next); err != nil {
		return nil, err
	}
	return &next, nil
}

// Validate checks a request against its schema and the per-format path rules.
func Validate(req *models.VerificationRequest) error {
	if req == nil {
		return dErrors.New(dErrors.CodeValidation, "request is required")
	}
	if err := validation.Validate(req); err != nil {
		return err
	}
	if req.Format == models.FormatMsoMdoc {
		for _, cl := range req.Claims {
			if len(cl.Path) != 2 {
				return dErrors.New(dErrors.CodeValidation,
					fmt.Sprintf("claim %q must use a namespace-qualified path", cl.ID))
			}
		}
	}
	return nil
}
