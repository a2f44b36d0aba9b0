package request

import (
	"fmt"
	"strconv"
	"strings"

	"eudi-storefront/internal/verification/models"
	dErrors "eudi-storefront/pkg/domain-errors"
)

// Credential identifiers requested by the storefronts.
const (
	PIDCredentialID = "pid"
	PIDVct          = "urn:eudi:pid:1"

	MDLCredentialID = "mdl"
	MDLDocType      = "org.iso.18013.5.1.mDL"
	MDLNamespace    = "org.iso.18013.5.1"
)

// minPurchaseAge is the minimum age for buying wine, per destination country.
var minPurchaseAge = map[string]int{
	"AT": 16, "BE": 16, "DE": 16, "DK": 16, "LU": 16,
	"CH": 16, "ES": 18, "FR": 18, "GB": 18, "GR": 18,
	"HR": 18, "IE": 18, "IT": 18, "NL": 18, "PL": 18,
	"PT": 18, "FI": 18, "NO": 18, "SE": 20, "IS": 20,
	"US": 21,
}

// MinPurchaseAge returns the minimum wine purchase age for a destination.
func MinPurchaseAge(country string) (int, bool) {
	age, ok := minPurchaseAge[strings.ToUpper(strings.TrimSpace(country))]
	return age, ok
}

// AgeThreshold returns the age_equal_or_over key requested for a destination.
func AgeThreshold(country string) (string, error) {
	age, ok := MinPurchaseAge(country)
	if !ok {
		return "", dErrors.New(dErrors.CodeValidation, fmt.Sprintf("no minimum age known for destination %q", country))
	}
	return strconv.Itoa(age), nil
}

// template is the credential shape and purpose text for one flow.
type template struct {
	credentialID   string
	credentialType string
	format         models.Format
	purpose        string
	claims         []models.CredentialClaimRequest
	requirements   models.Requirements
}

func sdjwt(id string, required bool, path ...string) models.CredentialClaimRequest {
	return models.CredentialClaimRequest{ID: id, Path: path, Required: required}
}

func mdoc(id string, required bool, element string) models.CredentialClaimRequest {
	return models.CredentialClaimRequest{ID: id, Path: []string{MDLNamespace, element}, Required: required}
}

func templateFor(c Context) (template, error) {
	switch c.Flow {
	case models.FlowBankOnboarding:
		return template{
			credentialID:   PIDCredentialID,
			credentialType: PIDVct,
			format:         models.FormatSDJWT,
			purpose:        "Open a bank account: confirm your identity and residence",
			claims: []models.CredentialClaimRequest{
				sdjwt("given_name", true, "given_name"),
				sdjwt("family_name", true, "family_name"),
				sdjwt("birthdate", true, "birthdate"),
				sdjwt("nationalities", false, "nationalities"),
				sdjwt("address", false, "address"),
			},
		}, nil

	case models.FlowBankPayment:
		if strings.TrimSpace(c.Payee) == "" {
			return template{}, dErrors.New(dErrors.CodeValidation, "payee is required for bank_payment")
		}
		if strings.TrimSpace(c.Amount) == "" {
			return template{}, dErrors.New(dErrors.CodeValidation, "amount is required for bank_payment")
		}
		return template{
			credentialID:   PIDCredentialID,
			credentialType: PIDVct,
			format:         models.FormatSDJWT,
			purpose:        fmt.Sprintf("Authorize payment of %s %s to %s", c.Amount, c.currency(), c.Payee),
			claims: []models.CredentialClaimRequest{
				sdjwt("given_name", true, "given_name"),
				sdjwt("family_name", true, "family_name"),
			},
		}, nil

	case models.FlowCarRental:
		category := strings.ToUpper(strings.TrimSpace(c.VehicleCategory))
		if category == "" {
			return template{}, dErrors.New(dErrors.CodeValidation, "vehicle category is required for car_rental")
		}
		return template{
			credentialID:   MDLCredentialID,
			credentialType: MDLDocType,
			format:         models.FormatMsoMdoc,
			purpose:        fmt.Sprintf("Rent a vehicle: prove you hold a category %s driving licence", category),
			claims: []models.CredentialClaimRequest{
				mdoc("given_name", true, "given_name"),
				mdoc("family_name", true, "family_name"),
				mdoc("birth_date", true, "birth_date"),
				mdoc("document_number", true, "document_number"),
				mdoc("expiry_date", true, "expiry_date"),
				mdoc("driving_privileges", true, "driving_privileges"),
			},
			requirements: models.Requirements{VehicleCategory: category},
		}, nil

	case models.FlowWinePurchase:
		if strings.TrimSpace(c.Destination) == "" {
			return template{}, dErrors.New(dErrors.CodeValidation, "destination is required for wine_purchase")
		}
		threshold, err := AgeThreshold(c.Destination)
		if err != nil {
			return template{}, err
		}
		return template{
			credentialID:   PIDCredentialID,
			credentialType: PIDVct,
			format:         models.FormatSDJWT,
			purpose:        fmt.Sprintf("Buy wine: prove you are at least %s years old", threshold),
			claims: []models.CredentialClaimRequest{
				sdjwt("age_over_"+threshold, true, "age_equal_or_over", threshold),
			},
			requirements: models.Requirements{MinimumAge: threshold},
		}, nil

	default:
		return template{}, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("unknown flow %q", c.Flow))
	}
}
