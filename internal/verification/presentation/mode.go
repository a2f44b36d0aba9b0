package presentation

import (
	"strings"

	"github.com/mssola/useragent"

	"eudi-storefront/internal/verification/models"
	dErrors "eudi-storefront/pkg/domain-errors"
)

// DeliveryHint tells the storefront how to present an authorize URL.
type DeliveryHint string

const (
	DeliveryQR       DeliveryHint = "qr"
	DeliveryDeepLink DeliveryHint = "deep_link"
)

// DetectCapabilities combines what the browser reported with its user agent.
func DetectCapabilities(userAgent string, digitalCredentials bool) models.Capabilities {
	return models.Capabilities{
		DigitalCredentials: digitalCredentials,
		UserAgent:          strings.TrimSpace(userAgent),
	}
}

// HintFor picks deep_link for mobile browsers, where the wallet lives on the
// same device, and qr otherwise.
func HintFor(caps models.Capabilities) DeliveryHint {
	if caps.UserAgent == "" {
		return DeliveryQR
	}
	if useragent.New(caps.UserAgent).Mobile() {
		return DeliveryDeepLink
	}
	return DeliveryQR
}

// SelectMode resolves the mode for a new attempt. An empty request prefers
// dc_api when the runtime supports it. Asking for dc_api without the
// capability is a caller precondition failure.
func SelectMode(requested models.Mode, caps models.Capabilities) (models.Mode, error) {
	switch requested {
	case "":
		if caps.DigitalCredentials {
			return models.ModeDCAPI, nil
		}
		return models.ModeDirectPost, nil
	case models.ModeDirectPost:
		return models.ModeDirectPost, nil
	case models.ModeDCAPI:
		if !caps.DigitalCredentials {
			return "", dErrors.New(dErrors.CodePrecondition,
				"dc_api requires a browser exposing the Digital Credentials API")
		}
		return models.ModeDCAPI, nil
	default:
		return "", dErrors.New(dErrors.CodeValidation, "mode must be one of [direct_post dc_api]")
	}
}
