package request

import "eudi-storefront/internal/verification/models"

// DCQL is the Digital Credentials Query Language document sent to the
// Authorizer and to the browser exchange.
type DCQL struct {
	ID          string            `json:"id"`
	Purpose     string            `json:"purpose"`
	Credentials []CredentialQuery `json:"credentials"`
}

// CredentialQuery selects one credential.
type CredentialQuery struct {
	ID        string       `json:"id"`
	Format    string       `json:"format"`
	Meta      Meta         `json:"meta"`
	Claims    []ClaimQuery `json:"claims"`
	ClaimSets [][]string   `json:"claim_sets,omitempty"`
}

// Meta constrains the credential type. DocTypeValue applies to mDoc,
// VctValues to SD-JWT VC.
type Meta struct {
	DocTypeValue string   `json:"doctype_value,omitempty"`
	VctValues    []string `json:"vct_values,omitempty"`
}

// ClaimQuery points at one claim.
type ClaimQuery struct {
	ID   string   `json:"id"`
	Path []string `json:"path"`
}

// ToDCQL projects a request into its DCQL query. When some claims are
// optional the wallet is offered the full set first and the required subset
// as fallback.
func ToDCQL(req *models.VerificationRequest) DCQL {
	cq := CredentialQuery{
		ID:     req.CredentialID,
		Format: string(req.Format),
		Claims: make([]ClaimQuery, 0, len(req.Claims)),
	}
	switch req.Format {
	case models.FormatMsoMdoc:
		cq.Meta.DocTypeValue = req.CredentialType
	case models.FormatSDJWT:
		cq.Meta.VctValues = []string{req.CredentialType}
	}

	all := make([]string, 0, len(req.Claims))
	var required []string
	for _, c := range req.Claims {
		cq.Claims = append(cq.Claims, ClaimQuery{ID: c.ID, Path: append([]string(nil), c.Path...)})
		all = append(all, c.ID)
		if c.Required {
			required = append(required, c.ID)
		}
	}
	if len(required) > 0 && len(required) < len(all) {
		cq.ClaimSets = [][]string{all, required}
	}

	return DCQL{
		ID:          req.RequestID.String(),
		Purpose:     req.Purpose,
		Credentials: []CredentialQuery{cq},
	}
}
