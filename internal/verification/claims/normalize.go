// Package claims maps disclosed credential payloads of any supported wire
// shape into models.NormalizedDisclosedClaims.
package claims

import (
	"encoding/json"
	"strconv"
	"strings"

	"eudi-storefront/internal/verification/models"
	s "eudi-storefront/pkg/platform/strings"
)

// Candidate keys per semantic field, first match wins.
var (
	givenNameKeys      = []string{"given_name", "givenName", "first_name", "firstName"}
	familyNameKeys     = []string{"family_name", "familyName", "last_name", "lastName"}
	birthDateKeys      = []string{"birth_date", "birthdate", "birthDate", "date_of_birth", "dateOfBirth"}
	birthPlaceKeys     = []string{"birth_place", "place_of_birth", "birthPlace", "placeOfBirth"}
	nationalityKeys    = []string{"nationalities", "nationality"}
	addressKeys        = []string{"address", "resident_address", "residentAddress"}
	documentNumberKeys = []string{"document_number", "documentNumber", "personal_administrative_number"}
	issuingCountryKeys = []string{"issuing_country", "issuingCountry"}
	issueDateKeys      = []string{"issue_date", "issuance_date", "issueDate"}
	expiryDateKeys     = []string{"expiry_date", "expiration_date", "expiryDate"}
	privilegeKeys      = []string{"driving_privileges", "drivingPrivileges"}
	ageKeys            = []string{"age_equal_or_over", "ageEqualOrOver", "age_over"}

	formattedKeys = []string{"formatted", "formatted_address", "formattedAddress"}
	streetKeys    = []string{"street_address", "street", "resident_street"}
	houseKeys     = []string{"house_number", "resident_house_number"}
	postalKeys    = []string{"postal_code", "resident_postal_code", "zip"}
	localityKeys  = []string{"locality", "city", "resident_city"}
	regionKeys    = []string{"region", "state", "resident_state"}
	countryKeys   = []string{"country", "resident_country"}
)

var knownClaims = func() map[string]struct{} {
	m := make(map[string]struct{})
	for _, keys := range [][]string{
		givenNameKeys, familyNameKeys, birthDateKeys, birthPlaceKeys, nationalityKeys,
		addressKeys, documentNumberKeys, issuingCountryKeys, issueDateKeys, expiryDateKeys,
		privilegeKeys, ageKeys,
	} {
		for _, k := range keys {
			m[k] = struct{}{}
		}
	}
	return m
}()

func isKnownClaim(k string) bool {
	_, ok := knownClaims[k]
	return ok || strings.HasPrefix(k, "age_over_")
}

// Normalize parses raw and normalizes it. It never fails: malformed input
// yields an empty claim bag.
func Normalize(raw json.RawMessage) *models.NormalizedDisclosedClaims {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return &models.NormalizedDisclosedClaims{}
	}
	return NormalizeValue(v)
}

// NormalizeValue normalizes an already-decoded payload.
func NormalizeValue(v any) *models.NormalizedDisclosedClaims {
	p := classify(v)
	out := &models.NormalizedDisclosedClaims{}
	for _, cred := range p.credentials {
		merge(out, cred.claims)
	}
	return out
}

// merge fills fields of out that are still empty from claims.
func merge(out *models.NormalizedDisclosedClaims, claims map[string]any) {
	fill := func(dst *string, keys []string) {
		if *dst == "" {
			*dst = firstText(claims, keys)
		}
	}
	fill(&out.GivenName, givenNameKeys)
	fill(&out.FamilyName, familyNameKeys)
	fill(&out.BirthDate, birthDateKeys)
	fill(&out.DocumentNumber, documentNumberKeys)
	fill(&out.IssuingCountry, issuingCountryKeys)
	fill(&out.IssueDate, issueDateKeys)
	fill(&out.ExpiryDate, expiryDateKeys)

	if out.BirthPlace == "" {
		if v, ok := first(claims, birthPlaceKeys); ok {
			out.BirthPlace = formatAddress(v)
		}
	}
	if len(out.Nationalities) == 0 {
		if v, ok := first(claims, nationalityKeys); ok {
			out.Nationalities = s.DedupeAndTrimUpper(stringList(v))
		}
	}
	if out.Address == "" {
		if v, ok := first(claims, addressKeys); ok {
			out.Address = formatAddress(v)
		}
		if out.Address == "" {
			out.Address = formatAddress(claims)
		}
	}
	if len(out.DrivingPrivileges) == 0 {
		if v, ok := first(claims, privilegeKeys); ok {
			out.DrivingPrivileges = privilegeCategories(v)
		}
	}
	for threshold, ok := range ageThresholds(claims) {
		if out.AgeEqualOrOver == nil {
			out.AgeEqualOrOver = make(map[string]bool)
		}
		if _, seen := out.AgeEqualOrOver[threshold]; !seen {
			out.AgeEqualOrOver[threshold] = ok
		}
	}
}

func first(claims map[string]any, keys []string) (any, bool) {
	for _, k := range keys {
		if v, ok := claims[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func firstText(claims map[string]any, keys []string) string {
	for _, k := range keys {
		if t := text(claims[k]); t != "" {
			return t
		}
	}
	return ""
}

// text renders scalar claim values. Some mDoc JSON encodings wrap values as
// {"value": ...}.
func text(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	case map[string]any:
		if inner, ok := t["value"]; ok {
			return text(inner)
		}
	}
	return ""
}

func stringList(v any) []string {
	switch t := v.(type) {
	case string:
		return []string{t}
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if m, ok := item.(map[string]any); ok {
				if c := firstText(m, []string{"country_code", "value"}); c != "" {
					out = append(out, c)
				}
				continue
			}
			if str := text(item); str != "" {
				out = append(out, str)
			}
		}
		return out
	}
	return nil
}

// formatAddress collapses an address claim into one line, preferring a
// pre-formatted field.
func formatAddress(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case map[string]any:
		if f := firstText(t, formattedKeys); f != "" {
			return f
		}
		street := firstText(t, streetKeys)
		if hn := firstText(t, houseKeys); street != "" && hn != "" {
			street += " " + hn
		}
		city := strings.TrimSpace(firstText(t, postalKeys) + " " + firstText(t, localityKeys))

		var parts []string
		for _, p := range []string{street, city, firstText(t, regionKeys), firstText(t, countryKeys)} {
			if p != "" {
				parts = append(parts, p)
			}
		}
		return strings.Join(parts, ", ")
	}
	return ""
}

func privilegeCategories(v any) []string {
	items, ok := v.([]any)
	if !ok {
		items = []any{v}
	}
	cats := make([]string, 0, len(items))
	for _, item := range items {
		switch t := item.(type) {
		case string:
			cats = append(cats, t)
		case map[string]any:
			if c := firstText(t, []string{"vehicle_category_code", "vehicleCategoryCode", "category"}); c != "" {
				cats = append(cats, c)
			}
		}
	}
	return s.DedupeAndTrimUpper(cats)
}

// ageThresholds collects age_equal_or_over maps and flat age_over_NN claims.
func ageThresholds(claims map[string]any) map[string]bool {
	out := make(map[string]bool)
	if v, ok := first(claims, ageKeys); ok {
		if m, ok := v.(map[string]any); ok {
			for k, raw := range m {
				if b, ok := ageBool(raw); ok {
					out[strings.TrimSpace(k)] = b
				}
			}
		}
	}
	for k, raw := range claims {
		threshold, found := strings.CutPrefix(k, "age_over_")
		if !found || threshold == "" {
			continue
		}
		if _, err := strconv.Atoi(threshold); err != nil {
			continue
		}
		if _, exists := out[threshold]; exists {
			continue
		}
		if b, ok := ageBool(raw); ok {
			out[threshold] = b
		}
	}
	return out
}

func ageBool(v any) (bool, bool) {
	switch t := v.(type) {
	case bool:
		return t, true
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true":
			return true, true
		case "false":
			return false, true
		}
	case map[string]any:
		if inner, ok := t["value"]; ok {
			return ageBool(inner)
		}
	}
	return false, false
}
