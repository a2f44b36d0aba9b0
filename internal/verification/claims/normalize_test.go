package claims

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"eudi-storefront/internal/verification/models"
)

// NormalizerSuite covers shape detection and per-field coercion.
//
// Justification: wallets and the Authorizer disagree on layout and key names;
// storefront logic must see one model regardless.
type NormalizerSuite struct {
	suite.Suite
}

func TestNormalizerSuite(t *testing.T) {
	suite.Run(t, new(NormalizerSuite))
}

func normalize(s string) *models.NormalizedDisclosedClaims {
	return Normalize(json.RawMessage(s))
}

func (s *NormalizerSuite) TestShapeInvariance() {
	keyed := normalize(`{"pid": {"given_name": "Ana", "family_name": "Rossi"}}`)
	array := normalize(`{"credentials": [{"id": "pid", "claims": {"given_name": "Ana", "family_name": "Rossi"}}]}`)
	bare := normalize(`[{"id": "pid", "claims": {"given_name": "Ana", "family_name": "Rossi"}}]`)
	flat := normalize(`{"given_name": "Ana", "family_name": "Rossi"}`)

	want := &models.NormalizedDisclosedClaims{GivenName: "Ana", FamilyName: "Rossi"}
	s.Equal(want, keyed)
	s.Equal(want, array)
	s.Equal(want, bare)
	s.Equal(want, flat)
}

func (s *NormalizerSuite) TestClassify() {
	decode := func(in string) any {
		var v any
		s.Require().NoError(json.Unmarshal([]byte(in), &v))
		return v
	}
	s.Equal(shapeKeyedMap, classify(decode(`{"pid": {"given_name": "Ana"}}`)).shape)
	s.Equal(shapeCredentialArray, classify(decode(`{"credentials": [{"id": "x", "claims": {}}]}`)).shape)
	s.Equal(shapeFallback, classify(decode(`{"address": {"formatted": "x"}}`)).shape, "a lone known claim object is not a credential map")
	s.Equal(shapeFallback, classify(decode(`{"org.iso.18013.5.1": {"given_name": "Ana"}}`)).shape)
	s.Equal(shapeFallback, classify(decode(`"nope"`)).shape)
	s.Equal("keyed_map", shapeKeyedMap.String())
}

func (s *NormalizerSuite) TestCandidateKeys() {
	c := normalize(`{"birthdate": "1990-01-01", "birthDate": "2000-01-01", "firstName": "Ana", "lastName": "Rossi"}`)
	s.Equal("1990-01-01", c.BirthDate, "snake and lower forms precede camel")
	s.Equal("Ana", c.GivenName)
	s.Equal("Rossi", c.FamilyName)
}

func (s *NormalizerSuite) TestMdocNamespaces() {
	c := normalize(`{"credentials": [{"id": "mdl", "format": "mso_mdoc", "claims": {
		"org.iso.18013.5.1": {
			"given_name": "Ana",
			"family_name": "Rossi",
			"birth_date": "1990-05-17",
			"document_number": "IT1234567",
			"expiry_date": "2031-01-01",
			"driving_privileges": [{"vehicle_category_code": "b"}, {"vehicle_category_code": "AM"}, "b"],
			"age_over_18": true,
			"age_over_21": "false"
		}
	}}]}`)
	s.Equal("Ana", c.GivenName)
	s.Equal("IT1234567", c.DocumentNumber)
	s.Equal("2031-01-01", c.ExpiryDate)
	s.Equal([]string{"B", "AM"}, c.DrivingPrivileges)
	s.Equal(map[string]bool{"18": true, "21": false}, c.AgeEqualOrOver)
}

func (s *NormalizerSuite) TestAgeThresholds() {
	fromString := normalize(`{"age_equal_or_over": {"18": "true"}}`)
	fromBool := normalize(`{"age_equal_or_over": {"18": true}}`)
	s.Equal(map[string]bool{"18": true}, fromString.AgeEqualOrOver)
	s.Equal(fromBool, fromString)

	s.Run("unparseable values are omitted", func() {
		c := normalize(`{"age_equal_or_over": {"18": "yes", "21": 1, "16": "FALSE"}}`)
		s.Equal(map[string]bool{"16": false}, c.AgeEqualOrOver)
	})

	s.Run("nested map wins over flat claim", func() {
		c := normalize(`{"age_equal_or_over": {"18": false}, "age_over_18": true, "age_over_x": true}`)
		s.Equal(map[string]bool{"18": false}, c.AgeEqualOrOver)
	})
}

func (s *NormalizerSuite) TestNationalities() {
	c := normalize(`{"nationalities": ["it", "DE", "IT", " de "]}`)
	s.Equal([]string{"IT", "DE"}, c.Nationalities)

	c = normalize(`{"nationality": "fr"}`)
	s.Equal([]string{"FR"}, c.Nationalities)

	c = normalize(`{"nationalities": [{"country_code": "ES"}, 7]}`)
	s.Equal([]string{"ES", "7"}, c.Nationalities)
}

func (s *NormalizerSuite) TestAddress() {
	s.Run("prefers formatted", func() {
		c := normalize(`{"address": {"formatted": "Via Roma 1, 00100 Roma, IT", "street_address": "ignored"}}`)
		s.Equal("Via Roma 1, 00100 Roma, IT", c.Address)
	})

	s.Run("concatenates parts", func() {
		c := normalize(`{"address": {"street_address": "Via Roma", "house_number": "1", "postal_code": "00100", "locality": "Roma", "country": "IT"}}`)
		s.Equal("Via Roma 1, 00100 Roma, IT", c.Address)
	})

	s.Run("mdl resident fields", func() {
		c := normalize(`{"org.iso.18013.5.1": {"resident_street": "Hauptstr.", "resident_postal_code": "10115", "resident_city": "Berlin", "resident_country": "DE"}}`)
		s.Equal("Hauptstr., 10115 Berlin, DE", c.Address)
	})

	s.Run("plain string", func() {
		s.Equal("Rue de Rivoli 1", normalize(`{"address": " Rue de Rivoli 1 "}`).Address)
	})
}

func (s *NormalizerSuite) TestMultipleCredentialsFirstMatchWins() {
	c := normalize(`{"credentials": [
		{"id": "pid", "claims": {"given_name": "Ana", "nationalities": ["IT"]}},
		{"id": "mdl", "claims": {"given_name": "Anna", "document_number": "X1"}}
	]}`)
	s.Equal("Ana", c.GivenName)
	s.Equal("X1", c.DocumentNumber)
	s.Equal([]string{"IT"}, c.Nationalities)
}

func (s *NormalizerSuite) TestTotal() {
	for _, in := range []string{``, `null`, `42`, `"str"`, `[]`, `{}`, `{"credentials": "x"}`, `[1,2]`, `{"given_name": 12}`} {
		c := normalize(in)
		s.Require().NotNil(c, in)
	}
	s.True(normalize(`{"given_name": {"nested": true}}`).IsEmpty())
}

func TestNormalize_ScalarWrappers(t *testing.T) {
	c := Normalize(json.RawMessage(`{"document_number": 12345, "birth_date": {"tag": 1004, "value": "1990-01-01"}}`))
	require.NotNil(t, c)
	assert.Equal(t, "12345", c.DocumentNumber)
	assert.Equal(t, "1990-01-01", c.BirthDate)
}

func TestNormalize_VPTokenWrapper(t *testing.T) {
	c := Normalize(json.RawMessage(`{"vp_token": {"pid": {"given_name": "Ana"}}}`))
	assert.Equal(t, "Ana", c.GivenName)
}
