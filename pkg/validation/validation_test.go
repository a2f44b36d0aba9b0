package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"

	dErrors "eudi-storefront/pkg/domain-errors"
)

type sample struct {
	SubjectID string   `validate:"required,notblank"`
	Nonce     string   `validate:"required,nonce"`
	Claims    []string `validate:"min=1,unique"`
	Mode      string   `validate:"oneof=direct_post dc_api"`
}

func valid() sample {
	return sample{
		SubjectID: "order_42",
		Nonce:     "00112233445566778899aabbccddeeff",
		Claims:    []string{"given_name"},
		Mode:      "dc_api",
	}
}

func TestValidate(t *testing.T) {
	t.Run("accepts a complete struct", func(t *testing.T) {
		assert.NoError(t, Validate(valid()))
	})

	cases := []struct {
		name   string
		mutate func(*sample)
		msg    string
	}{
		{"blank subject", func(s *sample) { s.SubjectID = "   " }, "subject_id must not be blank"},
		{"short nonce", func(s *sample) { s.Nonce = "abcd" }, "nonce must be at least 16 bytes of lowercase hex"},
		{"uppercase nonce", func(s *sample) { s.Nonce = "00112233445566778899AABBCCDDEEFF" }, "nonce must be at least 16 bytes of lowercase hex"},
		{"empty claims", func(s *sample) { s.Claims = []string{} }, "claims must contain at least 1 entries"},
		{"duplicate claims", func(s *sample) { s.Claims = []string{"a", "a"} }, "claims must not contain duplicates"},
		{"unknown mode", func(s *sample) { s.Mode = "ws" }, "mode must be one of [direct_post dc_api]"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := valid()
			tc.mutate(&in)
			err := Validate(in)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
			assert.EqualError(t, err, tc.msg)
		})
	}
}
