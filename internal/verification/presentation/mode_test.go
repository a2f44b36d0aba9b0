package presentation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eudi-storefront/internal/verification/models"
	dErrors "eudi-storefront/pkg/domain-errors"
)

const (
	desktopUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"
	mobileUA  = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_5 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.5 Mobile/15E148 Safari/604.1"
)

func TestSelectMode(t *testing.T) {
	capable := DetectCapabilities(desktopUA, true)
	plain := DetectCapabilities(desktopUA, false)

	tests := []struct {
		name      string
		requested models.Mode
		caps      models.Capabilities
		want      models.Mode
		code      dErrors.Code
	}{
		{"default prefers dc_api when available", "", capable, models.ModeDCAPI, ""},
		{"default falls back to direct_post", "", plain, models.ModeDirectPost, ""},
		{"explicit direct_post", models.ModeDirectPost, capable, models.ModeDirectPost, ""},
		{"explicit dc_api", models.ModeDCAPI, capable, models.ModeDCAPI, ""},
		{"dc_api without capability", models.ModeDCAPI, plain, "", dErrors.CodePrecondition},
		{"unknown mode", "carrier_pigeon", capable, "", dErrors.CodeValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SelectMode(tt.requested, tt.caps)
			if tt.code != "" {
				require.Error(t, err)
				assert.True(t, dErrors.HasCode(err, tt.code))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHintFor(t *testing.T) {
	assert.Equal(t, DeliveryDeepLink, HintFor(DetectCapabilities(mobileUA, false)))
	assert.Equal(t, DeliveryQR, HintFor(DetectCapabilities(desktopUA, false)))
	assert.Equal(t, DeliveryQR, HintFor(DetectCapabilities("  ", false)))
}
