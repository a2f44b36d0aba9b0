package e2e

import (
	"github.com/cucumber/godog"

	"eudi-storefront/e2e/steps/common"
	"eudi-storefront/e2e/steps/stream"
	"eudi-storefront/e2e/steps/verification"
)

// RegisterSteps registers all step definitions
func RegisterSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	common.RegisterSteps(ctx, tc)
	verification.RegisterSteps(ctx, tc)
	stream.RegisterSteps(ctx, tc)
}
