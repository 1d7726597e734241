package e2e

import (
	"context"

	"github.com/cucumber/godog"

	"contribgate/e2e/steps/ledger"
)

// RegisterSteps registers all step definitions from modular packages
func RegisterSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	ctx.Before(func(c context.Context, _ *godog.Scenario) (context.Context, error) {
		tc.Reset()
		return c, nil
	})
	ledger.RegisterSteps(ctx, tc)
}
