package e2e

import (
	"context"
	"fmt"

	"github.com/cucumber/godog"

	"warden/e2e/steps/operator"
	"warden/e2e/steps/webhook"
)

// RegisterSteps registers all step definitions from modular packages
func RegisterSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	ctx.Before(func(ctx context.Context, _ *godog.Scenario) (context.Context, error) {
		tc.Reset()
		return ctx, nil
	})

	ctx.Step(`^the response status should be (\d+)$`, func(status int) error {
		if got := tc.GetLastResponseStatus(); got != status {
			return fmt.Errorf("expected status %d, got %d: %s", status, got, tc.GetLastResponseBody())
		}
		return nil
	})
	ctx.Step(`^the response field "([^"]*)" should be (true|false)$`, func(field, want string) error {
		v, err := tc.GetResponseField(field)
		if err != nil {
			return err
		}
		if fmt.Sprint(v) != want {
			return fmt.Errorf("expected %s=%s, got %v", field, want, v)
		}
		return nil
	})

	webhook.RegisterSteps(ctx, tc)
	operator.RegisterSteps(ctx, tc)
}
