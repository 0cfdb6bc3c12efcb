package operator

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	Authenticate(subject string) error
	ClearToken()
	GET(path string) error
	POST(path string, headers map[string]string, body []byte) error
	DELETE(path string) error
	GetLastResponseBody() []byte
}

// RegisterSteps registers operator API step definitions.
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &operatorSteps{tc: tc}

	ctx.Step(`^I am authenticated as operator "([^"]*)"$`, steps.authenticated)
	ctx.Step(`^I request "([^"]*)" without a token$`, steps.requestWithoutToken)
	ctx.Step(`^I force a lockdown of guild "([^"]*)" for (\d+) seconds$`, steps.forceLockdown)
	ctx.Step(`^I lift the lockdown of guild "([^"]*)"$`, steps.liftLockdown)
	ctx.Step(`^I query the audit log for guild "([^"]*)"$`, steps.queryAudit)
	ctx.Step(`^the audit log should contain action "([^"]*)" by "([^"]*)"$`, steps.auditContains)
}

type operatorSteps struct {
	tc TestContext
}

func (s *operatorSteps) authenticated(ctx context.Context, subject string) error {
	return s.tc.Authenticate(subject)
}

func (s *operatorSteps) requestWithoutToken(ctx context.Context, path string) error {
	s.tc.ClearToken()
	return s.tc.GET(path)
}

func (s *operatorSteps) forceLockdown(ctx context.Context, guildID string, seconds int) error {
	body := fmt.Appendf(nil, `{"duration_seconds":%d}`, seconds)
	return s.tc.POST("/guilds/"+url.PathEscape(guildID)+"/lockdown", nil, body)
}

func (s *operatorSteps) liftLockdown(ctx context.Context, guildID string) error {
	return s.tc.DELETE("/guilds/" + url.PathEscape(guildID) + "/lockdown")
}

func (s *operatorSteps) queryAudit(ctx context.Context, guildID string) error {
	return s.tc.GET("/audit?guild=" + url.QueryEscape(guildID))
}

func (s *operatorSteps) auditContains(ctx context.Context, action, actor string) error {
	var page struct {
		Entries []struct {
			ActorID string `json:"actor_id"`
			Action  string `json:"action"`
		} `json:"entries"`
	}
	if err := json.Unmarshal(s.tc.GetLastResponseBody(), &page); err != nil {
		return fmt.Errorf("decode audit page: %w", err)
	}
	for _, e := range page.Entries {
		if e.Action == action && e.ActorID == actor {
			return nil
		}
	}
	return fmt.Errorf("no %s entry by %s in %d entries", action, actor, len(page.Entries))
}
