package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	Authenticate(subject string) error
	ClearToken()
	POST(path string, headers map[string]string, body []byte) error
	DELETE(path string) error
	GetLastResponseStatus() int
	GetLastResponseHeader(name string) string
	GetLastResponseBody() []byte
	GetWebhookSource() string
	GetWebhookSecret() string
}

// RegisterSteps registers signed webhook ingress step definitions.
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &webhookSteps{tc: tc}

	ctx.Step(`^the webhook rate limit for the test source is reset$`, steps.resetRateLimit)
	ctx.Step(`^I deliver a signed webhook$`, steps.deliverSigned)
	ctx.Step(`^I deliver (\d+) signed webhooks$`, steps.deliverMany)
	ctx.Step(`^I replay the last webhook$`, steps.replay)
	ctx.Step(`^I deliver a webhook with a tampered body$`, steps.deliverTampered)
	ctx.Step(`^the response should include a Retry-After header$`, steps.hasRetryAfter)
}

type webhookSteps struct {
	tc      TestContext
	seq     int
	lastTS  string
	lastSig string
	lastRaw []byte
}

func (s *webhookSteps) resetRateLimit(ctx context.Context) error {
	if err := s.tc.Authenticate("e2e-runner"); err != nil {
		return err
	}
	defer s.tc.ClearToken()
	src := s.tc.GetWebhookSource()
	if err := s.tc.DELETE(fmt.Sprintf("/ratelimits/webhook/source:%s?scope=%s", src, src)); err != nil {
		return err
	}
	if got := s.tc.GetLastResponseStatus(); got != http.StatusOK {
		return fmt.Errorf("reset rate limit: status %d: %s", got, s.tc.GetLastResponseBody())
	}
	return nil
}

func (s *webhookSteps) deliverSigned(ctx context.Context) error {
	s.seq++
	body := fmt.Appendf(nil, `{"event":"stream.online","nonce":"%d-%d"}`, time.Now().UnixNano(), s.seq)
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	return s.send(ts, s.sign(ts, body), body)
}

func (s *webhookSteps) deliverMany(ctx context.Context, n int) error {
	for range n {
		if err := s.deliverSigned(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (s *webhookSteps) replay(ctx context.Context) error {
	if s.lastRaw == nil {
		return fmt.Errorf("no webhook delivered yet")
	}
	return s.send(s.lastTS, s.lastSig, s.lastRaw)
}

func (s *webhookSteps) deliverTampered(ctx context.Context) error {
	body := []byte(`{"event":"stream.online"}`)
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	sig := s.sign(ts, body)
	return s.send(ts, sig, []byte(`{"event":"stream.offline"}`))
}

func (s *webhookSteps) hasRetryAfter(ctx context.Context) error {
	if s.tc.GetLastResponseHeader("Retry-After") == "" {
		return fmt.Errorf("missing Retry-After header")
	}
	return nil
}

func (s *webhookSteps) sign(ts string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(s.tc.GetWebhookSecret()))
	mac.Write([]byte(ts))
	mac.Write([]byte{'.'})
	mac.Write(body)
	return "v1=" + hex.EncodeToString(mac.Sum(nil))
}

func (s *webhookSteps) send(ts, sig string, body []byte) error {
	s.lastTS, s.lastSig, s.lastRaw = ts, sig, body
	return s.tc.POST("/webhooks/"+s.tc.GetWebhookSource(), map[string]string{
		"X-Signature":           sig,
		"X-Signature-Timestamp": ts,
	}, body)
}
