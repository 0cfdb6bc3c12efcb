package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TestContext holds the state shared by step definitions within a scenario.
type TestContext struct {
	BaseURL       string
	WebhookSource string
	WebhookSecret string
	JWTSecret     string

	client     *http.Client
	token      string
	lastStatus int
	lastHeader http.Header
	lastBody   []byte
}

// NewTestContext reads the target server from the environment. BaseURL is
// empty when WARDEN_E2E_URL is not set.
func NewTestContext() *TestContext {
	return &TestContext{
		BaseURL:       os.Getenv("WARDEN_E2E_URL"),
		WebhookSource: envOr("WARDEN_E2E_SOURCE", "e2e"),
		WebhookSecret: os.Getenv("WARDEN_E2E_WEBHOOK_SECRET"),
		JWTSecret:     os.Getenv("WARDEN_E2E_JWT_SECRET"),
		client:        &http.Client{Timeout: 10 * time.Second},
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// Reset clears per-scenario state.
func (tc *TestContext) Reset() {
	tc.token = ""
	tc.lastStatus = 0
	tc.lastHeader = nil
	tc.lastBody = nil
}

// Authenticate mints an operator token for subject and sends it on later requests.
func (tc *TestContext) Authenticate(subject string) error {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  subject,
		"role": "operator",
		"iss":  "warden",
		"aud":  []string{"warden-admin"},
		"iat":  now.Unix(),
		"exp":  now.Add(10 * time.Minute).Unix(),
	})
	signed, err := token.SignedString([]byte(tc.JWTSecret))
	if err != nil {
		return fmt.Errorf("sign operator token: %w", err)
	}
	tc.token = signed
	return nil
}

// ClearToken sends later requests unauthenticated.
func (tc *TestContext) ClearToken() {
	tc.token = ""
}

func (tc *TestContext) Do(method, path string, headers map[string]string, body []byte) error {
	req, err := http.NewRequest(method, tc.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	if len(body) > 0 {
		req.Header.Set("Content-Type", "application/json")
	}
	if tc.token != "" {
		req.Header.Set("Authorization", "Bearer "+tc.token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := tc.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	tc.lastBody, err = io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	tc.lastStatus = resp.StatusCode
	tc.lastHeader = resp.Header
	return nil
}

func (tc *TestContext) GET(path string) error {
	return tc.Do(http.MethodGet, path, nil, nil)
}

func (tc *TestContext) POST(path string, headers map[string]string, body []byte) error {
	return tc.Do(http.MethodPost, path, headers, body)
}

func (tc *TestContext) DELETE(path string) error {
	return tc.Do(http.MethodDelete, path, nil, nil)
}

func (tc *TestContext) GetLastResponseStatus() int {
	return tc.lastStatus
}

func (tc *TestContext) GetLastResponseHeader(name string) string {
	return tc.lastHeader.Get(name)
}

func (tc *TestContext) GetLastResponseBody() []byte {
	return tc.lastBody
}

// GetResponseField returns a top-level field of the last JSON response.
func (tc *TestContext) GetResponseField(field string) (any, error) {
	var body map[string]any
	if err := json.Unmarshal(tc.lastBody, &body); err != nil {
		return nil, fmt.Errorf("decode response %q: %w", tc.lastBody, err)
	}
	v, ok := body[field]
	if !ok {
		return nil, fmt.Errorf("field %q not in response %s", field, tc.lastBody)
	}
	return v, nil
}

func (tc *TestContext) GetWebhookSource() string { return tc.WebhookSource }
func (tc *TestContext) GetWebhookSecret() string { return tc.WebhookSecret }
