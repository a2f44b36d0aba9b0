package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"eudi-storefront/internal/verification/events"
)

// TestContext holds state between test steps
type TestContext struct {
	BaseURL          string
	AuthorizerURL    string
	HTTPClient       *http.Client
	LastResponse     *http.Response
	LastResponseBody []byte
	UserAgent        string

	authorizerIDs map[string]string
	nonces        map[string]string

	stream   *events.Subscription
	streamed *events.Buffer
	drained  chan struct{}
	scripted bool
}

// NewTestContext creates a new test context
func NewTestContext() *TestContext {
	baseURL := os.Getenv("BASE_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	authorizerURL := os.Getenv("AUTHORIZER_URL")
	if authorizerURL == "" {
		authorizerURL = "http://localhost:8090"
	}

	tc := &TestContext{
		BaseURL:       strings.TrimRight(baseURL, "/"),
		AuthorizerURL: strings.TrimRight(authorizerURL, "/"),
		HTTPClient:    &http.Client{Timeout: 10 * time.Second},
	}
	tc.Reset()
	return tc
}

// Reset clears per-scenario state.
func (tc *TestContext) Reset() {
	tc.LastResponse = nil
	tc.LastResponseBody = nil
	tc.UserAgent = ""
	tc.authorizerIDs = make(map[string]string)
	tc.nonces = make(map[string]string)
	tc.scripted = false
}

// Cleanup closes the followed stream and restores the mock's default script.
func (tc *TestContext) Cleanup() {
	if tc.stream != nil {
		tc.stream.Close()
		<-tc.drained
		tc.stream = nil
	}
	if tc.scripted {
		_ = tc.send(http.MethodDelete, tc.AuthorizerURL+"/_mock/scripts/default", nil, false) //nolint:errcheck // best effort
	}
}

// POST makes a POST request to the storefront and stores the response
func (tc *TestContext) POST(path string, body interface{}) error {
	return tc.send(http.MethodPost, tc.BaseURL+path, body, true)
}

// GET makes a GET request to the storefront and stores the response
func (tc *TestContext) GET(path string) error {
	return tc.send(http.MethodGet, tc.BaseURL+path, nil, true)
}

// DELETE makes a DELETE request to the storefront and stores the response
func (tc *TestContext) DELETE(path string) error {
	return tc.send(http.MethodDelete, tc.BaseURL+path, nil, true)
}

// Authorizer calls the mock authorizer's control API. The response is not
// stored; anything but 2xx is an error.
func (tc *TestContext) Authorizer(method, path string, body interface{}) error {
	if method == http.MethodPut && strings.HasPrefix(path, "/_mock/scripts/") {
		tc.scripted = true
	}
	return tc.send(method, tc.AuthorizerURL+path, body, false)
}

func (tc *TestContext) send(method, target string, body interface{}, store bool) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(context.Background(), method, target, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tc.UserAgent != "" {
		req.Header.Set("User-Agent", tc.UserAgent)
	}

	resp, err := tc.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if !store {
		if resp.StatusCode >= http.StatusMultipleChoices {
			return fmt.Errorf("%s %s: status %d: %s", method, target, resp.StatusCode, respBody)
		}
		return nil
	}
	tc.LastResponse = resp
	tc.LastResponseBody = respBody
	return nil
}

// GetResponseField extracts a dotted field path from the last JSON response.
func (tc *TestContext) GetResponseField(field string) (interface{}, error) {
	var data interface{}
	if err := json.Unmarshal(tc.LastResponseBody, &data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	for _, part := range strings.Split(field, ".") {
		m, ok := data.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("field %s not found in response", field)
		}
		if data, ok = m[part]; !ok {
			return nil, fmt.Errorf("field %s not found in response", field)
		}
	}
	return data, nil
}

// ResponseContains checks if the response body contains a field or text
func (tc *TestContext) ResponseContains(text string) bool {
	return strings.Contains(string(tc.LastResponseBody), text)
}

func (tc *TestContext) GetLastResponseStatus() int {
	if tc.LastResponse == nil {
		return 0
	}
	return tc.LastResponse.StatusCode
}

func (tc *TestContext) GetLastResponseBody() []byte {
	return tc.LastResponseBody
}

func (tc *TestContext) SetUserAgent(ua string) {
	tc.UserAgent = ua
}

// RememberAttempt records the authorization and nonce of subject's current
// attempt. Empty values keep what was known.
func (tc *TestContext) RememberAttempt(subject, authzID, nonce string) {
	if authzID != "" {
		tc.authorizerIDs[subject] = authzID
	}
	if nonce != "" {
		tc.nonces[subject] = nonce
	}
}

func (tc *TestContext) AuthorizerID(subject string) string {
	return tc.authorizerIDs[subject]
}

func (tc *TestContext) Nonce(subject string) string {
	return tc.nonces[subject]
}

// Follow subscribes to subject's event stream and records every message
// until Cleanup.
func (tc *TestContext) Follow(subject string) {
	if tc.stream != nil {
		tc.stream.Close()
		<-tc.drained
	}
	tc.streamed = events.NewBuffer(events.DefaultBufferSize)
	tc.drained = make(chan struct{})
	tc.stream = events.Subscribe(context.Background(), tc.BaseURL+"/verifications/"+url.PathEscape(subject)+"/events")
	go func(sub *events.Subscription, buf *events.Buffer, done chan struct{}) {
		defer close(done)
		for m := range sub.C {
			buf.Add(m)
		}
	}(tc.stream, tc.streamed, tc.drained)
}

// Streamed returns what the followed stream delivered so far.
func (tc *TestContext) Streamed() []events.Message {
	if tc.streamed == nil {
		return nil
	}
	return tc.streamed.Snapshot()
}
