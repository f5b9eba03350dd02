// Package push implements the optional outbound Push Client: it mirrors
// each minutely report to a configured remote ingestion endpoint.
package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/fronius-io/gen24-collector/site"
)

const (
	selfTestTimeout = 5 * time.Second
	pushTimeout     = 10 * time.Second
)

// FailureClass is the closed taxonomy of push-request outcomes reported
// back to subscribers via pushTest/logging.
type FailureClass string

const (
	FailureNone     FailureClass = ""
	FailureDNS      FailureClass = "dns"
	FailureRefused  FailureClass = "refused"
	FailureTimeout  FailureClass = "timeout"
	FailureHTTP     FailureClass = "http_status"
)

// TestResult is the outcome of the startup self-test, published as a
// pushTest event.
type TestResult struct {
	Success    bool         `json:"success"`
	Failure    FailureClass `json:"failure,omitempty"`
	HTTPStatus int          `json:"httpStatus,omitempty"`
	Message    string       `json:"message,omitempty"`
}

// Client is the optional outbound push component. A nil *Client (or one
// with Disabled() true) means the configured client is either absent or
// has been permanently disabled by a 401/404 response.
type Client struct {
	apiKey string
	url    string

	httpClient *http.Client
	logger     *log.Logger

	mu       sync.Mutex
	disabled bool

	lastPushTimestamp time.Time
}

// ValidationError is returned by New when the three LIVEONE_* values are
// not all present and individually valid.
type ValidationError struct {
	Errors []error
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	for i, err := range e.Errors {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(err.Error())
	}
	return b.String()
}

// New validates apiKey/server and returns a configured Client. A valid but
// disabled (enabled=false) configuration is not an error: the returned
// Client has Disabled() true and SelfTest/Push are no-ops. It returns a
// *ValidationError when the configuration is present but invalid.
func New(apiKey, server string, enabled bool, logger *log.Logger) (*Client, error) {
	var errs []error
	if apiKey == "" || !strings.HasPrefix(apiKey, "fr_") {
		errs = append(errs, fmt.Errorf("apiKey must be a non-empty string starting with \"fr_\""))
	}
	lowerServer := strings.ToLower(server)
	if server == "" || !(strings.HasPrefix(lowerServer, "http://") || strings.HasPrefix(lowerServer, "https://")) {
		errs = append(errs, fmt.Errorf("server must be a non-empty string starting with http:// or https://"))
	}
	if len(errs) > 0 {
		return nil, &ValidationError{Errors: errs}
	}

	c := &Client{
		apiKey:     apiKey,
		url:        strings.TrimRight(server, "/") + "/api/push/fronius",
		httpClient: &http.Client{},
		logger:     logger,
	}
	if !enabled {
		c.disabled = true
	}
	return c, nil
}

// Disabled reports whether this client is inert — either constructed with
// enabled=false or shut off by a 401/404 response.
func (c *Client) Disabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disabled
}

func (c *Client) disable() {
	c.mu.Lock()
	c.disabled = true
	c.mu.Unlock()
}

// SelfTest POSTs {apiKey, action:"test"} with a 5s timeout, for the
// startup self-test described in §4.6.
func (c *Client) SelfTest(ctx context.Context) TestResult {
	if c.Disabled() {
		return TestResult{Success: false, Message: "push client disabled"}
	}

	body := map[string]string{"apiKey": c.apiKey, "action": "test"}
	status, _, err := c.post(ctx, body, selfTestTimeout)
	if err != nil {
		class := classifyFailure(err)
		return TestResult{Success: false, Failure: class, Message: err.Error()}
	}
	if status < 200 || status >= 300 {
		return TestResult{Success: false, Failure: FailureHTTP, HTTPStatus: status}
	}
	return TestResult{Success: true}
}

// pushResponse is the outbound push endpoint's response contract.
type pushResponse struct {
	Success     bool    `json:"success"`
	Message     *string `json:"message"`
	DisplayName *string `json:"displayName"`
}

// PushMinutely POSTs the minutely record plus apiKey/action with a 10s
// timeout, and applies the outcome table from §4.6: a 401 or 404
// permanently disables the client for the rest of the process.
func (c *Client) PushMinutely(ctx context.Context, report site.MinutelyReport) {
	if c.Disabled() {
		return
	}

	payload := minutelyPushBody(report, c.apiKey)
	status, body, err := c.post(ctx, payload, pushTimeout)
	if err != nil {
		c.logger.Printf("push: network error: %v", err)
		return
	}

	switch {
	case status >= 200 && status < 300:
		var resp pushResponse
		if jsonErr := json.Unmarshal(body, &resp); jsonErr == nil && resp.Success {
			c.mu.Lock()
			c.lastPushTimestamp = time.Now()
			c.mu.Unlock()
		}
	case status == 400:
		c.logger.Printf("push: server rejected request (400)")
	case status == 401:
		c.logger.Printf("push: unauthorized (401) — disabling push client")
		c.disable()
	case status == 404:
		c.logger.Printf("push: endpoint not found (404) — disabling push client")
		c.disable()
	case status == 409:
		c.logger.Printf("push: duplicate timestamp (409)")
	default:
		c.logger.Printf("push: server error (%d)", status)
	}
}

// LastPushTimestamp returns the time of the last acknowledged successful
// push, or the zero time if none has succeeded yet.
func (c *Client) LastPushTimestamp() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastPushTimestamp
}

func minutelyPushBody(report site.MinutelyReport, apiKey string) map[string]any {
	raw, _ := json.Marshal(report)
	var fields map[string]any
	_ = json.Unmarshal(raw, &fields)
	fields["apiKey"] = apiKey
	fields["action"] = "store"
	return fields
}

func (c *Client) post(ctx context.Context, body any, timeout time.Duration) (int, []byte, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return 0, nil, err
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.url, bytes.NewReader(data))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, respBody, nil
}

func classifyFailure(err error) FailureClass {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "no such host"):
		return FailureDNS
	case strings.Contains(msg, "connection refused"):
		return FailureRefused
	case strings.Contains(msg, "deadline exceeded") || strings.Contains(msg, "timeout"):
		return FailureTimeout
	default:
		return FailureHTTP
	}
}
