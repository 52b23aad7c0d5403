// ABOUTME: Authenticated HTTP client for the remote knowledge API
// ABOUTME: Adds credential and client-id headers, per-attempt timeouts and linear retry backoff

package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/2389/knowledge-bridge/internal/telemetry"
)

// Header names attached to every request.
const (
	CredentialHeader = "X-API-Key"
	ClientIDHeader   = "X-Client-Id"
)

// Defaults used when Config leaves a field zero.
const (
	DefaultTimeout  = 5 * time.Second
	DefaultClientID = "knowledge-bridge-mcp"
)

// maxResponseSize caps how much of a response body is read.
const maxResponseSize = 10 << 20

// Config holds client configuration.
type Config struct {
	BaseURL    string
	Credential string
	ClientID   string
	// Timeout bounds a single attempt, not the whole retry sequence.
	Timeout time.Duration
	// Retries is the number of extra attempts after the first one fails.
	Retries int
	// RetryDelay is the base delay; the wait before attempt n+1 is RetryDelay*n.
	RetryDelay time.Duration
	HTTPClient *http.Client
	Logger     *slog.Logger
	Observer   *telemetry.Observer
}

// Client talks to the remote knowledge API.
type Client struct {
	baseURL    string
	credential string
	clientID   string
	timeout    time.Duration
	retries    int
	retryDelay time.Duration
	httpClient *http.Client
	logger     *slog.Logger
	observer   *telemetry.Observer
	sleep      func(ctx context.Context, d time.Duration) error
}

// New creates a client from cfg.
func New(cfg Config) *Client {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.ClientID == "" {
		cfg.ClientID = DefaultClientID
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		credential: cfg.Credential,
		clientID:   cfg.ClientID,
		timeout:    cfg.Timeout,
		retries:    cfg.Retries,
		retryDelay: cfg.RetryDelay,
		httpClient: cfg.HTTPClient,
		logger:     cfg.Logger.With("component", "apiclient"),
		observer:   cfg.Observer,
		sleep:      sleepContext,
	}
}

// RequestOptions describes one logical request.
type RequestOptions struct {
	Method  string
	Query   url.Values
	Body    any
	Headers map[string]string
	// SingleAttempt disables retries for this request.
	SingleAttempt bool
}

// Response is a successful (2xx) response.
type Response struct {
	Status   int
	Header   http.Header
	Attempts int
	// JSON holds the body when the response declared a JSON content type.
	JSON json.RawMessage
	// Text holds the body for any other content type.
	Text string
}

// IsJSON reports whether the body was a JSON document.
func (r *Response) IsJSON() bool {
	return len(r.JSON) > 0
}

// Decode unmarshals a JSON body into v.
func (r *Response) Decode(v any) error {
	if !r.IsJSON() {
		return fmt.Errorf("response is not JSON")
	}
	return json.Unmarshal(r.JSON, v)
}

// Data returns the body's "data" field when present, otherwise the whole
// body. Text bodies are returned as a string.
func (r *Response) Data() any {
	if !r.IsJSON() {
		return r.Text
	}
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(r.JSON, &envelope); err == nil {
		if data, ok := envelope["data"]; ok {
			return data
		}
	}
	return r.JSON
}

// Request performs a request against path, retrying any failed attempt up to
// the configured number of retries. Every failure class is retried the same
// way, including 4xx statuses. A 2xx response whose JSON does not parse is
// returned immediately as a *MalformedResponseError.
func (c *Client) Request(ctx context.Context, path string, opts RequestOptions) (*Response, error) {
	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}

	var payload []byte
	if opts.Body != nil {
		var err error
		payload, err = json.Marshal(opts.Body)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}
	}

	ctx, span := c.observer.Start(ctx, "knowledge_api.request",
		attribute.String("http.method", method),
		attribute.String("http.path", path),
	)
	defer span.End()

	maxAttempts := c.retries + 1
	if opts.SingleAttempt {
		maxAttempts = 1
	}

	var lastErr *APIError
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			wait := c.retryDelay * time.Duration(attempt-1)
			c.logger.Debug("retrying request",
				"method", method,
				"path", path,
				"attempt", attempt,
				"wait", wait,
				"error", lastErr.Message)
			if err := c.sleep(ctx, wait); err != nil {
				lastErr.Attempts = attempt - 1
				lastErr.Err = err
				return nil, c.fail(ctx, span, method, path, lastErr)
			}
		}

		start := time.Now()
		resp, err := c.attempt(ctx, method, path, opts, payload)
		status := 0
		if resp != nil {
			status = resp.Status
		} else {
			var apiErr *APIError
			if errors.As(err, &apiErr) {
				status = apiErr.Status
			}
		}
		c.observer.ObserveAPIAttempt(ctx, method, path, attempt, status, time.Since(start))

		if err == nil {
			resp.Attempts = attempt
			span.SetAttributes(attribute.Int("http.status", resp.Status), attribute.Int("attempts", attempt))
			span.SetStatus(codes.Ok, "")
			return resp, nil
		}

		var malformed *MalformedResponseError
		if errors.As(err, &malformed) {
			span.RecordError(err)
			span.SetStatus(codes.Error, "malformed response")
			return nil, err
		}

		lastErr = err.(*APIError)
		if ctx.Err() != nil {
			lastErr.Attempts = attempt
			return nil, c.fail(ctx, span, method, path, lastErr)
		}
	}

	lastErr.Attempts = maxAttempts
	return nil, c.fail(ctx, span, method, path, lastErr)
}

func (c *Client) fail(ctx context.Context, span trace.Span, method, path string, err *APIError) error {
	span.SetAttributes(attribute.Int("http.status", err.Status), attribute.Int("attempts", err.Attempts))
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Message)
	c.observer.ObserveAPIFailure(ctx, method, path, err.Status)
	c.logger.Warn("knowledge API request failed",
		"method", method,
		"path", path,
		"status", err.Status,
		"attempts", err.Attempts,
		"error", err.Message)
	return err
}

// attempt performs one HTTP exchange. It returns *APIError or
// *MalformedResponseError on failure.
func (c *Client) attempt(ctx context.Context, method, path string, opts RequestOptions, payload []byte) (*Response, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	target := c.baseURL + path
	if len(opts.Query) > 0 {
		target += "?" + opts.Query.Encode()
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(attemptCtx, method, target, body)
	if err != nil {
		return nil, &APIError{Message: fmt.Sprintf("building request: %v", err), Err: err}
	}

	for k, v := range opts.Headers {
		req.Header.Set(k, v)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(CredentialHeader, c.credential)
	req.Header.Set(ClientIDHeader, c.clientID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		msg := err.Error()
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			msg = fmt.Sprintf("request timed out after %s", c.timeout)
		}
		return nil, &APIError{Message: msg, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, &APIError{Status: resp.StatusCode, Message: fmt.Sprintf("reading response body: %v", err), Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{Status: resp.StatusCode, Message: errorMessage(resp.StatusCode, raw)}
	}

	out := &Response{Status: resp.StatusCode, Header: resp.Header}
	contentType := resp.Header.Get("Content-Type")
	if isJSONContentType(contentType) {
		trimmed := bytes.TrimSpace(raw)
		if len(trimmed) == 0 {
			return out, nil
		}
		if !json.Valid(trimmed) {
			var probe any
			return nil, &MalformedResponseError{
				ContentType: contentType,
				Raw:         string(raw),
				Err:         json.Unmarshal(trimmed, &probe),
			}
		}
		out.JSON = json.RawMessage(trimmed)
		return out, nil
	}
	out.Text = string(raw)
	return out, nil
}

func isJSONContentType(contentType string) bool {
	if contentType == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.Contains(contentType, "json")
	}
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}

// errorMessage prefers the API's own error text over the status line.
func errorMessage(status int, raw []byte) string {
	var body struct {
		Error   any    `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &body) == nil {
		switch v := body.Error.(type) {
		case string:
			if v != "" {
				return v
			}
		case map[string]any:
			if m, ok := v["message"].(string); ok && m != "" {
				return m
			}
		}
		if body.Message != "" {
			return body.Message
		}
	}
	if text := strings.TrimSpace(string(raw)); text != "" && len(text) <= 200 {
		return text
	}
	return http.StatusText(status)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
