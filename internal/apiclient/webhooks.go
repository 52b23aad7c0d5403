// ABOUTME: Health probe and webhook registration calls on the knowledge API
// ABOUTME: The remote API is the system of record for registrations

package apiclient

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// WebhookRegistration is sent to POST /api/webhooks.
type WebhookRegistration struct {
	URL     string
	Events  []string
	Timeout time.Duration
	Secret  string
}

type registrationBody struct {
	URL    string             `json:"url"`
	Events []string           `json:"events"`
	Config registrationConfig `json:"config"`
}

type registrationConfig struct {
	Timeout int64  `json:"timeout"`
	Secret  string `json:"secret,omitempty"`
}

// RegisterWebhook asks the remote API to deliver events to reg.URL.
func (c *Client) RegisterWebhook(ctx context.Context, reg WebhookRegistration) error {
	body := registrationBody{
		URL:    reg.URL,
		Events: reg.Events,
		Config: registrationConfig{
			Timeout: reg.Timeout.Milliseconds(),
			Secret:  reg.Secret,
		},
	}
	if _, err := c.Request(ctx, "/api/webhooks", RequestOptions{Method: http.MethodPost, Body: body}); err != nil {
		return fmt.Errorf("registering webhook %s: %w", reg.URL, err)
	}
	c.logger.Info("webhook registered", "url", reg.URL, "events", reg.Events)
	return nil
}

// UnregisterWebhook removes the registration for url.
func (c *Client) UnregisterWebhook(ctx context.Context, url string) error {
	body := map[string]string{"url": url}
	if _, err := c.Request(ctx, "/api/webhooks", RequestOptions{Method: http.MethodDelete, Body: body}); err != nil {
		return fmt.Errorf("unregistering webhook %s: %w", url, err)
	}
	c.logger.Info("webhook unregistered", "url", url)
	return nil
}

// HealthReport is the result of a single health probe.
type HealthReport struct {
	Status  int
	Latency time.Duration
	Body    any
}

// Health probes GET /health once, without retries.
func (c *Client) Health(ctx context.Context) (*HealthReport, error) {
	start := time.Now()
	resp, err := c.Request(ctx, "/health", RequestOptions{SingleAttempt: true})
	if err != nil {
		return nil, err
	}
	return &HealthReport{
		Status:  resp.Status,
		Latency: time.Since(start),
		Body:    resp.Data(),
	}, nil
}

// BaseURL returns the API root without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}
