// ABOUTME: KB_* environment variable overrides applied on top of the config file
// ABOUTME: Lets the bridge run with no config file at all when launched by an MCP host

package config

import (
	"fmt"
	"strconv"
	"strings"
)

// LookupFunc matches os.LookupEnv so tests can supply a fake environment.
type LookupFunc func(key string) (string, bool)

type envBinding struct {
	key   string
	apply func(cfg *Config, value string) error
}

func stringVar(set func(cfg *Config, v string)) func(*Config, string) error {
	return func(cfg *Config, v string) error {
		set(cfg, v)
		return nil
	}
}

func intVar(set func(cfg *Config, v int)) func(*Config, string) error {
	return func(cfg *Config, v string) error {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return err
		}
		set(cfg, n)
		return nil
	}
}

func boolVar(set func(cfg *Config, v bool)) func(*Config, string) error {
	return func(cfg *Config, v string) error {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return err
		}
		set(cfg, b)
		return nil
	}
}

var envBindings = []envBinding{
	{"KB_API_URL", stringVar(func(c *Config, v string) { c.API.BaseURL = v })},
	{"KB_CREDENTIAL", stringVar(func(c *Config, v string) { c.API.Credential = v })},
	{"KB_PROJECT_ID", stringVar(func(c *Config, v string) { c.API.ProjectID = v })},
	{"KB_CLIENT_ID", stringVar(func(c *Config, v string) { c.API.ClientID = v })},
	{"KB_HTTP_TIMEOUT", stringVar(func(c *Config, v string) { c.API.TimeoutRaw = v })},
	{"KB_HTTP_RETRIES", intVar(func(c *Config, v int) { c.API.Retries = v })},
	{"KB_HTTP_RETRY_DELAY", stringVar(func(c *Config, v string) { c.API.RetryDelayRaw = v })},
	{"KB_WEBHOOK_ENABLED", boolVar(func(c *Config, v bool) { c.Webhook.Enabled = v })},
	{"KB_WEBHOOK_HOST", stringVar(func(c *Config, v string) { c.Webhook.Host = v })},
	{"KB_WEBHOOK_PORT", intVar(func(c *Config, v int) { c.Webhook.Port = v })},
	{"KB_WEBHOOK_PATH", stringVar(func(c *Config, v string) { c.Webhook.Path = v })},
	{"KB_WEBHOOK_SECRET", stringVar(func(c *Config, v string) { c.Webhook.Secret = v })},
	{"KB_WEBHOOK_PUBLIC_URL", stringVar(func(c *Config, v string) { c.Webhook.PublicURL = v })},
	{"KB_JOURNAL_PATH", stringVar(func(c *Config, v string) { c.Webhook.JournalPath = v })},
	{"KB_MCP_TRANSPORT", stringVar(func(c *Config, v string) { c.MCP.Transport = v })},
	{"KB_MCP_HTTP_ADDR", stringVar(func(c *Config, v string) { c.MCP.HTTPAddr = v })},
	{"KB_MCP_JWT_SECRET", stringVar(func(c *Config, v string) { c.MCP.JWTSecret = v })},
	{"KB_LOG_ENABLED", boolVar(func(c *Config, v bool) { c.Logging.Enabled = v })},
	{"KB_LOG_LEVEL", stringVar(func(c *Config, v string) { c.Logging.Level = v })},
	{"KB_LOG_FORMAT", stringVar(func(c *Config, v string) { c.Logging.Format = v })},
	{"KB_OTLP_ENDPOINT", stringVar(func(c *Config, v string) { c.Telemetry.OTLPEndpoint = v })},
}

// applyEnv overrides config values with any KB_* variables that are set.
// Empty values are ignored.
func applyEnv(cfg *Config, lookup LookupFunc) error {
	for _, b := range envBindings {
		v, ok := lookup(b.key)
		if !ok || v == "" {
			continue
		}
		if err := b.apply(cfg, v); err != nil {
			return fmt.Errorf("%s=%q: %w", b.key, v, err)
		}
	}
	return nil
}
