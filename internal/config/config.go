// ABOUTME: Configuration loading and parsing for knowledge-bridge
// ABOUTME: Supports YAML or TOML files with ${VAR} expansion, env overrides and duration parsing

package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Default values applied before the file and environment are read.
const (
	DefaultBaseURL            = "http://localhost:3000"
	DefaultClientID           = "knowledge-bridge-mcp"
	DefaultTimeout            = 5 * time.Second
	DefaultRetries            = 3
	DefaultRetryDelay         = time.Second
	DefaultWebhookHost        = "127.0.0.1"
	DefaultWebhookPath        = "/webhook"
	DefaultWebhookTimeout     = 10 * time.Second
	DefaultDedupeTTL          = 10 * time.Minute
	DefaultReregisterSchedule = "@every 5m"
	DefaultMCPTransport       = "stdio"
	DefaultMCPHTTPAddr        = "127.0.0.1:8765"
	DefaultServiceName        = "knowledge-bridge"
)

// Webhook event kinds the remote API can deliver.
var validWebhookEvents = map[string]bool{
	"created": true,
	"updated": true,
	"deleted": true,
}

// Config represents the complete knowledge-bridge configuration.
// It is built once at startup and treated as read-only afterwards.
type Config struct {
	API       APIConfig       `yaml:"api" toml:"api"`
	Webhook   WebhookConfig   `yaml:"webhook" toml:"webhook"`
	MCP       MCPConfig       `yaml:"mcp" toml:"mcp"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
	Telemetry TelemetryConfig `yaml:"telemetry" toml:"telemetry"`
}

// APIConfig holds the remote knowledge API connection settings
type APIConfig struct {
	BaseURL    string `yaml:"base_url" toml:"base_url"`
	Credential string `yaml:"credential" toml:"credential"`
	// ProjectID overrides the project derived from the credential.
	ProjectID string `yaml:"project_id" toml:"project_id"`
	ClientID  string `yaml:"client_id" toml:"client_id"`
	Retries   int    `yaml:"retries" toml:"retries"`

	Timeout    time.Duration `yaml:"-" toml:"-"`
	RetryDelay time.Duration `yaml:"-" toml:"-"`

	TimeoutRaw    string `yaml:"timeout" toml:"timeout"`
	RetryDelayRaw string `yaml:"retry_delay" toml:"retry_delay"`
}

// WebhookConfig holds the inbound webhook receiver settings
type WebhookConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Host    string `yaml:"host" toml:"host"`
	Port    int    `yaml:"port" toml:"port"`
	Path    string `yaml:"path" toml:"path"`
	Secret  string `yaml:"secret" toml:"secret"`
	// PublicURL is registered with the remote instead of the local listener address.
	PublicURL          string          `yaml:"public_url" toml:"public_url"`
	Events             []string        `yaml:"events" toml:"events"`
	JournalPath        string          `yaml:"journal_path" toml:"journal_path"`
	ReregisterSchedule string          `yaml:"reregister_schedule" toml:"reregister_schedule"`
	Tailscale          TailscaleConfig `yaml:"tailscale" toml:"tailscale"`

	// RemoteTimeout is the delivery timeout requested from the remote API.
	RemoteTimeout time.Duration `yaml:"-" toml:"-"`
	DedupeTTL     time.Duration `yaml:"-" toml:"-"`

	RemoteTimeoutRaw string `yaml:"remote_timeout" toml:"remote_timeout"`
	DedupeTTLRaw     string `yaml:"dedupe_ttl" toml:"dedupe_ttl"`
}

// TailscaleConfig holds Tailscale tsnet configuration for the webhook listener
type TailscaleConfig struct {
	Enabled   bool   `yaml:"enabled" toml:"enabled"`
	Hostname  string `yaml:"hostname" toml:"hostname"`
	AuthKey   string `yaml:"auth_key" toml:"auth_key"`
	StateDir  string `yaml:"state_dir" toml:"state_dir"`
	Ephemeral bool   `yaml:"ephemeral" toml:"ephemeral"`
	Funnel    bool   `yaml:"funnel" toml:"funnel"` // public HTTPS on :443
}

// MCPConfig holds the protocol transport settings
type MCPConfig struct {
	Transport string `yaml:"transport" toml:"transport"` // stdio, http
	HTTPAddr  string `yaml:"http_addr" toml:"http_addr"`
	JWTSecret string `yaml:"jwt_secret" toml:"jwt_secret"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Level   string `yaml:"level" toml:"level"`
	Format  string `yaml:"format" toml:"format"`
}

// TelemetryConfig holds OpenTelemetry export settings
type TelemetryConfig struct {
	OTLPEndpoint string `yaml:"otlp_endpoint" toml:"otlp_endpoint"`
	ServiceName  string `yaml:"service_name" toml:"service_name"`
}

// Default returns a Config populated with default values only.
func Default() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:       DefaultBaseURL,
			ClientID:      DefaultClientID,
			Retries:       DefaultRetries,
			TimeoutRaw:    DefaultTimeout.String(),
			RetryDelayRaw: DefaultRetryDelay.String(),
		},
		Webhook: WebhookConfig{
			Host:               DefaultWebhookHost,
			Path:               DefaultWebhookPath,
			Events:             []string{"created", "updated", "deleted"},
			ReregisterSchedule: DefaultReregisterSchedule,
			RemoteTimeoutRaw:   DefaultWebhookTimeout.String(),
			DedupeTTLRaw:       DefaultDedupeTTL.String(),
			Tailscale: TailscaleConfig{
				Hostname: "knowledge-bridge",
			},
		},
		MCP: MCPConfig{
			Transport: DefaultMCPTransport,
			HTTPAddr:  DefaultMCPHTTPAddr,
		},
		Logging: LoggingConfig{
			Enabled: true,
			Level:   "info",
			Format:  "text",
		},
		Telemetry: TelemetryConfig{
			ServiceName: DefaultServiceName,
		},
	}
}

// DefaultPath returns the config file location used when none is given.
// KB_CONFIG wins, then $XDG_CONFIG_HOME, then ~/.config.
func DefaultPath() string {
	if p := os.Getenv("KB_CONFIG"); p != "" {
		return p
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "knowledge-bridge", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(home, ".config", "knowledge-bridge", "config.yaml")
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are decoded as TOML, everything else as YAML.
// A missing file is not an error: defaults and environment variables are used.
// Environment variables in the format ${VAR_NAME} are expanded before decoding,
// and KB_* environment overrides are applied after.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := decode(path, expandEnvVars(string(data)), cfg); err != nil {
				return nil, fmt.Errorf("parsing config file: %w", err)
			}
		case os.IsNotExist(err):
		default:
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	if err := applyEnv(cfg, os.LookupEnv); err != nil {
		return nil, fmt.Errorf("applying environment: %w", err)
	}

	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func decode(path, content string, cfg *Config) error {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		_, err := toml.Decode(content, cfg)
		return err
	}
	return yaml.Unmarshal([]byte(content), cfg)
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envVarPattern.FindStringSubmatch(match)[1])
	})
}

// Validate checks that all configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("api.base_url %q is not an absolute URL", c.API.BaseURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("api.base_url scheme must be http or https, got %q", u.Scheme)
	}
	if c.API.Retries < 0 {
		return fmt.Errorf("api.retries must be >= 0, got %d", c.API.Retries)
	}
	if c.API.Timeout <= 0 {
		return fmt.Errorf("api.timeout must be positive")
	}
	if c.API.RetryDelay < 0 {
		return fmt.Errorf("api.retry_delay must be >= 0")
	}

	if c.Webhook.Port < 0 || c.Webhook.Port > 65535 {
		return fmt.Errorf("webhook.port %d out of range", c.Webhook.Port)
	}
	if !strings.HasPrefix(c.Webhook.Path, "/") {
		return fmt.Errorf("webhook.path must start with /, got %q", c.Webhook.Path)
	}
	for _, ev := range c.Webhook.Events {
		if !validWebhookEvents[ev] {
			return fmt.Errorf("webhook.events: unknown event %q", ev)
		}
	}
	if c.Webhook.ReregisterSchedule != "" {
		if _, err := cron.ParseStandard(c.Webhook.ReregisterSchedule); err != nil {
			return fmt.Errorf("webhook.reregister_schedule %q: %w", c.Webhook.ReregisterSchedule, err)
		}
	}
	if c.Webhook.Tailscale.Enabled && c.Webhook.Tailscale.Hostname == "" {
		return fmt.Errorf("webhook.tailscale.hostname is required when tailscale is enabled")
	}

	switch c.MCP.Transport {
	case "stdio":
	case "http":
		if c.MCP.HTTPAddr == "" {
			return fmt.Errorf("mcp.http_addr is required for the http transport")
		}
	default:
		return fmt.Errorf("mcp.transport must be stdio or http, got %q", c.MCP.Transport)
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"api.timeout", cfg.API.TimeoutRaw, &cfg.API.Timeout},
		{"api.retry_delay", cfg.API.RetryDelayRaw, &cfg.API.RetryDelay},
		{"webhook.remote_timeout", cfg.Webhook.RemoteTimeoutRaw, &cfg.Webhook.RemoteTimeout},
		{"webhook.dedupe_ttl", cfg.Webhook.DedupeTTLRaw, &cfg.Webhook.DedupeTTL},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := parseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}
	return nil
}

// parseDuration accepts Go duration syntax or a bare integer in milliseconds.
func parseDuration(raw string) (time.Duration, error) {
	var ms int64
	if _, err := fmt.Sscanf(raw, "%d", &ms); err == nil && fmt.Sprint(ms) == raw {
		return time.Duration(ms) * time.Millisecond, nil
	}
	return time.ParseDuration(raw)
}
