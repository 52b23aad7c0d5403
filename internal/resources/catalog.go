// ABOUTME: Read-only resource documents served next to the tools
// ABOUTME: Current project, system health and a self-description, each rendered as JSON text

package resources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/2389/knowledge-bridge/internal/apiclient"
	"github.com/2389/knowledge-bridge/internal/identity"
	"github.com/2389/knowledge-bridge/internal/packs"
	"github.com/2389/knowledge-bridge/internal/store"
)

// Resource URIs.
const (
	ProjectURI  = "knowledge://project/current"
	HealthURI   = "knowledge://system/health"
	PortableURI = "knowledge://portable/info"
)

const mimeJSON = "application/json"

// DefaultProbeTimeout bounds the remote health probe.
const DefaultProbeTimeout = 5 * time.Second

// ErrUnknownResource is matched by *UnknownResourceError.
var ErrUnknownResource = errors.New("unknown resource")

// UnknownResourceError is returned by Read for a URI outside the catalog.
type UnknownResourceError struct {
	URI string
}

func (e *UnknownResourceError) Error() string {
	return fmt.Sprintf("unknown resource: %s", e.URI)
}

func (e *UnknownResourceError) Is(target error) bool {
	return target == ErrUnknownResource
}

// Resource is one catalog entry as listed to clients.
type Resource struct {
	URI         string `json:"uri"`
	Name        string `json:"name"`
	Description string `json:"description"`
	MimeType    string `json:"mimeType"`
}

// Contents is the body of a read resource.
type Contents struct {
	URI      string `json:"uri"`
	MimeType string `json:"mimeType"`
	Text     string `json:"text"`
}

// HealthProber probes the remote API once.
type HealthProber interface {
	Health(ctx context.Context) (*apiclient.HealthReport, error)
}

// WebhookStatus is the receiver's view as reported in resources.
type WebhookStatus struct {
	Enabled    bool   `json:"enabled"`
	State      string `json:"state"`
	URL        string `json:"url,omitempty"`
	Registered bool   `json:"registered"`
}

// Config wires a Catalog to the rest of the bridge. Only Session and
// Registry are required.
type Config struct {
	Name         string
	Version      string
	Session      *identity.Session
	Registry     *packs.Registry
	Prober       HealthProber
	Webhook      func() WebhookStatus
	Journal      store.Journal
	Metrics      func(ctx context.Context) (map[string]float64, error)
	ProbeTimeout time.Duration
	Logger       *slog.Logger
}

// Catalog serves the fixed set of resources.
type Catalog struct {
	cfg    Config
	logger *slog.Logger
	now    func() time.Time
}

// NewCatalog creates a catalog.
func NewCatalog(cfg Config) *Catalog {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = DefaultProbeTimeout
	}
	if cfg.Name == "" {
		cfg.Name = "knowledge-bridge"
	}
	return &Catalog{
		cfg:    cfg,
		logger: logger.With("component", "resources"),
		now:    time.Now,
	}
}

// List returns the catalog in a stable order.
func (c *Catalog) List() []Resource {
	return []Resource{
		{URI: ProjectURI, Name: "Current project", Description: "The project this bridge is bound to", MimeType: mimeJSON},
		{URI: HealthURI, Name: "System health", Description: "Remote API reachability and webhook status", MimeType: mimeJSON},
		{URI: PortableURI, Name: "Bridge info", Description: "Providers, tools and capabilities of this bridge", MimeType: mimeJSON},
	}
}

// Read renders the resource at uri.
func (c *Catalog) Read(ctx context.Context, uri string) (*Contents, error) {
	var doc any
	switch uri {
	case ProjectURI:
		doc = c.project()
	case HealthURI:
		doc = c.Health(ctx)
	case PortableURI:
		doc = c.portable()
	default:
		return nil, &UnknownResourceError{URI: uri}
	}

	text, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", uri, err)
	}
	return &Contents{URI: uri, MimeType: mimeJSON, Text: string(text)}, nil
}

func (c *Catalog) webhook() WebhookStatus {
	if c.cfg.Webhook == nil {
		return WebhookStatus{State: "stopped"}
	}
	return c.cfg.Webhook()
}

type projectDoc struct {
	ProjectID string        `json:"project_id"`
	BaseURL   string        `json:"base_url"`
	Webhook   WebhookStatus `json:"webhook"`
}

func (c *Catalog) project() projectDoc {
	return projectDoc{
		ProjectID: c.cfg.Session.ProjectID,
		BaseURL:   c.cfg.Session.BaseURL,
		Webhook:   c.webhook(),
	}
}

type providerDoc struct {
	ID    string   `json:"id"`
	Tools []string `json:"tools"`
}

type portableDoc struct {
	Name         string          `json:"name"`
	Version      string          `json:"version"`
	Description  string          `json:"description"`
	ProjectID    string          `json:"project_id"`
	Providers    []providerDoc   `json:"providers"`
	Resources    []string        `json:"resources"`
	Capabilities map[string]bool `json:"capabilities"`
}

func (c *Catalog) portable() portableDoc {
	var providers []providerDoc
	for _, p := range c.cfg.Registry.Providers() {
		doc := providerDoc{ID: p.ID(), Tools: []string{}}
		for _, def := range p.ListTools() {
			doc.Tools = append(doc.Tools, def.Name)
		}
		providers = append(providers, doc)
	}

	var uris []string
	for _, r := range c.List() {
		uris = append(uris, r.URI)
	}

	return portableDoc{
		Name:        c.cfg.Name,
		Version:     c.cfg.Version,
		Description: "Bridges a knowledge-management API into tools and resources for an AI client",
		ProjectID:   c.cfg.Session.ProjectID,
		Providers:   providers,
		Resources:   uris,
		Capabilities: map[string]bool{
			"tools":     true,
			"resources": true,
			"prompts":   false,
			"webhooks":  c.webhook().Enabled,
		},
	}
}
