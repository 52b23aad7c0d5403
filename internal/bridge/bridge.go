// ABOUTME: Bridge orchestrator that wires identity, API client, providers, webhook receiver and protocol server
// ABOUTME: Owns every long-lived component and releases them in Shutdown

package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/2389/knowledge-bridge/internal/apiclient"
	"github.com/2389/knowledge-bridge/internal/auth"
	"github.com/2389/knowledge-bridge/internal/config"
	"github.com/2389/knowledge-bridge/internal/events"
	"github.com/2389/knowledge-bridge/internal/identity"
	"github.com/2389/knowledge-bridge/internal/mcp"
	"github.com/2389/knowledge-bridge/internal/packs"
	"github.com/2389/knowledge-bridge/internal/providers"
	"github.com/2389/knowledge-bridge/internal/resources"
	"github.com/2389/knowledge-bridge/internal/store"
	"github.com/2389/knowledge-bridge/internal/telemetry"
	"github.com/2389/knowledge-bridge/internal/webhook"
)

// Version is set at build time.
var Version = "dev"

// Name identifies the bridge to clients and the remote API.
const Name = "knowledge-bridge"

// Bridge coordinates the components of one bridge process.
type Bridge struct {
	config    *config.Config
	logger    *slog.Logger
	session   *identity.Session
	client    *apiclient.Client
	telemetry *telemetry.Provider
	registry  *packs.Registry
	router    *packs.Router
	catalog   *resources.Catalog
	bus       *events.Bus
	journal   store.Journal
	receiver  *webhook.Receiver
	server    *mcp.Server

	stdin  io.Reader
	stdout io.Writer

	// lifecycle serializes Connect and Disconnect.
	lifecycle sync.Mutex

	mu            sync.Mutex
	connected     bool
	registered    bool
	registeredURL string
	scheduler     *cron.Cron
	reregisterJob cron.EntryID
	closed        bool
}

// Option customizes a Bridge.
type Option func(*Bridge)

// WithStdio replaces os.Stdin and os.Stdout for the stdio transport.
func WithStdio(in io.Reader, out io.Writer) Option {
	return func(b *Bridge) {
		b.stdin = in
		b.stdout = out
	}
}

// WithTelemetry uses an existing telemetry provider instead of creating one.
func WithTelemetry(p *telemetry.Provider) Option {
	return func(b *Bridge) { b.telemetry = p }
}

// New builds a bridge from cfg. It fails with an identity.ConfigurationError
// when no project can be resolved and with packs.ErrToolCollision when two
// providers declare the same tool.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...Option) (*Bridge, error) {
	if logger == nil {
		logger = slog.Default()
	}

	session, err := identity.NewSession(cfg.API.BaseURL, cfg.API.Credential, cfg.API.ProjectID)
	if err != nil {
		return nil, err
	}

	b := &Bridge{
		config:  cfg,
		logger:  logger.With("component", "bridge"),
		session: session,
		stdin:   os.Stdin,
		stdout:  os.Stdout,
	}
	for _, opt := range opts {
		opt(b)
	}

	if b.telemetry == nil {
		tp, err := telemetry.Setup(ctx, telemetry.Config{
			ServiceName:  cfg.Telemetry.ServiceName,
			OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
			SetGlobal:    true,
		})
		if err != nil {
			return nil, fmt.Errorf("setting up telemetry: %w", err)
		}
		b.telemetry = tp
	}
	observer := b.telemetry.Observer()

	b.client = apiclient.New(apiclient.Config{
		BaseURL:    session.BaseURL,
		Credential: cfg.API.Credential,
		ClientID:   cfg.API.ClientID,
		Timeout:    cfg.API.Timeout,
		Retries:    cfg.API.Retries,
		RetryDelay: cfg.API.RetryDelay,
		Logger:     logger,
		Observer:   observer,
	})

	b.registry = packs.NewRegistry(logger)
	if err := b.registry.RegisterAll(providers.All(b.client)...); err != nil {
		_ = b.telemetry.Shutdown(ctx)
		return nil, fmt.Errorf("registering providers: %w", err)
	}
	b.router = packs.NewRouter(packs.RouterConfig{
		Registry: b.registry,
		Session:  session,
		Logger:   logger,
		Observer: observer,
	})

	b.bus = events.NewBus(logger)

	if cfg.Webhook.JournalPath != "" {
		journal, err := openJournal(cfg.Webhook.JournalPath)
		if err != nil {
			b.bus.Close()
			_ = b.telemetry.Shutdown(ctx)
			return nil, err
		}
		b.journal = journal
	}

	if cfg.Webhook.Enabled {
		ropts := []webhook.Option{webhook.WithLogger(logger), webhook.WithObserver(observer)}
		if b.journal != nil {
			ropts = append(ropts, webhook.WithJournal(b.journal))
		}
		b.receiver = webhook.NewReceiver(webhook.Config{
			Host:      cfg.Webhook.Host,
			Port:      cfg.Webhook.Port,
			Path:      cfg.Webhook.Path,
			Secret:    cfg.Webhook.Secret,
			PublicURL: cfg.Webhook.PublicURL,
			DedupeTTL: cfg.Webhook.DedupeTTL,
			Tailscale: cfg.Webhook.Tailscale,
		}, b.bus, ropts...)
	}

	b.catalog = resources.NewCatalog(resources.Config{
		Name:     Name,
		Version:  Version,
		Session:  session,
		Registry: b.registry,
		Prober:   b.client,
		Webhook:  b.webhookStatus,
		Journal:  b.journal,
		Metrics:  b.telemetry.Snapshot,
		Logger:   logger,
	})

	var verifier auth.TokenVerifier
	if cfg.MCP.JWTSecret != "" {
		verifier = auth.NewJWTVerifier([]byte(cfg.MCP.JWTSecret), session.ProjectID)
	}
	b.server, err = mcp.NewServer(mcp.Config{
		Tools:         b.router,
		Resources:     b.catalog,
		Logger:        logger,
		TokenVerifier: verifier,
		Name:          Name,
		Version:       Version,
		Instructions:  fmt.Sprintf("Tools operate on the knowledge project %q.", session.ProjectID),
	})
	if err != nil {
		_ = b.Shutdown(ctx)
		return nil, fmt.Errorf("creating protocol server: %w", err)
	}

	b.logger.Info("bridge ready",
		"project_id", session.ProjectID,
		"base_url", session.BaseURL,
		"tools", b.registry.ToolCount(),
		"webhook", cfg.Webhook.Enabled,
	)
	return b, nil
}

// openJournal creates the journal's parent directory and opens it.
func openJournal(path string) (store.Journal, error) {
	if path != ":memory:" {
		if strings.HasPrefix(path, "~/") {
			home, err := os.UserHomeDir()
			if err != nil {
				return nil, fmt.Errorf("resolving journal path: %w", err)
			}
			path = filepath.Join(home, path[2:])
		}
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, fmt.Errorf("creating journal directory: %w", err)
		}
	}
	journal, err := store.NewSQLiteJournal(path)
	if err != nil {
		return nil, fmt.Errorf("opening webhook journal: %w", err)
	}
	return journal, nil
}

// Session returns the resolved identity.
func (b *Bridge) Session() *identity.Session { return b.session }

// Events returns the bus on which lifecycle and note events are emitted.
func (b *Bridge) Events() *events.Bus { return b.bus }

// Router returns the tool router.
func (b *Bridge) Router() *packs.Router { return b.router }

// Resources returns the resource catalog.
func (b *Bridge) Resources() *resources.Catalog { return b.catalog }

// Server returns the protocol server.
func (b *Bridge) Server() *mcp.Server { return b.server }

// Client returns the API client.
func (b *Bridge) Client() *apiclient.Client { return b.client }

// WebhookURL returns the callback URL, or "" when the receiver is not listening.
func (b *Bridge) WebhookURL() string {
	if b.receiver == nil {
		return ""
	}
	return b.receiver.URL()
}

// WebhookRegistered reports whether the remote API accepted the webhook.
func (b *Bridge) WebhookRegistered() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.registered
}

func (b *Bridge) webhookStatus() resources.WebhookStatus {
	if b.receiver == nil {
		return resources.WebhookStatus{State: "disabled"}
	}
	return resources.WebhookStatus{
		Enabled:    true,
		State:      b.receiver.State().String(),
		URL:        b.receiver.URL(),
		Registered: b.WebhookRegistered(),
	}
}

func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// Shutdown disconnects and releases every component. It is safe to call
// more than once.
func (b *Bridge) Shutdown(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	b.logger.Info("shutting down bridge")

	var errs []error
	errs = appendCloseError(errs, "disconnect", b.Disconnect(ctx))
	if b.journal != nil {
		errs = appendCloseError(errs, "journal close", b.journal.Close())
	}
	errs = appendCloseError(errs, "telemetry shutdown", b.telemetry.Shutdown(ctx))
	b.bus.Close()

	return errors.Join(errs...)
}
