// ABOUTME: Local HTTP listener that turns remote API webhook POSTs into application events
// ABOUTME: Lifecycle is Stopped -> Starting -> Listening -> Stopped; port 0 picks an ephemeral port

package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"tailscale.com/tsnet"

	"github.com/2389/knowledge-bridge/internal/config"
	"github.com/2389/knowledge-bridge/internal/dedupe"
	"github.com/2389/knowledge-bridge/internal/events"
	"github.com/2389/knowledge-bridge/internal/store"
	"github.com/2389/knowledge-bridge/internal/telemetry"
)

// Headers read from inbound deliveries.
const (
	SignatureHeader = "X-Webhook-Signature"
	DeliveryHeader  = "X-Webhook-Id"
)

const (
	maxBodySize      = 1 << 20
	dedupeCapacity   = 10000
	dedupeSweepEvery = time.Minute
)

// ErrNotStopped is returned by Start when the receiver is already running.
var ErrNotStopped = errors.New("webhook receiver is not stopped")

// State is the receiver lifecycle state.
type State int32

const (
	StateStopped State = iota
	StateStarting
	StateListening
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateListening:
		return "listening"
	}
	return "unknown"
}

// Config holds receiver settings.
type Config struct {
	Host string
	Port int
	Path string
	// Secret enables HMAC verification of signed deliveries.
	Secret string
	// PublicURL replaces the listener URL reported by URL.
	PublicURL string
	DedupeTTL time.Duration
	Tailscale config.TailscaleConfig
}

// Option customizes a Receiver.
type Option func(*Receiver)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Receiver) {
		if logger != nil {
			r.logger = logger.With("component", "webhook")
		}
	}
}

// WithJournal records accepted deliveries.
func WithJournal(j store.Journal) Option {
	return func(r *Receiver) { r.journal = j }
}

// WithObserver records delivery metrics.
func WithObserver(o *telemetry.Observer) Option {
	return func(r *Receiver) { r.observer = o }
}

// Receiver owns the listener and emits events on the bus.
type Receiver struct {
	cfg      Config
	bus      *events.Bus
	journal  store.Journal
	observer *telemetry.Observer
	logger   *slog.Logger

	mu       sync.Mutex
	state    State
	listener net.Listener
	server   *http.Server
	tsServer *tsnet.Server
	window   *dedupe.Window
	url      string
	served   chan struct{}
}

// NewReceiver creates a stopped receiver.
func NewReceiver(cfg Config, bus *events.Bus, opts ...Option) *Receiver {
	if cfg.Path == "" {
		cfg.Path = config.DefaultWebhookPath
	}
	if cfg.Host == "" {
		cfg.Host = config.DefaultWebhookHost
	}
	if cfg.DedupeTTL <= 0 {
		cfg.DedupeTTL = config.DefaultDedupeTTL
	}
	r := &Receiver{
		cfg:    cfg,
		bus:    bus,
		logger: slog.Default().With("component", "webhook"),
		state:  StateStopped,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// State returns the current lifecycle state.
func (r *Receiver) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// URL returns the callback URL to register with the remote API, or "" when
// the receiver is not listening.
func (r *Receiver) URL() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateListening {
		return ""
	}
	if r.cfg.PublicURL != "" {
		return r.cfg.PublicURL
	}
	return r.url
}

// Addr returns the bound listener address, or nil when not listening.
func (r *Receiver) Addr() net.Addr {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listener == nil {
		return nil
	}
	return r.listener.Addr()
}

// Start binds the listener and begins serving. On any failure every
// resource acquired so far is released and the state returns to Stopped.
func (r *Receiver) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.state != StateStopped {
		r.mu.Unlock()
		return ErrNotStopped
	}
	r.state = StateStarting
	r.mu.Unlock()

	ln, url, tsServer, err := r.listen(ctx)
	if err != nil {
		r.mu.Lock()
		r.state = StateStopped
		r.mu.Unlock()
		return err
	}

	srv := &http.Server{
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	served := make(chan struct{})

	r.mu.Lock()
	r.listener = ln
	r.server = srv
	r.tsServer = tsServer
	r.url = url
	r.window = dedupe.NewWindow(r.cfg.DedupeTTL, dedupeCapacity, dedupeSweepEvery)
	r.served = served
	r.state = StateListening
	r.mu.Unlock()

	go func() {
		defer close(served)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.logger.Error("webhook server error", "error", err)
			r.bus.Emit(events.Error{Source: "webhook", Err: err})
		}
	}()

	r.logger.Info("webhook receiver listening", "addr", ln.Addr().String(), "url", url)
	return nil
}

// Stop shuts the listener down. Stopping a stopped receiver is a no-op.
func (r *Receiver) Stop(ctx context.Context) error {
	r.mu.Lock()
	if r.state != StateListening {
		r.mu.Unlock()
		return nil
	}
	srv, tsServer, window, served := r.server, r.tsServer, r.window, r.served
	r.server, r.tsServer, r.window, r.listener, r.url = nil, nil, nil, nil, ""
	r.state = StateStopped
	r.mu.Unlock()

	var errs []error
	if err := srv.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("shutting down webhook server: %w", err))
		_ = srv.Close()
	}
	<-served
	window.Close()
	if tsServer != nil {
		if err := tsServer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing tailscale node: %w", err))
		}
	}

	r.logger.Info("webhook receiver stopped")
	return errors.Join(errs...)
}

func (r *Receiver) listen(ctx context.Context) (net.Listener, string, *tsnet.Server, error) {
	if r.cfg.Tailscale.Enabled {
		return r.listenTailscale(ctx)
	}

	ln, err := net.Listen("tcp", net.JoinHostPort(r.cfg.Host, strconv.Itoa(r.cfg.Port)))
	if err != nil {
		return nil, "", nil, fmt.Errorf("binding webhook listener: %w", err)
	}

	host := r.cfg.Host
	if ip := net.ParseIP(host); ip != nil && ip.IsUnspecified() {
		host = "127.0.0.1"
	}
	port := ln.Addr().(*net.TCPAddr).Port
	url := "http://" + net.JoinHostPort(host, strconv.Itoa(port)) + r.cfg.Path
	return ln, url, nil, nil
}

// ServeHTTP handles one delivery. Only POST to the configured path is served.
func (r *Receiver) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if req.URL.Path != r.cfg.Path || req.Method != http.MethodPost {
		http.NotFound(w, req)
		return
	}
	ctx := req.Context()

	body, err := io.ReadAll(http.MaxBytesReader(w, req.Body, maxBodySize))
	if err != nil {
		r.logger.Warn("reading webhook body failed", "error", err)
		r.observer.ObserveWebhook(ctx, "", "invalid")
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if !verifySignature(r.cfg.Secret, req.Header.Get(SignatureHeader), body) {
		r.logger.Warn("webhook signature missing or invalid", "remote_addr", req.RemoteAddr)
		r.observer.ObserveWebhook(ctx, "", "rejected")
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	env, err := ParseEnvelope(body)
	if err != nil {
		r.logger.Warn("invalid webhook body", "error", err)
		r.observer.ObserveWebhook(ctx, "", "invalid")
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	deliveryID := req.Header.Get(DeliveryHeader)
	if deliveryID == "" {
		deliveryID = env.ID
	}
	// Only recognized deliveries enter the window so a redelivered
	// unrecognized one is answered the same way as the first.
	kind, recognized := events.NoteKindForChange(env.Event)
	if recognized && r.isDuplicate(deliveryID) {
		r.logger.Debug("duplicate webhook delivery", "delivery_id", deliveryID)
		r.observer.ObserveWebhook(ctx, env.Event, "duplicate")
		writeJSON(w, http.StatusOK, map[string]bool{"success": true, "duplicate": true})
		return
	}

	if recognized {
		r.bus.Emit(events.NoteChange{Change: kind, Data: env.Data})
	}
	r.bus.Emit(events.WebhookReceived{
		Event:      env.Event,
		Data:       env.Data,
		DeliveryID: deliveryID,
		Raw:        json.RawMessage(body),
	})
	r.record(ctx, env, deliveryID, recognized, body)

	if !recognized {
		r.logger.Warn("unrecognized webhook event", "event", env.Event, "delivery_id", deliveryID)
		r.observer.ObserveWebhook(ctx, env.Event, "unrecognized")
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	r.logger.Debug("webhook accepted", "event", env.Event, "delivery_id", deliveryID)
	r.observer.ObserveWebhook(ctx, env.Event, "accepted")
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (r *Receiver) isDuplicate(deliveryID string) bool {
	r.mu.Lock()
	window := r.window
	r.mu.Unlock()
	if window == nil {
		return false
	}
	return window.Seen(deliveryID)
}

// record writes to the journal. Failures are logged and do not affect the response.
func (r *Receiver) record(ctx context.Context, env *Envelope, deliveryID string, recognized bool, body []byte) {
	if r.journal == nil {
		return
	}
	err := r.journal.Record(ctx, &store.WebhookRecord{
		ID:         uuid.New().String(),
		DeliveryID: deliveryID,
		Event:      env.Event,
		Recognized: recognized,
		Payload:    json.RawMessage(body),
	})
	if err != nil {
		r.logger.Warn("journaling webhook failed", "error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
