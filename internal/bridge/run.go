// ABOUTME: Run loop: connect, serve the configured protocol transport, then shut down
// ABOUTME: The HTTP transport also exposes a plain liveness endpoint

package bridge

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/2389/knowledge-bridge/internal/events"
)

const shutdownTimeout = 5 * time.Second

// Run connects, serves the protocol until ctx is done or the transport
// ends (stdin closed), and then shuts the bridge down.
func (b *Bridge) Run(ctx context.Context) error {
	if err := b.Connect(ctx); err != nil {
		shutdownErr := b.gracefulShutdown()
		return errors.Join(err, shutdownErr)
	}

	logCtx, stopLogging := context.WithCancel(ctx)
	go b.logEvents(logCtx)

	var serveErr error
	switch b.config.MCP.Transport {
	case "http":
		serveErr = b.serveHTTP(ctx)
	default:
		serveErr = b.server.ServeStdio(ctx, b.stdin, b.stdout)
	}
	stopLogging()

	if errors.Is(serveErr, context.Canceled) {
		serveErr = nil
	}

	shutdownErr := b.gracefulShutdown()
	if serveErr != nil {
		return serveErr
	}
	return shutdownErr
}

// gracefulShutdown uses a fresh context since the run context is usually
// already cancelled.
func (b *Bridge) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return b.Shutdown(ctx)
}

// Handler returns the HTTP handler used by the http transport.
func (b *Bridge) Handler() http.Handler {
	mux := http.NewServeMux()
	b.server.RegisterRoutes(mux)
	mux.HandleFunc("/health", b.handleHealth)
	return mux
}

func (b *Bridge) serveHTTP(ctx context.Context) error {
	ln, err := net.Listen("tcp", b.config.MCP.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", b.config.MCP.HTTPAddr, err)
	}

	srv := &http.Server{
		Handler:           b.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		b.logger.Info("serving MCP over HTTP", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("MCP HTTP server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down MCP HTTP server: %w", err)
	}
	return nil
}

// handleHealth returns 200 OK while the process is alive. The remote API
// status lives in the health resource.
func (b *Bridge) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// logEvents writes every bus event to the log until ctx is done.
func (b *Bridge) logEvents(ctx context.Context) {
	ch, _ := b.bus.Subscribe(ctx)
	for ev := range ch {
		switch p := ev.Payload.(type) {
		case events.NoteChange:
			b.logger.Info("note changed", "kind", ev.Kind, "event_id", ev.ID)
		case events.WebhookReceived:
			b.logger.Debug("webhook received", "event", p.Event, "delivery_id", p.DeliveryID)
		case events.Error:
			b.logger.Warn("background error", "source", p.Source, "error", p.Err)
		default:
			b.logger.Debug("event", "kind", ev.Kind, "event_id", ev.ID)
		}
	}
}
