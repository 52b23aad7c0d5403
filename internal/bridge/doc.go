// Package bridge assembles and runs one knowledge-bridge process.
//
// New resolves the project from the configured credential, builds the API
// client, registers the five capability providers, and prepares the
// resource catalog, event bus, optional webhook journal, webhook receiver
// and protocol server. Nothing listens until Connect.
//
// Lifecycle:
//
//	b, err := bridge.New(ctx, cfg, logger)
//	err = b.Run(ctx) // Connect, serve stdio or HTTP, Shutdown
//
// Connect starts the webhook receiver and registers it with the remote API.
// Registration is best-effort: on failure the bridge keeps serving tools and
// retries on webhook.reregister_schedule. Disconnect and Shutdown are
// idempotent.
package bridge
