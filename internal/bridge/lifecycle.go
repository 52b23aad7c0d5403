// ABOUTME: Connect and Disconnect: webhook listener, best-effort registration and scheduled jobs
// ABOUTME: Registration failures degrade the bridge but never fail Connect

package bridge

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/2389/knowledge-bridge/internal/apiclient"
	"github.com/2389/knowledge-bridge/internal/events"
)

const (
	// JournalRetention is how long journal records are kept.
	JournalRetention = 7 * 24 * time.Hour

	journalPruneSchedule = "@hourly"
	jobTimeout           = 30 * time.Second
)

// Connect starts the webhook receiver, registers it with the remote API and
// emits a connected event. A failed registration is logged, reported as an
// error event and retried on the re-registration schedule. Connecting a
// connected bridge is a no-op.
func (b *Bridge) Connect(ctx context.Context) error {
	b.lifecycle.Lock()
	defer b.lifecycle.Unlock()

	b.mu.Lock()
	if b.connected {
		b.mu.Unlock()
		return nil
	}
	b.mu.Unlock()

	var url string
	var registered bool
	if b.receiver != nil {
		if err := b.receiver.Start(ctx); err != nil {
			return fmt.Errorf("starting webhook receiver: %w", err)
		}
		url = b.receiver.URL()
		registered = b.register(ctx, url)
	}

	scheduler, reregisterJob, err := b.startScheduler(url, registered)
	if err != nil {
		if b.receiver != nil {
			_ = b.receiver.Stop(ctx)
		}
		return err
	}

	b.mu.Lock()
	b.connected = true
	b.registered = registered
	if registered {
		b.registeredURL = url
	}
	b.scheduler = scheduler
	b.reregisterJob = reregisterJob
	b.mu.Unlock()

	b.bus.Emit(events.Connected{
		ProjectID:         b.session.ProjectID,
		WebhookURL:        url,
		WebhookRegistered: registered,
	})
	b.logger.Info("bridge connected", "project_id", b.session.ProjectID, "webhook_url", url, "webhook_registered", registered)
	return nil
}

// register asks the remote API to deliver to url and reports success.
func (b *Bridge) register(ctx context.Context, url string) bool {
	err := b.client.RegisterWebhook(ctx, apiclient.WebhookRegistration{
		URL:     url,
		Events:  b.config.Webhook.Events,
		Timeout: b.config.Webhook.RemoteTimeout,
		Secret:  b.config.Webhook.Secret,
	})
	if err != nil {
		b.logger.Warn("webhook registration failed, continuing without push events", "url", url, "error", err)
		b.bus.Emit(events.Error{Source: "webhook_registration", Err: err})
		return false
	}
	return true
}

// startScheduler schedules the journal prune and, when registration
// failed, the re-registration job. It returns a nil scheduler when there
// is nothing to run.
func (b *Bridge) startScheduler(url string, registered bool) (*cron.Cron, cron.EntryID, error) {
	needReregister := url != "" && !registered && b.config.Webhook.ReregisterSchedule != ""
	if b.journal == nil && !needReregister {
		return nil, 0, nil
	}

	c := cron.New(cron.WithLocation(time.UTC), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))

	if b.journal != nil {
		if _, err := c.AddFunc(journalPruneSchedule, b.pruneJournal); err != nil {
			return nil, 0, fmt.Errorf("scheduling journal prune: %w", err)
		}
	}

	var id cron.EntryID
	if needReregister {
		var err error
		id, err = c.AddFunc(b.config.Webhook.ReregisterSchedule, func() { b.reregister(url) })
		if err != nil {
			return nil, 0, fmt.Errorf("scheduling webhook re-registration: %w", err)
		}
		b.logger.Info("webhook re-registration scheduled", "schedule", b.config.Webhook.ReregisterSchedule)
	}

	c.Start()
	return c, id, nil
}

// reregister retries a failed registration and cancels itself on success.
func (b *Bridge) reregister(url string) {
	b.mu.Lock()
	if !b.connected || b.registered {
		b.mu.Unlock()
		return
	}
	b.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	if err := b.client.RegisterWebhook(ctx, apiclient.WebhookRegistration{
		URL:     url,
		Events:  b.config.Webhook.Events,
		Timeout: b.config.Webhook.RemoteTimeout,
		Secret:  b.config.Webhook.Secret,
	}); err != nil {
		b.logger.Debug("webhook re-registration failed", "url", url, "error", err)
		return
	}

	b.mu.Lock()
	if !b.connected {
		b.mu.Unlock()
		// Disconnect ran while the request was in flight and saw nothing to remove.
		if err := b.client.UnregisterWebhook(ctx, url); err != nil {
			b.logger.Warn("webhook unregistration failed", "url", url, "error", err)
		}
		return
	}
	b.registered = true
	b.registeredURL = url
	if b.scheduler != nil {
		b.scheduler.Remove(b.reregisterJob)
	}
	b.mu.Unlock()
	b.logger.Info("webhook registered on retry", "url", url)
}

func (b *Bridge) pruneJournal() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	n, err := b.journal.Prune(ctx, time.Now().Add(-JournalRetention))
	if err != nil {
		b.logger.Warn("journal prune failed", "error", err)
		return
	}
	if n > 0 {
		b.logger.Info("journal pruned", "removed", n)
	}
}

// Disconnect unregisters the webhook, stops the receiver and scheduled
// jobs, and emits a disconnected event. Unregistration is best-effort.
// Disconnecting a disconnected bridge is a no-op.
func (b *Bridge) Disconnect(ctx context.Context) error {
	b.lifecycle.Lock()
	defer b.lifecycle.Unlock()

	b.mu.Lock()
	if !b.connected {
		b.mu.Unlock()
		return nil
	}
	scheduler := b.scheduler
	b.connected = false
	b.scheduler = nil
	b.mu.Unlock()

	// Drain running jobs before reading the registration state so an
	// in-flight re-registration is either seen here or undone by itself.
	if scheduler != nil {
		select {
		case <-scheduler.Stop().Done():
		case <-ctx.Done():
		}
	}

	b.mu.Lock()
	registered, url := b.registered, b.registeredURL
	b.registered = false
	b.registeredURL = ""
	b.mu.Unlock()

	if registered {
		if err := b.client.UnregisterWebhook(ctx, url); err != nil {
			b.logger.Warn("webhook unregistration failed", "url", url, "error", err)
		}
	}

	var err error
	if b.receiver != nil {
		err = b.receiver.Stop(ctx)
	}

	b.bus.Emit(events.Disconnected{Reason: "disconnect requested"})
	b.logger.Info("bridge disconnected")
	return err
}
