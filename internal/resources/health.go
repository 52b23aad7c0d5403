// ABOUTME: Health document built from a live probe of the remote API
// ABOUTME: A failed probe reports degraded; building the document never fails

package resources

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/2389/knowledge-bridge/internal/apiclient"
)

// Health statuses.
const (
	StatusHealthy  = "healthy"
	StatusDegraded = "degraded"
)

// APIHealth is the probe outcome.
type APIHealth struct {
	Reachable bool   `json:"reachable"`
	Status    int    `json:"status,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

// JournalHealth summarises the webhook journal.
type JournalHealth struct {
	Events      int64            `json:"events"`
	ByEvent     map[string]int64 `json:"by_event,omitempty"`
	LastEventAt string           `json:"last_event_at,omitempty"`
	Error       string           `json:"error,omitempty"`
}

// HealthDoc is the system health resource.
type HealthDoc struct {
	Status    string             `json:"status"`
	ProjectID string             `json:"project_id"`
	API       APIHealth          `json:"api"`
	Webhook   WebhookStatus      `json:"webhook"`
	Journal   *JournalHealth     `json:"journal,omitempty"`
	Metrics   map[string]float64 `json:"metrics,omitempty"`
	Timestamp string             `json:"timestamp"`
}

// Health probes the remote API and assembles the health document. The
// status is degraded when the API is unreachable or an enabled webhook is
// not registered.
func (c *Catalog) Health(ctx context.Context) (doc *HealthDoc) {
	doc = &HealthDoc{
		Status:    StatusHealthy,
		ProjectID: c.cfg.Session.ProjectID,
		Timestamp: c.now().UTC().Format(time.RFC3339),
	}
	defer func() {
		if rec := recover(); rec != nil {
			c.logger.Error("health check panicked", "panic", rec)
			doc.Status = StatusDegraded
			if doc.API.Error == "" {
				doc.API.Error = fmt.Sprintf("internal error: %v", rec)
			}
		}
	}()

	doc.API = c.probe(ctx)
	doc.Webhook = c.webhook()
	doc.Journal = c.journal(ctx)
	doc.Metrics = c.metrics(ctx)

	if !doc.API.Reachable || (doc.Webhook.Enabled && !doc.Webhook.Registered) {
		doc.Status = StatusDegraded
	}
	return doc
}

func (c *Catalog) probe(ctx context.Context) APIHealth {
	if c.cfg.Prober == nil {
		return APIHealth{Error: "no API client configured"}
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.ProbeTimeout)
	defer cancel()

	start := c.now()
	report, err := c.cfg.Prober.Health(ctx)
	if err != nil {
		c.logger.Warn("health probe failed", "error", err)
		h := APIHealth{LatencyMS: time.Since(start).Milliseconds(), Error: err.Error()}
		var apiErr *apiclient.APIError
		if errors.As(err, &apiErr) {
			h.Status = apiErr.Status
		}
		return h
	}
	return APIHealth{
		Reachable: true,
		Status:    report.Status,
		LatencyMS: report.Latency.Milliseconds(),
	}
}

func (c *Catalog) journal(ctx context.Context) *JournalHealth {
	if c.cfg.Journal == nil {
		return nil
	}
	stats, err := c.cfg.Journal.Stats(ctx)
	if err != nil {
		return &JournalHealth{Error: err.Error()}
	}
	h := &JournalHealth{Events: stats.Total, ByEvent: stats.ByEvent}
	if stats.LastReceivedAt != nil {
		h.LastEventAt = stats.LastReceivedAt.UTC().Format(time.RFC3339)
	}
	return h
}

func (c *Catalog) metrics(ctx context.Context) map[string]float64 {
	if c.cfg.Metrics == nil {
		return nil
	}
	snapshot, err := c.cfg.Metrics(ctx)
	if err != nil {
		c.logger.Debug("metrics snapshot failed", "error", err)
		return nil
	}
	return snapshot
}
