// ABOUTME: Journal interface and record types for accepted webhook deliveries
// ABOUTME: Lets operators see what the remote API pushed even after the events were consumed

package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrClosed is returned by a journal after Close.
var ErrClosed = errors.New("journal closed")

// WebhookRecord is one inbound webhook envelope that parsed successfully.
type WebhookRecord struct {
	ID         string
	DeliveryID string
	Event      string
	// Recognized is false for envelopes whose event name is not a note change.
	Recognized bool
	Payload    json.RawMessage
	ReceivedAt time.Time
}

// JournalStats summarises the journal.
type JournalStats struct {
	Total          int64
	ByEvent        map[string]int64
	LastReceivedAt *time.Time
}

// Journal persists webhook deliveries.
type Journal interface {
	Record(ctx context.Context, rec *WebhookRecord) error
	Recent(ctx context.Context, limit int) ([]*WebhookRecord, error)
	Stats(ctx context.Context) (*JournalStats, error)
	// Prune deletes records received before cutoff and returns how many went.
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
	Close() error
}
