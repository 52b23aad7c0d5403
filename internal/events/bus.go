// ABOUTME: In-memory fan-out of application events to subscribers
// ABOUTME: Subscribers pick kinds to receive; slow subscribers drop events instead of blocking emitters

package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

const subscriberBufferSize = 64

type subscription struct {
	ch    chan Event
	done  chan struct{} // closed on removal; releases the context watcher
	kinds map[Kind]bool // empty means every kind
}

func (s *subscription) wants(k Kind) bool {
	return len(s.kinds) == 0 || s.kinds[k]
}

// Bus delivers each emitted event to every matching subscriber exactly once.
type Bus struct {
	mu     sync.RWMutex
	subs   map[string]*subscription
	closed bool
	logger *slog.Logger

	watchers sync.WaitGroup
}

// NewBus creates a bus. Pass nil logger for default.
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		subs:   make(map[string]*subscription),
		logger: logger.With("component", "events"),
	}
}

// Subscribe registers for the given kinds, or every kind when none are
// given. The subscription ends when ctx is cancelled or Unsubscribe is
// called, and the returned channel is then closed.
func (b *Bus) Subscribe(ctx context.Context, kinds ...Kind) (<-chan Event, string) {
	subID := uuid.New().String()
	sub := &subscription{
		ch:    make(chan Event, subscriberBufferSize),
		done:  make(chan struct{}),
		kinds: make(map[Kind]bool, len(kinds)),
	}
	for _, k := range kinds {
		sub.kinds[k] = true
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(sub.ch)
		return sub.ch, subID
	}
	b.subs[subID] = sub
	b.mu.Unlock()

	b.logger.Debug("subscriber added", "sub_id", subID, "kinds", kinds)

	b.watchers.Add(1)
	go func() {
		defer b.watchers.Done()
		select {
		case <-ctx.Done():
			b.Unsubscribe(subID)
		case <-sub.done:
		}
	}()

	return sub.ch, subID
}

// Emit wraps payload in an Event and delivers it. It never blocks.
func (b *Bus) Emit(payload Payload) Event {
	ev := Event{
		ID:      uuid.New().String(),
		Kind:    payload.Kind(),
		Time:    time.Now().UTC(),
		Payload: payload,
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return ev
	}
	for subID, sub := range b.subs {
		if !sub.wants(ev.Kind) {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			b.logger.Warn("subscriber channel full, dropping event",
				"sub_id", subID,
				"kind", ev.Kind,
				"event_id", ev.ID)
		}
	}
	return ev
}

// Unsubscribe removes a subscriber and closes its channel.
// It is a no-op for unknown IDs.
func (b *Bus) Unsubscribe(subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub, ok := b.subs[subID]
	if !ok {
		return
	}
	delete(b.subs, subID)
	close(sub.done)
	close(sub.ch)
	b.logger.Debug("subscriber removed", "sub_id", subID)
}

// SubscriberCount returns the number of active subscriptions.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close closes every subscriber channel. Later emits are dropped.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for subID, sub := range b.subs {
		close(sub.done)
		close(sub.ch)
		delete(b.subs, subID)
	}
}
