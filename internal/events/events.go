// ABOUTME: Closed set of application events and their typed payloads
// ABOUTME: Payload is a sealed interface so every event kind maps to exactly one payload type

package events

import (
	"encoding/json"
	"time"
)

// Kind names an application event.
type Kind string

const (
	KindConnected       Kind = "connected"
	KindDisconnected    Kind = "disconnected"
	KindError           Kind = "error"
	KindNoteCreated     Kind = "noteCreated"
	KindNoteUpdated     Kind = "noteUpdated"
	KindNoteDeleted     Kind = "noteDeleted"
	KindWebhookReceived Kind = "webhookReceived"
)

// AllKinds lists every kind in a stable order.
var AllKinds = []Kind{
	KindConnected,
	KindDisconnected,
	KindError,
	KindNoteCreated,
	KindNoteUpdated,
	KindNoteDeleted,
	KindWebhookReceived,
}

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	for _, known := range AllKinds {
		if k == known {
			return true
		}
	}
	return false
}

// Event is one emitted occurrence.
type Event struct {
	ID      string
	Kind    Kind
	Time    time.Time
	Payload Payload
}

// Payload is implemented only by the payload types in this package.
type Payload interface {
	Kind() Kind
	sealed()
}

// Connected is emitted once the bridge is ready.
type Connected struct {
	ProjectID         string
	WebhookURL        string
	WebhookRegistered bool
}

// Disconnected is emitted after the bridge has released its resources.
type Disconnected struct {
	Reason string
}

// Error reports a non-fatal failure in a background flow.
type Error struct {
	Source string
	Err    error
}

// NoteChange carries the domain object of a created, updated or deleted note.
type NoteChange struct {
	Change Kind
	Data   json.RawMessage
}

// WebhookReceived carries the full inbound envelope, recognized or not.
type WebhookReceived struct {
	Event      string
	Data       json.RawMessage
	DeliveryID string
	Raw        json.RawMessage
}

func (Connected) Kind() Kind       { return KindConnected }
func (Disconnected) Kind() Kind    { return KindDisconnected }
func (Error) Kind() Kind           { return KindError }
func (n NoteChange) Kind() Kind    { return n.Change }
func (WebhookReceived) Kind() Kind { return KindWebhookReceived }

func (Connected) sealed()       {}
func (Disconnected) sealed()    {}
func (Error) sealed()           {}
func (NoteChange) sealed()      {}
func (WebhookReceived) sealed() {}

// NoteKindForChange maps a webhook event name to its note event kind.
func NoteKindForChange(change string) (Kind, bool) {
	switch change {
	case "created":
		return KindNoteCreated, true
	case "updated":
		return KindNoteUpdated, true
	case "deleted":
		return KindNoteDeleted, true
	}
	return "", false
}
