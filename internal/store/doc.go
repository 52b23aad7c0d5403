// Package store persists accepted webhook deliveries in a SQLite journal.
//
// The journal is optional. When configured, the webhook receiver records every
// envelope that parsed, and the health resource reports its totals.
package store
