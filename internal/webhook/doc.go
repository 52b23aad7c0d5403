// Package webhook receives change notifications pushed by the remote
// knowledge API and re-emits them on the event bus.
//
// The receiver accepts only POST on its configured path. A body is read in
// full before parsing, so a delivery either yields its events or none:
//
//   - recognized event (created, updated, deleted): a note event, then a
//     webhookReceived event, then 200 {"success":true}
//   - parseable envelope with another event name: a webhookReceived event
//     only, then 400
//   - unparseable body: no events, 400 with an empty body
//
// Deliveries repeating an X-Webhook-Id seen within the dedupe TTL are
// acknowledged without emitting anything.
package webhook
