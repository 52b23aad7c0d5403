// Package telemetry wires OpenTelemetry for knowledge-bridge.
//
// Setup builds a tracer provider (exporting over OTLP/HTTP when an endpoint
// is configured) and a meter provider read by a manual reader. The Observer
// is handed to the API client, the router and the webhook receiver; Snapshot
// turns the collected metrics into a flat map for the health resource.
package telemetry
