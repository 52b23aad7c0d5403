// Package resources serves the bridge's read-only resource documents.
//
// Three URIs are available:
//
//   - knowledge://project/current  project id, API root and webhook status
//   - knowledge://system/health    live probe of the remote API
//   - knowledge://portable/info    providers, tools and capabilities
//
// Every document is JSON text. Reading the health resource never fails:
// an unreachable API is reported with status "degraded".
package resources
