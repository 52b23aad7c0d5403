// Package apiclient is the outbound HTTP channel to the remote knowledge API.
//
// Every request carries the credential and a fixed client-id header. Each
// attempt has its own timeout; a failed attempt n is followed by a wait of
// RetryDelay*n before attempt n+1, up to Retries extra attempts. All failure
// classes are retried alike, 4xx included. A 2xx body that claims to be JSON
// but does not parse fails straight away with MalformedResponseError.
package apiclient
