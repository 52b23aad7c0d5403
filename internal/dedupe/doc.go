// Package dedupe tracks webhook delivery IDs so a delivery the remote API
// retries is only turned into events once.
package dedupe
