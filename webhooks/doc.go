// Package webhooks receives signed Shopify notifications.
//
// A delivery moves through fixed stages: request gate, raw body capture,
// signature verification, event decoding and idempotent ingestion. The raw
// body is read once, before anything parses it, and the signature is computed
// over those exact bytes. Effects are dispatched only after the response has
// been decided.
package webhooks
