// Package outbox is the durable-on-unload queue between engagement sessions
// and the backend collectors. Emit never blocks the caller; a background
// goroutine batches envelopes and fans them out to pluggable sinks such as the
// HTTP beacon collector, Pub/Sub, Redis, Prometheus or an NDJSON archive.
// Close drains whatever is still queued, so a payload handed over just before
// a page disappears is still delivered before the process exits.
package outbox
