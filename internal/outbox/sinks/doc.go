// Package sinks implements concrete outbox consumers: the HTTP beacon
// collector, Pub/Sub and Redis analytics integrations, Prometheus metrics, a
// Postgres read-metrics writer, an NDJSON archive, and structured logging.
// Each sink satisfies outbox.Sink and is safe for repeated Consume/Close cycles.
package sinks
