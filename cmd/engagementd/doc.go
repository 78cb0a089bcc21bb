// Package main hosts the engagement relay entrypoint.
//
// Architecture overview:
//   - HTTP API: internal/api.Server exposes health, metrics, and session endpoints. Pages either hold a WebSocket
//     (GET /v1/sessions/ws) or use the REST routes to mount, signal, and tear down a session.
//   - Sessions: internal/pagehost mounts one engagement.Session per page and replays the page's signals (scroll
//     geometry, visibility, unload, web vitals, variant assignments) into it. An idle reaper tears down pages that
//     went quiet.
//   - Delivery: internal/dispatcher sends the view-count request fire-and-forget through a per-endpoint rate limiter
//     and queues read-metrics beacons and analytics events in the outbox Hub, which batches them to the configured
//     sinks (HTTP collector, Postgres, Pub/Sub, Redis, NDJSON archive, Prometheus, log).
//   - Configuration & plumbing: Viper populates config from env/files; zap provides structured logging; Prometheus
//     metrics are exported via the metrics middleware and /metrics handler; OpenTelemetry spans cover outbox flushes.
//
// Operational notes:
//   - Shutdown: SIGINT/SIGTERM stop the HTTP server, tear down every mounted session (each gets its last read-metrics
//     attempt), wait for in-flight fire-and-forget requests, and drain the outbox before clients close.
//   - Env vars: ENGAGEMENT_SERVER_PORT, ENGAGEMENT_COLLECTOR_BASE_URL, ENGAGEMENT_SINKS_*, ENGAGEMENT_POLICY_*.
//   - Run locally: go run ./cmd/engagementd -config config.yaml (or rely solely on env overrides).
package main
