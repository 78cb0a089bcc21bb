// Package api hosts the relay's HTTP server. Notable routes:
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/sessions/ws for pages streaming signals over a WebSocket.
//   - POST /v1/sessions, POST /v1/sessions/{session_id}/signals and
//     DELETE /v1/sessions/{session_id} for pages that cannot hold a socket.
package api
