// Package api hosts the status HTTP server for a running crawl. Routes:
//   - GET /healthz and /readyz for liveness and readiness probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/status for the runner's latest batch summary and counters.
package api
