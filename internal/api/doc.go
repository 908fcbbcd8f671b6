// Package api hosts the operator HTTP interface. Routes:
//   - GET /healthz and /readyz for probes; readyz round-trips the task store.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/progress for the harvest progress report.
//   - GET /v1/progress/zones for the report with per-zone breakdown.
package api
