// Package api hosts the operator status server that runs alongside a crawl.
// Routes:
//   - GET /healthz and /readyz for probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/run for live task counters and the most recent events.
//   - GET /v1/report for the report of the records collected so far, as
//     JSON, or as HTML or Markdown with ?format=html|md.
package api
