// Package api hosts the HTTP server, middleware, and handlers. Notable routes:
//   - GET /healthz and /readyz for probes, GET /metrics for Prometheus.
//   - /user, /user/login, /user/logout and /user/register for accounts.
//   - /scrapers/list, /scrapers/start and /scrapers/history for jobs.
//   - GET /output/{filename} to download finished artifacts.
//   - GET /ws for live progress of the session's scraper.
//
// Failures are reported as {"error": {"code": N, "msg": "..."}} with a stable
// numeric code; see the Code constants.
package api
