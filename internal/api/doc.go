// Package api hosts the HTTP server, middleware, and REST handlers. Notable routes:
//   - POST /scrape and /scrapenew trigger a full or incremental job crawl.
//   - GET /jobs and /jobs/{id} read stored job records.
//   - POST /news/scrape, GET /news and /news/{id} do the same for news.
//   - GET /healthz, /readyz and /metrics for probes and Prometheus scraping.
package api
