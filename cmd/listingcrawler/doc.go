// Package main hosts the listing crawler service entrypoint.
//
// Architecture overview:
//   - HTTP API: internal/api.Server exposes health, metrics, scrape triggers and read endpoints for stored
//     jobs and news. Scrapes run synchronously inside the request, bounded by server.request_timeout_seconds.
//   - Crawl engine: internal/crawler.Service owns one Driver per listing and a deduplicating Writer. Crawls of
//     the same source are serialized; different sources may run at the same time.
//   - Fetch pipeline: job pages are fetched statically with the Colly-based fetcher. The news front page needs
//     JavaScript and is rendered with the Chromedp fetcher, which waits for the marker selector and a short
//     settle delay before snapshotting the DOM. Setting crawler.respect_robots makes the static fetcher
//     refuse pages the site's robots.txt disallows.
//   - Commits: each page's new records are committed before the next page is fetched, so an incremental
//     crawl stops as soon as the listing repeats itself.
//   - Persistence & fanout: records go to Postgres when db.dsn is set, otherwise to an in-memory store. Raw
//     page markup can be archived (memory/local/GCS) and every inserted record can be announced on Pub/Sub.
//   - Configuration & plumbing: Viper populates config from env/files; zap provides structured logging;
//     Prometheus metrics are exported via the metrics middleware and /metrics handler. With tracing.enabled,
//     OpenTelemetry spans cover each request and scrape, and their context rides along on Pub/Sub messages.
//
// Quick checklist:
//   - Configure env vars: LISTING_SERVER_PORT, LISTING_DB_DSN, LISTING_HEADLESS_ENABLED, LISTING_NEWS_ENABLED,
//     LISTING_ARCHIVE_BACKEND, LISTING_PUBSUB_BACKEND and LISTING_PUBSUB_PROJECT_ID as needed.
//   - Run locally: go run ./cmd/listingcrawler -config config.yaml (or rely solely on env overrides).
//   - Trigger: curl -X POST localhost:8080/scrapenew, then curl localhost:8080/jobs?limit=10.
package main
