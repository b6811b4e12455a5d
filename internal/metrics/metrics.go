// Package metrics exposes Prometheus collectors for the listing crawler.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	crawlerPagesTotal          *prometheus.CounterVec
	crawlerBytesTotal          *prometheus.CounterVec
	crawlerStopsTotal          *prometheus.CounterVec
	storeRecordsTotal          *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	rateLimitDelaySeconds      *prometheus.HistogramVec
	robotsFallbackTotal        *prometheus.CounterVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		crawlerPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_pages_total",
				Help: "Total number of listing pages requested, labeled by source and outcome.",
			},
			[]string{"source", "outcome"},
		)

		crawlerBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_bytes_total",
				Help: "Total number of markup bytes fetched, labeled by source.",
			},
			[]string{"source"},
		)

		crawlerStopsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_stops_total",
				Help: "Total number of finished crawls, labeled by source and stop reason.",
			},
			[]string{"source", "reason"},
		)

		storeRecordsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "store_records_total",
				Help: "Total number of committed candidates, labeled by kind and result (inserted/skipped).",
			},
			[]string{"kind", "result"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15, 60},
			},
			[]string{"method", "route"},
		)

		rateLimitDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "crawler_rate_limit_delay_seconds",
				Help:    "Time fetches spent waiting on the per-site rate limiter.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
			},
			[]string{"site"},
		)

		robotsFallbackTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_robots_fallback_total",
				Help: "Total number of robots.txt lookups answered with allow-all after repeated transient failures.",
			},
			[]string{"site", "reason"},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	Init()
	return promhttp.Handler()
}

// ObservePage records one page fetch attempt.
func ObservePage(source, outcome string, bytesFetched int) {
	Init()
	source = labelOrUnknown(source)
	crawlerPagesTotal.WithLabelValues(source, outcome).Inc()
	if bytesFetched > 0 {
		crawlerBytesTotal.WithLabelValues(source).Add(float64(bytesFetched))
	}
}

// ObserveCrawlStop records why a crawl finished.
func ObserveCrawlStop(source, reason string) {
	Init()
	crawlerStopsTotal.WithLabelValues(labelOrUnknown(source), labelOrUnknown(reason)).Inc()
}

// ObserveCommit records the outcome of one writer batch.
func ObserveCommit(kind string, inserted, skipped int) {
	Init()
	kind = labelOrUnknown(kind)
	if inserted > 0 {
		storeRecordsTotal.WithLabelValues(kind, "inserted").Add(float64(inserted))
	}
	if skipped > 0 {
		storeRecordsTotal.WithLabelValues(kind, "skipped").Add(float64(skipped))
	}
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveRateLimitDelay records how long a fetch waited for its site's rate limiter.
func ObserveRateLimitDelay(site string, delay time.Duration) {
	Init()
	rateLimitDelaySeconds.WithLabelValues(labelOrUnknown(site)).Observe(delay.Seconds())
}

// ObserveRobotsFallback records a robots.txt lookup that gave up and allowed the crawl.
func ObserveRobotsFallback(site, reason string) {
	Init()
	robotsFallbackTotal.WithLabelValues(labelOrUnknown(site), labelOrUnknown(reason)).Inc()
}

func labelOrUnknown(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
