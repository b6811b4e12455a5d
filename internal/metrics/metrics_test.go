package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSanitizeSite(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard http", "http://example.com/path", "example.com"},
		{"standard https", "https://Www.Keejob.com/offres-emploi/", "www.keejob.com"},
		{"no scheme", "example.com/path", "example.com"},
		{"host with port", "example.com:8080", "example.com"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeSite(tc.input); got != tc.expected {
				t.Errorf("SanitizeSite(%q) = %q; want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestInitIsIdempotent(t *testing.T) {
	Init()
	first := crawlerPagesTotal
	Init()

	if crawlerPagesTotal == nil || storeRecordsTotal == nil ||
		httpRequestsTotal == nil || httpRequestDurationSeconds == nil {
		t.Fatal("Init() did not initialize metrics collectors")
	}
	if first != crawlerPagesTotal {
		t.Fatal("Init() replaced existing collectors")
	}
}

func TestObservePage(t *testing.T) {
	ObservePage("metrics-test-page", "fetched", 128)
	ObservePage("metrics-test-page", "failed", 0)

	if val := testutil.ToFloat64(crawlerPagesTotal.WithLabelValues("metrics-test-page", "fetched")); val != 1 {
		t.Errorf("expected 1 fetched page, got %f", val)
	}
	if val := testutil.ToFloat64(crawlerPagesTotal.WithLabelValues("metrics-test-page", "failed")); val != 1 {
		t.Errorf("expected 1 failed page, got %f", val)
	}
	if val := testutil.ToFloat64(crawlerBytesTotal.WithLabelValues("metrics-test-page")); val != 128 {
		t.Errorf("expected 128 bytes, got %f", val)
	}
}

func TestObserveCommitAndStop(t *testing.T) {
	ObserveCommit("metrics-test-kind", 3, 2)
	ObserveCommit("metrics-test-kind", 0, 0)
	ObserveCrawlStop("metrics-test-stop", "")

	if val := testutil.ToFloat64(storeRecordsTotal.WithLabelValues("metrics-test-kind", "inserted")); val != 3 {
		t.Errorf("expected 3 inserted, got %f", val)
	}
	if val := testutil.ToFloat64(storeRecordsTotal.WithLabelValues("metrics-test-kind", "skipped")); val != 2 {
		t.Errorf("expected 2 skipped, got %f", val)
	}
	if val := testutil.ToFloat64(crawlerStopsTotal.WithLabelValues("metrics-test-stop", "unknown")); val != 1 {
		t.Errorf("expected empty reason to be labeled unknown, got %f", val)
	}
}

// Fuzz test for SanitizeSite.
func FuzzSanitizeSite(f *testing.F) {
	testcases := []string{"http://example.com", "https://www.mosaiquefm.net/ar/actualites/1", "ftp://example.com"}
	for _, tc := range testcases {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		sanitized := SanitizeSite(orig)
		if sanitized == "" {
			t.Errorf("SanitizeSite(%q) returned an empty string", orig)
		}
	})
}

func TestObserveRateLimitDelay(t *testing.T) {
	ObserveRateLimitDelay("metrics-test-site", 150*time.Millisecond)

	if n := testutil.CollectAndCount(rateLimitDelaySeconds, "crawler_rate_limit_delay_seconds"); n < 1 {
		t.Errorf("expected a rate limit delay series, got %d", n)
	}
}

func TestObserveRobotsFallback(t *testing.T) {
	ObserveRobotsFallback("metrics-test-robots", "TLS handshake timeout")
	ObserveRobotsFallback("", "")

	if val := testutil.ToFloat64(robotsFallbackTotal.WithLabelValues("metrics-test-robots", "TLS handshake timeout")); val != 1 {
		t.Errorf("expected 1 fallback, got %f", val)
	}
	if val := testutil.ToFloat64(robotsFallbackTotal.WithLabelValues("unknown", "unknown")); val < 1 {
		t.Errorf("expected empty labels to be recorded as unknown, got %f", val)
	}
}
