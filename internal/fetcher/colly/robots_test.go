package collyfetcher

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/listing-crawler/internal/crawler"
)

func TestRobotsRetryReturnsAllowAllOnTimeout(t *testing.T) {
	t.Parallel()

	base := &stubRoundTripper{results: []roundTripResult{
		{err: context.DeadlineExceeded},
		{err: context.DeadlineExceeded},
		{err: context.DeadlineExceeded},
		{err: context.DeadlineExceeded},
	}}
	transport := &robotsTransport{base: base, backoff: []time.Duration{0, 0, 0}}

	req := httptest.NewRequest(http.MethodGet, "https://www.keejob.com/robots.txt", nil)
	resp, err := transport.RoundTrip(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "User-agent: *\nAllow: /", string(body))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 4, base.calls)
}

func TestRobotsRetryStopsAfterSuccess(t *testing.T) {
	t.Parallel()

	base := &stubRoundTripper{results: []roundTripResult{
		{err: context.DeadlineExceeded},
		{resp: httptest.NewRecorder().Result()},
	}}
	transport := &robotsTransport{base: base, backoff: []time.Duration{0, 0, 0}}

	req := httptest.NewRequest(http.MethodGet, "https://www.keejob.com/robots.txt", nil)
	resp, err := transport.RoundTrip(req)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, 2, base.calls)
}

func TestRobotsNonTransientErrorIsReturned(t *testing.T) {
	t.Parallel()

	base := &stubRoundTripper{results: []roundTripResult{{err: errors.New("connection refused")}}}
	transport := newRobotsTransport(base)

	req := httptest.NewRequest(http.MethodGet, "https://www.keejob.com/robots.txt", nil)
	_, err := transport.RoundTrip(req)
	require.ErrorContains(t, err, "connection refused")
	assert.Equal(t, 1, base.calls)
}

func TestRobotsTransportPassesPagesThrough(t *testing.T) {
	t.Parallel()

	base := &stubRoundTripper{results: []roundTripResult{{err: context.DeadlineExceeded}}}
	transport := newRobotsTransport(base)

	req := httptest.NewRequest(http.MethodGet, "https://www.keejob.com/offres-emploi/?page=2", nil)
	_, err := transport.RoundTrip(req)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, base.calls, "page requests are never retried")
}

func TestRobotsBackoffHonoursContext(t *testing.T) {
	t.Parallel()

	base := &stubRoundTripper{results: []roundTripResult{{err: context.DeadlineExceeded}}}
	transport := &robotsTransport{base: base, backoff: []time.Duration{time.Hour}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodGet, "https://www.keejob.com/robots.txt", nil).WithContext(ctx)
	_, err := transport.RoundTrip(req)
	require.ErrorIs(t, err, context.Canceled)
}

func TestIsTransientTLSError(t *testing.T) {
	t.Parallel()

	assert.True(t, isTransientTLSError(context.DeadlineExceeded))
	assert.True(t, isTransientTLSError(errors.New("net/http: tls: handshake timeout")))
	assert.False(t, isTransientTLSError(errors.New("connection refused")))
}

func TestFetchRefusesPageDisallowedByRobots(t *testing.T) {
	t.Parallel()

	var (
		mu    sync.Mutex
		paths []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.URL.Path)
		mu.Unlock()
		if r.URL.Path == "/robots.txt" {
			_, _ = w.Write([]byte("User-agent: *\nDisallow: /offres-emploi/\n"))
			return
		}
		_, _ = w.Write([]byte("<article>job</article>"))
	}))
	t.Cleanup(srv.Close)
	src := crawler.Source{Tag: crawler.SourceKeejob, BaseURL: srv.URL + "/offres-emploi/", PageParam: "page"}

	polite := New(Config{Timeout: time.Second, RespectRobots: true})
	_, err := polite.Fetch(context.Background(), src, 1)
	require.ErrorIs(t, err, crawler.ErrFetchFailure)
	require.ErrorIs(t, err, colly.ErrRobotsTxtBlocked)

	// The default fetcher does not consult robots.txt at all.
	page, err := New(Config{Timeout: time.Second}).Fetch(context.Background(), src, 1)
	require.NoError(t, err)
	assert.Contains(t, string(page.Body), "<article>")

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"/robots.txt", "/offres-emploi/"}, paths)
}

func TestFetchAllowedByRobots(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			_, _ = w.Write([]byte("User-agent: *\nDisallow: /admin/\n"))
			return
		}
		_, _ = w.Write([]byte("<article>job</article>"))
	}))
	t.Cleanup(srv.Close)

	f := New(Config{Timeout: time.Second, RespectRobots: true})
	page, err := f.Fetch(context.Background(), crawler.Source{BaseURL: srv.URL + "/offres-emploi/"}, 1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, page.StatusCode)
	assert.False(t, f.baseCollector.IgnoreRobotsTxt)
}

func TestRobotsFallbackIsCounted(t *testing.T) {
	t.Parallel()

	base := &stubRoundTripper{results: []roundTripResult{{err: context.DeadlineExceeded}}}
	transport := &robotsTransport{base: base}

	req := httptest.NewRequest(http.MethodGet, "https://robots-fallback.test/robots.txt", nil)
	resp, err := transport.RoundTrip(req)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())

	// With no backoff configured the first timeout falls back immediately.
	assert.Equal(t, 1, base.calls)
	n, err := testutil.GatherAndCount(prometheus.DefaultGatherer, "crawler_robots_fallback_total")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, 1)
}

type roundTripResult struct {
	resp *http.Response
	err  error
}

type stubRoundTripper struct {
	mu      sync.Mutex
	results []roundTripResult
	calls   int
}

func (s *stubRoundTripper) RoundTrip(_ *http.Request) (*http.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer func() { s.calls++ }()
	idx := s.calls
	if idx >= len(s.results) {
		idx = len(s.results) - 1
	}
	res := s.results[idx]
	return res.resp, res.err
}
