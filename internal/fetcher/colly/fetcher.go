// Package collyfetcher implements crawler.Fetcher for static listing pages using gocolly.
package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/listing-crawler/internal/crawler"
)

const defaultTimeout = 15 * time.Second

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
	// RespectRobots makes the collector consult robots.txt before each page and
	// refuse disallowed pages with a fetch failure.
	RespectRobots bool
}

// Fetcher implements crawler.Fetcher using the Colly collector. Each fetch issues
// exactly one GET; anything other than 200 OK is a fetch failure.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
}

type collectorHooks interface {
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	c := colly.NewCollector(colly.Async(false))
	// Listing pages are re-fetched on every scrape.
	c.AllowURLRevisit = true
	// Hand non-2xx responses to OnResponse so the status check lives in one place.
	c.ParseHTTPErrorResponse = true
	c.IgnoreRobotsTxt = !cfg.RespectRobots
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}
	c.SetRequestTimeout(cfg.Timeout)
	// Clones share the backend, so the transport is set once here.
	var transport http.RoundTripper = newHTTPTransport()
	if cfg.RespectRobots {
		transport = newRobotsTransport(transport)
	}
	c.WithTransport(transport)

	return &Fetcher{
		cfg:           cfg,
		baseCollector: c,
	}
}

// Fetch executes a single HTTP GET for the given page of source.
func (f *Fetcher) Fetch(ctx context.Context, source crawler.Source, page int) (crawler.Page, error) {
	pageURL, err := crawler.PageURL(source, page)
	if err != nil {
		return crawler.Page{}, fmt.Errorf("%w: %w", crawler.ErrFetchFailure, err)
	}

	var (
		result   crawler.Page
		fetchErr error
	)
	collector := f.baseCollector.Clone()
	f.configureCollectorHooks(collector, time.Now(), &result, &fetchErr)

	if err := f.runCollector(ctx, collector, pageURL, &fetchErr); err != nil {
		return crawler.Page{}, fmt.Errorf("%w: page %d: %w", crawler.ErrFetchFailure, page, err)
	}
	if result.StatusCode == 0 {
		return crawler.Page{}, fmt.Errorf("%w: page %d: %w", crawler.ErrFetchFailure, page, errNoResponse)
	}
	if result.StatusCode != http.StatusOK {
		return crawler.Page{}, fmt.Errorf(
			"%w: page %d: unexpected status %d", crawler.ErrFetchFailure, page, result.StatusCode,
		)
	}
	result.Source = source.Tag
	result.Number = page
	return result, nil
}

func (f *Fetcher) configureCollectorHooks(
	hooks collectorHooks,
	start time.Time,
	result *crawler.Page,
	fetchErr *error,
) {
	hooks.OnResponse(func(r *colly.Response) {
		*result = crawler.Page{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Body:       append([]byte(nil), r.Body...),
			Duration:   time.Since(start),
		}
	})

	hooks.OnError(func(_ *colly.Response, err error) {
		*fetchErr = err
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		return nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}

var errNoResponse = errors.New("no response received")
