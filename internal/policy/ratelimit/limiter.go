// Package ratelimit spaces out page fetches per site with token buckets.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/listing-crawler/internal/crawler"
	"github.com/JakeFAU/listing-crawler/internal/metrics"
)

// Limiter manages per-site token buckets.
type Limiter struct {
	mu           sync.Mutex
	limiters     map[string]*rate.Limiter
	defaultRate  rate.Limit
	defaultBurst int
}

// Config holds rate limiter configuration. A non-positive RPS disables limiting.
type Config struct {
	DefaultRPS   float64
	DefaultBurst int
}

// New creates a new Limiter.
func New(cfg Config) *Limiter {
	r := rate.Limit(cfg.DefaultRPS)
	if cfg.DefaultRPS <= 0 {
		r = rate.Inf
	}
	burst := cfg.DefaultBurst
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		limiters:     make(map[string]*rate.Limiter),
		defaultRate:  r,
		defaultBurst: burst,
	}
}

// Wait blocks until a token is available for the site of rawURL, respecting the context.
func (l *Limiter) Wait(ctx context.Context, rawURL string) error {
	site := metrics.SanitizeSite(rawURL)
	l.mu.Lock()
	limiter, ok := l.limiters[site]
	if !ok {
		limiter = rate.NewLimiter(l.defaultRate, l.defaultBurst)
		l.limiters[site] = limiter
	}
	l.mu.Unlock()

	start := time.Now()
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	if waited := time.Since(start); waited > time.Millisecond {
		metrics.ObserveRateLimitDelay(site, waited)
	}
	return nil
}

// Fetcher delays each fetch of the wrapped crawler.Fetcher until the page's site has a token.
type Fetcher struct {
	next    crawler.Fetcher
	limiter *Limiter
}

// NewFetcher wraps next with limiter.
func NewFetcher(next crawler.Fetcher, limiter *Limiter) *Fetcher {
	return &Fetcher{next: next, limiter: limiter}
}

// Fetch waits for a token and delegates to the wrapped fetcher.
func (f *Fetcher) Fetch(ctx context.Context, source crawler.Source, page int) (crawler.Page, error) {
	pageURL, err := crawler.PageURL(source, page)
	if err != nil {
		return crawler.Page{}, fmt.Errorf("%w: %w", crawler.ErrFetchFailure, err)
	}
	if err := f.limiter.Wait(ctx, pageURL); err != nil {
		return crawler.Page{}, fmt.Errorf("%w: %w", crawler.ErrFetchFailure, err)
	}
	return f.next.Fetch(ctx, source, page)
}
