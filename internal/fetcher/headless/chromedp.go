// Package headless contains fetchers that execute JavaScript via browsers.
package headless

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/JakeFAU/listing-crawler/internal/crawler"
)

const (
	defaultWaitTimeout       = 10 * time.Second
	defaultSettleDelay       = 2 * time.Second
	defaultNavigationTimeout = 45 * time.Second
)

// Config controls the behavior of the headless fetcher.
type Config struct {
	UserAgent string
	// WaitTimeout bounds the wait for the source's marker element.
	WaitTimeout time.Duration
	// SettleDelay is slept after the marker appears so late content can render.
	SettleDelay time.Duration
	// NavigationTimeout bounds the whole fetch, navigation included.
	NavigationTimeout time.Duration
}

// Fetcher implements crawler.Fetcher using chromedp and headless Chrome.
// Every fetch runs in its own browser context that is torn down before Fetch returns.
type Fetcher struct {
	cfg         Config
	allocator   context.Context
	allocCancel context.CancelFunc
	closeOnce   sync.Once
}

// NewChromedp creates a headless fetcher backed by chromedp.
func NewChromedp(cfg Config) (*Fetcher, error) {
	if cfg.WaitTimeout < 0 || cfg.SettleDelay < 0 || cfg.NavigationTimeout < 0 {
		return nil, fmt.Errorf("headless timeouts must be >= 0")
	}
	cfg = withDefaults(cfg)

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.WindowSize(1920, 1080),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Fetcher{
		cfg:         cfg,
		allocator:   allocCtx,
		allocCancel: allocCancel,
	}, nil
}

// Close cancels the allocator context.
func (f *Fetcher) Close() {
	f.closeOnce.Do(f.allocCancel)
}

// Fetch loads the source URL, waits for source.Marker, lets the page settle and
// returns the rendered DOM. Timeouts and browser errors wrap crawler.ErrFetchFailure.
func (f *Fetcher) Fetch(ctx context.Context, source crawler.Source, page int) (crawler.Page, error) {
	pageURL, err := crawler.PageURL(source, page)
	if err != nil {
		return crawler.Page{}, fmt.Errorf("%w: %w", crawler.ErrFetchFailure, err)
	}
	marker := source.Marker
	if marker == "" {
		marker = "body"
	}

	browserCtx, browserCancel := chromedp.NewContext(f.allocator)
	defer browserCancel()

	taskCtx, cancel := context.WithTimeout(browserCtx, f.cfg.NavigationTimeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	meta := newResponseMeta()
	chromedp.ListenTarget(taskCtx, meta.captureEvent)

	start := time.Now()
	html, err := f.render(taskCtx, pageURL, marker)
	if err != nil {
		return crawler.Page{}, fmt.Errorf("%w: render %s: %w", crawler.ErrFetchFailure, pageURL, err)
	}

	status, finalURL := meta.snapshotWithFallbacks(pageURL)
	if status >= http.StatusBadRequest {
		return crawler.Page{}, fmt.Errorf("%w: render %s: unexpected status %d", crawler.ErrFetchFailure, pageURL, status)
	}

	return crawler.Page{
		Source:     source.Tag,
		Number:     page,
		URL:        finalURL,
		StatusCode: status,
		Body:       []byte(html),
		Duration:   time.Since(start),
		Rendered:   true,
	}, nil
}

func (f *Fetcher) render(ctx context.Context, pageURL, marker string) (string, error) {
	if err := chromedp.Run(ctx, f.networkSetupAction(), chromedp.Navigate(pageURL)); err != nil {
		return "", fmt.Errorf("navigate: %w", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, f.cfg.WaitTimeout)
	defer cancel()
	if err := chromedp.Run(waitCtx, chromedp.WaitReady(marker, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("wait for %q: %w", marker, err)
	}

	var html string
	actions := []chromedp.Action{
		chromedp.Sleep(f.cfg.SettleDelay),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	}
	if err := chromedp.Run(ctx, actions...); err != nil {
		return "", fmt.Errorf("snapshot: %w", err)
	}
	return html, nil
}

func (f *Fetcher) networkSetupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if f.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(f.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		return nil
	})
}

func withDefaults(cfg Config) Config {
	if cfg.WaitTimeout == 0 {
		cfg.WaitTimeout = defaultWaitTimeout
	}
	if cfg.SettleDelay == 0 {
		cfg.SettleDelay = defaultSettleDelay
	}
	if cfg.NavigationTimeout == 0 {
		cfg.NavigationTimeout = defaultNavigationTimeout
	}
	if floor := cfg.WaitTimeout + cfg.SettleDelay; cfg.NavigationTimeout < floor {
		cfg.NavigationTimeout = floor
	}
	return cfg
}

type responseMeta struct {
	mu     sync.RWMutex
	status int
	url    string
}

func newResponseMeta() *responseMeta {
	return &responseMeta{}
}

func (m *responseMeta) capture(event *network.EventResponseReceived) {
	if event.Type != network.ResourceTypeDocument || event.Response == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	// Keep the first document response; later ones belong to iframes.
	if m.status != 0 {
		return
	}
	m.status = int(event.Response.Status)
	m.url = event.Response.URL
}

func (m *responseMeta) captureEvent(ev any) {
	if resp, ok := ev.(*network.EventResponseReceived); ok {
		m.capture(resp)
	}
}

func (m *responseMeta) snapshotWithFallbacks(requestURL string) (int, string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	status, url := m.status, m.url
	if url == "" {
		url = requestURL
	}
	if status == 0 {
		status = http.StatusOK
	}
	return status, url
}
