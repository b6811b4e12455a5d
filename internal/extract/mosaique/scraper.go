package mosaique

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/listing-crawler/internal/crawler"
)

// Scraper renders the front page and extracts its headline. It satisfies
// crawler.NewsScraper.
type Scraper struct {
	source    crawler.Source
	fetcher   crawler.Fetcher
	extractor crawler.Extractor
	logger    *zap.Logger
}

// NewScraper binds a rendering fetcher and an extractor to source.
func NewScraper(source crawler.Source, fetcher crawler.Fetcher, extractor crawler.Extractor, logger *zap.Logger) *Scraper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scraper{
		source:    source,
		fetcher:   fetcher,
		extractor: extractor,
		logger:    logger.With(zap.String("source", string(source.Tag))),
	}
}

// DefaultSource describes the mosaiquefm.net front page.
func DefaultSource() crawler.Source {
	return crawler.Source{
		Tag:     crawler.SourceMosaiqueFM,
		Kind:    crawler.KindNews,
		BaseURL: BaseURL,
		Origin:  Origin,
		Marker:  Marker,
	}
}

// Source returns the news source.
func (s *Scraper) Source() crawler.Source {
	return s.source
}

// Latest returns at most one record. A render failure is logged and reported as
// StopFetchFailure with no pages counted; a canceled context reports StopCanceled.
func (s *Scraper) Latest(ctx context.Context) crawler.CrawlResult {
	if err := ctx.Err(); err != nil {
		return crawler.CrawlResult{Stop: crawler.StopCanceled, Err: fmt.Errorf("scrape canceled: %w", err)}
	}
	page, err := s.fetcher.Fetch(ctx, s.source, 1)
	if err != nil {
		if !errors.Is(err, crawler.ErrFetchFailure) {
			err = fmt.Errorf("%w: %w", crawler.ErrFetchFailure, err)
		}
		s.logger.Warn("render front page failed", zap.Error(err))
		return crawler.CrawlResult{Stop: crawler.StopFetchFailure, Err: err}
	}
	records := s.extractor.Extract(page.Body)
	if len(records) > 1 {
		records = records[:1]
	}
	return crawler.CrawlResult{Records: records, Pages: 1, Stop: crawler.StopExhausted}
}
