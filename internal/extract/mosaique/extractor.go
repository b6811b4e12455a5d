// Package mosaique extracts the headline article from the mosaiquefm.net news front
// page and wires the rendering fetch that page needs.
package mosaique

import (
	"go.uber.org/zap"

	"github.com/JakeFAU/listing-crawler/internal/clock/system"
	"github.com/JakeFAU/listing-crawler/internal/crawler"
	"github.com/JakeFAU/listing-crawler/internal/extract"
)

const (
	// Origin is the site root relative article hrefs are resolved against.
	Origin = "https://www.mosaiquefm.net"
	// BaseURL is the Arabic news front page.
	BaseURL = "https://www.mosaiquefm.net/ar/actualites/1"
	// Marker is the element a rendered front page must contain.
	Marker = ".mainItem"
)

// Extractor implements crawler.Extractor and yields at most one record.
type Extractor struct {
	origin string
	clock  crawler.Clock
	logger *zap.Logger
}

// New creates an Extractor. A nil clock uses wall time.
func New(origin string, clock crawler.Clock, logger *zap.Logger) *Extractor {
	if origin == "" {
		origin = Origin
	}
	if clock == nil {
		clock = system.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{origin: origin, clock: clock, logger: logger}
}

// Extract returns the headline article of the front page, or nothing.
func (e *Extractor) Extract(markup []byte) []crawler.Record {
	doc, err := extract.Parse(markup)
	if err != nil {
		e.logger.Warn("parse front page failed", zap.Error(err))
		return nil
	}
	item := doc.Find(Marker).First()
	if item.Length() == 0 {
		e.logger.Info("headline block not found")
		return nil
	}
	anchor := item.Find("h3 a").First()
	if anchor.Length() == 0 {
		e.logger.Info("headline title not found")
		return nil
	}
	href, _ := anchor.Attr("href")
	identity, err := crawler.ResolveURL(e.origin, href)
	if err != nil {
		e.logger.Info("headline link not usable", zap.String("href", href), zap.Error(err))
		return nil
	}
	now := e.clock.Now().UTC()
	return []crawler.Record{{
		Identity:    identity,
		Source:      crawler.SourceMosaiqueFM,
		Kind:        crawler.KindNews,
		Title:       extract.StrippedText(anchor),
		ExtractedAt: &now,
	}}
}
