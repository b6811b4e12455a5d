// Package keejob extracts job records from keejob.com listing pages.
package keejob

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/listing-crawler/internal/crawler"
	"github.com/JakeFAU/listing-crawler/internal/extract"
)

// Origin is the site root job hrefs are resolved against.
const Origin = "https://www.keejob.com"

const (
	unknownCompany  = "Unknown"
	unknownLocation = "N/A"
	locationGlyph   = "📍"
)

// Extractor implements crawler.Extractor for keejob listing pages.
type Extractor struct {
	origin string
	logger *zap.Logger
}

// New creates an Extractor. An empty origin falls back to Origin.
func New(origin string, logger *zap.Logger) *Extractor {
	if origin == "" {
		origin = Origin
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{origin: origin, logger: logger}
}

// Extract returns one record per article block that carries a title link, in
// document order.
func (e *Extractor) Extract(markup []byte) []crawler.Record {
	doc, err := extract.Parse(markup)
	if err != nil {
		e.logger.Warn("parse listing markup failed", zap.Error(err))
		return nil
	}
	var records []crawler.Record
	doc.Find("article").Each(func(i int, block *goquery.Selection) {
		rec, ok := e.record(i, block)
		if ok {
			records = append(records, rec)
		}
	})
	return records
}

func (e *Extractor) record(i int, block *goquery.Selection) (crawler.Record, bool) {
	anchor := block.Find("h2 a").First()
	if anchor.Length() == 0 {
		e.logger.Debug("skipping block", zap.Int("block", i), zap.Error(crawler.ErrExtractionGap))
		return crawler.Record{}, false
	}
	href, _ := anchor.Attr("href")
	identity, err := crawler.ResolveURL(e.origin, href)
	if err != nil {
		e.logger.Debug("skipping block without usable link",
			zap.Int("block", i),
			zap.String("href", href),
			zap.Error(err),
		)
		return crawler.Record{}, false
	}

	return crawler.Record{
		Identity:     identity,
		Source:       crawler.SourceKeejob,
		Kind:         crawler.KindJob,
		Title:        extract.StrippedText(anchor),
		Organization: company(block),
		Location:     location(block),
		Description:  extract.StrippedText(block.Find("div.mb-3 p").First()),
		ExternalID:   externalID(href),
		DatePosted:   datePosted(block),
	}, true
}

// externalID returns the second path segment of href, which is the numeric offer id
// for paths shaped like /offres-emploi/231807/slug. Absolute hrefs, query strings
// and fragments are handled by reading the parsed path only.
func externalID(href string) *string {
	u, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return nil
	}
	parts := strings.Split(u.Path, "/")
	if len(parts) <= 2 || parts[2] == "" {
		return nil
	}
	return crawler.StringPtr(parts[2])
}

func company(block *goquery.Selection) string {
	el := block.Find("h2 + p a, h2 + p span").First()
	if el.Length() == 0 {
		return unknownCompany
	}
	return extract.StrippedText(el)
}

func location(block *goquery.Selection) string {
	icon := block.Find(".fa-map-marker-alt").First()
	if icon.Length() == 0 {
		return unknownLocation
	}
	text := extract.StrippedText(icon.Parent())
	return strings.TrimSpace(strings.ReplaceAll(text, locationGlyph, ""))
}

func datePosted(block *goquery.Selection) *string {
	icon := block.Find(".fa-clock").First()
	if icon.Length() == 0 {
		return nil
	}
	return crawler.StringPtr(extract.StrippedText(icon.Parent()))
}
