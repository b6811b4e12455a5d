package crawler

import (
	"context"
	"errors"
	"fmt"
	"path"

	"go.uber.org/zap"

	"github.com/JakeFAU/listing-crawler/internal/clock/system"
	"github.com/JakeFAU/listing-crawler/internal/hash/sha256"
	"github.com/JakeFAU/listing-crawler/internal/metrics"
)

// Driver walks the pages of one source. It holds no per-crawl state, so every call
// is an independent run parameterized by its start page.
type Driver struct {
	source    Source
	fetcher   Fetcher
	extractor Extractor
	archive   Archive
	hasher    Hasher
	clock     Clock
	logger    *zap.Logger
}

// archiveDigestLength is the number of hex digits of the page digest kept in
// archive object names.
const archiveDigestLength = 16

// DriverOption customizes a Driver.
type DriverOption func(*Driver)

// WithArchive stores the raw markup of every fetched page.
func WithArchive(archive Archive) DriverOption {
	return func(d *Driver) {
		d.archive = archive
	}
}

// WithHasher overrides the digest used to name archived pages.
func WithHasher(hasher Hasher) DriverOption {
	return func(d *Driver) {
		d.hasher = hasher
	}
}

// WithDriverClock overrides the clock that dates archived pages.
func WithDriverClock(clock Clock) DriverOption {
	return func(d *Driver) {
		d.clock = clock
	}
}

// NewDriver constructs a Driver for source.
func NewDriver(source Source, fetcher Fetcher, extractor Extractor, logger *zap.Logger, opts ...DriverOption) *Driver {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Driver{
		source:    source,
		fetcher:   fetcher,
		extractor: extractor,
		hasher:    sha256.NewTruncated(archiveDigestLength),
		clock:     system.New(),
		logger:    logger.With(zap.String("source", string(source.Tag))),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Source returns the source this driver crawls.
func (d *Driver) Source() Source {
	return d.source
}

// Crawl walks pages from opts.StartPage until a page yields no records, a fetch
// fails, or opts.MaxPages pages have been fetched. Each page's records go to sink
// before the next page is fetched; a nil sink only collects them.
func (d *Driver) Crawl(ctx context.Context, opts CrawlOptions, sink PageSink) CrawlResult {
	page := startPage(opts.StartPage)
	var res CrawlResult
	for {
		records, stop, err := d.step(ctx, page)
		if stop != "" {
			return d.finish(res, stop, err)
		}
		res.Pages++
		if len(records) == 0 {
			d.logger.Info("no more records, stopping", zap.Int("page", page))
			return d.finish(res, StopExhausted, nil)
		}
		if err := d.emit(ctx, sink, &res, page, records); err != nil {
			return d.finish(res, StopCommitFailure, err)
		}
		if opts.MaxPages > 0 && res.Pages >= opts.MaxPages {
			d.logger.Info("reached maximum pages, stopping", zap.Int("max_pages", opts.MaxPages))
			return d.finish(res, StopPageCap, nil)
		}
		page++
	}
}

// CrawlNew walks pages from start and collects records until exists reports a known
// identity. The listing is assumed newest-first, so the first known record marks the
// boundary: nothing after it on that page or any later page is examined.
//
// The new records of each page reach sink before the next page is fetched, so a
// record listed again on a later page is already known when that page is checked.
func (d *Driver) CrawlNew(ctx context.Context, start int, exists IdentityPredicate, sink PageSink) CrawlResult {
	page := startPage(start)
	var res CrawlResult
	for {
		records, stop, err := d.step(ctx, page)
		if stop != "" {
			return d.finish(res, stop, err)
		}
		res.Pages++
		if len(records) == 0 {
			d.logger.Info("no more records, stopping", zap.Int("page", page))
			return d.finish(res, StopExhausted, nil)
		}
		fresh, stop, err := d.unknownPrefix(ctx, exists, page, records)
		if emitErr := d.emit(ctx, sink, &res, page, fresh); emitErr != nil {
			return d.finish(res, StopCommitFailure, emitErr)
		}
		if stop != "" {
			return d.finish(res, stop, err)
		}
		page++
	}
}

// unknownPrefix returns the records of one page that precede the first known
// identity, along with the stop reason when the page ended the crawl.
func (d *Driver) unknownPrefix(ctx context.Context, exists IdentityPredicate, page int, records []Record) ([]Record, StopReason, error) {
	for i, rec := range records {
		known, err := exists(ctx, rec.Identity)
		if err != nil {
			return records[:i], StopLookupFailure, fmt.Errorf("identity lookup: %w", err)
		}
		if known {
			d.logger.Info("reached known record, stopping",
				zap.Int("page", page),
				zap.String("url", rec.Identity),
			)
			return records[:i], StopKnownRecord, nil
		}
	}
	return records, "", nil
}

// emit appends records to the aggregate and hands them to sink.
func (d *Driver) emit(ctx context.Context, sink PageSink, res *CrawlResult, page int, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	res.Records = append(res.Records, records...)
	d.logger.Info("page crawled",
		zap.Int("page", page),
		zap.Int("records", len(records)),
		zap.Int("total", len(res.Records)),
	)
	if sink == nil {
		return nil
	}
	if err := sink(ctx, records); err != nil {
		d.logger.Warn("commit page failed, stopping", zap.Int("page", page), zap.Error(err))
		return fmt.Errorf("commit page %d: %w", page, err)
	}
	return nil
}

// step fetches and extracts one page. A non-empty StopReason means the crawl ends
// before this page contributes anything.
func (d *Driver) step(ctx context.Context, page int) ([]Record, StopReason, error) {
	if err := ctx.Err(); err != nil {
		return nil, StopCanceled, fmt.Errorf("crawl canceled: %w", err)
	}
	d.logger.Debug("fetching page", zap.Int("page", page))
	p, err := d.fetcher.Fetch(ctx, d.source, page)
	if err != nil {
		metrics.ObservePage(string(d.source.Tag), "failed", 0)
		if !errors.Is(err, ErrFetchFailure) {
			err = fmt.Errorf("%w: %w", ErrFetchFailure, err)
		}
		d.logger.Warn("fetch failed, stopping", zap.Int("page", page), zap.Error(err))
		return nil, StopFetchFailure, err
	}
	metrics.ObservePage(string(d.source.Tag), "fetched", len(p.Body))
	d.archivePage(ctx, page, p)
	return d.extractor.Extract(p.Body), "", nil
}

func (d *Driver) archivePage(ctx context.Context, page int, p Page) {
	if d.archive == nil {
		return
	}
	digest, err := d.hasher.Hash(p.Body)
	if err != nil {
		d.logger.Warn("hash page failed", zap.Int("page", page), zap.Error(err))
		return
	}
	// Identical snapshots of a page on the same day share one object.
	name := path.Join(
		string(d.source.Tag),
		d.clock.Now().UTC().Format("2006-01-02"),
		fmt.Sprintf("page-%03d-%s.html", page, digest),
	)
	uri, err := d.archive.PutObject(ctx, name, "text/html; charset=utf-8", p.Body)
	if err != nil {
		d.logger.Warn("archive page failed", zap.Int("page", page), zap.Error(err))
		return
	}
	d.logger.Debug("page archived", zap.Int("page", page), zap.String("uri", uri))
}

func (d *Driver) finish(res CrawlResult, stop StopReason, err error) CrawlResult {
	res.Stop = stop
	res.Err = err
	metrics.ObserveCrawlStop(string(d.source.Tag), string(stop))
	return res
}

func startPage(p int) int {
	if p < 1 {
		return 1
	}
	return p
}
