package crawler

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "github.com/JakeFAU/listing-crawler/internal/crawler"

// NewsScraper returns the newest article of a news source, or nothing. The result
// carries at most one record; a render failure yields StopFetchFailure and the cause.
type NewsScraper interface {
	Source() Source
	Latest(ctx context.Context) CrawlResult
}

// ScrapeReport summarizes one triggered scrape.
type ScrapeReport struct {
	RunID    string     `json:"run_id"`
	Source   SourceTag  `json:"source"`
	Inserted int        `json:"inserted"`
	Skipped  int        `json:"skipped"`
	Pages    int        `json:"pages"`
	Stop     StopReason `json:"stop_reason"`
	// StoredBefore is the number of stored records of the kind before the run.
	StoredBefore int `json:"stored_before"`
}

// Service binds drivers to a record store. Crawls of the same source are serialized
// because the check-then-insert sequence in Writer is not safe against a concurrent
// crawl of the same listing.
type Service struct {
	jobs   *Driver
	news   NewsScraper
	store  RecordStore
	writer *Writer
	idGen  IDGenerator
	tracer trace.Tracer
	logger *zap.Logger

	mu    sync.Mutex
	locks map[SourceTag]chan struct{}
}

// ServiceOption customizes a Service.
type ServiceOption func(*Service)

// WithTracerProvider traces scrapes with tp instead of the global provider.
func WithTracerProvider(tp trace.TracerProvider) ServiceOption {
	return func(s *Service) {
		s.tracer = tp.Tracer(tracerName)
	}
}

// NewService constructs a Service. news may be nil when no news source is configured.
func NewService(
	jobs *Driver,
	news NewsScraper,
	store RecordStore,
	writer *Writer,
	idGen IDGenerator,
	logger *zap.Logger,
	opts ...ServiceOption,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		jobs:   jobs,
		news:   news,
		store:  store,
		writer: writer,
		idGen:  idGen,
		tracer: otel.Tracer(tracerName),
		logger: logger,
		locks:  make(map[SourceTag]chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Store exposes the record store for read-only endpoints.
func (s *Service) Store() RecordStore {
	return s.store
}

// ScrapeJobs runs a full crawl of the job listing, committing each page's new
// records before the next page is fetched.
func (s *Service) ScrapeJobs(ctx context.Context, opts CrawlOptions) (ScrapeReport, error) {
	src := s.jobs.Source()
	release, err := s.acquire(ctx, src.Tag)
	if err != nil {
		return ScrapeReport{}, err
	}
	defer release()

	report, logger := s.newReport(src)
	ctx, span := s.startSpan(ctx, "crawler.ScrapeJobs", report)
	defer span.End()

	res := s.jobs.Crawl(ctx, opts, s.pageSink(&report))
	return s.finish(span, report, res, logger)
}

// ScrapeNewJobs runs an incremental crawl that stops at the first stored job.
func (s *Service) ScrapeNewJobs(ctx context.Context, start int) (ScrapeReport, error) {
	src := s.jobs.Source()
	release, err := s.acquire(ctx, src.Tag)
	if err != nil {
		return ScrapeReport{}, err
	}
	defer release()

	report, logger := s.newReport(src)
	ctx, span := s.startSpan(ctx, "crawler.ScrapeNewJobs", report)
	defer span.End()

	count, err := s.store.Count(ctx, src.Kind)
	if err != nil {
		err = fmt.Errorf("count %s records: %w", src.Kind, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "count failed")
		return report, err
	}
	report.StoredBefore = count

	exists := func(ctx context.Context, identity string) (bool, error) {
		return s.store.Exists(ctx, src.Kind, identity)
	}
	res := s.jobs.CrawlNew(ctx, start, exists, s.pageSink(&report))
	return s.finish(span, report, res, logger)
}

// ScrapeNews stores the newest article of the news source if it is not known yet.
func (s *Service) ScrapeNews(ctx context.Context) (ScrapeReport, error) {
	if s.news == nil {
		return ScrapeReport{}, fmt.Errorf("news source is not configured")
	}
	src := s.news.Source()
	release, err := s.acquire(ctx, src.Tag)
	if err != nil {
		return ScrapeReport{}, err
	}
	defer release()

	report, logger := s.newReport(src)
	ctx, span := s.startSpan(ctx, "crawler.ScrapeNews", report)
	defer span.End()

	res := s.news.Latest(ctx)
	if len(res.Records) > 0 {
		if err := s.pageSink(&report)(ctx, res.Records); err != nil {
			res.Stop = StopCommitFailure
			res.Err = err
		}
	}
	return s.finish(span, report, res, logger)
}

func (s *Service) newReport(src Source) (ScrapeReport, *zap.Logger) {
	report := ScrapeReport{Source: src.Tag}
	if s.idGen != nil {
		if id, err := s.idGen.NewID(); err == nil {
			report.RunID = id
		} else {
			s.logger.Warn("generate run id failed", zap.Error(err))
		}
	}
	return report, s.logger.With(zap.String("run_id", report.RunID), zap.String("source", string(src.Tag)))
}

func (s *Service) startSpan(ctx context.Context, name string, report ScrapeReport) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("crawler.run_id", report.RunID),
		attribute.String("crawler.source", string(report.Source)),
	))
}

// pageSink commits one page of records and folds the counts into report.
func (s *Service) pageSink(report *ScrapeReport) PageSink {
	return func(ctx context.Context, records []Record) error {
		committed, err := s.writer.Commit(ctx, records)
		report.Inserted += committed.Inserted
		report.Skipped += committed.Skipped
		return err
	}
}

func (s *Service) finish(span trace.Span, report ScrapeReport, res CrawlResult, logger *zap.Logger) (ScrapeReport, error) {
	report.Pages = res.Pages
	report.Stop = res.Stop
	span.SetAttributes(
		attribute.Int("crawler.pages", report.Pages),
		attribute.Int("crawler.inserted", report.Inserted),
		attribute.Int("crawler.skipped", report.Skipped),
		attribute.String("crawler.stop_reason", string(report.Stop)),
	)
	if res.Stop == StopCommitFailure {
		err := fmt.Errorf("commit records: %w", res.Err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "commit failed")
		return report, err
	}
	if res.Err != nil {
		span.RecordError(res.Err)
		logger.Warn("crawl stopped early", zap.String("stop_reason", string(res.Stop)), zap.Error(res.Err))
	}
	logger.Info("scrape finished",
		zap.Int("found", len(res.Records)),
		zap.Int("inserted", report.Inserted),
		zap.Int("skipped", report.Skipped),
		zap.Int("pages", report.Pages),
		zap.String("stop_reason", string(report.Stop)),
	)
	return report, nil
}

func (s *Service) acquire(ctx context.Context, tag SourceTag) (func(), error) {
	s.mu.Lock()
	lock, ok := s.locks[tag]
	if !ok {
		lock = make(chan struct{}, 1)
		s.locks[tag] = lock
	}
	s.mu.Unlock()

	select {
	case lock <- struct{}{}:
		return func() { <-lock }, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("wait for %s crawl lock: %w", tag, ctx.Err())
	}
}
