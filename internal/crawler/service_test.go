package crawler

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

type staticNews struct {
	records []Record
	err     error
}

func (s staticNews) Source() Source {
	return Source{Tag: SourceMosaiqueFM, Kind: KindNews}
}

func (s staticNews) Latest(context.Context) CrawlResult {
	if s.err != nil {
		return CrawlResult{Stop: StopFetchFailure, Err: s.err}
	}
	return CrawlResult{Records: s.records, Pages: 1, Stop: StopExhausted}
}

func newTestService(fetcher Fetcher, store *mapStore, news NewsScraper) *Service {
	driver := NewDriver(jobSource, fetcher, csvExtractor{}, nil)
	return NewService(driver, news, store, NewWriter(store, nil), &sequenceIDs{}, nil)
}

func TestScrapeJobs(t *testing.T) {
	t.Parallel()

	store := newMapStore("b")
	fetcher := &scriptedFetcher{pages: [][]string{{"a", "b"}, {"c"}, {"d"}}}
	svc := newTestService(fetcher, store, nil)

	report, err := svc.ScrapeJobs(context.Background(), CrawlOptions{MaxPages: 2})
	require.NoError(t, err)
	assert.Equal(t, "run-1", report.RunID)
	assert.Equal(t, SourceKeejob, report.Source)
	assert.Equal(t, 2, report.Inserted)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 2, report.Pages)
	assert.Equal(t, StopPageCap, report.Stop)
	assert.Equal(t, []string{"b", "a", "c"}, store.stored())
	assert.Same(t, store, svc.Store())
}

func TestScrapeNewJobs(t *testing.T) {
	t.Parallel()

	store := newMapStore("A", "B")
	fetcher := &scriptedFetcher{pages: [][]string{{"X", "Y", "A", "B", "C"}}}
	svc := newTestService(fetcher, store, nil)

	report, err := svc.ScrapeNewJobs(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 2, report.StoredBefore)
	assert.Equal(t, 2, report.Inserted)
	assert.Equal(t, 1, report.Pages)
	assert.Equal(t, StopKnownRecord, report.Stop)
	assert.Equal(t, []string{"A", "B", "X", "Y"}, store.stored())

	// A second run right away finds X at the top and inserts nothing.
	fetcher.pages = [][]string{{"X", "Y", "A", "B", "C"}}
	report, err = svc.ScrapeNewJobs(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 4, report.StoredBefore)
	assert.Zero(t, report.Inserted)
	assert.Equal(t, StopKnownRecord, report.Stop)
}

func TestScrapeJobsReportsCommitError(t *testing.T) {
	t.Parallel()

	store := newMapStore()
	store.insertErr = errors.New("read-only transaction")
	svc := newTestService(&scriptedFetcher{pages: [][]string{{"a"}}}, store, nil)

	report, err := svc.ScrapeJobs(context.Background(), CrawlOptions{})
	require.Error(t, err)
	assert.ErrorContains(t, err, "read-only transaction")
	assert.Equal(t, StopCommitFailure, report.Stop)
	assert.Equal(t, 1, report.Pages)
	assert.Zero(t, report.Inserted)
}

func TestScrapeNewJobsStopsWhenListingRepeats(t *testing.T) {
	t.Parallel()

	store := newMapStore("A")
	fetcher := &repeatingFetcher{ids: []string{"X", "Y"}, store: store}
	driver := NewDriver(jobSource, fetcher, csvExtractor{}, nil)
	svc := NewService(driver, nil, store, NewWriter(store, nil), &sequenceIDs{}, nil)

	report, err := svc.ScrapeNewJobs(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, StopKnownRecord, report.Stop)
	assert.Equal(t, 2, report.Pages)
	assert.Equal(t, 1, report.StoredBefore)
	assert.Equal(t, 2, report.Inserted)
	assert.Equal(t, []string{"A", "X", "Y"}, store.stored())
}

func TestScrapeJobsKeepsCountsOfCommittedPages(t *testing.T) {
	t.Parallel()

	store := newMapStore("c")
	fetcher := &scriptedFetcher{pages: [][]string{{"a", "b"}, {"c", "d"}, {"e"}}, failAt: map[int]bool{3: true}}
	svc := newTestService(fetcher, store, nil)

	report, err := svc.ScrapeJobs(context.Background(), CrawlOptions{})
	require.NoError(t, err)
	assert.Equal(t, StopFetchFailure, report.Stop)
	assert.Equal(t, 2, report.Pages)
	assert.Equal(t, 3, report.Inserted)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, []string{"c", "a", "b", "d"}, store.stored())
}

func TestScrapeNews(t *testing.T) {
	t.Parallel()

	store := newMapStore()
	article := Record{Identity: "https://news/1", Source: SourceMosaiqueFM, Kind: KindNews, Title: "headline"}
	svc := newTestService(&scriptedFetcher{}, store, staticNews{records: []Record{article}})

	report, err := svc.ScrapeNews(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Inserted)
	assert.Equal(t, 1, report.Pages)
	assert.Equal(t, StopExhausted, report.Stop)
	assert.Equal(t, SourceMosaiqueFM, report.Source)

	report, err = svc.ScrapeNews(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Inserted)
	assert.Equal(t, 1, report.Skipped)

	empty := newTestService(&scriptedFetcher{}, newMapStore(), staticNews{})
	report, err = empty.ScrapeNews(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Inserted)
}

func TestScrapeNewsReportsFetchFailure(t *testing.T) {
	t.Parallel()

	news := staticNews{err: fmt.Errorf("%w: render timed out", ErrFetchFailure)}
	svc := newTestService(&scriptedFetcher{}, newMapStore(), news)

	report, err := svc.ScrapeNews(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StopFetchFailure, report.Stop)
	assert.Zero(t, report.Pages)
	assert.Zero(t, report.Inserted)
}

func TestScrapesAreTraced(t *testing.T) {
	t.Parallel()

	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	store := newMapStore()
	store.insertErr = errors.New("read-only transaction")
	driver := NewDriver(jobSource, &scriptedFetcher{pages: [][]string{{"a"}}}, csvExtractor{}, nil)
	svc := NewService(driver, nil, store, NewWriter(store, nil), &sequenceIDs{}, nil, WithTracerProvider(tp))

	_, err := svc.ScrapeJobs(context.Background(), CrawlOptions{})
	require.Error(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	span := spans[0]
	assert.Equal(t, "crawler.ScrapeJobs", span.Name())
	assert.Equal(t, codes.Error, span.Status().Code)
	attrs := map[attribute.Key]attribute.Value{}
	for _, kv := range span.Attributes() {
		attrs[kv.Key] = kv.Value
	}
	assert.Equal(t, "run-1", attrs["crawler.run_id"].AsString())
	assert.Equal(t, "keejob", attrs["crawler.source"].AsString())
	assert.Equal(t, "commit_failure", attrs["crawler.stop_reason"].AsString())
	assert.EqualValues(t, 1, attrs["crawler.pages"].AsInt64())
}

func TestScrapeNewsNotConfigured(t *testing.T) {
	t.Parallel()

	svc := newTestService(&scriptedFetcher{}, newMapStore(), nil)
	_, err := svc.ScrapeNews(context.Background())
	assert.Error(t, err)
}

// gatedFetcher blocks every fetch until release is closed.
type gatedFetcher struct {
	entered chan struct{}
	release chan struct{}
}

func (f *gatedFetcher) Fetch(ctx context.Context, source Source, page int) (Page, error) {
	select {
	case f.entered <- struct{}{}:
	default:
	}
	select {
	case <-f.release:
		return Page{Source: source.Tag, Number: page}, nil
	case <-ctx.Done():
		return Page{}, ctx.Err()
	}
}

func TestCrawlsOfOneSourceAreSerialized(t *testing.T) {
	t.Parallel()

	fetcher := &gatedFetcher{entered: make(chan struct{}, 1), release: make(chan struct{})}
	svc := newTestService(fetcher, newMapStore(), staticNews{})

	done := make(chan error, 1)
	go func() {
		_, err := svc.ScrapeJobs(context.Background(), CrawlOptions{})
		done <- err
	}()
	<-fetcher.entered

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := svc.ScrapeNewJobs(ctx, 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// Another source is not blocked by the running job crawl.
	_, err = svc.ScrapeNews(context.Background())
	require.NoError(t, err)

	close(fetcher.release)
	require.NoError(t, <-done)

	report, err := svc.ScrapeNewJobs(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, StopExhausted, report.Stop)
}
