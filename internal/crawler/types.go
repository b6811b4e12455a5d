// Package crawler defines core types shared across subsystems.
package crawler

import (
	"errors"
	"time"
)

// SourceTag identifies the site a record was extracted from.
type SourceTag string

// Known source tags.
const (
	SourceKeejob     SourceTag = "keejob"
	SourceMosaiqueFM SourceTag = "mosaiquefm"
)

// RecordKind scopes identity uniqueness. Two records of different kinds may share a URL.
type RecordKind string

// Record kinds persisted by the stores.
const (
	KindJob  RecordKind = "job"
	KindNews RecordKind = "news"
)

// Error taxonomy for the crawl core.
var (
	// ErrFetchFailure marks a network, status, timeout or render failure for one page.
	ErrFetchFailure = errors.New("fetch failure")
	// ErrExtractionGap marks a listing block missing a mandatory element.
	ErrExtractionGap = errors.New("extraction gap")
	// ErrStoreConflict is returned by RecordStore.Insert when the identity is already stored.
	ErrStoreConflict = errors.New("store conflict")
	// ErrNotFound is returned when a stored record does not exist.
	ErrNotFound = errors.New("not found")
)

// Source describes one crawlable listing.
type Source struct {
	Tag  SourceTag
	Kind RecordKind
	// BaseURL is the canonical first-page URL of the listing.
	BaseURL string
	// Origin is used to resolve relative hrefs found in the markup.
	Origin string
	// PageParam is the query parameter carrying the page number. Empty means unpaged.
	PageParam string
	// Marker is the CSS selector a rendering fetch waits for.
	Marker string
}

// Page is the raw markup returned by a Fetcher for one logical page.
type Page struct {
	Source     SourceTag
	Number     int
	URL        string
	StatusCode int
	Body       []byte
	Duration   time.Duration
	Rendered   bool
}

// Record is a candidate produced by extraction and not yet persisted.
type Record struct {
	Identity     string     `json:"url"`
	Source       SourceTag  `json:"source"`
	Kind         RecordKind `json:"kind"`
	Title        string     `json:"title"`
	Organization string     `json:"company,omitempty"`
	Location     string     `json:"location,omitempty"`
	Description  string     `json:"description,omitempty"`
	ExternalID   *string    `json:"external_id,omitempty"`
	DatePosted   *string    `json:"date_posted,omitempty"`
	ExtractedAt  *time.Time `json:"scraped_at,omitempty"`
}

// StoredRecord is a Record with its store-assigned surrogate key.
type StoredRecord struct {
	ID int64 `json:"id"`
	Record
}

// ListQuery filters and paginates stored records. Filters are case-insensitive substrings.
type ListQuery struct {
	Kind         RecordKind
	Title        string
	Organization string
	Location     string
	Offset       int
	// Limit of zero means no limit.
	Limit int
}

// StopReason explains why a crawl stopped walking pages.
type StopReason string

// Crawl stop reasons.
const (
	StopExhausted     StopReason = "exhausted"
	StopKnownRecord   StopReason = "known_record"
	StopFetchFailure  StopReason = "fetch_failure"
	StopPageCap       StopReason = "page_cap"
	StopLookupFailure StopReason = "lookup_failure"
	StopCanceled      StopReason = "canceled"
	StopCommitFailure StopReason = "commit_failure"
)

// CrawlOptions parameterize a full crawl.
type CrawlOptions struct {
	StartPage int
	// MaxPages of zero walks until the listing is exhausted or a fetch fails.
	MaxPages int
}

// CrawlResult is returned by both crawl modes.
type CrawlResult struct {
	Records []Record
	// Pages counts successfully fetched pages, including a terminating empty page.
	Pages int
	Stop  StopReason
	// Err carries the cause for fetch, lookup, commit or cancellation stops.
	Err error
}

// CommitResult reports what a Writer did with a batch.
type CommitResult struct {
	Inserted int `json:"inserted"`
	Skipped  int `json:"skipped"`
}

// RecordInserted is published for every record promoted to storage.
type RecordInserted struct {
	ID         int64      `json:"id"`
	Kind       RecordKind `json:"kind"`
	Source     SourceTag  `json:"source"`
	URL        string     `json:"url"`
	Title      string     `json:"title"`
	InsertedAt time.Time  `json:"inserted_at"`
}

// Attributes returns the message attributes subscribers can filter on.
func (e RecordInserted) Attributes() map[string]string {
	return map[string]string{
		"kind":   string(e.Kind),
		"source": string(e.Source),
	}
}

// StringPtr returns a pointer to s.
func StringPtr(s string) *string {
	return &s
}
