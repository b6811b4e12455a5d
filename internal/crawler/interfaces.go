package crawler

import (
	"context"
	"time"
)

// Fetcher retrieves the raw markup of one page of a source.
// Failures are returned wrapped in ErrFetchFailure.
type Fetcher interface {
	Fetch(ctx context.Context, source Source, page int) (Page, error)
}

// Extractor turns raw markup into candidate records in document order.
// Implementations must not fail; broken markup yields zero records.
type Extractor interface {
	Extract(markup []byte) []Record
}

// IdentityPredicate reports whether a record with the given identity is already stored.
type IdentityPredicate func(ctx context.Context, identity string) (bool, error)

// PageSink receives the new records of each crawled page before the next page is
// fetched. An error ends the crawl with StopCommitFailure.
type PageSink func(ctx context.Context, records []Record) error

// RecordStore persists records and enforces identity uniqueness per kind.
type RecordStore interface {
	Exists(ctx context.Context, kind RecordKind, identity string) (bool, error)
	// Insert stores rec and returns ErrStoreConflict if its identity is already present.
	Insert(ctx context.Context, rec Record) (StoredRecord, error)
	Count(ctx context.Context, kind RecordKind) (int, error)
	List(ctx context.Context, query ListQuery) ([]StoredRecord, int, error)
	Get(ctx context.Context, kind RecordKind, id int64) (StoredRecord, error)
}

// Archive writes raw artifacts and returns a URI.
type Archive interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Hasher produces a stable digest of raw page markup.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Publisher pushes insert events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces crawl run IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
