package crawler

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/stretchr/testify/mock"
)

// scriptedFetcher serves a fixed page script. Page n is pages[n-1]; a page listed in
// failAt fails, pages past the script are empty.
type scriptedFetcher struct {
	mu     sync.Mutex
	pages  [][]string
	failAt map[int]bool
	calls  []int
}

func (f *scriptedFetcher) Fetch(_ context.Context, source Source, page int) (Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, page)
	if f.failAt[page] {
		return Page{}, fmt.Errorf("%w: page %d: unexpected status 503", ErrFetchFailure, page)
	}
	var ids []string
	if page-1 < len(f.pages) {
		ids = f.pages[page-1]
	}
	return Page{Source: source.Tag, Number: page, StatusCode: 200, Body: []byte(strings.Join(ids, ","))}, nil
}

func (f *scriptedFetcher) fetched() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.calls...)
}

// csvExtractor turns "a,b,c" into records with identities https://jobs/a etc.
type csvExtractor struct{}

func (csvExtractor) Extract(markup []byte) []Record {
	if len(markup) == 0 {
		return nil
	}
	var out []Record
	for _, id := range strings.Split(string(markup), ",") {
		out = append(out, jobRecord(id))
	}
	return out
}

func jobRecord(id string) Record {
	return Record{
		Identity: "https://jobs/" + id,
		Source:   SourceKeejob,
		Kind:     KindJob,
		Title:    "job " + id,
	}
}

func identities(records []Record) []string {
	out := make([]string, 0, len(records))
	for _, rec := range records {
		out = append(out, strings.TrimPrefix(rec.Identity, "https://jobs/"))
	}
	return out
}

var jobSource = Source{
	Tag:       SourceKeejob,
	Kind:      KindJob,
	BaseURL:   "https://www.keejob.com/offres-emploi/",
	Origin:    "https://www.keejob.com",
	PageParam: "page",
}

// mapStore is a minimal RecordStore keyed by kind and identity.
type mapStore struct {
	mu        sync.Mutex
	records   []StoredRecord
	index     map[string]int
	existsErr error
	insertErr error
	// conflictOn makes Insert report a conflict for the identity, as if another
	// writer had stored it between Exists and Insert.
	conflictOn map[string]bool
}

func newMapStore(known ...string) *mapStore {
	s := &mapStore{index: map[string]int{}}
	for _, id := range known {
		_, _ = s.Insert(context.Background(), jobRecord(id))
	}
	return s
}

func (s *mapStore) key(kind RecordKind, identity string) string {
	return string(kind) + "|" + identity
}

func (s *mapStore) Exists(_ context.Context, kind RecordKind, identity string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.existsErr != nil {
		return false, s.existsErr
	}
	_, ok := s.index[s.key(kind, identity)]
	return ok, nil
}

func (s *mapStore) Insert(_ context.Context, rec Record) (StoredRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return StoredRecord{}, s.insertErr
	}
	k := s.key(rec.Kind, rec.Identity)
	if _, ok := s.index[k]; ok || s.conflictOn[rec.Identity] {
		return StoredRecord{}, ErrStoreConflict
	}
	stored := StoredRecord{ID: int64(len(s.records) + 1), Record: rec}
	s.records = append(s.records, stored)
	s.index[k] = len(s.records) - 1
	return stored, nil
}

func (s *mapStore) Count(_ context.Context, kind RecordKind) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, rec := range s.records {
		if rec.Kind == kind {
			n++
		}
	}
	return n, nil
}

func (s *mapStore) List(_ context.Context, q ListQuery) ([]StoredRecord, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []StoredRecord
	for _, rec := range s.records {
		if rec.Kind == q.Kind {
			out = append(out, rec)
		}
	}
	return out, len(out), nil
}

func (s *mapStore) Get(_ context.Context, kind RecordKind, id int64) (StoredRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.records {
		if rec.ID == id && rec.Kind == kind {
			return rec, nil
		}
	}
	return StoredRecord{}, ErrNotFound
}

func (s *mapStore) stored() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, strings.TrimPrefix(rec.Identity, "https://jobs/"))
	}
	return out
}

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(ctx context.Context, topic string, payload any) (string, error) {
	args := m.Called(ctx, topic, payload)
	return args.String(0), args.Error(1)
}

type mockArchive struct {
	mock.Mock
}

func (m *mockArchive) PutObject(ctx context.Context, path, contentType string, data []byte) (string, error) {
	args := m.Called(ctx, path, contentType, data)
	return args.String(0), args.Error(1)
}

type sequenceIDs struct {
	mu sync.Mutex
	n  int
}

func (g *sequenceIDs) NewID() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("run-%d", g.n), nil
}
