package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/JakeFAU/listing-crawler/internal/crawler"
)

// RecordStore provides an in-memory crawler.RecordStore for development/testing.
type RecordStore struct {
	mu      sync.RWMutex
	nextID  int64
	records map[int64]crawler.StoredRecord
	index   map[identityKey]int64
}

type identityKey struct {
	kind     crawler.RecordKind
	identity string
}

// NewRecordStore constructs an empty RecordStore.
func NewRecordStore() *RecordStore {
	return &RecordStore{
		records: make(map[int64]crawler.StoredRecord),
		index:   make(map[identityKey]int64),
	}
}

// Exists reports whether identity is stored under kind.
func (s *RecordStore) Exists(_ context.Context, kind crawler.RecordKind, identity string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.index[identityKey{kind: kind, identity: identity}]
	return ok, nil
}

// Insert stores rec under the next ID. The uniqueness check and the write happen
// under one lock, so a duplicate always yields crawler.ErrStoreConflict.
func (s *RecordStore) Insert(_ context.Context, rec crawler.Record) (crawler.StoredRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := identityKey{kind: rec.Kind, identity: rec.Identity}
	if _, ok := s.index[key]; ok {
		return crawler.StoredRecord{}, crawler.ErrStoreConflict
	}
	s.nextID++
	stored := crawler.StoredRecord{ID: s.nextID, Record: rec}
	s.records[stored.ID] = stored
	s.index[key] = stored.ID
	return stored, nil
}

// Count returns the number of records of kind.
func (s *RecordStore) Count(_ context.Context, kind crawler.RecordKind) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for key := range s.index {
		if key.kind == kind {
			n++
		}
	}
	return n, nil
}

// List returns one page of matching records ordered by ID, plus the total match count.
func (s *RecordStore) List(_ context.Context, q crawler.ListQuery) ([]crawler.StoredRecord, int, error) {
	s.mu.RLock()
	matched := make([]crawler.StoredRecord, 0, len(s.records))
	for _, rec := range s.records {
		if matches(rec, q) {
			matched = append(matched, rec)
		}
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })
	total := len(matched)
	offset := min(max(q.Offset, 0), total)
	end := total
	if q.Limit > 0 {
		end = min(offset+q.Limit, total)
	}
	return matched[offset:end], total, nil
}

// Get fetches a record by ID within kind.
func (s *RecordStore) Get(_ context.Context, kind crawler.RecordKind, id int64) (crawler.StoredRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok || rec.Kind != kind {
		return crawler.StoredRecord{}, crawler.ErrNotFound
	}
	return rec, nil
}

func matches(rec crawler.StoredRecord, q crawler.ListQuery) bool {
	return rec.Kind == q.Kind &&
		containsFold(rec.Title, q.Title) &&
		containsFold(rec.Organization, q.Organization) &&
		containsFold(rec.Location, q.Location)
}

func containsFold(s, substr string) bool {
	return substr == "" || strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
