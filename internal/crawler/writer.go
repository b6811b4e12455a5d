package crawler

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/listing-crawler/internal/clock/system"
	"github.com/JakeFAU/listing-crawler/internal/metrics"
)

// Writer commits candidate records, inserting only identities the store has not seen.
//
// Records are flushed one at a time. A batch-local staging set catches the same
// identity appearing twice within one batch, and the store's conflict check catches a
// concurrent writer that got there first.
type Writer struct {
	store     RecordStore
	publisher Publisher
	topic     string
	clock     Clock
	logger    *zap.Logger
}

// WriterOption customizes a Writer.
type WriterOption func(*Writer)

// WithPublisher announces every inserted record on topic.
func WithPublisher(publisher Publisher, topic string) WriterOption {
	return func(w *Writer) {
		w.publisher = publisher
		w.topic = topic
	}
}

// WithClock overrides the clock used for event timestamps.
func WithClock(clock Clock) WriterOption {
	return func(w *Writer) {
		w.clock = clock
	}
}

// NewWriter constructs a Writer over store.
func NewWriter(store RecordStore, logger *zap.Logger, opts ...WriterOption) *Writer {
	if logger == nil {
		logger = zap.NewNop()
	}
	w := &Writer{
		store:  store,
		clock:  system.New(),
		logger: logger,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Commit persists each candidate whose identity is not stored yet, in order.
// On a store error the counts gathered so far are returned with the error.
func (w *Writer) Commit(ctx context.Context, candidates []Record) (CommitResult, error) {
	var res CommitResult
	staged := make(map[stageKey]struct{}, len(candidates))
	for _, rec := range candidates {
		key := stageKey{kind: rec.Kind, identity: rec.Identity}
		if rec.Identity == "" {
			w.logger.Debug("skipping record without identity", zap.String("title", rec.Title))
			res.Skipped++
			continue
		}
		if _, dup := staged[key]; dup {
			res.Skipped++
			continue
		}
		staged[key] = struct{}{}

		exists, err := w.store.Exists(ctx, rec.Kind, rec.Identity)
		if err != nil {
			return w.done(res, rec.Kind), fmt.Errorf("check identity %q: %w", rec.Identity, err)
		}
		if exists {
			res.Skipped++
			continue
		}
		stored, err := w.store.Insert(ctx, rec)
		if errors.Is(err, ErrStoreConflict) {
			res.Skipped++
			continue
		}
		if err != nil {
			return w.done(res, rec.Kind), fmt.Errorf("insert %q: %w", rec.Identity, err)
		}
		res.Inserted++
		w.announce(ctx, stored)
	}
	return w.done(res, kindOf(candidates)), nil
}

func (w *Writer) announce(ctx context.Context, stored StoredRecord) {
	if w.publisher == nil || w.topic == "" {
		return
	}
	event := RecordInserted{
		ID:         stored.ID,
		Kind:       stored.Kind,
		Source:     stored.Source,
		URL:        stored.Identity,
		Title:      stored.Title,
		InsertedAt: w.clock.Now(),
	}
	if _, err := w.publisher.Publish(ctx, w.topic, event); err != nil {
		w.logger.Warn("publish insert event failed", zap.Int64("id", stored.ID), zap.Error(err))
	}
}

func (w *Writer) done(res CommitResult, kind RecordKind) CommitResult {
	metrics.ObserveCommit(string(kind), res.Inserted, res.Skipped)
	w.logger.Info("batch committed",
		zap.String("kind", string(kind)),
		zap.Int("inserted", res.Inserted),
		zap.Int("skipped", res.Skipped),
	)
	return res
}

type stageKey struct {
	kind     RecordKind
	identity string
}

func kindOf(records []Record) RecordKind {
	if len(records) == 0 {
		return ""
	}
	return records[0].Kind
}
