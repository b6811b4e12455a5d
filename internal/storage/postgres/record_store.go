// Package postgres provides the Postgres-backed record store.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/listing-crawler/internal/crawler"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

const defaultTable = "records"

// Config controls the Postgres connection pool used for records.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Ping(context.Context) error
	Close()
}

// RecordStore implements crawler.RecordStore on a single table keyed by
// (kind, url).
type RecordStore struct {
	pool  pool
	table string
}

// New connects a pool using cfg.
func New(ctx context.Context, cfg Config) (*RecordStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	store, err := NewWithPool(p, cfg.Table)
	if err != nil {
		p.Close()
		return nil, err
	}
	return store, nil
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(p pool, table string) (*RecordStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &RecordStore{pool: p, table: table}, nil
}

// Close releases the underlying pool resources.
func (s *RecordStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Ping checks connectivity.
func (s *RecordStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// EnsureSchema creates the records table and its uniqueness constraint when missing.
func (s *RecordStore) EnsureSchema(ctx context.Context) error {
	ddl := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %[1]s (
	id           BIGSERIAL PRIMARY KEY,
	kind         TEXT NOT NULL,
	source       TEXT NOT NULL,
	url          TEXT NOT NULL,
	title        TEXT NOT NULL DEFAULT '',
	company      TEXT NOT NULL DEFAULT '',
	location     TEXT NOT NULL DEFAULT '',
	description  TEXT NOT NULL DEFAULT '',
	external_id  TEXT,
	date_posted  TEXT,
	extracted_at TIMESTAMPTZ,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	CONSTRAINT %[1]s_kind_url_key UNIQUE (kind, url)
)`, s.table)
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("create %s table: %w", s.table, err)
	}
	return nil
}

// Exists reports whether identity is stored under kind.
func (s *RecordStore) Exists(ctx context.Context, kind crawler.RecordKind, identity string) (bool, error) {
	query := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE kind = $1 AND url = $2)`, s.table)
	var exists bool
	if err := s.pool.QueryRow(ctx, query, string(kind), identity).Scan(&exists); err != nil {
		return false, fmt.Errorf("check record exists: %w", err)
	}
	return exists, nil
}

// Insert stores rec. A row already holding (kind, url) yields crawler.ErrStoreConflict.
func (s *RecordStore) Insert(ctx context.Context, rec crawler.Record) (crawler.StoredRecord, error) {
	query := fmt.Sprintf(`
INSERT INTO %s (
	kind,
	source,
	url,
	title,
	company,
	location,
	description,
	external_id,
	date_posted,
	extracted_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10
)
ON CONFLICT (kind, url) DO NOTHING
RETURNING id`, s.table)

	var id int64
	err := s.pool.QueryRow(ctx, query,
		string(rec.Kind),
		string(rec.Source),
		rec.Identity,
		rec.Title,
		rec.Organization,
		rec.Location,
		rec.Description,
		rec.ExternalID,
		rec.DatePosted,
		rec.ExtractedAt,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return crawler.StoredRecord{}, crawler.ErrStoreConflict
	}
	if err != nil {
		return crawler.StoredRecord{}, fmt.Errorf("insert record: %w", err)
	}
	return crawler.StoredRecord{ID: id, Record: rec}, nil
}

// Count returns the number of records of kind.
func (s *RecordStore) Count(ctx context.Context, kind crawler.RecordKind) (int, error) {
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE kind = $1`, s.table)
	var n int64
	if err := s.pool.QueryRow(ctx, query, string(kind)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return int(n), nil
}

// filterClause matches case-insensitive substrings; an empty filter matches all rows.
const filterClause = `kind = $1
	AND ($2::text = '' OR title ILIKE '%' || $2::text || '%')
	AND ($3::text = '' OR company ILIKE '%' || $3::text || '%')
	AND ($4::text = '' OR location ILIKE '%' || $4::text || '%')`

// List returns one page of matching records ordered by id, plus the total match count.
func (s *RecordStore) List(ctx context.Context, q crawler.ListQuery) ([]crawler.StoredRecord, int, error) {
	filters := []any{string(q.Kind), q.Title, q.Organization, q.Location}

	var total int64
	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE %s`, s.table, filterClause)
	if err := s.pool.QueryRow(ctx, countQuery, filters...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count matching records: %w", err)
	}

	pageQuery := fmt.Sprintf(`SELECT %s FROM %s WHERE %s
ORDER BY id
LIMIT NULLIF($5::int, 0) OFFSET $6`, selectColumns, s.table, filterClause)
	rows, err := s.pool.Query(ctx, pageQuery, append(filters, q.Limit, max(q.Offset, 0))...)
	if err != nil {
		return nil, 0, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	results := make([]crawler.StoredRecord, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, 0, err
		}
		results = append(results, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate records: %w", err)
	}
	return results, int(total), nil
}

// Get fetches a record by id within kind.
func (s *RecordStore) Get(ctx context.Context, kind crawler.RecordKind, id int64) (crawler.StoredRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE kind = $1 AND id = $2`, selectColumns, s.table)
	rec, err := scanRecord(s.pool.QueryRow(ctx, query, string(kind), id))
	if errors.Is(err, pgx.ErrNoRows) {
		return crawler.StoredRecord{}, crawler.ErrNotFound
	}
	if err != nil {
		return crawler.StoredRecord{}, err
	}
	return rec, nil
}

const selectColumns = `id, kind, source, url, title, company, location, description, external_id, date_posted, extracted_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (crawler.StoredRecord, error) {
	var (
		rec    crawler.StoredRecord
		kind   string
		source string
	)
	err := row.Scan(
		&rec.ID,
		&kind,
		&source,
		&rec.Identity,
		&rec.Title,
		&rec.Organization,
		&rec.Location,
		&rec.Description,
		&rec.ExternalID,
		&rec.DatePosted,
		&rec.ExtractedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return crawler.StoredRecord{}, err
	}
	if err != nil {
		return crawler.StoredRecord{}, fmt.Errorf("scan record: %w", err)
	}
	rec.Kind = crawler.RecordKind(kind)
	rec.Source = crawler.SourceTag(source)
	return rec, nil
}
