// Package postgres mirrors festival records into a Postgres table.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/festival-crawler/internal/crawler"
)

const defaultTable = "festival_records"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool used for record rows.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// RecordStore writes festival records into Postgres.
type RecordStore struct {
	pool  execCloser
	table string
}

// NewRecordStore connects a pool using cfg.
func NewRecordStore(ctx context.Context, cfg Config) (*RecordStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("postgres.dsn is required")
	}
	table, err := tableName(cfg.Table)
	if err != nil {
		return nil, err
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
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &RecordStore{pool: pool, table: table}, nil
}

// NewRecordStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewRecordStoreWithPool(pool execCloser, table string) (*RecordStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	table, err := tableName(table)
	if err != nil {
		return nil, err
	}
	return &RecordStore{pool: pool, table: table}, nil
}

func tableName(table string) (string, error) {
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// Close releases the underlying pool resources.
func (s *RecordStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the record table when it does not exist.
func (s *RecordStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	record_id      TEXT PRIMARY KEY,
	name           TEXT NOT NULL,
	deadlines      TEXT[] NOT NULL,
	opening_date   TEXT,
	article_date   TEXT,
	location       TEXT,
	all_date_items JSONB NOT NULL,
	source_url     TEXT NOT NULL,
	depth          INTEGER NOT NULL,
	extracted_at   TIMESTAMPTZ NOT NULL
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create table %s: %w", s.table, err)
	}
	return nil
}

// StoreRecord inserts one record. Re-inserting a record_id is a no-op.
func (s *RecordStore) StoreRecord(ctx context.Context, record crawler.FestivalRecord) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("record store is not configured")
	}
	if record.RecordID == "" {
		return fmt.Errorf("record id is required")
	}
	extractedAt, err := time.Parse(time.RFC3339, record.ExtractedAt)
	if err != nil {
		return fmt.Errorf("parse extracted_at %q: %w", record.ExtractedAt, err)
	}
	items := record.DateItems
	if items == nil {
		items = []crawler.DateItem{}
	}
	itemsJSON, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("marshal date items: %w", err)
	}
	deadlines := record.Deadlines
	if deadlines == nil {
		deadlines = []string{}
	}

	query := fmt.Sprintf(`
INSERT INTO %s (
	record_id,
	name,
	deadlines,
	opening_date,
	article_date,
	location,
	all_date_items,
	source_url,
	depth,
	extracted_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10
) ON CONFLICT (record_id) DO NOTHING`, s.table)

	args := []any{
		record.RecordID,
		record.Name,
		deadlines,
		nullable(record.OpeningDate),
		nullable(record.ArticleDate),
		nullable(record.Location),
		itemsJSON,
		record.SourceURL,
		record.Depth,
		extractedAt,
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert festival record: %w", err)
	}
	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
