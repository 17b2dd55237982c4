// Package postgres mirrors extraction records and run bookkeeping into Postgres.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/gramcrawl/internal/crawler"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

const (
	defaultRecordTable = "extraction_records"
	defaultRunTable    = "crawl_runs"
)

// Config controls the Postgres connection pool and table names.
type Config struct {
	DSN             string
	RecordTable     string
	RunTable        string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// RecordStore writes records and run rows.
type RecordStore struct {
	pool        execCloser
	runID       string
	recordTable string
	runTable    string
}

// NewRecordStore connects to Postgres and returns a store scoped to runID.
func NewRecordStore(ctx context.Context, cfg Config, runID string) (*RecordStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("records.postgres.dsn is required")
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
	store, err := NewRecordStoreWithPool(pool, cfg.RecordTable, cfg.RunTable, runID)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

// NewRecordStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewRecordStoreWithPool(pool execCloser, recordTable, runTable, runID string) (*RecordStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if runID == "" {
		return nil, fmt.Errorf("run id is required")
	}
	if recordTable == "" {
		recordTable = defaultRecordTable
	}
	if runTable == "" {
		runTable = defaultRunTable
	}
	for _, table := range []string{recordTable, runTable} {
		if !validTableName.MatchString(table) {
			return nil, fmt.Errorf("invalid table name %q", table)
		}
	}
	return &RecordStore{pool: pool, runID: runID, recordTable: recordTable, runTable: runTable}, nil
}

// Close releases the underlying pool resources.
func (s *RecordStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the tables when they do not exist yet.
func (s *RecordStore) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	run_id      TEXT PRIMARY KEY,
	started_at  TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ,
	report_url  TEXT,
	summary     JSONB
)`, s.runTable),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id          BIGSERIAL PRIMARY KEY,
	run_id      TEXT NOT NULL,
	record_type TEXT NOT NULL,
	url         TEXT NOT NULL,
	scraped_at  TIMESTAMPTZ NOT NULL,
	payload     JSONB NOT NULL
)`, s.recordTable),
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// StartRun inserts the run row.
func (s *RecordStore) StartRun(ctx context.Context, rc crawler.RunContext) error {
	query := fmt.Sprintf(`
INSERT INTO %s (run_id, started_at, report_url)
VALUES ($1, $2, $3)
ON CONFLICT (run_id) DO NOTHING`, s.runTable)
	if _, err := s.pool.Exec(ctx, query, s.runID, rc.StartedAt, rc.ReportURL); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// FinishRun stores the final summary on the run row.
func (s *RecordStore) FinishRun(ctx context.Context, finishedAt time.Time, summary crawler.Summary) error {
	payload, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	query := fmt.Sprintf(`
UPDATE %s
SET finished_at = $1, summary = $2
WHERE run_id = $3`, s.runTable)
	if _, err := s.pool.Exec(ctx, query, finishedAt, payload, s.runID); err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return nil
}

// WriteRecord inserts one record row. It implements crawler.RecordWriter.
func (s *RecordStore) WriteRecord(ctx context.Context, rec crawler.Record) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("record store is not configured")
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	run_id,
	record_type,
	url,
	scraped_at,
	payload
) VALUES (
	$1,$2,$3,$4,$5
)`, s.recordTable)
	if _, err := s.pool.Exec(ctx, query, s.runID, string(rec.Type), rec.URL, rec.ScrapedAt, payload); err != nil {
		return fmt.Errorf("insert record: %w", err)
	}
	return nil
}
