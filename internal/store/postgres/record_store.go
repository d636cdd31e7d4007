// Package postgres persists crawled records to PostgreSQL with fail-soft
// semantics: an unreachable database degrades persistence instead of
// aborting the run.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/wenlu/paperdredge/internal/crawler"
)

// validTableName guards against interpolating anything but a plain
// identifier into DDL/DML. Table names cannot be bind parameters.
var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// pool is the subset of pgxpool.Pool the store touches; narrowed for
// pgxmock.
type pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Close()
}

// Config controls the connection and write behavior.
type Config struct {
	DSN   string
	Table string
	// Upsert switches inserts to ON CONFLICT (title, pub_date) DO UPDATE,
	// refreshing authors and file_name on re-crawls instead of
	// accumulating duplicates.
	Upsert   bool
	MaxConns int32
	MinConns int32
}

// RecordStore implements crawler.RecordStore. A store that failed to
// connect or to ensure its schema is degraded: Save reports
// crawler.ErrStoreDegraded without touching the pool.
type RecordStore struct {
	pool     pool
	table    string
	upsert   bool
	degraded bool
	logger   *zap.Logger
}

// New connects and ensures the schema. Connection failure is not fatal;
// the returned store is degraded and the run proceeds without
// persistence.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*RecordStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Table == "" {
		cfg.Table = "papers"
	}
	if !validTableName.MatchString(cfg.Table) {
		return nil, fmt.Errorf("invalid table name %q", cfg.Table)
	}

	s := &RecordStore{table: cfg.Table, upsert: cfg.Upsert, logger: logger}

	if cfg.DSN == "" {
		logger.Warn("no database DSN configured, persistence disabled")
		s.degraded = true
		return s, nil
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	poolCfg.MaxConnLifetime = time.Hour

	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		logger.Warn("database unavailable, continuing without persistence", zap.Error(err))
		s.degraded = true
		return s, nil
	}
	s.pool = p

	if err := s.ensureSchema(ctx); err != nil {
		logger.Warn("schema setup failed, continuing without persistence", zap.Error(err))
		p.Close()
		s.pool = nil
		s.degraded = true
		return s, nil
	}
	return s, nil
}

// NewWithPool wires a store over an existing pool; used by tests to
// substitute pgxmock.
func NewWithPool(p pool, table string, upsert bool, logger *zap.Logger) (*RecordStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if table == "" {
		table = "papers"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &RecordStore{pool: p, table: table, upsert: upsert, logger: logger}, nil
}

// ensureSchema creates the table and, for upsert mode, the conflict
// target index. Doubles as the connectivity probe.
func (s *RecordStore) ensureSchema(ctx context.Context) error {
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id BIGSERIAL PRIMARY KEY,
		title TEXT NOT NULL,
		authors TEXT,
		pub_date TEXT,
		page INT,
		file_name TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`, s.table)
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("create table %s: %w", s.table, err)
	}
	if s.upsert {
		idx := fmt.Sprintf(
			`CREATE UNIQUE INDEX IF NOT EXISTS %s_title_pub_date_key ON %s (title, pub_date)`,
			s.table, s.table,
		)
		if _, err := s.pool.Exec(ctx, idx); err != nil {
			return fmt.Errorf("create conflict index: %w", err)
		}
	}
	return nil
}

// Save writes one record. A degraded store fails soft with
// crawler.ErrStoreDegraded so callers can tell "expected, already
// reported" from a fresh write error.
func (s *RecordStore) Save(ctx context.Context, rec crawler.Record) error {
	if s.degraded {
		return crawler.ErrStoreDegraded
	}

	var fileName *string
	if rec.FileName != "" {
		fileName = &rec.FileName
	}

	sql := fmt.Sprintf(
		`INSERT INTO %s (title, authors, pub_date, page, file_name) VALUES ($1, $2, $3, $4, $5)`,
		s.table,
	)
	if s.upsert {
		sql += ` ON CONFLICT (title, pub_date) DO UPDATE
			SET authors = EXCLUDED.authors,
			    page = EXCLUDED.page,
			    file_name = COALESCE(EXCLUDED.file_name, ` + s.table + `.file_name)`
	}

	if _, err := s.pool.Exec(ctx, sql,
		rec.Title, rec.AuthorText(), rec.PubDate, rec.Page, fileName,
	); err != nil {
		return fmt.Errorf("insert record %q: %w", rec.Title, err)
	}
	return nil
}

// Degraded reports whether persistence is disabled for this run.
func (s *RecordStore) Degraded() bool { return s.degraded }

// Close releases the pool.
func (s *RecordStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}
