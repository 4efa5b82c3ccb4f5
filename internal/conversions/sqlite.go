package conversions

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// sqliteTimeLayout is fixed-width so text ordering matches time ordering.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore persists conversion records in a local SQLite file. Suitable
// for single-instance deployments without a database server.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := initSQLiteSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func initSQLiteSchema(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`PRAGMA journal_mode = WAL;`,
		`PRAGMA busy_timeout = 5000;`,
		`CREATE TABLE IF NOT EXISTS conversions (
			id TEXT PRIMARY KEY,
			sender TEXT NOT NULL,
			status TEXT NOT NULL,
			feature TEXT NOT NULL DEFAULT '',
			input_type TEXT NOT NULL DEFAULT '',
			output_type TEXT NOT NULL DEFAULT '',
			input_bytes INTEGER NOT NULL DEFAULT 0,
			output_bytes INTEGER NOT NULL DEFAULT 0,
			processing_ms INTEGER NOT NULL DEFAULT 0,
			error TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_conversions_created ON conversions (created_at);`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *SQLiteStore) Record(ctx context.Context, rec Record) error {
	rec = normalize(rec, time.Now().UTC())
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversions (id, sender, status, feature, input_type, output_type,
			input_bytes, output_bytes, processing_ms, error, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
			status = excluded.status,
			feature = COALESCE(NULLIF(excluded.feature, ''), conversions.feature),
			input_type = COALESCE(NULLIF(excluded.input_type, ''), conversions.input_type),
			output_type = COALESCE(NULLIF(excluded.output_type, ''), conversions.output_type),
			input_bytes = MAX(excluded.input_bytes, conversions.input_bytes),
			output_bytes = MAX(excluded.output_bytes, conversions.output_bytes),
			processing_ms = MAX(excluded.processing_ms, conversions.processing_ms),
			error = COALESCE(NULLIF(excluded.error, ''), conversions.error),
			updated_at = excluded.updated_at`,
		rec.ID,
		rec.Sender,
		string(rec.Status),
		rec.Feature,
		rec.InputType,
		rec.OutputType,
		rec.InputBytes,
		rec.OutputBytes,
		rec.ProcessingMS,
		rec.Error,
		rec.CreatedAt.UTC().Format(sqliteTimeLayout),
		rec.UpdatedAt.UTC().Format(sqliteTimeLayout),
	)
	if err != nil {
		return fmt.Errorf("record conversion: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, sender, status, feature, input_type, output_type, input_bytes,
			output_bytes, processing_ms, error, created_at, updated_at
		 FROM conversions ORDER BY created_at DESC, rowid DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query recent conversions: %w", err)
	}
	defer rows.Close()

	items := make([]Record, 0, limit)
	for rows.Next() {
		var r Record
		var status, created, updated string
		if err := rows.Scan(&r.ID, &r.Sender, &status, &r.Feature, &r.InputType, &r.OutputType,
			&r.InputBytes, &r.OutputBytes, &r.ProcessingMS, &r.Error, &created, &updated); err != nil {
			return nil, fmt.Errorf("scan conversion row: %w", err)
		}
		r.Status = Status(status)
		r.CreatedAt, _ = time.Parse(sqliteTimeLayout, created)
		r.UpdatedAt, _ = time.Parse(sqliteTimeLayout, updated)
		items = append(items, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversion rows: %w", err)
	}
	return items, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
