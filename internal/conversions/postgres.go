package conversions

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists conversion records in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initPostgresSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func initPostgresSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS conversions (
			id TEXT PRIMARY KEY,
			sender TEXT NOT NULL,
			status TEXT NOT NULL,
			feature TEXT NOT NULL DEFAULT '',
			input_type TEXT NOT NULL DEFAULT '',
			output_type TEXT NOT NULL DEFAULT '',
			input_bytes BIGINT NOT NULL DEFAULT 0,
			output_bytes BIGINT NOT NULL DEFAULT 0,
			processing_ms BIGINT NOT NULL DEFAULT 0,
			error TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_conversions_created ON conversions (created_at);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) Record(ctx context.Context, rec Record) error {
	rec = normalize(rec, time.Now().UTC())
	_, err := s.pool.Exec(ctx,
		`INSERT INTO conversions (id, sender, status, feature, input_type, output_type,
			input_bytes, output_bytes, processing_ms, error, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			feature = COALESCE(NULLIF(EXCLUDED.feature, ''), conversions.feature),
			input_type = COALESCE(NULLIF(EXCLUDED.input_type, ''), conversions.input_type),
			output_type = COALESCE(NULLIF(EXCLUDED.output_type, ''), conversions.output_type),
			input_bytes = GREATEST(EXCLUDED.input_bytes, conversions.input_bytes),
			output_bytes = GREATEST(EXCLUDED.output_bytes, conversions.output_bytes),
			processing_ms = GREATEST(EXCLUDED.processing_ms, conversions.processing_ms),
			error = COALESCE(NULLIF(EXCLUDED.error, ''), conversions.error),
			updated_at = EXCLUDED.updated_at`,
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
		rec.CreatedAt,
		rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("record conversion: %w", err)
	}
	return nil
}

func (s *PostgresStore) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, sender, status, feature, input_type, output_type, input_bytes,
			output_bytes, processing_ms, error, created_at, updated_at
		 FROM conversions ORDER BY created_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query recent conversions: %w", err)
	}
	defer rows.Close()

	items := make([]Record, 0, limit)
	for rows.Next() {
		var r Record
		var status string
		if err := rows.Scan(&r.ID, &r.Sender, &status, &r.Feature, &r.InputType, &r.OutputType,
			&r.InputBytes, &r.OutputBytes, &r.ProcessingMS, &r.Error, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan conversion row: %w", err)
		}
		r.Status = Status(status)
		items = append(items, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversion rows: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
