package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dunamismax/pixelbatch/internal/domain"
	_ "github.com/lib/pq"
)

const resultSchemaSQL = `
CREATE TABLE IF NOT EXISTS file_results (
	id BIGSERIAL PRIMARY KEY,
	run_id TEXT NOT NULL,
	source TEXT NOT NULL,
	output TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	stage TEXT NOT NULL,
	error TEXT NOT NULL DEFAULT '',
	width INTEGER NOT NULL DEFAULT 0,
	height INTEGER NOT NULL DEFAULT 0,
	bytes BIGINT NOT NULL DEFAULT 0,
	duration_ms BIGINT NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS file_results_run_id_idx ON file_results (run_id);
`

type PostgresResultStore struct {
	db *sql.DB
}

func NewPostgresResultStore(ctx context.Context, dsn string) (*PostgresResultStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	store := &PostgresResultStore{db: db}
	if err := store.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

func (s *PostgresResultStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, resultSchemaSQL); err != nil {
		return fmt.Errorf("ensure file_results schema: %w", err)
	}
	return nil
}

func (s *PostgresResultStore) Close() error {
	return s.db.Close()
}

func (s *PostgresResultStore) Record(ctx context.Context, result domain.FileResult) error {
	createdAt := result.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO file_results (run_id, source, output, status, stage, error, width, height, bytes, duration_ms, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		result.RunID,
		result.Source,
		result.Output,
		result.Status,
		result.Stage,
		result.Error,
		result.Width,
		result.Height,
		result.Bytes,
		result.Duration.Milliseconds(),
		createdAt,
	)
	if err != nil {
		return fmt.Errorf("insert file result: %w", err)
	}
	return nil
}

func (s *PostgresResultStore) ListRun(ctx context.Context, runID string) ([]domain.FileResult, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT run_id, source, output, status, stage, error, width, height, bytes, duration_ms, created_at
		 FROM file_results
		 WHERE run_id = $1
		 ORDER BY source`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("query file results: %w", err)
	}
	defer rows.Close()

	var out []domain.FileResult
	for rows.Next() {
		var (
			result     domain.FileResult
			durationMS int64
		)
		if err := rows.Scan(
			&result.RunID,
			&result.Source,
			&result.Output,
			&result.Status,
			&result.Stage,
			&result.Error,
			&result.Width,
			&result.Height,
			&result.Bytes,
			&durationMS,
			&result.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan file result: %w", err)
		}
		result.Duration = time.Duration(durationMS) * time.Millisecond
		out = append(out, result)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate file results: %w", err)
	}
	return out, nil
}
