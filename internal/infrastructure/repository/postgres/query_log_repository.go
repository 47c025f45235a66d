package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/alvaxu/multimodal-rag/internal/core/domain"
	"github.com/alvaxu/multimodal-rag/internal/core/ports"
)

// QueryLogRepository persists the per-request audit trail: what was asked,
// how it was routed, what came back and whether the pipeline degraded.
type QueryLogRepository struct {
	db *sql.DB
}

func NewQueryLogRepository(db *sql.DB) *QueryLogRepository {
	return &QueryLogRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *QueryLogRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across concurrent service startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026082701)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS query_log (
	id TEXT PRIMARY KEY,
	query TEXT NOT NULL,
	query_type TEXT NOT NULL,
	intent TEXT,
	modality_counts JSONB NOT NULL DEFAULT '{}'::jsonb,
	result_count INTEGER NOT NULL DEFAULT 0,
	degraded BOOLEAN NOT NULL DEFAULT FALSE,
	duration_ms DOUBLE PRECISION NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_query_log_created_at ON query_log(created_at DESC);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *QueryLogRepository) Insert(ctx context.Context, record domain.QueryLogRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	countsJSON, err := json.Marshal(record.ModalityCounts)
	if err != nil {
		return fmt.Errorf("marshal modality counts: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO query_log (
	id, query, query_type, intent, modality_counts, result_count, degraded, duration_ms, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
`,
		record.ID, record.Query, record.QueryType, record.Intent, countsJSON,
		record.ResultCount, record.Degraded, record.DurationMS, record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert query log: %w", err)
	}
	return nil
}

func (r *QueryLogRepository) ListRecent(ctx context.Context, limit int) ([]domain.QueryLogRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.QueryContext(ctx, `
SELECT id, query, query_type, intent, modality_counts, result_count, degraded, duration_ms, created_at
FROM query_log
ORDER BY created_at DESC
LIMIT $1
`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent log: %w", err)
	}
	defer rows.Close()

	out := make([]domain.QueryLogRecord, 0, limit)
	for rows.Next() {
		var record domain.QueryLogRecord
		var countsRaw []byte

		err := rows.Scan(
			&record.ID, &record.Query, &record.QueryType, &record.Intent, &countsRaw,
			&record.ResultCount, &record.Degraded, &record.DurationMS, &record.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan query log row: %w", err)
		}
		if len(countsRaw) > 0 {
			if err := json.Unmarshal(countsRaw, &record.ModalityCounts); err != nil {
				return nil, fmt.Errorf("unmarshal modality counts: %w", err)
			}
		}
		out = append(out, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate query log rows: %w", err)
	}
	return out, nil
}

var _ ports.QueryLogStore = (*QueryLogRepository)(nil)
