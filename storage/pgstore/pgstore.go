// Package pgstore implements storage.Store over Postgres via the pgx
// stdlib driver, keeping the database/sql-shaped DBTX interface so callers
// can pass either *sql.DB or a *sql.Tx acquired through a transaction
// manager.
package pgstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/velivolant/gateway/embedded"
	"github.com/velivolant/gateway/storage"
)

const table = "computation_results"

const (
	upsertQuery = `
		INSERT INTO ` + table + ` (request_id, correlation_id, status, result_data, computed_at, processing_time_ms, error_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (request_id) DO UPDATE SET
			status = EXCLUDED.status,
			result_data = EXCLUDED.result_data,
			computed_at = EXCLUDED.computed_at,
			processing_time_ms = EXCLUDED.processing_time_ms,
			error_message = EXCLUDED.error_message`

	getByRequestIDQuery = `
		SELECT id, request_id, correlation_id, status, result_data, computed_at, processing_time_ms, error_message, created_at
		FROM ` + table + `
		WHERE request_id = $1`

	statsGroupedQuery = `
		SELECT status, COUNT(*)
		FROM ` + table + `
		WHERE created_at >= $1
		GROUP BY status`

	statsLastComputedQuery = `
		SELECT MAX(computed_at)
		FROM ` + table + `
		WHERE created_at >= $1`

	deleteOlderThanQuery = `DELETE FROM ` + table + ` WHERE created_at < $1`

	createTableQuery = `
		CREATE TABLE IF NOT EXISTS ` + table + ` (
			id                 BIGSERIAL PRIMARY KEY,
			request_id         TEXT NOT NULL UNIQUE,
			correlation_id     TEXT NOT NULL,
			status             TEXT NOT NULL CHECK (status IN ('SUCCESS', 'ERROR', 'TIMEOUT')),
			result_data        TEXT NULL,
			computed_at        TIMESTAMPTZ NOT NULL,
			processing_time_ms BIGINT NULL,
			error_message      TEXT NULL,
			created_at         TIMESTAMPTZ NOT NULL DEFAULT now()
		)`

	createIndicesQuery = `
		CREATE INDEX IF NOT EXISTS idx_computation_results_correlation_id ON ` + table + ` (correlation_id);
		CREATE INDEX IF NOT EXISTS idx_computation_results_computed_at ON ` + table + ` (computed_at);
		CREATE INDEX IF NOT EXISTS idx_computation_results_status ON ` + table + ` (status)`
)

// PGStore is a storage.Store backed by Postgres.
type PGStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPGStore creates a PGStore over an already-open *sql.DB (expected to use
// the pgx/v5/stdlib driver).
func NewPGStore(db *sql.DB, logger *zap.Logger) *PGStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PGStore{db: db, logger: logger}
}

func (s *PGStore) UpsertResult(ctx context.Context, tx storage.DBTX, row storage.ResultRow) error {
	if tx == nil {
		tx = s.db
	}
	_, err := tx.ExecContext(ctx, upsertQuery,
		row.RequestID,
		row.CorrelationID,
		string(row.Status),
		nullableBytes(row.ResultData),
		row.ComputedAt,
		row.ProcessingTimeMs,
		nullableString(row.ErrorMessage),
	)
	if err != nil {
		return fmt.Errorf("upsert result %q: %w", row.RequestID, err)
	}
	return nil
}

func (s *PGStore) GetByRequestID(ctx context.Context, requestID string) (storage.ResultRow, error) {
	var row storage.ResultRow
	var status string
	var resultData sql.NullString
	var processingTimeMs sql.NullInt64
	var errorMessage sql.NullString

	err := s.db.QueryRowContext(ctx, getByRequestIDQuery, requestID).Scan(
		&row.ID,
		&row.RequestID,
		&row.CorrelationID,
		&status,
		&resultData,
		&row.ComputedAt,
		&processingTimeMs,
		&errorMessage,
		&row.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return storage.ResultRow{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.ResultRow{}, fmt.Errorf("get result %q: %w", requestID, err)
	}

	row.Status = embedded.Status(status)
	if resultData.Valid {
		row.ResultData = []byte(resultData.String)
	}
	if processingTimeMs.Valid {
		v := processingTimeMs.Int64
		row.ProcessingTimeMs = &v
	}
	if errorMessage.Valid {
		row.ErrorMessage = errorMessage.String
	}
	return row, nil
}

func (s *PGStore) StatsSince(ctx context.Context, tx storage.DBTX, since time.Time) (storage.Stats, error) {
	if tx == nil {
		tx = s.db
	}

	rows, err := tx.QueryContext(ctx, statsGroupedQuery, since)
	if err != nil {
		return storage.Stats{}, fmt.Errorf("query grouped stats: %w", err)
	}
	defer rows.Close()

	var stats storage.Stats
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return storage.Stats{}, fmt.Errorf("scan grouped stats: %w", err)
		}
		stats.Counts = append(stats.Counts, storage.StatusCount{Status: embedded.Status(status), Count: count})
	}
	if err := rows.Err(); err != nil {
		return storage.Stats{}, fmt.Errorf("read grouped stats: %w", err)
	}

	var lastComputedAt sql.NullTime
	if err := tx.QueryRowContext(ctx, statsLastComputedQuery, since).Scan(&lastComputedAt); err != nil {
		return storage.Stats{}, fmt.Errorf("query last computed_at: %w", err)
	}
	if lastComputedAt.Valid {
		v := lastComputedAt.Time
		stats.LastComputedAt = &v
	}

	return stats, nil
}

func (s *PGStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, deleteOlderThanQuery, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete rows older than %s: %w", cutoff, err)
	}
	return res.RowsAffected()
}

func (s *PGStore) EnsureTables(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, createTableQuery); err != nil {
		return fmt.Errorf("create %s table: %w", table, err)
	}
	if _, err := s.db.ExecContext(ctx, createIndicesQuery); err != nil {
		return fmt.Errorf("create %s indices: %w", table, err)
	}
	return nil
}

func nullableBytes(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
