package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/velivolant/gateway/embedded"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

// ResultRow is the database representation of one computation_results row.
type ResultRow struct {
	ID               int64
	RequestID        string
	CorrelationID    string
	Status           embedded.Status
	ResultData       []byte
	ComputedAt       time.Time
	ProcessingTimeMs *int64
	ErrorMessage     string
	CreatedAt        time.Time
}

// StatusCount is one row of a statsSince aggregation.
type StatusCount struct {
	Status embedded.Status
	Count  int64
}

// Stats is the aggregate view returned by StatsSince.
type Stats struct {
	Counts          []StatusCount
	LastComputedAt  *time.Time
}

// Store defines the ledger's persistence operations. Implementations are
// expected to serialize concurrent access through the database itself; the
// interface does not impose its own locking.
type Store interface {
	// UpsertResult inserts or, on request_id conflict, overwrites a result row.
	UpsertResult(ctx context.Context, tx DBTX, row ResultRow) error
	// GetByRequestID returns the row for requestID, or ErrNotFound.
	GetByRequestID(ctx context.Context, requestID string) (ResultRow, error)
	// StatsSince returns grouped counts by status and the most recent
	// computed_at within the window, read as a consistent snapshot. Callers
	// that want the grouped-count and last-computed-at reads on one
	// connection pass a *sql.Tx as tx; a bare *sql.DB is also accepted.
	StatsSince(ctx context.Context, tx DBTX, since time.Time) (Stats, error)
	// EnsureTables creates the ledger schema if it does not already exist.
	EnsureTables(ctx context.Context) error
	// DeleteOlderThan removes rows whose created_at is older than cutoff,
	// returning the number of rows removed.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// ErrNotFound is returned by GetByRequestID when no row matches.
var ErrNotFound = errNotFound{}

type errNotFound struct{}

func (errNotFound) Error() string { return "result not found" }
