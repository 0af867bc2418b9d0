package gateway

import (
	"context"
	"database/sql"
	"time"

	trmsql "github.com/avito-tech/go-transaction-manager/drivers/sql/v2"
	trmcontext "github.com/avito-tech/go-transaction-manager/trm/v2/context"
	"github.com/avito-tech/go-transaction-manager/trm/v2/manager"
	"go.uber.org/zap"

	"github.com/velivolant/gateway/storage"
)

// Ledger is the Result Ledger facade: a thin layer over storage.Store that
// adapts between the wire ResultRecord and the storage.ResultRow, and wraps
// multi-statement reads in a transaction manager for a consistent
// snapshot.
type Ledger struct {
	store     storage.Store
	db        *sql.DB
	trManager *manager.Manager
	ctxGetter *trmsql.CtxGetter
	logger    *zap.Logger
}

// NewLedger builds a Ledger over store and db. db drives the transaction
// manager for Stats and is the DBTX handed to store.UpsertResult; store owns
// every query.
func NewLedger(store storage.Store, db *sql.DB, logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctxGetter := trmsql.NewCtxGetter(trmcontext.DefaultManager)
	trManager := manager.Must(trmsql.NewDefaultFactory(db))
	return &Ledger{
		store:     store,
		db:        db,
		trManager: trManager,
		ctxGetter: ctxGetter,
		logger:    logger,
	}
}

// EnsureSchema creates the ledger table if it does not exist.
func (l *Ledger) EnsureSchema(ctx context.Context) error {
	return l.store.EnsureTables(ctx)
}

// UpsertResult implements LedgerWriter for the Router.
func (l *Ledger) UpsertResult(ctx context.Context, result ResultRecord) error {
	var processingTimeMs *int64
	if result.ProcessingTimeMs != 0 {
		v := result.ProcessingTimeMs
		processingTimeMs = &v
	}
	row := storage.ResultRow{
		RequestID:        result.RequestID,
		CorrelationID:    result.CorrelationID,
		Status:           result.Status,
		ResultData:       result.Payload,
		ComputedAt:       result.ComputedAt,
		ProcessingTimeMs: processingTimeMs,
		ErrorMessage:     result.ErrorMessage,
	}
	return l.store.UpsertResult(ctx, l.db, row)
}

// GetByRequestID returns the ledger row for requestID as a ResultRecord,
// or *NotFoundError.
func (l *Ledger) GetByRequestID(ctx context.Context, requestID string) (ResultRecord, error) {
	row, err := l.store.GetByRequestID(ctx, requestID)
	if err == storage.ErrNotFound {
		return ResultRecord{}, &NotFoundError{RequestID: requestID}
	}
	if err != nil {
		return ResultRecord{}, &PersistenceError{RequestID: requestID, Err: err}
	}

	result := ResultRecord{
		RequestID:     row.RequestID,
		CorrelationID: row.CorrelationID,
		Status:        row.Status,
		Payload:       row.ResultData,
		ComputedAt:    row.ComputedAt,
		ErrorMessage:  row.ErrorMessage,
	}
	if row.ProcessingTimeMs != nil {
		result.ProcessingTimeMs = *row.ProcessingTimeMs
	}
	return result, nil
}

// Stats is the `/api/compute/stats` view: grouped counts by status and the
// most recent computed_at, read inside one transaction for a consistent
// snapshot across both queries.
func (l *Ledger) Stats(ctx context.Context, since time.Time) (storage.Stats, error) {
	var stats storage.Stats
	err := l.trManager.Do(ctx, func(ctx context.Context) error {
		tx := l.ctxGetter.DefaultTrOrDB(ctx, l.db)
		s, err := l.store.StatsSince(ctx, tx, since)
		if err != nil {
			return err
		}
		stats = s
		return nil
	})
	if err != nil {
		return storage.Stats{}, &PersistenceError{Err: err}
	}
	return stats, nil
}
