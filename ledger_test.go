package gateway

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/velivolant/gateway/storage"
)

func newTestLedger(t *testing.T) (*Ledger, *storage.MockStore) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store := &storage.MockStore{}
	return NewLedger(store, db, nil), store
}

func TestLedgerUpsertResultDelegatesToStore(t *testing.T) {
	ledger, store := newTestLedger(t)

	result := ResultRecord{
		RequestID:        "req-1",
		CorrelationID:    "corr-1",
		Status:           StatusSuccess,
		Payload:          []byte(`{"ok":true}`),
		ComputedAt:       time.Now(),
		ProcessingTimeMs: 42,
	}

	store.On("UpsertResult", mock.Anything, mock.Anything, mock.MatchedBy(func(row storage.ResultRow) bool {
		return row.RequestID == "req-1" && row.Status == StatusSuccess && *row.ProcessingTimeMs == 42
	})).Return(nil)

	err := ledger.UpsertResult(context.Background(), result)
	require.NoError(t, err)
	store.AssertExpectations(t)
}

func TestLedgerGetByRequestIDNotFound(t *testing.T) {
	ledger, store := newTestLedger(t)

	store.On("GetByRequestID", mock.Anything, "missing").Return(storage.ResultRow{}, storage.ErrNotFound)

	_, err := ledger.GetByRequestID(context.Background(), "missing")
	var notFound *NotFoundError
	assert.ErrorAs(t, err, &notFound)
	assert.Equal(t, "missing", notFound.RequestID)
}

func TestLedgerGetByRequestIDPersistenceError(t *testing.T) {
	ledger, store := newTestLedger(t)

	store.On("GetByRequestID", mock.Anything, "req-2").Return(storage.ResultRow{}, errors.New("connection reset"))

	_, err := ledger.GetByRequestID(context.Background(), "req-2")
	var persistErr *PersistenceError
	assert.ErrorAs(t, err, &persistErr)
}

func TestLedgerGetByRequestIDMapsRow(t *testing.T) {
	ledger, store := newTestLedger(t)

	processingTime := int64(17)
	computedAt := time.Now()
	store.On("GetByRequestID", mock.Anything, "req-3").Return(storage.ResultRow{
		RequestID:        "req-3",
		CorrelationID:    "corr-3",
		Status:           StatusSuccess,
		ResultData:       []byte(`{"a":1}`),
		ComputedAt:       computedAt,
		ProcessingTimeMs: &processingTime,
	}, nil)

	result, err := ledger.GetByRequestID(context.Background(), "req-3")
	require.NoError(t, err)
	assert.Equal(t, "corr-3", result.CorrelationID)
	assert.Equal(t, int64(17), result.ProcessingTimeMs)
	assert.Equal(t, []byte(`{"a":1}`), result.Payload)
}
