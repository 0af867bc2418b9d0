package storage

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
)

// MockStore is a testify-mock implementation of Store for use in tests that
// exercise the ledger facade without a real Postgres connection.
type MockStore struct {
	mock.Mock
}

func (m *MockStore) UpsertResult(ctx context.Context, tx DBTX, row ResultRow) error {
	args := m.Called(ctx, tx, row)
	return args.Error(0)
}

func (m *MockStore) GetByRequestID(ctx context.Context, requestID string) (ResultRow, error) {
	args := m.Called(ctx, requestID)
	row, _ := args.Get(0).(ResultRow)
	return row, args.Error(1)
}

func (m *MockStore) StatsSince(ctx context.Context, tx DBTX, since time.Time) (Stats, error) {
	args := m.Called(ctx, tx, since)
	stats, _ := args.Get(0).(Stats)
	return stats, args.Error(1)
}

func (m *MockStore) EnsureTables(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	count, _ := args.Get(0).(int64)
	return count, args.Error(1)
}
