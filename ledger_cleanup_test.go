package gateway

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/velivolant/gateway/storage"
)

func TestLedgerCleanupDeletesOlderThanRetention(t *testing.T) {
	store := &storage.MockStore{}
	store.On("DeleteOlderThan", mock.Anything, mock.AnythingOfType("time.Time")).Return(int64(3), nil)

	cleanup := NewLedgerCleanup(store, nil, nil, WithLedgerCleanupRetention(time.Hour))
	err := cleanup.Cleanup(context.Background())
	require.NoError(t, err)
	store.AssertExpectations(t)
}

func TestLedgerCleanupPropagatesStoreError(t *testing.T) {
	store := &storage.MockStore{}
	store.On("DeleteOlderThan", mock.Anything, mock.AnythingOfType("time.Time")).Return(int64(0), errors.New("db unavailable"))

	cleanup := NewLedgerCleanup(store, nil, nil)
	err := cleanup.Cleanup(context.Background())
	assert.Error(t, err)
}

func TestLedgerCleanupWorkerName(t *testing.T) {
	store := &storage.MockStore{}
	cleanup := NewLedgerCleanup(store, nil, nil)
	worker := cleanup.Worker()
	assert.Equal(t, "ledger-cleanup", worker.Name())
}
