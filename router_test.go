package gateway

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLedgerWriter struct {
	mu      sync.Mutex
	results []ResultRecord
	failErr error
}

func (f *fakeLedgerWriter) UpsertResult(_ context.Context, result ResultRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failErr != nil {
		return f.failErr
	}
	f.results = append(f.results, result)
	return nil
}

func (f *fakeLedgerWriter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.results)
}

type fakeWaiterResolver struct {
	mu       sync.Mutex
	resolved []string
	rejected []string
}

func (f *fakeWaiterResolver) ResolveWaiter(correlationID string, _ ResultRecord) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resolved = append(f.resolved, correlationID)
	return true
}

func (f *fakeWaiterResolver) RejectWaiter(correlationID string, _ error) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rejected = append(f.rejected, correlationID)
	return true
}

type fakeBroadcaster struct {
	mu        sync.Mutex
	broadcast int
}

func (f *fakeBroadcaster) BroadcastToUser(string, []byte)  {}
func (f *fakeBroadcaster) BroadcastToEvent(string, []byte) {}
func (f *fakeBroadcaster) Broadcast([]byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.broadcast++
}

func TestRouterRouteSuccessPersistsResolvesBroadcasts(t *testing.T) {
	ledger := &fakeLedgerWriter{}
	waiters := &fakeWaiterResolver{}
	hub := &fakeBroadcaster{}
	router := NewRouter(ledger, waiters, WithRouterBroadcaster(hub))

	result := ResultRecord{RequestID: "req-1", CorrelationID: "corr-1", Status: StatusSuccess}
	router.Route(context.Background(), result)

	assert.Equal(t, 1, ledger.count())
	require.Len(t, waiters.resolved, 1)
	assert.Equal(t, "corr-1", waiters.resolved[0])
	assert.Empty(t, waiters.rejected)
	assert.Equal(t, 1, hub.broadcast)
}

func TestRouterRouteErrorStatusRejectsWaiter(t *testing.T) {
	ledger := &fakeLedgerWriter{}
	waiters := &fakeWaiterResolver{}
	router := NewRouter(ledger, waiters)

	result := ResultRecord{RequestID: "req-2", CorrelationID: "corr-2", Status: StatusError, ErrorMessage: "boom"}
	router.Route(context.Background(), result)

	assert.Empty(t, waiters.resolved)
	require.Len(t, waiters.rejected, 1)
	assert.Equal(t, "corr-2", waiters.rejected[0])
}

func TestRouterRoutePersistenceFailureStillResolvesAndBroadcasts(t *testing.T) {
	ledger := &fakeLedgerWriter{failErr: errors.New("db down")}
	waiters := &fakeWaiterResolver{}
	hub := &fakeBroadcaster{}
	router := NewRouter(ledger, waiters, WithRouterBroadcaster(hub))

	result := ResultRecord{RequestID: "req-3", CorrelationID: "corr-3", Status: StatusSuccess}
	router.Route(context.Background(), result)

	assert.Equal(t, 0, ledger.count())
	require.Len(t, waiters.resolved, 1)
	assert.Equal(t, 1, hub.broadcast)
}

func TestRouterRouteWithoutHubSkipsBroadcastWithoutPanic(t *testing.T) {
	ledger := &fakeLedgerWriter{}
	waiters := &fakeWaiterResolver{}
	router := NewRouter(ledger, waiters)

	assert.NotPanics(t, func() {
		router.Route(context.Background(), ResultRecord{RequestID: "req-4", CorrelationID: "corr-4", Status: StatusSuccess})
	})
}
