package gateway

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWaiterTableRegisterRemove(t *testing.T) {
	table := newWaiterTable()
	defer table.stop()

	w := &waiter{
		correlationID: "corr-1",
		resultChan:    make(chan ResultRecord, 1),
		errChan:       make(chan error, 1),
		deadline:      time.Now().Add(time.Minute),
	}
	table.register(w)
	assert.Equal(t, 1, table.size())

	got := table.remove("corr-1")
	require.NotNil(t, got)
	assert.Equal(t, "corr-1", got.correlationID)
	assert.Equal(t, 0, table.size())

	assert.Nil(t, table.remove("corr-1"))
}

func TestWaiterTableExpireSweepsPastDeadline(t *testing.T) {
	table := newWaiterTable()
	defer table.stop()

	w := &waiter{
		correlationID: "corr-expired",
		resultChan:    make(chan ResultRecord, 1),
		errChan:       make(chan error, 1),
		deadline:      time.Now().Add(-time.Second),
	}
	table.register(w)

	table.expire(time.Now())

	assert.Equal(t, 0, table.size())
	select {
	case err := <-w.errChan:
		var timeoutErr *TimeoutError
		assert.ErrorAs(t, err, &timeoutErr)
		assert.Equal(t, "corr-expired", timeoutErr.CorrelationID)
	default:
		t.Fatal("expected waiter to receive a timeout error")
	}
}

func TestWaiterExpireLeavesUnexpiredWaiters(t *testing.T) {
	table := newWaiterTable()
	defer table.stop()

	fresh := &waiter{
		correlationID: "corr-fresh",
		resultChan:    make(chan ResultRecord, 1),
		errChan:       make(chan error, 1),
		deadline:      time.Now().Add(time.Hour),
	}
	table.register(fresh)

	table.expire(time.Now())

	assert.Equal(t, 1, table.size())
}

func TestWaiterSucceedDispatchesToCallback(t *testing.T) {
	var gotResult ResultRecord
	var gotErr error
	called := make(chan struct{}, 1)

	w := &waiter{
		correlationID: "corr-cb",
		callback: func(r ResultRecord, err error) {
			gotResult = r
			gotErr = err
			called <- struct{}{}
		},
	}

	result := ResultRecord{RequestID: "req-1", Status: StatusSuccess}
	w.succeed(result)

	<-called
	assert.Equal(t, result, gotResult)
	assert.NoError(t, gotErr)
}

func TestWaiterFailDispatchesToChannelNonBlocking(t *testing.T) {
	w := &waiter{
		correlationID: "corr-chan",
		resultChan:    make(chan ResultRecord, 1),
		errChan:       make(chan error, 1),
	}

	w.fail(&TimeoutError{CorrelationID: "corr-chan"})
	w.fail(&TimeoutError{CorrelationID: "corr-chan"}) // second send must not block

	select {
	case err := <-w.errChan:
		assert.Error(t, err)
	default:
		t.Fatal("expected an error on errChan")
	}
}
