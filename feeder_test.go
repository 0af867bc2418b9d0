package gateway_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/velivolant/gateway"
	"github.com/velivolant/gateway/faketopic"
)

func TestFeederSubmitPublishesAndTracksPending(t *testing.T) {
	broker := faketopic.NewBroker()
	feeder := gateway.NewFeeder(broker)
	defer feeder.Close()

	requestID, correlationID, err := feeder.Submit(context.Background(), gateway.RequestBACCalculation, []byte(`{}`), gateway.SubmitOptions{
		UserID: "user-1",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, requestID)
	assert.NotEmpty(t, correlationID)
	assert.Equal(t, 1, feeder.PendingCount())

	record, ok := broker.LastRequest()
	require.True(t, ok)
	assert.Equal(t, requestID, record.RequestID)
	assert.Equal(t, correlationID, record.CorrelationID)
	assert.Equal(t, "user-1", record.UserID)
}

func TestFeederSubmitRejectsUnknownRequestType(t *testing.T) {
	broker := faketopic.NewBroker()
	feeder := gateway.NewFeeder(broker)
	defer feeder.Close()

	_, _, err := feeder.Submit(context.Background(), gateway.RequestType("NOT_A_TYPE"), nil, gateway.SubmitOptions{})
	var validationErr *gateway.ValidationError
	assert.ErrorAs(t, err, &validationErr)
}

func TestFeederSubmitPublishFailureReturnsPublishError(t *testing.T) {
	broker := faketopic.NewBroker()
	broker.FailNextPublish()
	feeder := gateway.NewFeeder(broker)
	defer feeder.Close()

	_, _, err := feeder.Submit(context.Background(), gateway.RequestBACCalculation, nil, gateway.SubmitOptions{})
	var publishErr *gateway.PublishError
	assert.ErrorAs(t, err, &publishErr)
}

func TestFeederSubmitAndWaitResolvesOnRouterResolveWaiter(t *testing.T) {
	broker := faketopic.NewBroker()
	feeder := gateway.NewFeeder(broker, gateway.WithFeederDefaultTimeout(2*time.Second))
	defer feeder.Close()

	go func() {
		for i := 0; i < 100; i++ {
			time.Sleep(5 * time.Millisecond)
			record, ok := broker.LastRequest()
			if !ok {
				continue
			}
			feeder.ResolveWaiter(record.CorrelationID, gateway.ResultRecord{
				RequestID:     record.RequestID,
				CorrelationID: record.CorrelationID,
				Status:        gateway.StatusSuccess,
			})
			return
		}
	}()

	result, err := feeder.SubmitAndWait(context.Background(), gateway.RequestEventAnalytics, []byte(`{}`), gateway.SubmitAndWaitOptions{
		Timeout: time.Second,
	})
	require.NoError(t, err)
	assert.Equal(t, gateway.StatusSuccess, result.Status)
}

func TestFeederSubmitAndWaitTimesOutAndRemovesWaiter(t *testing.T) {
	broker := faketopic.NewBroker()
	feeder := gateway.NewFeeder(broker)
	defer feeder.Close()

	_, err := feeder.SubmitAndWait(context.Background(), gateway.RequestUserScore, []byte(`{}`), gateway.SubmitAndWaitOptions{
		Timeout: 20 * time.Millisecond,
	})

	var timeoutErr *gateway.TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.Eventually(t, func() bool {
		return feeder.WaiterCount() == 0
	}, time.Second, 5*time.Millisecond)
}

func TestFeederSubmitAndWaitRejectedByRouterRejectWaiter(t *testing.T) {
	broker := faketopic.NewBroker()
	feeder := gateway.NewFeeder(broker)
	defer feeder.Close()

	go func() {
		for i := 0; i < 100; i++ {
			time.Sleep(5 * time.Millisecond)
			record, ok := broker.LastRequest()
			if !ok {
				continue
			}
			feeder.RejectWaiter(record.CorrelationID, assert.AnError)
			return
		}
	}()

	_, err := feeder.SubmitAndWait(context.Background(), gateway.RequestLeaderboard, []byte(`{}`), gateway.SubmitAndWaitOptions{
		Timeout: time.Second,
	})
	assert.ErrorIs(t, err, assert.AnError)
}
