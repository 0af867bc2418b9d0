package gateway

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/stretchr/testify/require"

	"github.com/velivolant/gateway/codec"
)

func newTestConsumer(t *testing.T, handler ResultHandler) *KafkaConsumer {
	c, err := NewKafkaConsumer(handler, nil, WithKafkaConsumerProps(kafka.ConfigMap{
		"bootstrap.servers": "localhost:9092",
		"group.id":          "test-group",
	}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.consumer.Close() })
	return c
}

func testMessage(t *testing.T, value []byte) *kafka.Message {
	topic := "velivolant.computation-results.v1"
	return &kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &topic, Partition: 0, Offset: 1},
		Value:          value,
	}
}

func TestConsumerHandleMessageDecodesAndDispatches(t *testing.T) {
	var got ResultRecord
	called := make(chan struct{}, 1)

	c := newTestConsumer(t, func(_ context.Context, result ResultRecord) {
		got = result
		called <- struct{}{}
	})

	result := ResultRecord{RequestID: "req-1", CorrelationID: "corr-1", Status: StatusSuccess}
	wire, err := json.Marshal(result)
	require.NoError(t, err)
	framed, err := codec.Encode(1, wire)
	require.NoError(t, err)

	c.handleMessage(context.Background(), testMessage(t, framed))

	select {
	case <-called:
	case <-time.After(time.Second):
		t.Fatal("handler was not called")
	}
	require.Equal(t, "req-1", got.RequestID)
	require.Equal(t, StatusSuccess, got.Status)
}

func TestConsumerHandleMessageQuarantinesUndecodableFrame(t *testing.T) {
	called := false
	c := newTestConsumer(t, func(context.Context, ResultRecord) {
		called = true
	})

	c.handleMessage(context.Background(), testMessage(t, []byte{0xFF, 0x01}))

	require.False(t, called)
}

func TestConsumerHandleMessageQuarantinesMalformedJSON(t *testing.T) {
	called := false
	c := newTestConsumer(t, func(context.Context, ResultRecord) {
		called = true
	})

	framed, err := codec.Encode(1, []byte("not json"))
	require.NoError(t, err)
	c.handleMessage(context.Background(), testMessage(t, framed))

	require.False(t, called)
}

func TestConsumerStateString(t *testing.T) {
	require.Equal(t, "disconnected", StateDisconnected.String())
	require.Equal(t, "running", StateRunning.String())
}
