package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"go.uber.org/zap"

	"github.com/velivolant/gateway/codec"
)

// NopPublisher discards everything. Useful in tests that do not exercise
// the producer itself.
type NopPublisher struct{}

func NewNopPublisher() *NopPublisher { return &NopPublisher{} }

func (p *NopPublisher) Publish(_ context.Context, _ RequestRecord) (PublishAck, error) {
	return PublishAck{}, nil
}

func (p *NopPublisher) Close() error { return nil }

// KafkaProducer publishes RequestRecords to the request topic with
// idempotent producer semantics and schema-registry-style value framing.
type KafkaProducer struct {
	logger        *zap.Logger
	producer      *kafka.Producer
	producerProps kafka.ConfigMap
	requestTopic  string
	registry      *codec.SchemaRegistry

	mu          sync.Mutex
	connected   bool
	schemaID    int32
}

// NewKafkaProducer builds a KafkaProducer with the idempotence settings
// spec.md §4.1 requires baked into the defaults; callers can still override
// via WithKafkaProducerProps.
func NewKafkaProducer(logger *zap.Logger, opts ...KafkaProducerOption) (*KafkaProducer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &KafkaProducer{
		logger: logger,
		producerProps: kafka.ConfigMap{
			"enable.idempotence":                    true,
			"acks":                                   "all",
			"max.in.flight.requests.per.connection":  5,
			"transactional.id":                       "velivolant-producer",
			"compression.type":                       "snappy",
		},
		requestTopic: "velivolant.event-requests.v1",
		registry:     codec.NewSchemaRegistry(),
	}

	for _, opt := range opts {
		opt(p)
	}

	producer, err := kafka.NewProducer(&p.producerProps)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	p.producer = producer

	go p.handleDeliveryReports()

	return p, nil
}

// Publish encodes and publishes record to the request topic, lazily
// connecting (fetching the latest schema id) on first call.
func (p *KafkaProducer) Publish(ctx context.Context, record RequestRecord) (PublishAck, error) {
	p.mu.Lock()
	if !p.connected {
		p.schemaID = p.registry.LatestSchemaID(codec.RequestSubject(p.requestTopic))
		p.connected = true
	}
	schemaID := p.schemaID
	p.mu.Unlock()

	wire, err := json.Marshal(record)
	if err != nil {
		return PublishAck{}, &PublishError{RequestID: record.RequestID, Err: err}
	}

	value, err := codec.Encode(schemaID, wire)
	if err != nil {
		// Re-fetch the schema id once and retry, per the conservative
		// resolution of the schema-evolution-between-connect-and-publish
		// open question.
		p.mu.Lock()
		p.schemaID = p.registry.Refresh(codec.RequestSubject(p.requestTopic))
		schemaID = p.schemaID
		p.mu.Unlock()

		value, err = codec.Encode(schemaID, wire)
		if err != nil {
			return PublishAck{}, &PublishError{RequestID: record.RequestID, Err: err}
		}
	}

	topic := p.requestTopic
	deliveryChan := make(chan kafka.Event, 1)

	message := &kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &topic, Partition: kafka.PartitionAny},
		Key:            []byte(record.RequestID),
		Value:          value,
		Headers: []kafka.Header{
			{Key: "correlation-id", Value: []byte(record.CorrelationID)},
			{Key: "source", Value: []byte("gateway")},
		},
		Timestamp: time.Now(),
	}

	if err := p.producer.Produce(message, deliveryChan); err != nil {
		return PublishAck{}, &PublishError{RequestID: record.RequestID, Err: err}
	}

	select {
	case e := <-deliveryChan:
		msg, ok := e.(*kafka.Message)
		if !ok {
			return PublishAck{}, &PublishError{RequestID: record.RequestID, Err: fmt.Errorf("unexpected delivery event %T", e)}
		}
		if msg.TopicPartition.Error != nil {
			return PublishAck{}, &PublishError{RequestID: record.RequestID, Err: msg.TopicPartition.Error}
		}
		return PublishAck{Partition: msg.TopicPartition.Partition, Offset: int64(msg.TopicPartition.Offset)}, nil
	case <-ctx.Done():
		return PublishAck{}, &PublishError{RequestID: record.RequestID, Err: ctx.Err()}
	}
}

// Close flushes in-flight deliveries and closes the underlying producer.
func (p *KafkaProducer) Close() error {
	p.logger.Info("closing kafka producer")
	p.producer.Flush(15 * 1000)
	p.producer.Close()
	return nil
}

// handleDeliveryReports drains the producer-wide events channel for
// deliveries that were not given their own per-call channel (there are
// none in the current Publish implementation, but the producer's internal
// error stream still needs a reader).
func (p *KafkaProducer) handleDeliveryReports() {
	for e := range p.producer.Events() {
		switch ev := e.(type) {
		case kafka.Error:
			p.logger.Error("kafka producer error", zap.Error(ev))
		}
	}
}
