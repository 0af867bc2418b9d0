package gateway

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"go.uber.org/zap"

	"github.com/velivolant/gateway/codec"
)

// ConsumerState is the Log Consumer's lifecycle state.
type ConsumerState int32

const (
	StateDisconnected ConsumerState = iota
	StateConnecting
	StateSubscribed
	StateRunning
)

func (s ConsumerState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateSubscribed:
		return "subscribed"
	case StateRunning:
		return "running"
	default:
		return "unknown"
	}
}

// ResultHandler is invoked for every decoded result record. The consumer
// commits the offset regardless of the handler's outcome: the handler is
// responsible for its own internal error handling (see Router), and a
// malformed record never reaches it at all.
type ResultHandler func(ctx context.Context, result ResultRecord)

// KafkaConsumer subscribes to the result topic and drives a ResultHandler
// for every well-formed record, committing offsets as it goes.
type KafkaConsumer struct {
	logger        *zap.Logger
	consumer      *kafka.Consumer
	consumerProps kafka.ConfigMap
	resultTopic   string
	handler       ResultHandler

	mu    sync.RWMutex
	state ConsumerState

	stopOnce sync.Once
	stopChan chan struct{}
	doneChan chan struct{}
}

// NewKafkaConsumer builds a KafkaConsumer; the stable consumer group and
// timing defaults of spec.md §4.2 are baked in and overridable via
// WithKafkaConsumerProps.
func NewKafkaConsumer(handler ResultHandler, logger *zap.Logger, opts ...KafkaConsumerOption) (*KafkaConsumer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &KafkaConsumer{
		logger:  logger,
		handler: handler,
		consumerProps: kafka.ConfigMap{
			"group.id":           "velivolant-middle-results",
			"session.timeout.ms": 30000,
			"heartbeat.interval.ms": 3000,
			"auto.offset.reset":  "latest",
			"enable.auto.commit": false,
		},
		resultTopic: "velivolant.computation-results.v1",
		stopChan:    make(chan struct{}),
		doneChan:    make(chan struct{}),
	}

	for _, opt := range opts {
		opt(c)
	}

	consumer, err := kafka.NewConsumer(&c.consumerProps)
	if err != nil {
		return nil, err
	}
	c.consumer = consumer

	return c, nil
}

// Name implements the Worker interface.
func (c *KafkaConsumer) Name() string { return "log-consumer" }

// State returns the current lifecycle state.
func (c *KafkaConsumer) State() ConsumerState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *KafkaConsumer) setState(s ConsumerState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// Start blocks, polling the result topic until the context is cancelled or
// Stop is called. It implements the Worker interface. Unlike BaseWorker's
// ticker-driven loop, this is a push-paced poll loop: the natural shape for
// a Kafka consumer is "poll until there's nothing left to poll", not "run
// periodically".
func (c *KafkaConsumer) Start(ctx context.Context) {
	defer close(c.doneChan)

	c.setState(StateConnecting)
	if err := c.consumer.Subscribe(c.resultTopic, nil); err != nil {
		c.logger.Error("failed to subscribe to result topic", zap.Error(err))
		c.setState(StateDisconnected)
		return
	}
	c.setState(StateSubscribed)
	c.setState(StateRunning)
	c.logger.Info("log consumer running", zap.String("topic", c.resultTopic))

	for {
		select {
		case <-ctx.Done():
			c.setState(StateDisconnected)
			return
		case <-c.stopChan:
			c.setState(StateDisconnected)
			return
		default:
		}

		ev := c.consumer.Poll(200)
		if ev == nil {
			continue
		}

		switch e := ev.(type) {
		case *kafka.Message:
			c.handleMessage(ctx, e)
		case kafka.Error:
			c.logger.Error("kafka consumer error", zap.Error(e))
		}
	}
}

func (c *KafkaConsumer) handleMessage(ctx context.Context, msg *kafka.Message) {
	_, wire, err := codec.Decode(msg.Value)
	if err != nil {
		// Poison-message quarantine: log and commit, never propagate.
		c.logger.Warn("unparseable result record, quarantining",
			zap.Error(&DecodeError{Offset: int64(msg.TopicPartition.Offset), Err: err}))
		c.commit(msg)
		return
	}

	var result ResultRecord
	if err := json.Unmarshal(wire, &result); err != nil {
		c.logger.Warn("malformed result record, quarantining",
			zap.Error(&DecodeError{Offset: int64(msg.TopicPartition.Offset), Err: err}))
		c.commit(msg)
		return
	}

	c.handler(ctx, result)
	c.commit(msg)
}

func (c *KafkaConsumer) commit(msg *kafka.Message) {
	if _, err := c.consumer.CommitMessage(msg); err != nil {
		c.logger.Error("failed to commit offset", zap.Error(err))
	}
}

// Stop transitions the consumer to Disconnected and waits for the in-flight
// poll iteration to finish, per spec.md §4.2's shutdown contract.
func (c *KafkaConsumer) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopChan)
		<-c.doneChan
		_ = c.consumer.Close()
	})
}

