package gateway

import (
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"go.uber.org/zap"

	"github.com/velivolant/gateway/codec"
)

const (
	defaultSubmitTimeout          = 30 * time.Second
	defaultWaiterTTL              = 5 * time.Minute
	defaultPendingRetention       = 10 * time.Minute
	defaultPendingSweepInterval   = 60 * time.Second
	defaultLedgerCleanupRetention = 30 * 24 * time.Hour
	defaultLedgerCleanupInterval  = 1 * time.Hour
)

//
// KafkaProducer options
//

type KafkaProducerOption func(*KafkaProducer)

func WithKafkaProducerProps(props kafka.ConfigMap) KafkaProducerOption {
	return func(p *KafkaProducer) {
		for k, v := range props {
			p.producerProps[k] = v
		}
	}
}

func WithKafkaRequestTopic(topic string) KafkaProducerOption {
	return func(p *KafkaProducer) {
		p.requestTopic = topic
	}
}

func WithKafkaProducerLogger(logger *zap.Logger) KafkaProducerOption {
	return func(p *KafkaProducer) {
		p.logger = logger
	}
}

func WithSchemaRegistry(registry *codec.SchemaRegistry) KafkaProducerOption {
	return func(p *KafkaProducer) {
		p.registry = registry
	}
}

//
// KafkaConsumer options
//

type KafkaConsumerOption func(*KafkaConsumer)

func WithKafkaConsumerProps(props kafka.ConfigMap) KafkaConsumerOption {
	return func(c *KafkaConsumer) {
		for k, v := range props {
			c.consumerProps[k] = v
		}
	}
}

func WithKafkaResultTopic(topic string) KafkaConsumerOption {
	return func(c *KafkaConsumer) {
		c.resultTopic = topic
	}
}

func WithKafkaConsumerLogger(logger *zap.Logger) KafkaConsumerOption {
	return func(c *KafkaConsumer) {
		c.logger = logger
	}
}

//
// Feeder options
//

type FeederOption func(*feederOptions)

type feederOptions struct {
	defaultTimeout        time.Duration
	waiterTTL             time.Duration
	pendingRetention      time.Duration
	pendingSweepInterval  time.Duration
	logger                *zap.Logger
	metrics               MetricsCollector
}

func WithFeederDefaultTimeout(timeout time.Duration) FeederOption {
	return func(o *feederOptions) {
		o.defaultTimeout = timeout
	}
}

func WithFeederWaiterTTL(ttl time.Duration) FeederOption {
	return func(o *feederOptions) {
		o.waiterTTL = ttl
	}
}

func WithFeederPendingRetention(retention time.Duration) FeederOption {
	return func(o *feederOptions) {
		o.pendingRetention = retention
	}
}

func WithFeederPendingSweepInterval(interval time.Duration) FeederOption {
	return func(o *feederOptions) {
		o.pendingSweepInterval = interval
	}
}

func WithFeederLogger(logger *zap.Logger) FeederOption {
	return func(o *feederOptions) {
		o.logger = logger
	}
}

func WithFeederMetrics(metrics MetricsCollector) FeederOption {
	return func(o *feederOptions) {
		o.metrics = metrics
	}
}

//
// Router options
//

type RouterOption func(*Router)

func WithRouterLogger(logger *zap.Logger) RouterOption {
	return func(r *Router) {
		r.logger = logger
	}
}

func WithRouterMetrics(metrics MetricsCollector) RouterOption {
	return func(r *Router) {
		r.metrics = metrics
	}
}

func WithRouterBroadcaster(hub Broadcaster) RouterOption {
	return func(r *Router) {
		r.hub = hub
	}
}

//
// Ledger cleanup options
//

type LedgerCleanupOption func(*ledgerCleanupOptions)

type ledgerCleanupOptions struct {
	retention time.Duration
	interval  time.Duration
}

func WithLedgerCleanupRetention(retention time.Duration) LedgerCleanupOption {
	return func(o *ledgerCleanupOptions) {
		o.retention = retention
	}
}

func WithLedgerCleanupInterval(interval time.Duration) LedgerCleanupOption {
	return func(o *ledgerCleanupOptions) {
		o.interval = interval
	}
}
