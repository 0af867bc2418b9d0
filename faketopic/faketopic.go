// Package faketopic is an in-memory stand-in for the request/result
// topics, for tests that need a Publisher and a way to feed a decoded
// result back into a ResultHandler without a running Kafka broker. It
// plays the same role the teacher's hand-rolled mock_publisher_test.go
// played for the outbox's Publisher interface.
package faketopic

import (
	"context"
	"errors"
	"sync"

	"github.com/velivolant/gateway"
)

// Broker records every published RequestRecord and lets a test deliver a
// ResultRecord straight to a consumer's handler, as if it had round-
// tripped through a real result topic.
type Broker struct {
	mu       sync.Mutex
	requests []gateway.RequestRecord
	closed   bool
	failNext bool
}

// NewBroker creates an empty Broker.
func NewBroker() *Broker {
	return &Broker{}
}

// Publish implements gateway.Publisher.
func (b *Broker) Publish(_ context.Context, record gateway.RequestRecord) (gateway.PublishAck, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return gateway.PublishAck{}, errors.New("faketopic: broker closed")
	}
	if b.failNext {
		b.failNext = false
		return gateway.PublishAck{}, errors.New("faketopic: forced publish failure")
	}

	b.requests = append(b.requests, record)
	return gateway.PublishAck{Partition: 0, Offset: int64(len(b.requests) - 1)}, nil
}

// Close implements gateway.Publisher.
func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

// FailNextPublish makes the next call to Publish return an error, then
// resets.
func (b *Broker) FailNextPublish() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failNext = true
}

// Requests returns every record published so far, oldest first.
func (b *Broker) Requests() []gateway.RequestRecord {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]gateway.RequestRecord, len(b.requests))
	copy(out, b.requests)
	return out
}

// LastRequest returns the most recently published record, if any.
func (b *Broker) LastRequest() (gateway.RequestRecord, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.requests) == 0 {
		return gateway.RequestRecord{}, false
	}
	return b.requests[len(b.requests)-1], true
}

// Deliver simulates a Log Consumer that has already decoded a result off
// the wire, handing it straight to handler.
func Deliver(ctx context.Context, handler gateway.ResultHandler, result gateway.ResultRecord) {
	handler(ctx, result)
}
