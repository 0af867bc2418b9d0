// Package embedded holds leaf types shared by the root gateway package and
// its storage subpackages. Keeping them here avoids an import cycle:
// storage needs the record shapes, gateway needs storage, and neither needs
// to import the other's package for just a struct definition.
package embedded

import (
	"context"
	"time"
)

// Status is the outcome of a computation as reported by the backend.
type Status string

const (
	StatusSuccess Status = "SUCCESS"
	StatusError   Status = "ERROR"
	StatusTimeout Status = "TIMEOUT"
)

// RequestType enumerates the kinds of computation the backend accepts.
type RequestType string

const (
	RequestBACCalculation RequestType = "BAC_CALCULATION"
	RequestEventAnalytics RequestType = "EVENT_ANALYTICS"
	RequestUserScore      RequestType = "USER_SCORE"
	RequestLeaderboard    RequestType = "LEADERBOARD"
)

// ValidRequestType reports whether t is one of the enumerated request types.
func ValidRequestType(t RequestType) bool {
	switch t {
	case RequestBACCalculation, RequestEventAnalytics, RequestUserScore, RequestLeaderboard:
		return true
	default:
		return false
	}
}

// RequestRecord is published to the request topic. JSON tags define the
// wire shape carried inside the codec envelope.
type RequestRecord struct {
	RequestID     string      `json:"requestId"`
	CorrelationID string      `json:"correlationId"`
	RequestType   RequestType `json:"requestType"`
	Payload       []byte      `json:"payload"`
	UserID        string      `json:"userId,omitempty"`
	EventID       string      `json:"eventId,omitempty"`
	SubmittedAt   time.Time   `json:"submittedAt"`
}

// ResultRecord is consumed from the result topic.
type ResultRecord struct {
	RequestID        string    `json:"requestId"`
	CorrelationID    string    `json:"correlationId"`
	Status           Status    `json:"status"`
	Payload          []byte    `json:"payload,omitempty"`
	ComputedAt       time.Time `json:"computedAt"`
	ProcessingTimeMs int64     `json:"processingTimeMs"`
	ErrorMessage     string    `json:"errorMessage,omitempty"`
}

// PublishAck is the broker-assigned placement of a published record.
type PublishAck struct {
	Partition int32
	Offset    int64
}

// Publisher encodes and publishes a RequestRecord to the request topic.
type Publisher interface {
	Publish(ctx context.Context, record RequestRecord) (PublishAck, error)
	Close() error
}

// MetricsCollector is the sink every component reports counters, durations
// and gauges to. NopMetricsCollector and OpenTelemetryMetricsCollector
// implement it.
type MetricsCollector interface {
	IncrementCounter(name string, tags map[string]string)
	RecordDuration(name string, duration time.Duration, tags map[string]string)
	RecordGauge(name string, value float64, tags map[string]string)
}

// Worker is a long-running component the Dispatcher supervises.
type Worker interface {
	Start(ctx context.Context)
	Stop()
	Name() string
}
