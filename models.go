package gateway

import (
	"time"

	"github.com/velivolant/gateway/embedded"
)

// Re-exported so callers of this package never need to import embedded
// directly for the common case.
type (
	Status        = embedded.Status
	RequestType   = embedded.RequestType
	RequestRecord = embedded.RequestRecord
	ResultRecord  = embedded.ResultRecord
	PublishAck    = embedded.PublishAck
	Publisher     = embedded.Publisher
	MetricsCollector = embedded.MetricsCollector
	Worker        = embedded.Worker
)

const (
	StatusSuccess = embedded.StatusSuccess
	StatusError   = embedded.StatusError
	StatusTimeout = embedded.StatusTimeout

	RequestBACCalculation = embedded.RequestBACCalculation
	RequestEventAnalytics = embedded.RequestEventAnalytics
	RequestUserScore      = embedded.RequestUserScore
	RequestLeaderboard    = embedded.RequestLeaderboard
)

// ValidRequestType reports whether t is one of the enumerated request types.
func ValidRequestType(t RequestType) bool {
	return embedded.ValidRequestType(t)
}

// SubmitOptions customizes Feeder.Submit.
type SubmitOptions struct {
	CorrelationID string
	UserID        string
	EventID       string
	Callback      func(ResultRecord, error)
}

// SubmitAndWaitOptions customizes Feeder.SubmitAndWait.
type SubmitAndWaitOptions struct {
	CorrelationID string
	UserID        string
	EventID       string
	Timeout       time.Duration
}

// PendingEntry is one row of the Feeder's observability-only pending table.
type PendingEntry struct {
	RequestID     string
	CorrelationID string
	RequestType   RequestType
	SubmittedAt   time.Time
}

// AuditEvent is the structured record the Result Router emits for each of
// its three steps. It is never persisted; it exists as zap fields on a log
// line and as MetricsCollector calls.
type AuditEvent struct {
	RequestID     string
	CorrelationID string
	Step          string
	Outcome       string
	Duration      time.Duration
}

const (
	AuditStepPersist   = "persist"
	AuditStepResolve   = "resolve"
	AuditStepBroadcast = "broadcast"

	AuditOutcomeOK    = "ok"
	AuditOutcomeError = "error"
	AuditOutcomeSkip  = "skip"
)
