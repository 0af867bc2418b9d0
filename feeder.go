package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Feeder is the caller-facing entry point (spec.md's "Dispatcher"): it
// assigns request/correlation ids, registers waiters before publishing,
// enforces timeouts, and exposes both fire-and-forget and request/reply
// submission. Named Feeder rather than Dispatcher to avoid colliding with
// the process-level Dispatcher that supervises component lifecycles.
type Feeder struct {
	publisher Publisher
	logger    *zap.Logger
	metrics   MetricsCollector

	defaultTimeout       time.Duration
	waiterTTL            time.Duration
	pendingRetention     time.Duration
	pendingSweepInterval time.Duration

	waiters *waiterTable

	pendingMu sync.Mutex
	pending   map[string]PendingEntry
}

// NewFeeder builds a Feeder over publisher.
func NewFeeder(publisher Publisher, opts ...FeederOption) *Feeder {
	o := &feederOptions{
		defaultTimeout:       defaultSubmitTimeout,
		waiterTTL:            defaultWaiterTTL,
		pendingRetention:     defaultPendingRetention,
		pendingSweepInterval: defaultPendingSweepInterval,
		logger:               zap.NewNop(),
		metrics:              NewNopMetricsCollector(),
	}
	for _, opt := range opts {
		opt(o)
	}

	return &Feeder{
		publisher:            publisher,
		logger:               o.logger,
		metrics:              o.metrics,
		defaultTimeout:       o.defaultTimeout,
		waiterTTL:            o.waiterTTL,
		pendingRetention:     o.pendingRetention,
		pendingSweepInterval: o.pendingSweepInterval,
		waiters:              newWaiterTable(),
		pending:              make(map[string]PendingEntry),
	}
}

// Submit is fire-and-forget: it publishes the request and, if opts.Callback
// is set, registers a waiter for it. It never blocks on a result.
func (f *Feeder) Submit(ctx context.Context, requestType RequestType, payload []byte, opts SubmitOptions) (requestID, correlationID string, err error) {
	if !ValidRequestType(requestType) {
		return "", "", &ValidationError{Field: "requestType", Message: fmt.Sprintf("unknown request type %q", requestType)}
	}

	requestID = uuid.NewString()
	correlationID = opts.CorrelationID
	if correlationID == "" {
		correlationID = uuid.NewString()
	}

	var w *waiter
	if opts.Callback != nil {
		w = &waiter{
			correlationID: correlationID,
			deadline:      time.Now().Add(f.waiterTTL),
			callback:      opts.Callback,
		}
		f.waiters.register(w)
	}

	record := RequestRecord{
		RequestID:     requestID,
		CorrelationID: correlationID,
		RequestType:   requestType,
		Payload:       payload,
		UserID:        opts.UserID,
		EventID:       opts.EventID,
		SubmittedAt:   time.Now(),
	}

	if _, err := f.publisher.Publish(ctx, record); err != nil {
		if w != nil {
			f.waiters.remove(correlationID)
		}
		f.metrics.IncrementCounter("feeder_submit_total", map[string]string{"outcome": "publish_error"})
		return "", "", &PublishError{RequestID: requestID, Err: err}
	}

	f.addPending(requestID, correlationID, requestType)
	f.metrics.IncrementCounter("feeder_submit_total", map[string]string{"outcome": "ok"})
	return requestID, correlationID, nil
}

// SubmitAndWait is request/reply: it registers a waiter before publishing
// (closing the register-before-publish race per spec.md §4.4), then blocks
// until the waiter resolves or opts.Timeout elapses.
func (f *Feeder) SubmitAndWait(ctx context.Context, requestType RequestType, payload []byte, opts SubmitAndWaitOptions) (ResultRecord, error) {
	if !ValidRequestType(requestType) {
		return ResultRecord{}, &ValidationError{Field: "requestType", Message: fmt.Sprintf("unknown request type %q", requestType)}
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = f.defaultTimeout
	}

	requestID := uuid.NewString()
	correlationID := opts.CorrelationID
	if correlationID == "" {
		correlationID = uuid.NewString()
	}

	w := &waiter{
		correlationID: correlationID,
		resultChan:    make(chan ResultRecord, 1),
		errChan:       make(chan error, 1),
		deadline:      time.Now().Add(timeout),
	}
	f.waiters.register(w)

	record := RequestRecord{
		RequestID:     requestID,
		CorrelationID: correlationID,
		RequestType:   requestType,
		Payload:       payload,
		UserID:        opts.UserID,
		EventID:       opts.EventID,
		SubmittedAt:   time.Now(),
	}

	if _, err := f.publisher.Publish(ctx, record); err != nil {
		f.waiters.remove(correlationID)
		f.metrics.IncrementCounter("feeder_submit_and_wait_total", map[string]string{"outcome": "publish_error"})
		return ResultRecord{}, &PublishError{RequestID: requestID, Err: err}
	}

	f.addPending(requestID, correlationID, requestType)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case result := <-w.resultChan:
		f.metrics.IncrementCounter("feeder_submit_and_wait_total", map[string]string{"outcome": "ok"})
		return result, nil
	case err := <-w.errChan:
		f.metrics.IncrementCounter("feeder_submit_and_wait_total", map[string]string{"outcome": "rejected"})
		return ResultRecord{}, err
	case <-timer.C:
		f.waiters.remove(correlationID)
		f.metrics.IncrementCounter("feeder_submit_and_wait_total", map[string]string{"outcome": "timeout"})
		return ResultRecord{}, &TimeoutError{RequestID: requestID, CorrelationID: correlationID}
	case <-ctx.Done():
		f.waiters.remove(correlationID)
		return ResultRecord{}, ctx.Err()
	}
}

// PendingCount is the size of the observability-only pending table.
func (f *Feeder) PendingCount() int {
	f.pendingMu.Lock()
	defer f.pendingMu.Unlock()
	return len(f.pending)
}

// WaiterCount is the size of the waiter table, used by the leak-bound test
// property.
func (f *Feeder) WaiterCount() int {
	return f.waiters.size()
}

func (f *Feeder) addPending(requestID, correlationID string, requestType RequestType) {
	f.pendingMu.Lock()
	defer f.pendingMu.Unlock()
	f.pending[requestID] = PendingEntry{
		RequestID:     requestID,
		CorrelationID: correlationID,
		RequestType:   requestType,
		SubmittedAt:   time.Now(),
	}
}

// sweepPending removes pending entries older than pendingRetention. This
// table exists for observability only; it has no bearing on waiter expiry.
func (f *Feeder) sweepPending(_ context.Context) error {
	cutoff := time.Now().Add(-f.pendingRetention)

	f.pendingMu.Lock()
	for id, entry := range f.pending {
		if entry.SubmittedAt.Before(cutoff) {
			delete(f.pending, id)
		}
	}
	remaining := len(f.pending)
	f.pendingMu.Unlock()

	f.metrics.RecordGauge("feeder_pending_count", float64(remaining), nil)
	return nil
}

// SweepWorker returns a Worker the Supervisor can run to periodically clean
// the pending table, mirroring the teacher's cleanup-worker pattern.
func (f *Feeder) SweepWorker() Worker {
	return NewBaseWorker("feeder-pending-sweep", f.pendingSweepInterval, f.logger, f.sweepPending)
}

// ResolveWaiter implements WaiterResolver for the Router.
func (f *Feeder) ResolveWaiter(correlationID string, result ResultRecord) bool {
	w := f.waiters.remove(correlationID)
	if w == nil {
		return false
	}
	w.succeed(result)
	return true
}

// RejectWaiter implements WaiterResolver for the Router.
func (f *Feeder) RejectWaiter(correlationID string, err error) bool {
	w := f.waiters.remove(correlationID)
	if w == nil {
		return false
	}
	w.fail(err)
	return true
}

// Close stops the waiter table's timer wheel.
func (f *Feeder) Close() {
	f.waiters.stop()
}

//
// Convenience wrappers — thin fixed-requestType shims over SubmitAndWait.
//

type bacPayload struct {
	UserID    string    `json:"userId"`
	EventID   string    `json:"eventId"`
	Libations []float64 `json:"libations"`
}

func (f *Feeder) CalculateBAC(ctx context.Context, userID, eventID string, libations []float64, timeout time.Duration) (ResultRecord, error) {
	payload, err := json.Marshal(bacPayload{UserID: userID, EventID: eventID, Libations: libations})
	if err != nil {
		return ResultRecord{}, &ValidationError{Field: "payload", Message: err.Error()}
	}
	return f.SubmitAndWait(ctx, RequestBACCalculation, payload, SubmitAndWaitOptions{UserID: userID, EventID: eventID, Timeout: timeout})
}

type eventIDPayload struct {
	EventID string `json:"eventId"`
}

func (f *Feeder) GetEventAnalytics(ctx context.Context, eventID string, timeout time.Duration) (ResultRecord, error) {
	payload, err := json.Marshal(eventIDPayload{EventID: eventID})
	if err != nil {
		return ResultRecord{}, &ValidationError{Field: "payload", Message: err.Error()}
	}
	return f.SubmitAndWait(ctx, RequestEventAnalytics, payload, SubmitAndWaitOptions{EventID: eventID, Timeout: timeout})
}

type leaderboardPayload struct {
	EventID string `json:"eventId"`
	Limit   int    `json:"limit"`
	Metric  string `json:"metric"`
}

func (f *Feeder) GenerateLeaderboard(ctx context.Context, eventID string, limit int, metric string, timeout time.Duration) (ResultRecord, error) {
	payload, err := json.Marshal(leaderboardPayload{EventID: eventID, Limit: limit, Metric: metric})
	if err != nil {
		return ResultRecord{}, &ValidationError{Field: "payload", Message: err.Error()}
	}
	return f.SubmitAndWait(ctx, RequestLeaderboard, payload, SubmitAndWaitOptions{EventID: eventID, Timeout: timeout})
}

type userScorePayload struct {
	UserID  string `json:"userId"`
	EventID string `json:"eventId"`
}

func (f *Feeder) CalculateUserScore(ctx context.Context, userID, eventID string, timeout time.Duration) (ResultRecord, error) {
	payload, err := json.Marshal(userScorePayload{UserID: userID, EventID: eventID})
	if err != nil {
		return ResultRecord{}, &ValidationError{Field: "payload", Message: err.Error()}
	}
	return f.SubmitAndWait(ctx, RequestUserScore, payload, SubmitAndWaitOptions{UserID: userID, EventID: eventID, Timeout: timeout})
}
