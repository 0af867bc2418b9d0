package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"
)

// LedgerWriter is the Router's view of the Result Ledger: just enough to
// persist a result. Ledger (ledger.go) implements it.
type LedgerWriter interface {
	UpsertResult(ctx context.Context, result ResultRecord) error
}

// WaiterResolver is the Router's view of the Feeder's waiter table.
type WaiterResolver interface {
	ResolveWaiter(correlationID string, result ResultRecord) bool
	RejectWaiter(correlationID string, err error) bool
}

// Broadcaster is the Router's view of the WebSocket Hub.
// Defined here rather than in ws so neither package imports the other;
// *ws.Hub satisfies it structurally.
type Broadcaster interface {
	BroadcastToUser(userID string, payload []byte)
	BroadcastToEvent(eventID string, payload []byte)
	Broadcast(payload []byte)
}

// computationResultFrame is the WS message shape broadcast for a result,
// per spec.md §4.3.
type computationResultFrame struct {
	Type          string `json:"type"`
	RequestID     string `json:"requestId"`
	CorrelationID string `json:"correlationId"`
	Status        Status `json:"status"`
	Result        json.RawMessage `json:"result,omitempty"`
}

// Router persists a result, resolves its waiter, and broadcasts it over
// WS — in that order, sequentially, so that persistence happens-before the
// other two without requiring extra concurrency to keep that guarantee.
type Router struct {
	logger  *zap.Logger
	metrics MetricsCollector

	ledger  LedgerWriter
	waiters WaiterResolver
	hub     Broadcaster
}

// NewRouter builds a Router. ledger and waiters are required; hub may be
// nil (broadcast step becomes a no-op, audited as a skip).
func NewRouter(ledger LedgerWriter, waiters WaiterResolver, opts ...RouterOption) *Router {
	r := &Router{
		ledger:  ledger,
		waiters: waiters,
		logger:  zap.NewNop(),
		metrics: NewNopMetricsCollector(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Route runs the three-step pipeline for one decoded result.
func (r *Router) Route(ctx context.Context, result ResultRecord) {
	r.persist(ctx, result)
	r.resolve(result)
	r.broadcast(result)
}

func (r *Router) persist(ctx context.Context, result ResultRecord) {
	start := time.Now()
	err := r.ledger.UpsertResult(ctx, result)
	r.audit(AuditStepPersist, result, err, time.Since(start))
	if err != nil {
		// PersistenceError: logged for operations, does not abort steps 2/3.
		r.logger.Error("ledger persist failed",
			zap.String("requestId", result.RequestID), zap.Error(&PersistenceError{RequestID: result.RequestID, Err: err}))
	}
}

func (r *Router) resolve(result ResultRecord) {
	start := time.Now()
	var found bool
	if result.Status == StatusSuccess {
		found = r.waiters.ResolveWaiter(result.CorrelationID, result)
	} else {
		msg := result.ErrorMessage
		if msg == "" {
			msg = "Computation failed"
		}
		found = r.waiters.RejectWaiter(result.CorrelationID, errors.New(msg))
	}
	outcome := AuditOutcomeSkip
	if found {
		outcome = AuditOutcomeOK
	}
	r.logAudit(AuditEvent{
		RequestID: result.RequestID, CorrelationID: result.CorrelationID,
		Step: AuditStepResolve, Outcome: outcome, Duration: time.Since(start),
	})
}

func (r *Router) broadcast(result ResultRecord) {
	start := time.Now()
	if r.hub == nil {
		r.logAudit(AuditEvent{
			RequestID: result.RequestID, CorrelationID: result.CorrelationID,
			Step: AuditStepBroadcast, Outcome: AuditOutcomeSkip, Duration: time.Since(start),
		})
		return
	}

	frame := computationResultFrame{
		Type:          "computation_result",
		RequestID:     result.RequestID,
		CorrelationID: result.CorrelationID,
		Status:        result.Status,
	}
	if len(result.Payload) > 0 {
		frame.Result = json.RawMessage(result.Payload)
	}

	payload, err := json.Marshal(frame)
	if err != nil {
		r.logAudit(AuditEvent{
			RequestID: result.RequestID, CorrelationID: result.CorrelationID,
			Step: AuditStepBroadcast, Outcome: AuditOutcomeError, Duration: time.Since(start),
		})
		return
	}

	r.hub.Broadcast(payload)
	r.logAudit(AuditEvent{
		RequestID: result.RequestID, CorrelationID: result.CorrelationID,
		Step: AuditStepBroadcast, Outcome: AuditOutcomeOK, Duration: time.Since(start),
	})
}

func (r *Router) audit(step string, result ResultRecord, err error, d time.Duration) {
	outcome := AuditOutcomeOK
	if err != nil {
		outcome = AuditOutcomeError
	}
	r.logAudit(AuditEvent{
		RequestID: result.RequestID, CorrelationID: result.CorrelationID,
		Step: step, Outcome: outcome, Duration: d,
	})
}

func (r *Router) logAudit(ev AuditEvent) {
	r.logger.Info("router audit",
		zap.String("request_id", ev.RequestID),
		zap.String("correlation_id", ev.CorrelationID),
		zap.String("step", ev.Step),
		zap.String("outcome", ev.Outcome),
		zap.Duration("duration", ev.Duration),
	)
	r.metrics.IncrementCounter("router_step_total", map[string]string{"step": ev.Step, "outcome": ev.Outcome})
	r.metrics.RecordDuration("router_step_duration", ev.Duration, map[string]string{"step": ev.Step})
}
