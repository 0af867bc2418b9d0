package gateway

import (
	"sync"
	"time"
)

// waiter is a one-shot continuation bound to a correlationId, completed by
// the Router or expired by the timer wheel.
type waiter struct {
	correlationID string
	resultChan    chan ResultRecord
	errChan       chan error
	deadline      time.Time
	callback      func(ResultRecord, error)
}

// waiterTable is the mutex-guarded map of in-flight waiters, expired by a
// single timer-wheel goroutine rather than a timer per waiter.
type waiterTable struct {
	mu      sync.Mutex
	byCorrelation map[string]*waiter

	ticker   *time.Ticker
	stopChan chan struct{}
	stopOnce sync.Once
}

func newWaiterTable() *waiterTable {
	t := &waiterTable{
		byCorrelation: make(map[string]*waiter),
		ticker:        time.NewTicker(1 * time.Second),
		stopChan:      make(chan struct{}),
	}
	go t.sweep()
	return t
}

// register adds w, keyed by its correlationId. A second registration for a
// correlationId already present is a programming error, per spec.md §3;
// the caller is expected to generate a fresh correlationId per waiter.
func (t *waiterTable) register(w *waiter) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.byCorrelation[w.correlationID] = w
}

// remove deletes and returns the waiter for correlationID, if any.
func (t *waiterTable) remove(correlationID string) *waiter {
	t.mu.Lock()
	defer t.mu.Unlock()
	w, ok := t.byCorrelation[correlationID]
	if !ok {
		return nil
	}
	delete(t.byCorrelation, correlationID)
	return w
}

func (t *waiterTable) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.byCorrelation)
}

// sweep is the single timer wheel: once a second it expires any waiter past
// its deadline instead of arming a per-waiter timer.
func (t *waiterTable) sweep() {
	defer t.ticker.Stop()
	for {
		select {
		case <-t.stopChan:
			return
		case now := <-t.ticker.C:
			t.expire(now)
		}
	}
}

func (t *waiterTable) expire(now time.Time) {
	var expired []*waiter

	t.mu.Lock()
	for id, w := range t.byCorrelation {
		if !now.Before(w.deadline) {
			expired = append(expired, w)
			delete(t.byCorrelation, id)
		}
	}
	t.mu.Unlock()

	for _, w := range expired {
		w.fail(&TimeoutError{CorrelationID: w.correlationID})
	}
}

func (t *waiterTable) stop() {
	t.stopOnce.Do(func() {
		close(t.stopChan)
	})
}

func (w *waiter) succeed(result ResultRecord) {
	if w.callback != nil {
		w.callback(result, nil)
		return
	}
	select {
	case w.resultChan <- result:
	default:
	}
}

func (w *waiter) fail(err error) {
	if w.callback != nil {
		w.callback(ResultRecord{}, err)
		return
	}
	select {
	case w.errChan <- err:
	default:
	}
}
