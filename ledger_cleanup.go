package gateway

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/velivolant/gateway/storage"
)

// LedgerCleanup periodically deletes ledger rows older than a retention
// window, adapted from the teacher's sent/dead-letter cleanup worker into a
// single-table retention sweep for computation_results.
type LedgerCleanup struct {
	store     storage.Store
	logger    *zap.Logger
	metrics   MetricsCollector
	retention time.Duration
	interval  time.Duration
}

// NewLedgerCleanup builds a LedgerCleanup over store.
func NewLedgerCleanup(store storage.Store, logger *zap.Logger, metrics MetricsCollector, opts ...LedgerCleanupOption) *LedgerCleanup {
	o := &ledgerCleanupOptions{
		retention: defaultLedgerCleanupRetention,
		interval:  defaultLedgerCleanupInterval,
	}
	for _, opt := range opts {
		opt(o)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = NewNopMetricsCollector()
	}
	return &LedgerCleanup{
		store:     store,
		logger:    logger,
		metrics:   metrics,
		retention: o.retention,
		interval:  o.interval,
	}
}

// Cleanup deletes rows older than the configured retention window.
func (c *LedgerCleanup) Cleanup(ctx context.Context) error {
	cutoff := time.Now().Add(-c.retention)
	deleted, err := c.store.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return err
	}
	if deleted > 0 {
		c.logger.Info("ledger cleanup removed old rows", zap.Int64("deleted", deleted), zap.Time("cutoff", cutoff))
	}
	c.metrics.IncrementCounter("ledger_cleanup_rows_deleted", nil)
	return nil
}

// Worker returns the BaseWorker the Supervisor runs to drive Cleanup on a
// ticker.
func (c *LedgerCleanup) Worker() Worker {
	return NewBaseWorker("ledger-cleanup", c.interval, c.logger, c.Cleanup)
}
