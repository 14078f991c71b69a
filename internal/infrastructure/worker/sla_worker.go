package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/budget-approvals/internal/application/service"
)

// OverdueSource lists approvals whose current step has passed its deadline.
type OverdueSource interface {
	GetOverdue(ctx context.Context, now time.Time) ([]service.OverdueApproval, error)
}

// SLAWorkerConfig holds configuration for the SLA worker
type SLAWorkerConfig struct {
	ScanInterval time.Duration
	ScanTimeout  time.Duration
}

// DefaultSLAWorkerConfig returns default configuration
func DefaultSLAWorkerConfig() SLAWorkerConfig {
	return SLAWorkerConfig{
		ScanInterval: 15 * time.Minute,
		ScanTimeout:  30 * time.Second,
	}
}

// SLAStats summarizes what the worker has done so far.
type SLAStats struct {
	Scans     int
	Reported  int
	Failures  int
	LastScan  time.Time
	LastError error
}

// SLAWorker periodically scans for overdue approvals and logs each breach
// once per workflow step.
type SLAWorker struct {
	config SLAWorkerConfig
	source OverdueSource
	logger *zap.Logger
	now    func() time.Time

	mu        sync.Mutex
	isRunning bool
	cancel    context.CancelFunc
	done      chan struct{}
	reported  map[stepKey]bool
	stats     SLAStats
}

type stepKey struct {
	workflowID int64
	step       int
}

// NewSLAWorker creates a new SLA worker
func NewSLAWorker(config SLAWorkerConfig, source OverdueSource, logger *zap.Logger) *SLAWorker {
	defaults := DefaultSLAWorkerConfig()
	if config.ScanInterval <= 0 {
		config.ScanInterval = defaults.ScanInterval
	}
	if config.ScanTimeout <= 0 {
		config.ScanTimeout = defaults.ScanTimeout
	}
	return &SLAWorker{
		config:   config,
		source:   source,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
		reported: make(map[stepKey]bool),
	}
}

// Start begins the scan loop. The first scan runs immediately.
func (w *SLAWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.isRunning {
		return fmt.Errorf("sla worker already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})
	w.isRunning = true

	w.logger.Info("SLAWorker started", zap.Duration("scan_interval", w.config.ScanInterval))

	go w.loop(runCtx, w.done)
	return nil
}

// Stop cancels the loop and waits for an in-flight scan to finish.
func (w *SLAWorker) Stop() error {
	w.mu.Lock()
	if !w.isRunning {
		w.mu.Unlock()
		return nil
	}
	w.isRunning = false
	cancel, done := w.cancel, w.done
	w.mu.Unlock()

	cancel()
	<-done

	stats := w.Stats()
	w.logger.Info("SLAWorker stopped",
		zap.Int("scans", stats.Scans),
		zap.Int("reported", stats.Reported),
		zap.Int("failures", stats.Failures))
	return nil
}

// Name returns the worker name for identification
func (w *SLAWorker) Name() string {
	return "SLAWorker"
}

// Stats returns a copy of the worker's counters.
func (w *SLAWorker) Stats() SLAStats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

func (w *SLAWorker) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(w.config.ScanInterval)
	defer ticker.Stop()

	w.scan(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.scan(ctx)
		}
	}
}

// scan reports breaches not seen before and forgets steps that are no
// longer overdue, so a step reached again after a revision is reported anew.
func (w *SLAWorker) scan(ctx context.Context) {
	scanCtx, cancel := context.WithTimeout(ctx, w.config.ScanTimeout)
	defer cancel()

	now := w.now()
	overdue, err := w.source.GetOverdue(scanCtx, now)

	w.mu.Lock()
	defer w.mu.Unlock()

	w.stats.Scans++
	w.stats.LastScan = now
	if err != nil {
		w.stats.Failures++
		w.stats.LastError = err
		w.logger.Error("SLA scan failed", zap.Error(err))
		return
	}
	w.stats.LastError = nil

	current := make(map[stepKey]bool, len(overdue))
	for _, o := range overdue {
		key := stepKey{workflowID: o.Workflow.ID, step: o.Workflow.CurrentStep}
		current[key] = true
		if w.reported[key] {
			continue
		}
		w.stats.Reported++
		w.logger.Warn("Approval overdue",
			zap.Int64("project_id", o.Project.ID),
			zap.String("project_name", o.Project.Name),
			zap.Int64("workflow_id", o.Workflow.ID),
			zap.String("tier", o.Workflow.TierName),
			zap.String("next_role", o.NextRole),
			zap.Duration("overdue_by", o.OverdueBy))
	}
	w.reported = current
}
