/*
scheduler.go - Automated reconciliation scheduler

PURPOSE:
  Periodically scans the ledger for purchases whose follow-up writes are
  missing (no progress record, or no entry in the course's enrollment set)
  and records each one as a ReconciliationGap. Enrollment never rolls back
  a ledger row, so this is where partial enrollments become visible.

DESIGN:
  - robfig/cron drives the schedule (default "@every 1h")
  - Gaps are upserted by (transaction, kind), so rescans are idempotent
  - Gaps are recorded and logged, never repaired automatically
  - Expired KV entries are swept on the same tick when the KV supports it

USAGE:
  scheduler := NewReconciliationScheduler(store, kv, "@every 1h", logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: ListGaps and RunReconciliation endpoints
  - enrollment/orchestrator.go: Partial failure semantics
*/
package api

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/warp/enrollment-engine/cache"
	"github.com/warp/enrollment-engine/core"
)

// ReconcileStore is what a reconciliation pass reads and writes.
type ReconcileStore interface {
	core.TransactionStore
	core.CourseStore
	core.ProgressStore
	core.GapStore
}

// ReconcileRun is the outcome of one pass.
type ReconcileRun struct {
	StartedAt   time.Time
	CompletedAt time.Time
	Scanned     int
	Gaps        int
	Swept       int
	Err         error
}

// ReconciliationScheduler records partial enrollments on a cron schedule.
type ReconciliationScheduler struct {
	Store   ReconcileStore
	Ledger  *core.Ledger
	KV      cache.Store // optional; swept when it implements cache.Sweeper
	Spec    string
	Enabled bool
	Logger  *log.Logger
	Now     func() time.Time

	cron *cron.Cron
	mu   sync.Mutex
	run  sync.Mutex
	last *ReconcileRun
}

// NewReconciliationScheduler creates a new scheduler.
func NewReconciliationScheduler(store ReconcileStore, kv cache.Store, spec string, logger *log.Logger) *ReconciliationScheduler {
	if logger == nil {
		logger = log.Default()
	}
	return &ReconciliationScheduler{
		Store:   store,
		Ledger:  core.NewLedger(store),
		KV:      kv,
		Spec:    spec,
		Enabled: true,
		Logger:  logger,
		Now:     time.Now,
	}
}

// Start begins the scheduler. An invalid spec is returned as an error.
func (rs *ReconciliationScheduler) Start() error {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if !rs.Enabled {
		rs.Logger.Println("[Scheduler] Disabled, not starting")
		return nil
	}
	if rs.cron != nil {
		return nil
	}

	c := cron.New()
	if _, err := c.AddFunc(rs.Spec, func() { rs.RunNow(context.Background()) }); err != nil {
		return fmt.Errorf("schedule reconciliation %q: %w", rs.Spec, err)
	}
	c.Start()
	rs.cron = c

	rs.Logger.Printf("[Scheduler] Started with schedule: %s", rs.Spec)
	return nil
}

// Stop stops the scheduler and waits for a running pass to finish.
func (rs *ReconciliationScheduler) Stop() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.cron == nil {
		return
	}
	<-rs.cron.Stop().Done()
	rs.cron = nil
	rs.Logger.Println("[Scheduler] Stopped")
}

// RunNow performs one reconciliation pass. Passes never overlap.
func (rs *ReconciliationScheduler) RunNow(ctx context.Context) ReconcileRun {
	rs.run.Lock()
	defer rs.run.Unlock()

	run := ReconcileRun{StartedAt: rs.now()}
	rs.Logger.Printf("[Scheduler] Checking ledger at %v", run.StartedAt)

	scanned, gaps, err := rs.scan(ctx, run.StartedAt)
	run.Scanned, run.Gaps = scanned, gaps
	if err != nil {
		run.Err = err
		rs.Logger.Printf("[Scheduler] Error scanning ledger: %v", err)
	}

	if sweeper, ok := rs.KV.(cache.Sweeper); ok {
		swept, err := sweeper.Sweep(ctx)
		if err != nil {
			rs.Logger.Printf("[Scheduler] Error sweeping expired keys: %v", err)
		}
		run.Swept = swept
	}

	run.CompletedAt = rs.now()
	if run.Gaps > 0 || run.Swept > 0 {
		rs.Logger.Printf("[Scheduler] Completed: %d scanned, %d gaps, %d expired keys swept", run.Scanned, run.Gaps, run.Swept)
	}

	rs.mu.Lock()
	rs.last = &run
	rs.mu.Unlock()
	return run
}

// LastRun returns the most recent pass, if any.
func (rs *ReconciliationScheduler) LastRun() (ReconcileRun, bool) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if rs.last == nil {
		return ReconcileRun{}, false
	}
	return *rs.last, true
}

func (rs *ReconciliationScheduler) scan(ctx context.Context, at time.Time) (int, int, error) {
	txs, err := rs.Ledger.All(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("load ledger: %w", err)
	}

	ids := make([]core.CourseID, 0, len(txs))
	seen := make(map[core.CourseID]bool)
	for _, tx := range txs {
		if !seen[tx.CourseID] {
			seen[tx.CourseID] = true
			ids = append(ids, tx.CourseID)
		}
	}
	courses, err := rs.Store.CoursesByIDs(ctx, ids)
	if err != nil {
		return 0, 0, fmt.Errorf("load courses: %w", err)
	}

	found := 0
	for _, tx := range txs {
		var kinds []core.GapKind

		progress, err := rs.Store.GetProgress(ctx, tx.PayerID, tx.CourseID)
		if err != nil {
			return len(txs), found, fmt.Errorf("load progress for tx %s: %w", tx.ID, err)
		}
		if progress == nil {
			kinds = append(kinds, core.GapMissingProgress)
		}
		if c, ok := courses[tx.CourseID]; !ok || !c.IsEnrolled(tx.PayerID) {
			kinds = append(kinds, core.GapMissingEnrollment)
		}

		for _, kind := range kinds {
			gap := core.ReconciliationGap{
				TransactionID: tx.ID,
				PayerID:       tx.PayerID,
				CourseID:      tx.CourseID,
				Kind:          kind,
				DetectedAt:    at,
			}
			if err := rs.Store.SaveGap(ctx, gap); err != nil {
				return len(txs), found, fmt.Errorf("save gap for tx %s: %w", tx.ID, err)
			}
			rs.Logger.Printf("[Scheduler] Gap: tx %s payer %s course %s %s", tx.ID, tx.PayerID, tx.CourseID, kind)
			found++
		}
	}
	return len(txs), found, nil
}

func (rs *ReconciliationScheduler) now() time.Time {
	if rs.Now == nil {
		return time.Now()
	}
	return rs.Now()
}
