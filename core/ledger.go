/*
ledger.go - Append-only purchase log

PURPOSE:
  The Ledger is the source of truth for "who paid for what". Enrollment
  decisions, revenue reports and reconciliation all read from it. Course
  enrollment sets and progress records are derived follow-up writes.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: No Update, No Delete
  2. IMMUTABLE: Once written, transactions cannot be modified
  3. IDEMPOTENT: One row per external charge id
  4. AT-MOST-ONCE: One row per (payer, course), enforced by the enrollment
     lock plus the FindByPayerCourse pre-check, not by a store constraint

SEE ALSO:
  - store.go: Low-level persistence interface
  - enrollment/orchestrator.go: The only writer
*/
package core

import (
	"context"
	"fmt"
)

// =============================================================================
// LEDGER
// =============================================================================

type Ledger struct {
	Store TransactionStore
}

func NewLedger(store TransactionStore) *Ledger {
	return &Ledger{Store: store}
}

// Append adds a transaction. Fails with ErrDuplicateChargeID on replays.
func (l *Ledger) Append(ctx context.Context, tx Transaction) error {
	if tx.ExternalChargeID == "" {
		return fmt.Errorf("%w: external charge id is required", ErrInvalidRequest)
	}
	return l.Store.AppendTransaction(ctx, tx)
}

// FindByPayerCourse returns the purchase of course by payer, or nil.
func (l *Ledger) FindByPayerCourse(ctx context.Context, payerID UserID, courseID CourseID) (*Transaction, error) {
	return l.Store.FindTransaction(ctx, payerID, courseID)
}

// ByPayer returns the payer's purchases in [p.Start, p.End], newest first.
// A zero Period means all time.
func (l *Ledger) ByPayer(ctx context.Context, payerID UserID, p Period) ([]Transaction, error) {
	return l.Store.QueryTransactions(ctx, TransactionFilter{PayerID: payerID, From: p.Start, To: p.End})
}

// ByCourses returns purchases of any of courseIDs in [p.Start, p.End].
// An empty id list returns no rows.
func (l *Ledger) ByCourses(ctx context.Context, courseIDs []CourseID, p Period) ([]Transaction, error) {
	if len(courseIDs) == 0 {
		return nil, nil
	}
	return l.Store.QueryTransactions(ctx, TransactionFilter{CourseIDs: courseIDs, From: p.Start, To: p.End})
}

// InRange returns every purchase in [p.Start, p.End].
func (l *Ledger) InRange(ctx context.Context, p Period) ([]Transaction, error) {
	return l.Store.QueryTransactions(ctx, TransactionFilter{From: p.Start, To: p.End})
}

// All returns the full ledger, newest first.
func (l *Ledger) All(ctx context.Context) ([]Transaction, error) {
	return l.Store.QueryTransactions(ctx, TransactionFilter{})
}
