/*
Package enrollment turns a payment into a course enrollment exactly once.

PURPOSE:
  A confirmed payment for (payer, course) produces one ledger transaction,
  one zeroed progress record and one entry in the course's enrollment set.
  Every cached read derived from those records is deleted before Enroll
  returns, and the course owner is notified without waiting on delivery.

FLOW (Enroll):
  1. Acquire lock:enroll:<payer>:<course>        busy -> ErrEnrollmentInProgress
  2. Ledger lookup (payer, course)               found -> ErrAlreadyEnrolled
  3. Resolve course and payer                    -> ErrCourseNotFound / ErrPayerNotFound
  4. Append transaction to the ledger
  5. Create zeroed progress from the course shape
  6. Append enrollment record to the course
  7. Invalidate derived cache keys               failures logged only
  8. Dispatch owner notification                 never blocks, never fails
  9. Release the lock                            always, even if ctx is cancelled

PARTIAL FAILURE:
  Steps 4-6 are not atomic. If 5 or 6 fail after 4 succeeded, the ledger
  row stays (a retry then reports ErrAlreadyEnrolled) and the
  reconciliation scheduler records the gap. The lock TTL covers a process
  that dies before step 9.

SEE ALSO:
  - cache/lock.go: Locker
  - cache/keys.go: EnrollmentPatterns
  - api/scheduler.go: Reconciliation of partial enrollments
*/
package enrollment

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/warp/enrollment-engine/cache"
	"github.com/warp/enrollment-engine/core"
	"github.com/warp/enrollment-engine/notify"
)

// Store is the subset of the document store enrollment writes to.
type Store interface {
	core.CourseStore
	core.UserStore
	core.ProgressStore
}

// EnrollRequest is a confirmed payment.
type EnrollRequest struct {
	PayerID          core.UserID
	CourseID         core.CourseID
	ExternalChargeID string
	Amount           decimal.Decimal
	Currency         string
	Provider         string
}

func (r EnrollRequest) validate() error {
	switch {
	case r.PayerID == "":
		return fmt.Errorf("%w: payer id is required", core.ErrInvalidRequest)
	case r.CourseID == "":
		return fmt.Errorf("%w: course id is required", core.ErrInvalidRequest)
	case !core.ValidID(string(r.PayerID)) || !core.ValidID(string(r.CourseID)):
		return fmt.Errorf("%w: ids must not contain glob characters", core.ErrInvalidRequest)
	case r.ExternalChargeID == "":
		return fmt.Errorf("%w: external charge id is required", core.ErrInvalidRequest)
	case r.Amount.IsNegative():
		return fmt.Errorf("%w: amount must not be negative", core.ErrInvalidRequest)
	}
	return nil
}

// =============================================================================
// ORCHESTRATOR
// =============================================================================

type Orchestrator struct {
	Store       Store
	Ledger      *core.Ledger
	Locks       *cache.Locker
	Invalidator *cache.Invalidator
	Notifier    notify.Notifier // optional
	Logger      *log.Logger
	LockTTL     time.Duration
	Now         func() time.Time
	NewID       func() string
}

// NewOrchestrator wires an orchestrator with default clock, ids and lock TTL.
func NewOrchestrator(store Store, ledger *core.Ledger, kv cache.Store, notifier notify.Notifier, logger *log.Logger) *Orchestrator {
	if logger == nil {
		logger = log.Default()
	}
	return &Orchestrator{
		Store:       store,
		Ledger:      ledger,
		Locks:       cache.NewLocker(kv),
		Invalidator: cache.NewInvalidator(kv, logger),
		Notifier:    notifier,
		Logger:      logger,
		LockTTL:     cache.DefaultLockTTL,
		Now:         time.Now,
		NewID:       uuid.NewString,
	}
}

// Enroll records the purchase and grants access. See the package doc for
// the step order and failure semantics.
func (o *Orchestrator) Enroll(ctx context.Context, req EnrollRequest) (*core.Transaction, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	lockKey := cache.EnrollLockKey(string(req.PayerID), string(req.CourseID))
	_, acquired, err := o.Locks.Acquire(ctx, lockKey, o.LockTTL)
	if err != nil {
		return nil, &core.StorageError{Op: "acquire enrollment lock", Err: err}
	}
	if !acquired {
		return nil, fmt.Errorf("%w: payer %s course %s", core.ErrEnrollmentInProgress, req.PayerID, req.CourseID)
	}
	defer o.release(ctx, lockKey)

	existing, err := o.Ledger.FindByPayerCourse(ctx, req.PayerID, req.CourseID)
	if err != nil {
		return nil, &core.StorageError{Op: "lookup purchase", Err: err}
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: payer %s course %s (tx %s)", core.ErrAlreadyEnrolled, req.PayerID, req.CourseID, existing.ID)
	}

	course, err := o.Store.GetCourse(ctx, req.CourseID)
	if err != nil {
		return nil, &core.StorageError{Op: "load course", Err: err}
	}
	if course == nil {
		return nil, fmt.Errorf("%w: %s", core.ErrCourseNotFound, req.CourseID)
	}
	payer, err := o.Store.GetUser(ctx, req.PayerID)
	if err != nil {
		return nil, &core.StorageError{Op: "load payer", Err: err}
	}
	if payer == nil {
		return nil, fmt.Errorf("%w: %s", core.ErrPayerNotFound, req.PayerID)
	}

	now := o.now()
	tx := core.Transaction{
		ID:               core.TransactionID(o.newID()),
		PayerID:          req.PayerID,
		CourseID:         req.CourseID,
		ExternalChargeID: req.ExternalChargeID,
		Amount:           req.Amount,
		Currency:         req.Currency,
		Provider:         req.Provider,
		CreatedAt:        now,
	}
	if tx.Currency == "" {
		tx.Currency = course.Currency
	}
	if err := o.Ledger.Append(ctx, tx); err != nil {
		return nil, &core.StorageError{Op: "append transaction", Err: err}
	}

	if err := o.Store.CreateProgress(ctx, NewProgress(*course, req.PayerID, now)); err != nil {
		o.Logger.Printf("[Enroll] tx %s recorded but progress write failed: %v", tx.ID, err)
		return nil, &core.StorageError{Op: "create progress", Err: err}
	}

	rec := core.EnrollmentRecord{PayerID: payer.ID, DisplayName: payer.Name, EnrolledAt: now}
	if err := o.Store.AppendEnrollment(ctx, course.ID, rec); err != nil {
		o.Logger.Printf("[Enroll] tx %s recorded but enrollment entry failed: %v", tx.ID, err)
		return nil, &core.StorageError{Op: "append enrollment", Err: err}
	}

	// The writes are committed; the caller's cancellation must not leave stale reads.
	after := context.WithoutCancel(ctx)
	patterns := cache.EnrollmentPatterns(string(course.ID), string(payer.ID), string(course.OwnerID))
	if err := o.Invalidator.Invalidate(after, patterns...); err != nil {
		o.Logger.Printf("[Enroll] cache invalidation for tx %s failed: %v", tx.ID, err)
	}

	o.notifyOwner(after, *course, *payer)

	o.Logger.Printf("[Enroll] payer %s enrolled in %s (tx %s, charge %s)", payer.ID, course.ID, tx.ID, tx.ExternalChargeID)
	return &tx, nil
}

func (o *Orchestrator) release(ctx context.Context, key string) {
	if err := o.Locks.Release(context.WithoutCancel(ctx), key); err != nil {
		o.Logger.Printf("[Enroll] lock release failed for %s, ttl will expire it: %v", key, err)
	}
}

func (o *Orchestrator) notifyOwner(ctx context.Context, c core.Course, payer core.User) {
	if o.Notifier == nil || c.OwnerID == "" {
		return
	}
	n := core.Notification{
		ID:          o.newID(),
		RecipientID: c.OwnerID,
		Title:       "New enrollment",
		Message:     fmt.Sprintf("%s enrolled in %s", payer.Name, c.Title),
		Type:        "enrollment",
		Link:        "/courses/" + string(c.ID),
		CreatedAt:   o.now(),
	}
	if err := o.Notifier.Notify(ctx, n); err != nil {
		o.Logger.Printf("[Enroll] notification to %s failed: %v", c.OwnerID, err)
	}
}

func (o *Orchestrator) now() time.Time {
	if o.Now == nil {
		return time.Now()
	}
	return o.Now()
}

func (o *Orchestrator) newID() string {
	if o.NewID == nil {
		return uuid.NewString()
	}
	return o.NewID()
}
