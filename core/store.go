/*
store.go - Persistence interfaces for ledger, catalog and learner data

PURPOSE:
  Defines the boundary between the enrollment logic and the document store.
  The transaction store is append-only; courses gain enrollment entries but
  are otherwise written only by seeding and catalog administration.

KEY INTERFACES:
  TransactionStore:  Append-only ledger persistence (unique external charge id)
  CourseStore:       Course documents and their embedded enrollment set
  UserStore:         Payers, owners and admins
  ProgressStore:     One progress record per (payer, course)
  NotificationStore: Persisted notifications for the store-backed sink
  DocumentStore:     All of the above

NOT FOUND CONTRACT:
  Single-record getters return (nil, nil) when the record does not exist.
  Callers translate that into the domain sentinel they need.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite document store
  - core/store/memory.go: In-memory for testing and demos

SEE ALSO:
  - ledger.go: Higher-level interface using TransactionStore
*/
package core

import (
	"context"
	"time"
)

// =============================================================================
// TRANSACTIONS - Append-only
// =============================================================================

// TransactionFilter narrows ledger queries. Zero values mean "no constraint".
// A non-nil, empty CourseIDs matches nothing.
type TransactionFilter struct {
	PayerID   UserID
	CourseIDs []CourseID
	From      time.Time
	To        time.Time
}

// Matches reports whether tx satisfies the filter.
func (f TransactionFilter) Matches(tx Transaction) bool {
	if f.PayerID != "" && tx.PayerID != f.PayerID {
		return false
	}
	if f.CourseIDs != nil {
		found := false
		for _, id := range f.CourseIDs {
			if id == tx.CourseID {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if !f.From.IsZero() && tx.CreatedAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && tx.CreatedAt.After(f.To) {
		return false
	}
	return true
}

// TransactionStore persists ledger rows.
// IMPORTANT: append-only. There is no Update or Delete.
type TransactionStore interface {
	// AppendTransaction persists tx. Returns ErrDuplicateChargeID if the
	// external charge id already exists.
	AppendTransaction(ctx context.Context, tx Transaction) error

	// FindTransaction returns the first transaction for (payer, course) or nil.
	FindTransaction(ctx context.Context, payerID UserID, courseID CourseID) (*Transaction, error)

	// QueryTransactions returns matching rows, newest first.
	QueryTransactions(ctx context.Context, filter TransactionFilter) ([]Transaction, error)
}

// =============================================================================
// COURSES
// =============================================================================

type CourseFilter struct {
	OwnerID UserID
	Status  CourseStatus
}

type CourseStore interface {
	GetCourse(ctx context.Context, id CourseID) (*Course, error)
	CoursesByIDs(ctx context.Context, ids []CourseID) (map[CourseID]Course, error)
	ListCourses(ctx context.Context, filter CourseFilter) ([]Course, error)
	SaveCourse(ctx context.Context, c Course) error

	// AppendEnrollment adds rec to the course's enrollment set.
	// Returns ErrCourseNotFound if the course does not exist.
	AppendEnrollment(ctx context.Context, courseID CourseID, rec EnrollmentRecord) error
}

// =============================================================================
// USERS
// =============================================================================

type UserStore interface {
	GetUser(ctx context.Context, id UserID) (*User, error)
	UsersByIDs(ctx context.Context, ids []UserID) (map[UserID]User, error)
	SaveUser(ctx context.Context, u User) error
}

// =============================================================================
// PROGRESS
// =============================================================================

type ProgressStore interface {
	// CreateProgress inserts p. Returns ErrDuplicateProgress if a record for
	// (payer, course) already exists.
	CreateProgress(ctx context.Context, p CourseProgress) error
	GetProgress(ctx context.Context, payerID UserID, courseID CourseID) (*CourseProgress, error)
	ListProgress(ctx context.Context, payerID UserID) ([]CourseProgress, error)
}

// =============================================================================
// NOTIFICATIONS
// =============================================================================

type NotificationStore interface {
	SaveNotification(ctx context.Context, n Notification) error
	ListNotifications(ctx context.Context, recipientID UserID) ([]Notification, error)
}

// =============================================================================
// RECONCILIATION - Gaps left by partial enrollments
// =============================================================================

type GapKind string

const (
	GapMissingProgress   GapKind = "missing_progress"
	GapMissingEnrollment GapKind = "missing_enrollment"
)

// ReconciliationGap records a ledger transaction whose follow-up writes are missing.
type ReconciliationGap struct {
	TransactionID TransactionID `json:"transaction_id"`
	PayerID       UserID        `json:"payer_id"`
	CourseID      CourseID      `json:"course_id"`
	Kind          GapKind       `json:"kind"`
	DetectedAt    time.Time     `json:"detected_at"`
}

type GapStore interface {
	// SaveGap upserts by (transaction, kind).
	SaveGap(ctx context.Context, g ReconciliationGap) error
	ListGaps(ctx context.Context) ([]ReconciliationGap, error)
}

// =============================================================================
// DOCUMENT STORE
// =============================================================================

type DocumentStore interface {
	TransactionStore
	CourseStore
	UserStore
	ProgressStore
	NotificationStore
	GapStore
}
