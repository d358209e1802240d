/*
Package core provides the domain types and storage contracts of the enrollment engine.

PURPOSE:
  This package contains the records every other package agrees on: the
  payment transaction that grants access to a course, the course and its
  section/chapter shape, the learner's progress snapshot, and the users
  involved. It also defines the append-only Ledger and the store interfaces
  that concrete backends (memory, SQLite) implement.

KEY CONCEPTS IN THIS FILE (types.go):
  - Transaction: An immutable ledger entry recording a completed purchase
  - Course: Sellable unit with sections, chapters and an enrollment set
  - CourseProgress: Zeroed learning state created at enrollment time
  - User: Payer, course owner (earner) or admin

DESIGN PRINCIPLES:
  1. Immutability: Transactions are never modified once appended
  2. Precision: Uses decimal.Decimal for money to avoid floating-point errors
  3. Type Safety: Distinct ID types prevent mixing payer/course identifiers
  4. Idempotency: ExternalChargeID is unique across the ledger

USAGE:
  tx := core.Transaction{
      PayerID:          "user-1",
      CourseID:         "course-1",
      ExternalChargeID: "pi_123",
      Amount:           decimal.NewFromInt(499),
      Currency:         "usd",
  }

SEE ALSO:
  - ledger.go: Transaction persistence and queries
  - store.go: Storage interfaces
  - period.go: Date ranges used by revenue reports
*/
package core

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type UserID string
type CourseID string
type TransactionID string

// ValidID reports whether id can be embedded literally in cache keys and
// invalidation patterns: no glob metacharacters and no backslash.
func ValidID(id string) bool {
	return !strings.ContainsAny(id, `*?[]\`)
}

// =============================================================================
// TRANSACTION - Completed payment granting access to a course
// =============================================================================

type Transaction struct {
	ID               TransactionID   `json:"id"`
	PayerID          UserID          `json:"payer_id"`
	CourseID         CourseID        `json:"course_id"`
	ExternalChargeID string          `json:"external_charge_id"`
	Amount           decimal.Decimal `json:"amount"`
	Currency         string          `json:"currency"`
	Provider         string          `json:"provider"`
	CreatedAt        time.Time       `json:"created_at"`
}

// Split returns the share of the amount attributed by ratio.
func (t Transaction) Split(ratio decimal.Decimal) decimal.Decimal {
	return t.Amount.Mul(ratio)
}

// =============================================================================
// COURSE
// =============================================================================

type CourseStatus string

const (
	CourseDraft     CourseStatus = "draft"
	CoursePublished CourseStatus = "published"
	CourseArchived  CourseStatus = "archived"
)

type Chapter struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type Section struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	Chapters []Chapter `json:"chapters"`
}

// EnrollmentRecord is embedded in the course's enrollment set.
type EnrollmentRecord struct {
	PayerID     UserID    `json:"payer_id"`
	DisplayName string    `json:"display_name"`
	EnrolledAt  time.Time `json:"enrolled_at"`
}

type Course struct {
	ID          CourseID           `json:"id"`
	Title       string             `json:"title"`
	OwnerID     UserID             `json:"owner_id"`
	Price       decimal.Decimal    `json:"price"`
	Currency    string             `json:"currency"`
	Status      CourseStatus       `json:"status"`
	Sections    []Section          `json:"sections"`
	Enrollments []EnrollmentRecord `json:"enrollments"`
	CreatedAt   time.Time          `json:"created_at"`
}

// ChapterCount returns the number of chapters across all sections.
func (c Course) ChapterCount() int {
	n := 0
	for _, s := range c.Sections {
		n += len(s.Chapters)
	}
	return n
}

// IsEnrolled reports whether the payer appears in the enrollment set.
func (c Course) IsEnrolled(payerID UserID) bool {
	for _, e := range c.Enrollments {
		if e.PayerID == payerID {
			return true
		}
	}
	return false
}

// =============================================================================
// USERS
// =============================================================================

type Role string

const (
	RoleAdmin   Role = "admin"
	RoleTeacher Role = "teacher"
	RoleLearner Role = "learner"
)

type User struct {
	ID        UserID    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// =============================================================================
// COURSE PROGRESS - Learning state snapshot taken at enrollment
// =============================================================================

type ChapterProgress struct {
	ChapterID string `json:"chapter_id"`
	Completed bool   `json:"completed"`
}

type SectionProgress struct {
	SectionID string            `json:"section_id"`
	Chapters  []ChapterProgress `json:"chapters"`
}

// CourseProgress mirrors the course shape at enrollment time. It is never
// re-derived from the course afterward.
type CourseProgress struct {
	PayerID         UserID            `json:"payer_id"`
	CourseID        CourseID          `json:"course_id"`
	EnrollmentDate  time.Time         `json:"enrollment_date"`
	OverallProgress int               `json:"overall_progress"`
	Sections        []SectionProgress `json:"sections"`
	LastAccessedAt  time.Time         `json:"last_accessed_at"`
}

// CompletionPercent derives 0..100 from completed chapters. A course with
// no chapters reports the stored OverallProgress.
func (p CourseProgress) CompletionPercent() int {
	total, done := 0, 0
	for _, s := range p.Sections {
		for _, c := range s.Chapters {
			total++
			if c.Completed {
				done++
			}
		}
	}
	if total == 0 {
		return p.OverallProgress
	}
	return done * 100 / total
}

// =============================================================================
// NOTIFICATIONS
// =============================================================================

type Notification struct {
	ID          string    `json:"id"`
	RecipientID UserID    `json:"recipient_id"`
	Title       string    `json:"title"`
	Message     string    `json:"message"`
	Type        string    `json:"type"`
	Link        string    `json:"link"`
	CreatedAt   time.Time `json:"created_at"`
}
