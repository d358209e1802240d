/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements core.DocumentStore (ledger, courses, users, progress,
  notifications, reconciliation gaps) and cache.Store (KV with TTL) on one
  SQLite database. Nested course data (sections, enrollment set) and
  progress trees are stored as JSON columns, the way a document store
  would keep them.

INTERFACES IMPLEMENTED:
  core.DocumentStore: Document persistence
  cache.Store:        Key-value entries with expiry (see kv.go)

APPEND-ONLY ENFORCEMENT:
  - No UPDATE or DELETE statements on the transactions table
  - external_charge_id is UNIQUE, replays fail with core.ErrDuplicateChargeID
  - (payer, course) uniqueness of purchases is NOT a constraint; the
    enrollment lock and ledger pre-check own that invariant

KEY TABLES:
  transactions:         Immutable ledger of purchases
  courses:              Course documents (sections + enrollments as JSON)
  users:                Payers, owners, admins
  course_progress:      One row per (payer, course)
  notifications:        Persisted notifications
  reconciliation_gaps:  Ledger rows missing follow-up writes
  kv_entries:           Cache and lock entries

CONCURRENCY:
  Uses sync.RWMutex for thread-safety, and a single connection so that
  ":memory:" databases are shared by every query.

USAGE:
  store, err := sqlite.New("./data/enroll.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  ledger := core.NewLedger(store)
  locks := cache.NewLocker(store.KV())

SEE ALSO:
  - core/store.go: Interface definitions
  - core/store/memory.go: In-memory implementation for testing
  - kv.go: cache.Store implementation
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/enrollment-engine/core"
)

// timeLayout is fixed-width so stored timestamps sort lexicographically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex

	kv *KV
}

var _ core.DocumentStore = (*Store)(nil)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	store.kv = &KV{store: store, now: time.Now}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// KV returns the key-value view of this database.
func (s *Store) KV() *KV {
	return s.kv
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Purchases (append-only ledger)
	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		payer_id TEXT NOT NULL,
		course_id TEXT NOT NULL,
		external_charge_id TEXT NOT NULL UNIQUE,
		amount TEXT NOT NULL,
		currency TEXT NOT NULL,
		provider TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_transactions_payer_course
		ON transactions(payer_id, course_id);
	CREATE INDEX IF NOT EXISTS idx_transactions_course_date
		ON transactions(course_id, created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_transactions_created_at
		ON transactions(created_at DESC);

	-- Courses (document with embedded sections and enrollment set)
	CREATE TABLE IF NOT EXISTS courses (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		owner_id TEXT NOT NULL,
		price TEXT NOT NULL,
		currency TEXT NOT NULL,
		status TEXT NOT NULL,
		sections_json TEXT NOT NULL,
		enrollments_json TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_courses_owner
		ON courses(owner_id);

	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT,
		role TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	-- Progress: exactly one row per (payer, course)
	CREATE TABLE IF NOT EXISTS course_progress (
		payer_id TEXT NOT NULL,
		course_id TEXT NOT NULL,
		enrollment_date TEXT NOT NULL,
		overall_progress INTEGER NOT NULL DEFAULT 0,
		sections_json TEXT NOT NULL,
		last_accessed_at TEXT NOT NULL,
		PRIMARY KEY (payer_id, course_id)
	);

	CREATE TABLE IF NOT EXISTS notifications (
		id TEXT PRIMARY KEY,
		recipient_id TEXT NOT NULL,
		title TEXT NOT NULL,
		message TEXT NOT NULL,
		type TEXT,
		link TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_notifications_recipient
		ON notifications(recipient_id, created_at DESC);

	CREATE TABLE IF NOT EXISTS reconciliation_gaps (
		transaction_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		payer_id TEXT NOT NULL,
		course_id TEXT NOT NULL,
		detected_at TEXT NOT NULL,
		PRIMARY KEY (transaction_id, kind)
	);

	-- KV entries; expires_at is unix nanoseconds, NULL = no expiry
	CREATE TABLE IF NOT EXISTS kv_entries (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		expires_at INTEGER
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Reset deletes all data. Used by demo scenarios only.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"transactions", "courses", "users", "course_progress", "notifications", "reconciliation_gaps", "kv_entries"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to reset %s: %w", table, err)
		}
	}
	return nil
}

// =============================================================================
// TRANSACTION STORE (core.TransactionStore interface)
// =============================================================================

const transactionColumns = `id, payer_id, course_id, external_charge_id, amount, currency, provider, created_at`

// AppendTransaction adds a purchase to the ledger.
func (s *Store) AppendTransaction(ctx context.Context, tx core.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transactions (`+transactionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		tx.ID,
		tx.PayerID,
		tx.CourseID,
		tx.ExternalChargeID,
		tx.Amount.String(),
		tx.Currency,
		nullString(tx.Provider),
		formatTime(tx.CreatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return core.ErrDuplicateChargeID
		}
		return fmt.Errorf("failed to append transaction: %w", err)
	}
	return nil
}

// FindTransaction returns the earliest purchase of course by payer, or nil.
func (s *Store) FindTransaction(ctx context.Context, payerID core.UserID, courseID core.CourseID) (*core.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	txs, err := s.queryTransactions(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE payer_id = ? AND course_id = ?
		ORDER BY created_at ASC
		LIMIT 1
	`, payerID, courseID)
	if err != nil {
		return nil, err
	}
	if len(txs) == 0 {
		return nil, nil
	}
	return &txs[0], nil
}

// QueryTransactions returns purchases matching filter, newest first.
func (s *Store) QueryTransactions(ctx context.Context, filter core.TransactionFilter) ([]core.Transaction, error) {
	if filter.CourseIDs != nil && len(filter.CourseIDs) == 0 {
		return nil, nil
	}

	var (
		where []string
		args  []any
	)
	if filter.PayerID != "" {
		where = append(where, "payer_id = ?")
		args = append(args, filter.PayerID)
	}
	if len(filter.CourseIDs) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(filter.CourseIDs)), ",")
		where = append(where, "course_id IN ("+placeholders+")")
		for _, id := range filter.CourseIDs {
			args = append(args, id)
		}
	}
	if !filter.From.IsZero() {
		where = append(where, "created_at >= ?")
		args = append(args, formatTime(filter.From))
	}
	if !filter.To.IsZero() {
		where = append(where, "created_at <= ?")
		args = append(args, formatTime(filter.To))
	}

	query := `SELECT ` + transactionColumns + ` FROM transactions`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryTransactions(ctx, query, args...)
}

func (s *Store) queryTransactions(ctx context.Context, query string, args ...any) ([]core.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var transactions []core.Transaction
	for rows.Next() {
		var (
			tx        core.Transaction
			amount    string
			provider  sql.NullString
			createdAt string
		)
		if err := rows.Scan(&tx.ID, &tx.PayerID, &tx.CourseID, &tx.ExternalChargeID,
			&amount, &tx.Currency, &provider, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		tx.Amount, err = decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("invalid amount on transaction %s: %w", tx.ID, err)
		}
		tx.Provider = provider.String
		tx.CreatedAt = parseTime(createdAt)
		transactions = append(transactions, tx)
	}
	return transactions, rows.Err()
}

// =============================================================================
// COURSE STORE
// =============================================================================

const courseColumns = `id, title, owner_id, price, currency, status, sections_json, enrollments_json, created_at`

// SaveCourse inserts or replaces a course document.
func (s *Store) SaveCourse(ctx context.Context, c core.Course) error {
	sectionsJSON, err := json.Marshal(nonNil(c.Sections))
	if err != nil {
		return fmt.Errorf("failed to encode sections: %w", err)
	}
	enrollmentsJSON, err := json.Marshal(nonNil(c.Enrollments))
	if err != nil {
		return fmt.Errorf("failed to encode enrollments: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO courses (`+courseColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		c.ID, c.Title, c.OwnerID, c.Price.String(), c.Currency, c.Status,
		string(sectionsJSON), string(enrollmentsJSON), formatTime(c.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save course: %w", err)
	}
	return nil
}

// GetCourse returns the course or nil if it doesn't exist.
func (s *Store) GetCourse(ctx context.Context, id core.CourseID) (*core.Course, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	courses, err := s.queryCourses(ctx, s.db, `SELECT `+courseColumns+` FROM courses WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(courses) == 0 {
		return nil, nil
	}
	return &courses[0], nil
}

func (s *Store) CoursesByIDs(ctx context.Context, ids []core.CourseID) (map[core.CourseID]core.Course, error) {
	result := make(map[core.CourseID]core.Course, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")

	s.mu.RLock()
	defer s.mu.RUnlock()

	courses, err := s.queryCourses(ctx, s.db, `SELECT `+courseColumns+` FROM courses WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, err
	}
	for _, c := range courses {
		result[c.ID] = c
	}
	return result, nil
}

// ListCourses returns matching courses, newest first.
func (s *Store) ListCourses(ctx context.Context, filter core.CourseFilter) ([]core.Course, error) {
	var (
		where []string
		args  []any
	)
	if filter.OwnerID != "" {
		where = append(where, "owner_id = ?")
		args = append(args, filter.OwnerID)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}
	query := `SELECT ` + courseColumns + ` FROM courses`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id ASC"

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryCourses(ctx, s.db, query, args...)
}

// AppendEnrollment adds rec to the course's enrollment set atomically.
func (s *Store) AppendEnrollment(ctx context.Context, courseID core.CourseID, rec core.EnrollmentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	var raw string
	err = sqlTx.QueryRowContext(ctx, `SELECT enrollments_json FROM courses WHERE id = ?`, courseID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return core.ErrCourseNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to load enrollments: %w", err)
	}

	var enrollments []core.EnrollmentRecord
	if err := json.Unmarshal([]byte(raw), &enrollments); err != nil {
		return fmt.Errorf("failed to decode enrollments: %w", err)
	}
	enrollments = append(enrollments, rec)

	updated, err := json.Marshal(enrollments)
	if err != nil {
		return fmt.Errorf("failed to encode enrollments: %w", err)
	}
	if _, err := sqlTx.ExecContext(ctx, `UPDATE courses SET enrollments_json = ? WHERE id = ?`, string(updated), courseID); err != nil {
		return fmt.Errorf("failed to append enrollment: %w", err)
	}
	return sqlTx.Commit()
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *Store) queryCourses(ctx context.Context, q querier, query string, args ...any) ([]core.Course, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query courses: %w", err)
	}
	defer rows.Close()

	var courses []core.Course
	for rows.Next() {
		var (
			c               core.Course
			price           string
			sectionsJSON    string
			enrollmentsJSON string
			createdAt       string
		)
		if err := rows.Scan(&c.ID, &c.Title, &c.OwnerID, &price, &c.Currency, &c.Status,
			&sectionsJSON, &enrollmentsJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan course: %w", err)
		}
		c.Price, _ = decimal.NewFromString(price)
		if err := json.Unmarshal([]byte(sectionsJSON), &c.Sections); err != nil {
			return nil, fmt.Errorf("failed to decode sections of %s: %w", c.ID, err)
		}
		if err := json.Unmarshal([]byte(enrollmentsJSON), &c.Enrollments); err != nil {
			return nil, fmt.Errorf("failed to decode enrollments of %s: %w", c.ID, err)
		}
		c.CreatedAt = parseTime(createdAt)
		courses = append(courses, c)
	}
	return courses, rows.Err()
}

// =============================================================================
// USER STORE
// =============================================================================

func (s *Store) SaveUser(ctx context.Context, u core.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO users (id, name, email, role, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, u.ID, u.Name, nullString(u.Email), u.Role, formatTime(u.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}
	return nil
}

// GetUser returns the user or nil if it doesn't exist.
func (s *Store) GetUser(ctx context.Context, id core.UserID) (*core.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users, err := s.queryUsers(ctx, `SELECT id, name, email, role, created_at FROM users WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return nil, nil
	}
	return &users[0], nil
}

func (s *Store) UsersByIDs(ctx context.Context, ids []core.UserID) (map[core.UserID]core.User, error) {
	result := make(map[core.UserID]core.User, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")

	s.mu.RLock()
	defer s.mu.RUnlock()

	users, err := s.queryUsers(ctx, `SELECT id, name, email, role, created_at FROM users WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		result[u.ID] = u
	}
	return result, nil
}

func (s *Store) queryUsers(ctx context.Context, query string, args ...any) ([]core.User, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var users []core.User
	for rows.Next() {
		var (
			u         core.User
			email     sql.NullString
			createdAt string
		)
		if err := rows.Scan(&u.ID, &u.Name, &email, &u.Role, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		u.Email = email.String
		u.CreatedAt = parseTime(createdAt)
		users = append(users, u)
	}
	return users, rows.Err()
}

// =============================================================================
// PROGRESS STORE
// =============================================================================

func (s *Store) CreateProgress(ctx context.Context, p core.CourseProgress) error {
	sectionsJSON, err := json.Marshal(nonNil(p.Sections))
	if err != nil {
		return fmt.Errorf("failed to encode progress: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO course_progress
		(payer_id, course_id, enrollment_date, overall_progress, sections_json, last_accessed_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, p.PayerID, p.CourseID, formatTime(p.EnrollmentDate), p.OverallProgress,
		string(sectionsJSON), formatTime(p.LastAccessedAt))
	if err != nil {
		if isUniqueConstraintError(err) {
			return core.ErrDuplicateProgress
		}
		return fmt.Errorf("failed to create progress: %w", err)
	}
	return nil
}

const progressColumns = `payer_id, course_id, enrollment_date, overall_progress, sections_json, last_accessed_at`

// GetProgress returns the progress record or nil if it doesn't exist.
func (s *Store) GetProgress(ctx context.Context, payerID core.UserID, courseID core.CourseID) (*core.CourseProgress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records, err := s.queryProgress(ctx, `SELECT `+progressColumns+` FROM course_progress WHERE payer_id = ? AND course_id = ?`, payerID, courseID)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return &records[0], nil
}

func (s *Store) ListProgress(ctx context.Context, payerID core.UserID) ([]core.CourseProgress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryProgress(ctx, `
		SELECT `+progressColumns+` FROM course_progress
		WHERE payer_id = ?
		ORDER BY enrollment_date DESC, course_id ASC
	`, payerID)
}

func (s *Store) queryProgress(ctx context.Context, query string, args ...any) ([]core.CourseProgress, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query progress: %w", err)
	}
	defer rows.Close()

	var records []core.CourseProgress
	for rows.Next() {
		var (
			p              core.CourseProgress
			enrollmentDate string
			sectionsJSON   string
			lastAccessedAt string
		)
		if err := rows.Scan(&p.PayerID, &p.CourseID, &enrollmentDate, &p.OverallProgress,
			&sectionsJSON, &lastAccessedAt); err != nil {
			return nil, fmt.Errorf("failed to scan progress: %w", err)
		}
		if err := json.Unmarshal([]byte(sectionsJSON), &p.Sections); err != nil {
			return nil, fmt.Errorf("failed to decode progress: %w", err)
		}
		p.EnrollmentDate = parseTime(enrollmentDate)
		p.LastAccessedAt = parseTime(lastAccessedAt)
		records = append(records, p)
	}
	return records, rows.Err()
}

// =============================================================================
// NOTIFICATION STORE
// =============================================================================

func (s *Store) SaveNotification(ctx context.Context, n core.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (id, recipient_id, title, message, type, link, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, n.ID, n.RecipientID, n.Title, n.Message, nullString(n.Type), nullString(n.Link), formatTime(n.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to save notification: %w", err)
	}
	return nil
}

func (s *Store) ListNotifications(ctx context.Context, recipientID core.UserID) ([]core.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, recipient_id, title, message, type, link, created_at
		FROM notifications
		WHERE recipient_id = ?
		ORDER BY created_at DESC
	`, recipientID)
	if err != nil {
		return nil, fmt.Errorf("failed to query notifications: %w", err)
	}
	defer rows.Close()

	var result []core.Notification
	for rows.Next() {
		var (
			n         core.Notification
			typ, link sql.NullString
			createdAt string
		)
		if err := rows.Scan(&n.ID, &n.RecipientID, &n.Title, &n.Message, &typ, &link, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		n.Type = typ.String
		n.Link = link.String
		n.CreatedAt = parseTime(createdAt)
		result = append(result, n)
	}
	return result, rows.Err()
}

// =============================================================================
// RECONCILIATION GAPS
// =============================================================================

// SaveGap records g once per (transaction, kind); repeats are ignored.
func (s *Store) SaveGap(ctx context.Context, g core.ReconciliationGap) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO reconciliation_gaps (transaction_id, kind, payer_id, course_id, detected_at)
		VALUES (?, ?, ?, ?, ?)
	`, g.TransactionID, g.Kind, g.PayerID, g.CourseID, formatTime(g.DetectedAt))
	if err != nil {
		return fmt.Errorf("failed to save reconciliation gap: %w", err)
	}
	return nil
}

func (s *Store) ListGaps(ctx context.Context) ([]core.ReconciliationGap, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT transaction_id, kind, payer_id, course_id, detected_at
		FROM reconciliation_gaps
		ORDER BY transaction_id, kind
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query reconciliation gaps: %w", err)
	}
	defer rows.Close()

	var gaps []core.ReconciliationGap
	for rows.Next() {
		var (
			g          core.ReconciliationGap
			detectedAt string
		)
		if err := rows.Scan(&g.TransactionID, &g.Kind, &g.PayerID, &g.CourseID, &detectedAt); err != nil {
			return nil, fmt.Errorf("failed to scan reconciliation gap: %w", err)
		}
		g.DetectedAt = parseTime(detectedAt)
		gaps = append(gaps, g)
	}
	return gaps, rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339Nano, s)
	}
	return t.UTC()
}

// nonNil keeps empty collections encoded as [] rather than null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func isUniqueConstraintError(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.ExtendedCode == sqlite3.ErrConstraintUnique ||
		se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}
