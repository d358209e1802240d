// Package store provides in-memory DocumentStore implementations.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/enrollment-engine/core"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu            sync.RWMutex
	transactions  []core.Transaction // sorted by CreatedAt ascending
	chargeIDs     map[string]bool
	courses       map[core.CourseID]core.Course
	users         map[core.UserID]core.User
	progress      map[progressKey]core.CourseProgress
	notifications []core.Notification
	gaps          map[gapKey]core.ReconciliationGap
}

type progressKey struct {
	PayerID  core.UserID
	CourseID core.CourseID
}

type gapKey struct {
	TransactionID core.TransactionID
	Kind          core.GapKind
}

var _ core.DocumentStore = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		chargeIDs: make(map[string]bool),
		courses:   make(map[core.CourseID]core.Course),
		users:     make(map[core.UserID]core.User),
		progress:  make(map[progressKey]core.CourseProgress),
		gaps:      make(map[gapKey]core.ReconciliationGap),
	}
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// AppendTransaction adds a single transaction. Append-only.
func (m *Memory) AppendTransaction(_ context.Context, tx core.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.chargeIDs[tx.ExternalChargeID] {
		return core.ErrDuplicateChargeID
	}

	i := sort.Search(len(m.transactions), func(i int) bool {
		return m.transactions[i].CreatedAt.After(tx.CreatedAt)
	})
	m.transactions = append(m.transactions, core.Transaction{})
	copy(m.transactions[i+1:], m.transactions[i:])
	m.transactions[i] = tx
	m.chargeIDs[tx.ExternalChargeID] = true
	return nil
}

func (m *Memory) FindTransaction(_ context.Context, payerID core.UserID, courseID core.CourseID) (*core.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, tx := range m.transactions {
		if tx.PayerID == payerID && tx.CourseID == courseID {
			found := tx
			return &found, nil
		}
	}
	return nil, nil
}

// QueryTransactions returns matching rows newest first.
func (m *Memory) QueryTransactions(_ context.Context, filter core.TransactionFilter) ([]core.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []core.Transaction
	for i := len(m.transactions) - 1; i >= 0; i-- {
		if filter.Matches(m.transactions[i]) {
			result = append(result, m.transactions[i])
		}
	}
	return result, nil
}

// =============================================================================
// COURSES
// =============================================================================

func (m *Memory) GetCourse(_ context.Context, id core.CourseID) (*core.Course, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.courses[id]
	if !ok {
		return nil, nil
	}
	c = cloneCourse(c)
	return &c, nil
}

func (m *Memory) CoursesByIDs(_ context.Context, ids []core.CourseID) (map[core.CourseID]core.Course, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(map[core.CourseID]core.Course, len(ids))
	for _, id := range ids {
		if c, ok := m.courses[id]; ok {
			result[id] = cloneCourse(c)
		}
	}
	return result, nil
}

// ListCourses returns matching courses ordered by creation time, newest first.
func (m *Memory) ListCourses(_ context.Context, filter core.CourseFilter) ([]core.Course, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []core.Course
	for _, c := range m.courses {
		if filter.OwnerID != "" && c.OwnerID != filter.OwnerID {
			continue
		}
		if filter.Status != "" && c.Status != filter.Status {
			continue
		}
		result = append(result, cloneCourse(c))
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func (m *Memory) SaveCourse(_ context.Context, c core.Course) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.courses[c.ID] = cloneCourse(c)
	return nil
}

func (m *Memory) AppendEnrollment(_ context.Context, courseID core.CourseID, rec core.EnrollmentRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.courses[courseID]
	if !ok {
		return core.ErrCourseNotFound
	}
	c = cloneCourse(c)
	c.Enrollments = append(c.Enrollments, rec)
	m.courses[courseID] = c
	return nil
}

// cloneCourse copies the slices so callers can't mutate stored state.
func cloneCourse(c core.Course) core.Course {
	sections := make([]core.Section, len(c.Sections))
	for i, s := range c.Sections {
		s.Chapters = append([]core.Chapter(nil), s.Chapters...)
		sections[i] = s
	}
	c.Sections = sections
	c.Enrollments = append([]core.EnrollmentRecord(nil), c.Enrollments...)
	return c
}

// =============================================================================
// USERS
// =============================================================================

func (m *Memory) GetUser(_ context.Context, id core.UserID) (*core.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (m *Memory) UsersByIDs(_ context.Context, ids []core.UserID) (map[core.UserID]core.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(map[core.UserID]core.User, len(ids))
	for _, id := range ids {
		if u, ok := m.users[id]; ok {
			result[id] = u
		}
	}
	return result, nil
}

func (m *Memory) SaveUser(_ context.Context, u core.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
	return nil
}

// =============================================================================
// PROGRESS
// =============================================================================

func (m *Memory) CreateProgress(_ context.Context, p core.CourseProgress) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := progressKey{PayerID: p.PayerID, CourseID: p.CourseID}
	if _, exists := m.progress[k]; exists {
		return core.ErrDuplicateProgress
	}
	m.progress[k] = p
	return nil
}

func (m *Memory) GetProgress(_ context.Context, payerID core.UserID, courseID core.CourseID) (*core.CourseProgress, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.progress[progressKey{PayerID: payerID, CourseID: courseID}]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

// ListProgress returns the payer's progress records, most recent enrollment first.
func (m *Memory) ListProgress(_ context.Context, payerID core.UserID) ([]core.CourseProgress, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []core.CourseProgress
	for k, p := range m.progress {
		if k.PayerID == payerID {
			result = append(result, p)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].EnrollmentDate.Equal(result[j].EnrollmentDate) {
			return result[i].CourseID < result[j].CourseID
		}
		return result[i].EnrollmentDate.After(result[j].EnrollmentDate)
	})
	return result, nil
}

// =============================================================================
// NOTIFICATIONS
// =============================================================================

func (m *Memory) SaveNotification(_ context.Context, n core.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifications = append(m.notifications, n)
	return nil
}

func (m *Memory) ListNotifications(_ context.Context, recipientID core.UserID) ([]core.Notification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []core.Notification
	for i := len(m.notifications) - 1; i >= 0; i-- {
		if m.notifications[i].RecipientID == recipientID {
			result = append(result, m.notifications[i])
		}
	}
	return result, nil
}

// =============================================================================
// RECONCILIATION GAPS
// =============================================================================

func (m *Memory) SaveGap(_ context.Context, g core.ReconciliationGap) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := gapKey{TransactionID: g.TransactionID, Kind: g.Kind}
	if _, exists := m.gaps[k]; exists {
		return nil
	}
	m.gaps[k] = g
	return nil
}

func (m *Memory) ListGaps(_ context.Context) ([]core.ReconciliationGap, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]core.ReconciliationGap, 0, len(m.gaps))
	for _, g := range m.gaps {
		result = append(result, g)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].TransactionID == result[j].TransactionID {
			return result[i].Kind < result[j].Kind
		}
		return result[i].TransactionID < result[j].TransactionID
	})
	return result, nil
}

// Reset drops all data. Used by demo scenarios only.
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.transactions = nil
	m.notifications = nil
	m.chargeIDs = make(map[string]bool)
	m.courses = make(map[core.CourseID]core.Course)
	m.users = make(map[core.UserID]core.User)
	m.progress = make(map[progressKey]core.CourseProgress)
	m.gaps = make(map[gapKey]core.ReconciliationGap)
	return nil
}
