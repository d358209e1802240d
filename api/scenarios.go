/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	data for testing and demos. Each scenario creates users and courses
	through the factory and records purchases through the real enrollment
	flow, so progress, enrollment sets and caches stay consistent.

AVAILABLE SCENARIOS:

	first-purchase:     One teacher, one 3-chapter course, no purchases yet
	top-earners:        Course A (5 learners at 10) vs course B (3 at 20)
	busy-catalog:       Three teachers, six courses, purchases over 60 days
	partial-enrollment: A ledger row whose progress write never happened

HOW SCENARIOS WORK:
 1. Reset database (clear all data) and flush cached reads
 2. Create users and courses via factory
 3. Enroll payers through an orchestrator clocked at the purchase time
 4. Optionally leave a partial enrollment for the reconciliation scheduler

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "top-earners"}

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Enrollment and report handlers
  - factory/course.go: Course JSON definitions
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/enrollment-engine/cache"
	"github.com/warp/enrollment-engine/core"
	"github.com/warp/enrollment-engine/enrollment"
	"github.com/warp/enrollment-engine/factory"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "first-purchase",
		Name:        "First Purchase",
		Description: "One teacher, one three-chapter course and two learners who have not bought anything",
	},
	{
		ID:          "top-earners",
		Name:        "Top Earners",
		Description: "Course A sells 5 seats at 10, course B sells 3 seats at 20; A ranks first",
	},
	{
		ID:          "busy-catalog",
		Name:        "Busy Catalog",
		Description: "Three teachers, six courses and sixty days of purchases",
	},
	{
		ID:          "partial-enrollment",
		Name:        "Partial Enrollment",
		Description: "A recorded payment whose progress record is missing, for the reconciliation scheduler",
	},
}

var cachedNamespaces = []string{
	cache.NSCourse + ":*",
	cache.NSCourses + ":*",
	cache.NSEnrolled + ":*",
	cache.NSPurchases + ":*",
	cache.NSEarnings + ":*",
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	if current == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, ScenarioDTO{ID: current, Name: current})
}

// LoadScenario loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if err := h.loadScenario(r.Context(), req.ScenarioID); err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// ResetDatabase clears all data.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.reset(r.Context()); err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) loadScenario(ctx context.Context, id string) error {
	var loader func(context.Context) error
	switch id {
	case "first-purchase":
		loader = h.loadFirstPurchaseScenario
	case "top-earners":
		loader = h.loadTopEarnersScenario
	case "busy-catalog":
		loader = h.loadBusyCatalogScenario
	case "partial-enrollment":
		loader = h.loadPartialEnrollmentScenario
	default:
		return fmt.Errorf("%w: unknown scenario %q", core.ErrInvalidRequest, id)
	}

	if err := h.reset(ctx); err != nil {
		return err
	}
	if err := loader(ctx); err != nil {
		return fmt.Errorf("load scenario %s: %w", id, err)
	}

	h.mu.Lock()
	h.currentScenario = id
	h.mu.Unlock()
	h.Logger.Printf("[Scenarios] loaded %s", id)
	return nil
}

func (h *Handler) reset(ctx context.Context) error {
	if err := h.Store.Reset(ctx); err != nil {
		return &core.StorageError{Op: "reset database", Err: err}
	}
	if err := cache.NewInvalidator(h.KV, h.Logger).Invalidate(ctx, cachedNamespaces...); err != nil {
		return &core.StorageError{Op: "flush cache", Err: err}
	}
	h.mu.Lock()
	h.currentScenario = ""
	h.mu.Unlock()
	return nil
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) loadFirstPurchaseScenario(ctx context.Context) error {
	if err := h.seedUsers(ctx,
		`{"id": "teacher-1", "name": "Grace Hopper", "email": "grace@example.com", "role": "teacher"}`,
		`{"id": "learner-1", "name": "Alan Turing", "email": "alan@example.com"}`,
		`{"id": "learner-2", "name": "Ada Lovelace", "email": "ada@example.com"}`,
	); err != nil {
		return err
	}
	return h.seedCourse(ctx, factory.CourseDefinitionJSON("go-basics", "Go Basics", "teacher-1", "29.00", 3), h.now().AddDate(0, -1, 0))
}

func (h *Handler) loadTopEarnersScenario(ctx context.Context) error {
	users := []string{
		`{"id": "teacher-a", "name": "Ann Teacher", "role": "teacher"}`,
		`{"id": "teacher-b", "name": "Bob Teacher", "role": "teacher"}`,
	}
	for i := 1; i <= 5; i++ {
		users = append(users, fmt.Sprintf(`{"id": "learner-%d", "name": "Learner %d"}`, i, i))
	}
	if err := h.seedUsers(ctx, users...); err != nil {
		return err
	}

	created := h.now().AddDate(0, -2, 0)
	if err := h.seedCourse(ctx, factory.CourseDefinitionJSON("course-a", "Course A", "teacher-a", "10", 2), created); err != nil {
		return err
	}
	if err := h.seedCourse(ctx, factory.CourseDefinitionJSON("course-b", "Course B", "teacher-b", "20", 2), created); err != nil {
		return err
	}

	day := h.now().AddDate(0, 0, -3)
	for i := 1; i <= 5; i++ {
		if err := h.purchase(ctx, fmt.Sprintf("learner-%d", i), "course-a", decimal.NewFromInt(10), day); err != nil {
			return err
		}
	}
	for i := 1; i <= 3; i++ {
		if err := h.purchase(ctx, fmt.Sprintf("learner-%d", i), "course-b", decimal.NewFromInt(20), day); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) loadBusyCatalogScenario(ctx context.Context) error {
	users := []string{
		`{"id": "admin", "name": "Platform Admin", "role": "admin"}`,
		`{"id": "teacher-1", "name": "Grace Hopper", "role": "teacher"}`,
		`{"id": "teacher-2", "name": "Linus Torvalds", "role": "teacher"}`,
		`{"id": "teacher-3", "name": "Barbara Liskov", "role": "teacher"}`,
	}
	for i := 1; i <= 8; i++ {
		users = append(users, fmt.Sprintf(`{"id": "learner-%d", "name": "Learner %d"}`, i, i))
	}
	if err := h.seedUsers(ctx, users...); err != nil {
		return err
	}

	type courseDef struct {
		id, title, owner, price string
		chapters                []int
	}
	defs := []courseDef{
		{"go-basics", "Go Basics", "teacher-1", "29.00", []int{3, 2}},
		{"go-concurrency", "Go Concurrency", "teacher-1", "49.00", []int{4}},
		{"kernel-dev", "Kernel Development", "teacher-2", "99.00", []int{2, 2, 2}},
		{"git-internals", "Git Internals", "teacher-2", "19.00", []int{3}},
		{"abstraction", "Data Abstraction", "teacher-3", "39.00", []int{2, 3}},
		{"distributed", "Distributed Systems", "teacher-3", "79.00", []int{5}},
	}
	start := h.now().AddDate(0, 0, -90)
	prices := make(map[string]decimal.Decimal, len(defs))
	for i, d := range defs {
		if err := h.seedCourse(ctx, factory.CourseDefinitionJSON(d.id, d.title, d.owner, d.price, d.chapters...), start.AddDate(0, 0, i)); err != nil {
			return err
		}
		prices[d.id] = decimal.RequireFromString(d.price)
	}

	// Deterministic spread: learner i buys every (i % 3 + 1)-th course,
	// one purchase every few days across the last 60 days.
	n := 0
	for i := 1; i <= 8; i++ {
		for j, d := range defs {
			if j%(i%3+1) != 0 {
				continue
			}
			at := h.now().AddDate(0, 0, -((n * 7) % 60))
			if err := h.purchase(ctx, fmt.Sprintf("learner-%d", i), d.id, prices[d.id], at); err != nil {
				return err
			}
			n++
		}
	}
	return nil
}

func (h *Handler) loadPartialEnrollmentScenario(ctx context.Context) error {
	if err := h.loadFirstPurchaseScenario(ctx); err != nil {
		return err
	}
	if err := h.purchase(ctx, "learner-1", "go-basics", decimal.RequireFromString("29.00"), h.now().AddDate(0, 0, -2)); err != nil {
		return err
	}

	// learner-2 paid, but the process died before the progress and
	// enrollment writes.
	return h.Ledger.Append(ctx, core.Transaction{
		ID:               "tx-partial-1",
		PayerID:          "learner-2",
		CourseID:         "go-basics",
		ExternalChargeID: "ch_partial_1",
		Amount:           decimal.RequireFromString("29.00"),
		Currency:         "usd",
		Provider:         "stub",
		CreatedAt:        h.now().AddDate(0, 0, -1),
	})
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) seedUsers(ctx context.Context, defs ...string) error {
	for _, def := range defs {
		u, err := h.Factory.ParseUser(def)
		if err != nil {
			return err
		}
		u.CreatedAt = h.now().AddDate(0, -3, 0)
		if err := h.Store.SaveUser(ctx, *u); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) seedCourse(ctx context.Context, def string, createdAt time.Time) error {
	c, err := h.Factory.ParseCourse(def)
	if err != nil {
		return err
	}
	c.CreatedAt = createdAt
	return h.Store.SaveCourse(ctx, *c)
}

// purchase enrolls payer through a dedicated orchestrator whose clock is
// pinned to at, so history lands on the right day.
func (h *Handler) purchase(ctx context.Context, payerID, courseID string, amount decimal.Decimal, at time.Time) error {
	orch := enrollment.NewOrchestrator(h.Store, h.Ledger, h.KV, nil, h.Logger)
	orch.Now = func() time.Time { return at }

	_, err := orch.Enroll(ctx, enrollment.EnrollRequest{
		PayerID:          core.UserID(payerID),
		CourseID:         core.CourseID(courseID),
		ExternalChargeID: fmt.Sprintf("ch_scenario_%s_%s", payerID, courseID),
		Amount:           amount,
		Provider:         "stub",
	})
	return err
}
