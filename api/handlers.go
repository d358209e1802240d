/*
handlers.go - HTTP API handlers for the enrollment engine

PURPOSE:
  Exposes enrollment, checkout, revenue reports and catalog reads via REST.
  Handles HTTP request/response and JSON serialization, and delegates to
  the domain services.

ENDPOINTS:
  Enrollment:
    POST   /api/enrollments                Record a confirmed payment
    POST   /api/checkout                   Create a payment intent

  Reports:
    GET    /api/reports/platform           Platform revenue
    GET    /api/reports/earners/{id}       Earnings of one course owner
    GET    /api/reports/payers/{id}        Purchase history of one payer
    Query: range=day|week|month|custom, start, end,
           table_range, table_start, table_end, page, limit, search

  Catalog:
    GET    /api/courses                    view=public|admin|teacher, owner_id
    GET    /api/courses/{id}
    GET    /api/payers/{id}/courses        Enrolled courses with progress
    GET    /api/users/{id}/notifications

  Reconciliation:
    GET    /api/reconciliation/gaps
    POST   /api/reconciliation/run

ARCHITECTURE:
  Handler holds every service. NewHandler builds them from Deps so the
  server and the tests wire the same graph.

ERROR HANDLING:
  Domain errors map to HTTP status in writeDomainError:
  - 400: Invalid input or date range
  - 404: Unknown course or payer
  - 409: Already enrolled, duplicate charge id
  - 429: Enrollment in progress (with Retry-After)
  - 500: Everything else; the cause is logged, never returned

SECURITY NOTE:
  No authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/warp/enrollment-engine/analytics"
	"github.com/warp/enrollment-engine/cache"
	"github.com/warp/enrollment-engine/catalog"
	"github.com/warp/enrollment-engine/core"
	"github.com/warp/enrollment-engine/enrollment"
	"github.com/warp/enrollment-engine/factory"
	"github.com/warp/enrollment-engine/gateway"
	"github.com/warp/enrollment-engine/notify"
)

// RetryAfterSeconds is sent with 429 responses for a busy enrollment lock.
const RetryAfterSeconds = 2

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Store is the document store plus the reset used by scenarios.
type Store interface {
	core.DocumentStore
	Reset(ctx context.Context) error
}

// Deps are the collaborators the handler is built from.
type Deps struct {
	Store       Store
	KV          cache.Store
	Gateway     gateway.Gateway
	Notifier    notify.Notifier // optional
	Scheduler   *ReconciliationScheduler
	CacheTTL    time.Duration
	LockTTL     time.Duration
	PlatformCut decimal.Decimal
	Logger      *log.Logger
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store      Store
	KV         cache.Store
	Ledger     *core.Ledger
	Enrollment *enrollment.Orchestrator
	Checkout   *enrollment.Checkout
	Reports    *analytics.ReportService
	Catalog    *catalog.Service
	Factory    *factory.CourseFactory
	Scheduler  *ReconciliationScheduler
	Logger     *log.Logger
	Now        func() time.Time

	// Track currently loaded scenario
	mu              sync.Mutex
	currentScenario string
}

// NewHandler wires the domain services.
func NewHandler(d Deps) *Handler {
	logger := d.Logger
	if logger == nil {
		logger = log.Default()
	}
	ledger := core.NewLedger(d.Store)
	reader := cache.NewReader(d.KV, d.CacheTTL, logger)

	orch := enrollment.NewOrchestrator(d.Store, ledger, d.KV, d.Notifier, logger)
	if d.LockTTL > 0 {
		orch.LockTTL = d.LockTTL
	}

	scheduler := d.Scheduler
	if scheduler == nil {
		scheduler = NewReconciliationScheduler(d.Store, d.KV, "@every 1h", logger)
	}

	return &Handler{
		Store:      d.Store,
		KV:         d.KV,
		Ledger:     ledger,
		Enrollment: orch,
		Checkout:   enrollment.NewCheckout(d.Store, ledger, d.Gateway, logger),
		Reports:    analytics.NewReportService(d.Store, ledger, reader, d.PlatformCut, logger),
		Catalog:    catalog.NewService(d.Store, reader, logger),
		Factory:    factory.NewCourseFactory(),
		Scheduler:  scheduler,
		Logger:     logger,
		Now:        time.Now,
	}
}

// =============================================================================
// ENROLLMENT HANDLERS
// =============================================================================

// Enroll records a confirmed payment and grants access.
// POST /api/enrollments
func (h *Handler) Enroll(w http.ResponseWriter, r *http.Request) {
	var req EnrollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	tx, err := h.Enrollment.Enroll(r.Context(), req.toDomain())
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTransactionDTO(*tx))
}

// CreateCheckout creates a payment intent for a course the payer does not own.
// POST /api/checkout
func (h *Handler) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	var req CheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	intent, err := h.Checkout.CreateIntent(r.Context(), core.UserID(req.PayerID), core.CourseID(req.CourseID))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toChargeIntentDTO(*intent))
}

// =============================================================================
// REPORT HANDLERS
// =============================================================================

// PlatformReport returns platform-wide revenue.
// GET /api/reports/platform
func (h *Handler) PlatformReport(w http.ResponseWriter, r *http.Request) {
	h.serveReport(w, r, analytics.ScopePlatform, "")
}

// EarnerReport returns the earnings of one course owner.
// GET /api/reports/earners/{id}
func (h *Handler) EarnerReport(w http.ResponseWriter, r *http.Request) {
	h.serveReport(w, r, analytics.ScopeEarner, core.UserID(chi.URLParam(r, "id")))
}

// PayerReport returns the purchase history of one payer.
// GET /api/reports/payers/{id}
func (h *Handler) PayerReport(w http.ResponseWriter, r *http.Request) {
	h.serveReport(w, r, analytics.ScopePayer, core.UserID(chi.URLParam(r, "id")))
}

func (h *Handler) serveReport(w http.ResponseWriter, r *http.Request, scope analytics.Scope, subject core.UserID) {
	req, err := parseReportRequest(r.URL.Query(), scope, subject)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	report, err := h.Reports.RevenueReport(r.Context(), req)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func parseReportRequest(q url.Values, scope analytics.Scope, subject core.UserID) (analytics.ReportRequest, error) {
	filter, err := core.ParseDateFilter(q.Get("range"), q.Get("start"), q.Get("end"))
	if err != nil {
		return analytics.ReportRequest{}, err
	}
	var table core.DateFilter
	if q.Get("table_range") != "" {
		table, err = core.ParseDateFilter(q.Get("table_range"), q.Get("table_start"), q.Get("table_end"))
		if err != nil {
			return analytics.ReportRequest{}, err
		}
	}
	page, limit, err := parsePage(q)
	if err != nil {
		return analytics.ReportRequest{}, err
	}
	return analytics.ReportRequest{
		Scope:       scope,
		SubjectID:   subject,
		Filter:      filter,
		TableFilter: table,
		Page:        page,
		Limit:       limit,
		Search:      q.Get("search"),
	}, nil
}

// =============================================================================
// CATALOG HANDLERS
// =============================================================================

// ListCourses returns a page of courses for a view.
// GET /api/courses
func (h *Handler) ListCourses(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	view, err := catalog.ParseView(q.Get("view"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	page, limit, err := parsePage(q)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	courses, err := h.Catalog.Courses(r.Context(), catalog.CourseQuery{
		View:    view,
		OwnerID: core.UserID(q.Get("owner_id")),
		Page:    page,
		Limit:   limit,
		Search:  q.Get("search"),
	})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, courses)
}

// GetCourse returns one course document.
// GET /api/courses/{id}
func (h *Handler) GetCourse(w http.ResponseWriter, r *http.Request) {
	course, err := h.Catalog.Course(r.Context(), core.CourseID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, course)
}

// ListEnrolledCourses returns the payer's courses with progress.
// GET /api/payers/{id}/courses
func (h *Handler) ListEnrolledCourses(w http.ResponseWriter, r *http.Request) {
	page, limit, err := parsePage(r.URL.Query())
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	courses, err := h.Catalog.EnrolledCourses(r.Context(), core.UserID(chi.URLParam(r, "id")), page, limit)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, courses)
}

// ListNotifications returns the notifications delivered to a user.
// GET /api/users/{id}/notifications
func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	notifications, err := h.Store.ListNotifications(r.Context(), core.UserID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeDomainError(w, &core.StorageError{Op: "list notifications", Err: err})
		return
	}
	if notifications == nil {
		notifications = []core.Notification{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"notifications": notifications})
}

// =============================================================================
// RECONCILIATION HANDLERS
// =============================================================================

// ListGaps returns recorded partial enrollments.
// GET /api/reconciliation/gaps
func (h *Handler) ListGaps(w http.ResponseWriter, r *http.Request) {
	gaps, err := h.Store.ListGaps(r.Context())
	if err != nil {
		h.writeDomainError(w, &core.StorageError{Op: "list gaps", Err: err})
		return
	}
	if gaps == nil {
		gaps = []core.ReconciliationGap{}
	}
	writeJSON(w, http.StatusOK, GapsResponse{Gaps: gaps, Count: len(gaps)})
}

// RunReconciliation triggers an immediate reconciliation pass.
// POST /api/reconciliation/run
func (h *Handler) RunReconciliation(w http.ResponseWriter, r *http.Request) {
	run := h.Scheduler.RunNow(r.Context())
	if run.Err != nil {
		h.writeDomainError(w, &core.StorageError{Op: "reconcile", Err: run.Err})
		return
	}
	writeJSON(w, http.StatusOK, toReconcileRunDTO(run))
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps domain errors to HTTP responses. Details are only
// returned for client errors.
func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	var status int
	resp := ErrorResponse{}

	switch {
	case errors.Is(err, core.ErrAlreadyEnrolled):
		status, resp.Error, resp.Code = http.StatusConflict, "You already own this course", "already_enrolled"
	case errors.Is(err, core.ErrDuplicateChargeID):
		status, resp.Error, resp.Code = http.StatusConflict, "Payment already recorded", "duplicate_charge"
	case errors.Is(err, core.ErrEnrollmentInProgress):
		w.Header().Set("Retry-After", strconv.Itoa(RetryAfterSeconds))
		status, resp.Error, resp.Code = http.StatusTooManyRequests, "Enrollment in progress, try again in a moment", "enrollment_in_progress"
	case errors.Is(err, core.ErrCourseNotFound):
		status, resp.Error, resp.Code = http.StatusNotFound, "Course not found", "course_not_found"
	case errors.Is(err, core.ErrPayerNotFound):
		status, resp.Error, resp.Code = http.StatusNotFound, "Payer not found", "payer_not_found"
	case errors.Is(err, core.ErrInvalidDateRange):
		status, resp.Error, resp.Code = http.StatusBadRequest, "Invalid date range", "invalid_date_range"
		resp.Details = err.Error()
	case errors.Is(err, core.ErrInvalidRequest):
		status, resp.Error, resp.Code = http.StatusBadRequest, "Invalid request", "invalid_request"
		resp.Details = err.Error()
	default:
		h.Logger.Printf("[API] internal error: %v", err)
		status, resp.Error, resp.Code = http.StatusInternalServerError, "Something went wrong, please try again", "internal"
	}
	writeJSON(w, status, resp)
}

// parsePage reads page and limit. Missing values default to page 1 and
// core.DefaultPageLimit; range clamping is left to core.NormalizePage.
func parsePage(q url.Values) (int, int, error) {
	page, err := queryInt(q, "page", 1)
	if err != nil {
		return 0, 0, err
	}
	limit, err := queryInt(q, "limit", core.DefaultPageLimit)
	if err != nil {
		return 0, 0, err
	}
	return page, limit, nil
}

func (h *Handler) now() time.Time {
	if h.Now == nil {
		return time.Now()
	}
	return h.Now()
}

func queryInt(q url.Values, key string, def int) (int, error) {
	raw := q.Get(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", core.ErrInvalidRequest, key)
	}
	return n, nil
}
