/*
Package analytics answers revenue and earnings questions over the ledger.

PURPOSE:
  A single report call produces the dashboard for one audience: the
  platform (all revenue), an earner (revenue of the courses they own,
  after the platform cut) or a payer (their purchase history).

KEY CONCEPTS:
  - Scope: platform | earner | payer, with a subject id for the last two
  - Split: share of each amount attributed to the audience
    (1 for platform and payer, 1 - platform cut for earners)
  - Graph range vs table range: the chart and the transaction table can
    use different date filters
  - Caching: whole reports are cached as JSON under earnings:* or
    purchases:* and dropped by the enrollment invalidation patterns

COMPONENTS:
  - bucket.go: Time-bucketed revenue series
  - top.go: Top courses by enrollment count
  - paginate.go: Enrich, search and page the transaction table

SEE ALSO:
  - core/period.go: Date filter resolution
  - cache/remember.go: Cache-or-compute
*/
package analytics

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/enrollment-engine/cache"
	"github.com/warp/enrollment-engine/core"
)

type Scope string

const (
	ScopePlatform Scope = "platform"
	ScopeEarner   Scope = "earner"
	ScopePayer    Scope = "payer"
)

type ReportRequest struct {
	Scope       Scope
	SubjectID   core.UserID // owner id for earner, payer id for payer
	Filter      core.DateFilter
	TableFilter core.DateFilter // empty = same as Filter
	Page        int
	Limit       int
	Search      string
}

type Summary struct {
	TotalRevenue      decimal.Decimal `json:"total_revenue"`
	TotalTransactions int             `json:"total_transactions"`
	TotalCourses      int             `json:"total_courses"`
	TotalLearners     int             `json:"total_learners"`
	From              time.Time       `json:"from"`
	To                time.Time       `json:"to"`
}

type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

type Report struct {
	Scope              Scope       `json:"scope"`
	SubjectID          core.UserID `json:"subject_id,omitempty"`
	Summary            Summary     `json:"summary"`
	RecentTransactions []Row       `json:"recent_transactions"`
	RevenueGraph       Series      `json:"revenue_graph"`
	TopCourses         []TopCourse `json:"top_courses"`
	Pagination         Pagination  `json:"pagination"`
	GeneratedAt        time.Time   `json:"generated_at"`
}

// =============================================================================
// REPORT SERVICE
// =============================================================================

type ReportStore interface {
	core.CourseStore
	core.UserStore
}

type ReportService struct {
	Store       ReportStore
	Ledger      *core.Ledger
	Cache       *cache.Reader
	PlatformCut decimal.Decimal
	Now         func() time.Time
	Logger      *log.Logger
}

func NewReportService(store ReportStore, ledger *core.Ledger, reader *cache.Reader, platformCut decimal.Decimal, logger *log.Logger) *ReportService {
	if logger == nil {
		logger = log.Default()
	}
	return &ReportService{
		Store:       store,
		Ledger:      ledger,
		Cache:       reader,
		PlatformCut: platformCut,
		Now:         time.Now,
		Logger:      logger,
	}
}

// Split returns the audience share for scope.
func (s *ReportService) Split(scope Scope) decimal.Decimal {
	if scope == ScopeEarner {
		return decimal.NewFromInt(1).Sub(s.PlatformCut)
	}
	return decimal.NewFromInt(1)
}

// RevenueReport returns the cached report for req, computing it on a miss.
func (s *ReportService) RevenueReport(ctx context.Context, req ReportRequest) (*Report, error) {
	if err := validateScope(req); err != nil {
		return nil, err
	}
	if req.TableFilter.Kind == "" {
		req.TableFilter = req.Filter
	}

	at := s.now()
	graph, err := core.Resolve(req.Filter, at)
	if err != nil {
		return nil, err
	}
	table, err := core.Resolve(req.TableFilter, at)
	if err != nil {
		return nil, err
	}
	params := core.NormalizePage(req.Page, req.Limit, req.Search)

	compute := func(ctx context.Context) (*Report, error) {
		return s.compute(ctx, req, graph, table, params)
	}
	if s.Cache == nil {
		return compute(ctx)
	}
	return cache.Remember(ctx, s.Cache, reportKey(req, graph, table, params), compute)
}

func validateScope(req ReportRequest) error {
	switch req.Scope {
	case ScopePlatform:
		return nil
	case ScopeEarner, ScopePayer:
		if req.SubjectID == "" {
			return fmt.Errorf("%w: %s report needs a subject id", core.ErrInvalidRequest, req.Scope)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown scope %q", core.ErrInvalidRequest, req.Scope)
	}
}

// reportKey hashes the resolved periods, so cached reports roll over at midnight.
func reportKey(req ReportRequest, graph, table core.Period, params core.PageParams) string {
	parts := []string{
		string(req.Filter.Kind), graph.Start.Format(time.RFC3339), graph.End.Format(time.RFC3339),
		string(req.TableFilter.Kind), table.Start.Format(time.RFC3339), table.End.Format(time.RFC3339),
		strconv.Itoa(params.Page), strconv.Itoa(params.Limit), params.Search,
	}
	switch req.Scope {
	case ScopeEarner:
		return cache.EarningsKey(string(req.SubjectID), parts...)
	case ScopePayer:
		return cache.PurchasesKey(string(req.SubjectID), parts...)
	default:
		return cache.EarningsKey(cache.PlatformSubject, parts...)
	}
}

func (s *ReportService) compute(ctx context.Context, req ReportRequest, graph, table core.Period, params core.PageParams) (*Report, error) {
	split := s.Split(req.Scope)

	courses, err := s.scopeCourses(ctx, req)
	if err != nil {
		return nil, &core.StorageError{Op: "load report courses", Err: err}
	}
	graphTxs, err := s.scopeTransactions(ctx, req, courses, graph)
	if err != nil {
		return nil, &core.StorageError{Op: "load report transactions", Err: err}
	}
	tableTxs := graphTxs
	if table != graph {
		tableTxs, err = s.scopeTransactions(ctx, req, courses, table)
		if err != nil {
			return nil, &core.StorageError{Op: "load report transactions", Err: err}
		}
	}

	enricher, err := NewEnricher(ctx, s.Store, tableTxs, split)
	if err != nil {
		return nil, &core.StorageError{Op: "enrich report rows", Err: err}
	}
	page := Paginate(tableTxs, enricher, params)

	summary := Summary{
		TotalRevenue:      decimal.Zero,
		TotalTransactions: len(graphTxs),
		TotalCourses:      len(courses),
		From:              graph.Start,
		To:                graph.End,
	}
	for _, tx := range graphTxs {
		summary.TotalRevenue = summary.TotalRevenue.Add(tx.Split(split))
	}
	if req.Scope != ScopePayer {
		for _, c := range courses {
			summary.TotalLearners += len(c.Enrollments)
		}
	}

	report := &Report{
		Scope:              req.Scope,
		SubjectID:          req.SubjectID,
		Summary:            summary,
		RecentTransactions: page.Rows,
		RevenueGraph:       Bucket(graphTxs, req.Filter.BucketKind(), graph, split),
		TopCourses:         TopEarners(graphTxs, courses, split, DefaultTopLimit),
		Pagination: Pagination{
			Page:       page.Page,
			Limit:      page.Limit,
			Total:      page.Total,
			TotalPages: page.TotalPages,
		},
		GeneratedAt: s.now(),
	}
	s.Logger.Printf("[Reports] computed %s report for %q: %d transactions, %d rows", req.Scope, req.SubjectID, len(graphTxs), len(page.Rows))
	return report, nil
}

// scopeCourses returns the courses a report covers: all courses, the
// earner's courses, or every course the payer bought.
func (s *ReportService) scopeCourses(ctx context.Context, req ReportRequest) ([]core.Course, error) {
	switch req.Scope {
	case ScopeEarner:
		return s.Store.ListCourses(ctx, core.CourseFilter{OwnerID: req.SubjectID})
	case ScopePayer:
		purchases, err := s.Ledger.ByPayer(ctx, req.SubjectID, core.Period{})
		if err != nil {
			return nil, err
		}
		var ids []core.CourseID
		seen := make(map[core.CourseID]bool)
		for _, tx := range purchases {
			if !seen[tx.CourseID] {
				seen[tx.CourseID] = true
				ids = append(ids, tx.CourseID)
			}
		}
		byID, err := s.Store.CoursesByIDs(ctx, ids)
		if err != nil {
			return nil, err
		}
		courses := make([]core.Course, 0, len(ids))
		for _, id := range ids {
			if c, ok := byID[id]; ok {
				courses = append(courses, c)
			}
		}
		return courses, nil
	default:
		return s.Store.ListCourses(ctx, core.CourseFilter{})
	}
}

func (s *ReportService) scopeTransactions(ctx context.Context, req ReportRequest, courses []core.Course, p core.Period) ([]core.Transaction, error) {
	switch req.Scope {
	case ScopeEarner:
		ids := make([]core.CourseID, len(courses))
		for i, c := range courses {
			ids[i] = c.ID
		}
		return s.Ledger.ByCourses(ctx, ids, p)
	case ScopePayer:
		return s.Ledger.ByPayer(ctx, req.SubjectID, p)
	default:
		return s.Ledger.InRange(ctx, p)
	}
}

func (s *ReportService) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}
