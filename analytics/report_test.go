package analytics_test

import (
	"bytes"
	"context"
	"log"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/enrollment-engine/analytics"
	"github.com/warp/enrollment-engine/cache"
	"github.com/warp/enrollment-engine/core"
	"github.com/warp/enrollment-engine/core/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var reportNow = time.Date(2025, time.March, 15, 12, 0, 0, 0, time.UTC)

type reportFixture struct {
	store   *store.Memory
	kv      *cache.Memory
	service *analytics.ReportService
}

func newReportFixture(t *testing.T) *reportFixture {
	t.Helper()
	ctx := context.Background()
	s := store.NewMemory()
	kv := cache.NewMemory()
	logger := log.New(&bytes.Buffer{}, "", 0)

	for _, u := range []core.User{
		{ID: "o1", Name: "Olive", Role: core.RoleTeacher},
		{ID: "o2", Name: "Rory", Role: core.RoleTeacher},
		{ID: "p1", Name: "Pat", Role: core.RoleLearner},
		{ID: "p2", Name: "Sam", Role: core.RoleLearner},
	} {
		require.NoError(t, s.SaveUser(ctx, u))
	}
	require.NoError(t, s.SaveCourse(ctx, core.Course{ID: "go", Title: "Advanced Go", OwnerID: "o1",
		Enrollments: []core.EnrollmentRecord{{PayerID: "p1"}, {PayerID: "p2"}}}))
	require.NoError(t, s.SaveCourse(ctx, core.Course{ID: "rust", Title: "Rust Basics", OwnerID: "o2",
		Enrollments: []core.EnrollmentRecord{{PayerID: "p1"}}}))

	for _, purchase := range []core.Transaction{
		tx("t1", "p1", "go", 100, reportNow.AddDate(0, 0, -1)),
		tx("t2", "p2", "go", 100, reportNow.AddDate(0, 0, -2)),
		tx("t3", "p1", "rust", 50, reportNow.AddDate(0, 0, -3)),
		tx("t-old", "p2", "rust", 50, reportNow.AddDate(0, -6, 0)),
	} {
		require.NoError(t, s.AppendTransaction(ctx, purchase))
	}

	svc := analytics.NewReportService(s, core.NewLedger(s), cache.NewReader(kv, time.Hour, logger), decimal.RequireFromString("0.2"), logger)
	svc.Now = func() time.Time { return reportNow }
	return &reportFixture{store: s, kv: kv, service: svc}
}

// =============================================================================
// SCOPES
// =============================================================================

func TestRevenueReport_Platform(t *testing.T) {
	f := newReportFixture(t)

	report, err := f.service.RevenueReport(context.Background(), analytics.ReportRequest{
		Scope:  analytics.ScopePlatform,
		Filter: core.DateFilter{Kind: core.RangeDay},
		Page:   1,
		Limit:  10,
	})
	require.NoError(t, err)

	assert.True(t, decimal.NewFromInt(250).Equal(report.Summary.TotalRevenue), "old transaction is outside the range")
	assert.Equal(t, 3, report.Summary.TotalTransactions)
	assert.Equal(t, 2, report.Summary.TotalCourses)
	assert.Equal(t, 3, report.Summary.TotalLearners)
	assert.Len(t, report.RecentTransactions, 3)
	assert.Equal(t, core.TransactionID("t1"), report.RecentTransactions[0].TransactionID, "newest first")
	assert.True(t, report.Summary.TotalRevenue.Equal(report.RevenueGraph.Total()))
	require.Len(t, report.TopCourses, 2)
	assert.Equal(t, core.CourseID("go"), report.TopCourses[0].CourseID)
	assert.Equal(t, analytics.Pagination{Page: 1, Limit: 10, Total: 3, TotalPages: 1}, report.Pagination)
}

func TestRevenueReport_EarnerAppliesPlatformCut(t *testing.T) {
	f := newReportFixture(t)

	report, err := f.service.RevenueReport(context.Background(), analytics.ReportRequest{
		Scope:     analytics.ScopeEarner,
		SubjectID: "o1",
		Filter:    core.DateFilter{Kind: core.RangeWeek},
		Limit:     10,
	})
	require.NoError(t, err)

	assert.True(t, decimal.NewFromInt(160).Equal(report.Summary.TotalRevenue), "got %s", report.Summary.TotalRevenue)
	assert.Equal(t, 1, report.Summary.TotalCourses)
	assert.Equal(t, 2, report.Summary.TotalLearners)
	for _, row := range report.RecentTransactions {
		assert.Equal(t, core.CourseID("go"), row.CourseID)
		assert.True(t, decimal.NewFromInt(80).Equal(row.EarnerAmount))
		assert.True(t, decimal.NewFromInt(100).Equal(row.Amount))
	}
}

func TestRevenueReport_PayerHistoryWithSeparateTableRange(t *testing.T) {
	f := newReportFixture(t)

	report, err := f.service.RevenueReport(context.Background(), analytics.ReportRequest{
		Scope:       analytics.ScopePayer,
		SubjectID:   "p2",
		Filter:      core.DateFilter{Kind: core.RangeWeek},
		TableFilter: core.DateFilter{Kind: core.RangeCustom, Start: "2024-01-01", End: "2025-03-15"},
		Limit:       10,
	})
	require.NoError(t, err)

	assert.Equal(t, 1, report.Summary.TotalTransactions, "graph covers the last week only")
	assert.Equal(t, 2, report.Pagination.Total, "table covers the custom range")
	assert.Equal(t, 2, report.Summary.TotalCourses)
	assert.Equal(t, 0, report.Summary.TotalLearners)
}

func TestRevenueReport_Validation(t *testing.T) {
	f := newReportFixture(t)
	ctx := context.Background()

	_, err := f.service.RevenueReport(ctx, analytics.ReportRequest{Scope: analytics.ScopeEarner})
	assert.ErrorIs(t, err, core.ErrInvalidRequest)

	_, err = f.service.RevenueReport(ctx, analytics.ReportRequest{Scope: "galaxy"})
	assert.ErrorIs(t, err, core.ErrInvalidRequest)

	_, err = f.service.RevenueReport(ctx, analytics.ReportRequest{
		Scope:  analytics.ScopePlatform,
		Filter: core.DateFilter{Kind: core.RangeCustom, Start: "2025-03-10", End: "2025-03-01"},
	})
	assert.ErrorIs(t, err, core.ErrInvalidDateRange)
}

// =============================================================================
// CACHING
// =============================================================================

func TestRevenueReport_CachedUntilInvalidated(t *testing.T) {
	// GIVEN: A computed earner report
	ctx := context.Background()
	f := newReportFixture(t)
	req := analytics.ReportRequest{Scope: analytics.ScopeEarner, SubjectID: "o1", Filter: core.DateFilter{Kind: core.RangeDay}, Limit: 10}

	first, err := f.service.RevenueReport(ctx, req)
	require.NoError(t, err)
	keys, err := f.kv.Keys(ctx, "earnings:o1:*")
	require.NoError(t, err)
	require.Len(t, keys, 1)

	// WHEN: A purchase lands without invalidation
	require.NoError(t, f.store.AppendTransaction(ctx, tx("t4", "p2", "go", 100, reportNow)))
	cached, err := f.service.RevenueReport(ctx, req)
	require.NoError(t, err)

	// THEN: The cached report is served until the enrollment patterns are invalidated
	assert.Equal(t, first.Summary.TotalTransactions, cached.Summary.TotalTransactions)
	assert.True(t, first.Summary.TotalRevenue.Equal(cached.Summary.TotalRevenue))

	inv := cache.NewInvalidator(f.kv, log.New(&bytes.Buffer{}, "", 0))
	require.NoError(t, inv.Invalidate(ctx, cache.EnrollmentPatterns("go", "p2", "o1")...))

	fresh, err := f.service.RevenueReport(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, first.Summary.TotalTransactions+1, fresh.Summary.TotalTransactions)
}

func TestRevenueReport_PayerKeyNamespace(t *testing.T) {
	ctx := context.Background()
	f := newReportFixture(t)

	_, err := f.service.RevenueReport(ctx, analytics.ReportRequest{Scope: analytics.ScopePayer, SubjectID: "p1", Limit: 10})
	require.NoError(t, err)

	keys, err := f.kv.Keys(ctx, "purchases:p1:*")
	require.NoError(t, err)
	assert.Len(t, keys, 1)
}
