package core_test

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/enrollment-engine/core"
)

var refNow = time.Date(2025, time.March, 15, 14, 30, 0, 0, time.UTC)

func TestResolve_NamedRanges(t *testing.T) {
	// GIVEN: A reference instant mid-afternoon on 2025-03-15
	// WHEN: Resolving each named range
	// THEN: Ranges start at midnight N-1 days earlier and end at end of today

	tests := []struct {
		kind      core.DateRangeKind
		wantStart time.Time
	}{
		{core.RangeDay, time.Date(2025, time.February, 14, 0, 0, 0, 0, time.UTC)},
		{core.RangeWeek, time.Date(2025, time.March, 9, 0, 0, 0, 0, time.UTC)},
		{core.RangeMonth, time.Date(2025, time.February, 14, 0, 0, 0, 0, time.UTC)},
		{"", time.Date(2025, time.February, 14, 0, 0, 0, 0, time.UTC)},
	}

	wantEnd := time.Date(2025, time.March, 15, 23, 59, 59, 999999999, time.UTC)
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			p, err := core.Resolve(core.DateFilter{Kind: tt.kind}, refNow)
			require.NoError(t, err)
			assert.True(t, tt.wantStart.Equal(p.Start), "start = %s", p.Start)
			assert.True(t, wantEnd.Equal(p.End), "end = %s", p.End)
			assert.True(t, p.Contains(refNow))
		})
	}
}

func TestResolve_Custom_InclusiveEndDay(t *testing.T) {
	p, err := core.Resolve(core.DateFilter{Kind: core.RangeCustom, Start: "2025-01-01", End: "2025-01-31"}, refNow)
	require.NoError(t, err)

	assert.True(t, p.Contains(time.Date(2025, time.January, 31, 22, 0, 0, 0, time.UTC)))
	assert.False(t, p.Contains(time.Date(2025, time.February, 1, 0, 0, 0, 0, time.UTC)))
	assert.True(t, p.Contains(time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)))
}

func TestResolve_Custom_AcceptsRFC3339(t *testing.T) {
	p, err := core.Resolve(core.DateFilter{Kind: core.RangeCustom, Start: "2025-01-01T10:00:00Z", End: "2025-01-02T00:00:00Z"}, refNow)
	require.NoError(t, err)
	assert.True(t, time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC).Equal(p.Start))
	assert.True(t, time.Date(2025, time.January, 2, 23, 59, 59, 999999999, time.UTC).Equal(p.End))
}

func TestResolve_Custom_Invalid(t *testing.T) {
	tests := []struct {
		name       string
		start, end string
	}{
		{"start after end", "2025-02-01", "2025-01-01"},
		{"unparsable start", "yesterday", "2025-01-01"},
		{"missing end", "2025-01-01", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := core.Resolve(core.DateFilter{Kind: core.RangeCustom, Start: tt.start, End: tt.end}, refNow)
			assert.ErrorIs(t, err, core.ErrInvalidDateRange)
			assert.True(t, core.IsClientError(err))
		})
	}
}

func TestParseDateFilter(t *testing.T) {
	f, err := core.ParseDateFilter(" WEEK ", "", "")
	require.NoError(t, err)
	assert.Equal(t, core.RangeWeek, f.Kind)

	f, err = core.ParseDateFilter("", "", "")
	require.NoError(t, err)
	assert.Equal(t, core.RangeDay, f.Kind)

	_, err = core.ParseDateFilter("quarter", "", "")
	assert.ErrorIs(t, err, core.ErrInvalidDateRange)
}

func TestDateFilter_BucketKind(t *testing.T) {
	assert.Equal(t, core.RangeWeek, core.DateFilter{Kind: core.RangeWeek}.BucketKind())
	assert.Equal(t, core.RangeMonth, core.DateFilter{Kind: core.RangeMonth}.BucketKind())
	assert.Equal(t, core.RangeDay, core.DateFilter{Kind: core.RangeCustom}.BucketKind())
	assert.Equal(t, core.RangeDay, core.DateFilter{}.BucketKind())
}

func TestNormalizePage(t *testing.T) {
	tests := []struct {
		name        string
		page, limit int
		search      string
		want        core.PageParams
	}{
		{"defaults clamp", 0, 0, "", core.PageParams{Page: 1, Limit: 1, Skip: 0}},
		{"negative page", -3, 10, " go ", core.PageParams{Page: 1, Limit: 10, Skip: 0, Search: "go"}},
		{"third page", 3, 20, "", core.PageParams{Page: 3, Limit: 20, Skip: 40}},
		{"limit capped", 2, 500, "", core.PageParams{Page: 2, Limit: 100, Skip: 100}},
		{"huge page capped", math.MaxInt / 50, 100, "", core.PageParams{Page: math.MaxInt / 100, Limit: 100, Skip: (math.MaxInt/100 - 1) * 100}},
		{"max page", math.MaxInt, 1, "", core.PageParams{Page: math.MaxInt, Limit: 1, Skip: math.MaxInt - 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, core.NormalizePage(tt.page, tt.limit, tt.search))
		})
	}
}

func TestValidID(t *testing.T) {
	for _, id := range []string{"learner-1", "go-basics", "course_a.v2", "ünïcode"} {
		assert.True(t, core.ValidID(id), id)
	}
	for _, id := range []string{"a*", "a?", "a[1", "a]", `a\b`} {
		assert.False(t, core.ValidID(id), id)
	}
}
