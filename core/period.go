package core

import (
	"fmt"
	"strings"
	"time"

	"github.com/jinzhu/now"
)

// =============================================================================
// PERIOD - Closed time interval used by reports
// =============================================================================

// Period is the closed interval [Start, End].
type Period struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains returns true if t is within [Start, End].
func (p Period) Contains(t time.Time) bool {
	return !t.Before(p.Start) && !t.After(p.End)
}

func (p Period) String() string {
	return "[" + p.Start.Format(time.RFC3339) + ", " + p.End.Format(time.RFC3339) + "]"
}

// =============================================================================
// DATE FILTER - Named ranges resolved against a reference instant
// =============================================================================

type DateRangeKind string

const (
	RangeDay    DateRangeKind = "day"
	RangeWeek   DateRangeKind = "week"
	RangeMonth  DateRangeKind = "month"
	RangeCustom DateRangeKind = "custom"
)

// DateFilter is what callers send. Start and End are only read for RangeCustom.
type DateFilter struct {
	Kind  DateRangeKind `json:"kind"`
	Start string        `json:"start,omitempty"`
	End   string        `json:"end,omitempty"`
}

// BucketKind returns the granularity used to chart this filter.
// Custom ranges are charted per day.
func (f DateFilter) BucketKind() DateRangeKind {
	switch f.Kind {
	case RangeWeek, RangeMonth:
		return f.Kind
	default:
		return RangeDay
	}
}

// ParseDateFilter builds a filter from raw query values.
// An empty kind means RangeDay.
func ParseDateFilter(kind, start, end string) (DateFilter, error) {
	k := DateRangeKind(strings.ToLower(strings.TrimSpace(kind)))
	switch k {
	case "":
		k = RangeDay
	case RangeDay, RangeWeek, RangeMonth, RangeCustom:
	default:
		return DateFilter{}, fmt.Errorf("%w: unknown range %q", ErrInvalidDateRange, kind)
	}
	return DateFilter{Kind: k, Start: strings.TrimSpace(start), End: strings.TrimSpace(end)}, nil
}

// rollingDays is how many calendar days (including today) each named range covers.
var rollingDays = map[DateRangeKind]int{
	RangeDay:   30,
	RangeWeek:  7,
	RangeMonth: 30,
}

// Resolve turns f into a concrete Period relative to at.
//
// Named ranges end at the end of at's day and start at midnight N-1 days
// earlier. Custom ranges accept 2006-01-02 or RFC3339 and include the whole
// end day.
func Resolve(f DateFilter, at time.Time) (Period, error) {
	kind := f.Kind
	if kind == "" {
		kind = RangeDay
	}

	if kind == RangeCustom {
		return resolveCustom(f, at.Location())
	}

	days, ok := rollingDays[kind]
	if !ok {
		return Period{}, fmt.Errorf("%w: unknown range %q", ErrInvalidDateRange, f.Kind)
	}
	day := now.With(at)
	return Period{
		Start: day.BeginningOfDay().AddDate(0, 0, -(days - 1)),
		End:   day.EndOfDay(),
	}, nil
}

func resolveCustom(f DateFilter, loc *time.Location) (Period, error) {
	start, err := parseDate(f.Start, loc)
	if err != nil {
		return Period{}, fmt.Errorf("%w: start: %v", ErrInvalidDateRange, err)
	}
	end, err := parseDate(f.End, loc)
	if err != nil {
		return Period{}, fmt.Errorf("%w: end: %v", ErrInvalidDateRange, err)
	}
	p := Period{
		Start: now.With(start).BeginningOfDay(),
		End:   now.With(end).EndOfDay(),
	}
	if p.Start.After(p.End) {
		return Period{}, fmt.Errorf("%w: start %s after end %s", ErrInvalidDateRange, f.Start, f.End)
	}
	return p, nil
}

func parseDate(s string, loc *time.Location) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("missing date")
	}
	if t, err := time.ParseInLocation("2006-01-02", s, loc); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("unparsable date %q", s)
	}
	return t.In(loc), nil
}
