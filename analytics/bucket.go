package analytics

import (
	"sort"
	"time"

	"github.com/jinzhu/now"
	"github.com/shopspring/decimal"
	"github.com/warp/enrollment-engine/core"
)

// =============================================================================
// SERIES - Contiguous revenue buckets over a period
// =============================================================================

type Series struct {
	Kind   core.DateRangeKind `json:"kind"`
	Labels []string           `json:"labels"`
	Values []decimal.Decimal  `json:"values"`
}

// Total sums every bucket.
func (s Series) Total() decimal.Decimal {
	total := decimal.Zero
	for _, v := range s.Values {
		total = total.Add(v)
	}
	return total
}

type bucket struct {
	label      string
	start, end time.Time
}

var weekConfig = &now.Config{WeekStartDay: time.Monday}

// Bucket sums amount*split per bucket. Weeks start on Monday and are
// labelled by that Monday; months are labelled 2006-01; anything else is
// bucketed per day. Edge buckets are clipped to p so every transaction in p
// lands in exactly one bucket.
func Bucket(txs []core.Transaction, kind core.DateRangeKind, p core.Period, split decimal.Decimal) Series {
	buckets := buildBuckets(kind, p)
	series := Series{
		Kind:   kind,
		Labels: make([]string, len(buckets)),
		Values: make([]decimal.Decimal, len(buckets)),
	}
	for i, b := range buckets {
		series.Labels[i] = b.label
		series.Values[i] = decimal.Zero
	}

	for _, tx := range txs {
		if !p.Contains(tx.CreatedAt) {
			continue
		}
		i := sort.Search(len(buckets), func(i int) bool {
			return !buckets[i].end.Before(tx.CreatedAt)
		})
		if i < len(buckets) && !tx.CreatedAt.Before(buckets[i].start) {
			series.Values[i] = series.Values[i].Add(tx.Split(split))
		}
	}
	return series
}

func buildBuckets(kind core.DateRangeKind, p core.Period) []bucket {
	if p.End.Before(p.Start) {
		return nil
	}

	var buckets []bucket
	cursor := p.Start
	for !cursor.After(p.End) {
		var b bucket
		switch kind {
		case core.RangeWeek:
			w := weekConfig.With(cursor)
			b = bucket{label: w.BeginningOfWeek().Format("2006-01-02"), start: w.BeginningOfWeek(), end: w.EndOfWeek()}
		case core.RangeMonth:
			m := now.With(cursor)
			b = bucket{label: m.BeginningOfMonth().Format("2006-01"), start: m.BeginningOfMonth(), end: m.EndOfMonth()}
		default:
			d := now.With(cursor)
			b = bucket{label: d.BeginningOfDay().Format("2006-01-02"), start: d.BeginningOfDay(), end: d.EndOfDay()}
		}

		if b.start.Before(p.Start) {
			b.start = p.Start
		}
		if b.end.After(p.End) {
			b.end = p.End
		}
		buckets = append(buckets, b)
		cursor = b.end.Add(time.Nanosecond)
	}
	return buckets
}
