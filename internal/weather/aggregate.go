package weather

import (
	"sort"
	"time"
)

const numVariables = 3

// Row is a time-indexed set of variable values, indexed by Variable.
type Row struct {
	Time   time.Time
	Values [numVariables]*float64
}

func rowFromMeasurement(m Measurement, vars []Variable) Row {
	r := Row{Time: m.Timestamp}
	for _, v := range vars {
		r.Values[v] = m.Value(v)
	}
	return r
}

// BucketLabel returns the label of the bucket containing t. Hourly buckets
// are labeled by their start, daily buckets by local midnight and monthly
// buckets by the last day of the month at local midnight.
func BucketLabel(t time.Time, agg Aggregation, loc *time.Location) time.Time {
	switch agg {
	case AggregationHourly:
		l := t.In(loc)
		// Local clock hour; the repeated autumn hour stays a separate bucket.
		return l.Add(-time.Duration(l.Minute())*time.Minute - time.Duration(l.Second())*time.Second - time.Duration(l.Nanosecond()))
	case AggregationDaily:
		l := t.In(loc)
		return time.Date(l.Year(), l.Month(), l.Day(), 0, 0, 0, 0, loc)
	case AggregationMonthly:
		l := t.In(loc)
		// Day 0 of the next month is the last day of this one.
		return time.Date(l.Year(), l.Month()+1, 0, 0, 0, 0, 0, loc)
	case AggregationNone:
	}
	return t.In(loc)
}

type bucket struct {
	label  time.Time
	sums   [numVariables]float64
	counts [numVariables]int
}

// Aggregate resamples rows into calendar buckets in loc and averages each of
// vars per bucket. Missing values do not contribute; a variable with no
// contributions in a bucket stays nil. Buckets without rows are not emitted.
// With AggregationNone the rows are returned unchanged.
func Aggregate(rows []Row, agg Aggregation, loc *time.Location, vars []Variable) []Row {
	if agg == AggregationNone || len(rows) == 0 {
		return rows
	}

	buckets := make(map[int64]*bucket)
	for _, r := range rows {
		label := BucketLabel(r.Time, agg, loc)
		key := label.Unix()
		b, ok := buckets[key]
		if !ok {
			b = &bucket{label: label}
			buckets[key] = b
		}
		for _, v := range vars {
			if val := r.Values[v]; val != nil {
				b.sums[v] += *val
				b.counts[v]++
			}
		}
	}

	keys := make([]int64, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	out := make([]Row, 0, len(keys))
	for _, k := range keys {
		b := buckets[k]
		row := Row{Time: b.label}
		for _, v := range vars {
			if b.counts[v] > 0 {
				mean := b.sums[v] / float64(b.counts[v])
				row.Values[v] = &mean
			}
		}
		out = append(out, row)
	}
	return out
}
