package weather

import (
	"sort"
	"time"
)

const (
	// LocalLayout is the only accepted input layout for caller timestamps.
	LocalLayout = "2006-01-02T15:04:05"
	// OffsetLayout renders a timestamp with a numeric UTC offset.
	OffsetLayout = "2006-01-02T15:04:05-07:00"
)

// ParseLocal parses a zone-naive timestamp. The returned value carries the
// wall-clock fields in time.UTC; attach a real zone with ToUTC.
func ParseLocal(s string) (time.Time, error) {
	t, err := time.Parse(LocalLayout, s)
	if err != nil {
		return time.Time{}, ErrInvalidFormat
	}
	// time.Parse tolerates fractional seconds the layout does not mention.
	if t.Format(LocalLayout) != s {
		return time.Time{}, ErrInvalidFormat
	}
	return t, nil
}

// ToUTC interprets the wall-clock fields of wall in loc and returns the
// instant in UTC. Wall times skipped by a DST jump are moved forward to the
// transition; repeated wall times resolve to their first occurrence.
func ToUTC(wall time.Time, loc *time.Location) time.Time {
	t, _ := resolveWall(wall, loc)
	return t.UTC()
}

// Localize is ToUTC for upstream data: repeated wall times cannot be placed
// unambiguously and are rejected.
func Localize(wall time.Time, loc *time.Location) (time.Time, bool) {
	t, kind := resolveWall(wall, loc)
	if kind == wallAmbiguous {
		return time.Time{}, false
	}
	return t.UTC(), true
}

// FormatWithOffset renders t in loc with that zone's offset at t.
func FormatWithOffset(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(OffsetLayout)
}

type wallKind int

const (
	wallExact wallKind = iota
	wallAmbiguous
	wallSkipped
)

func resolveWall(wall time.Time, loc *time.Location) (time.Time, wallKind) {
	if loc == nil {
		loc = time.UTC
	}
	naive := time.Date(wall.Year(), wall.Month(), wall.Day(), wall.Hour(), wall.Minute(), wall.Second(), 0, time.UTC)

	_, before := naive.Add(-24 * time.Hour).In(loc).Zone()
	_, after := naive.Add(24 * time.Hour).In(loc).Zone()

	var valid []time.Time
	for _, off := range uniqueOffsets(before, after) {
		inst := naive.Add(-time.Duration(off) * time.Second)
		if _, got := inst.In(loc).Zone(); got == off {
			valid = append(valid, inst)
		}
	}
	sort.Slice(valid, func(i, j int) bool { return valid[i].Before(valid[j]) })

	switch len(valid) {
	case 1:
		return valid[0].In(loc), wallExact
	case 2:
		return valid[0].In(loc), wallAmbiguous
	}

	// Skipped wall time: using the pre-jump offset lands past the jump, whose
	// zone starts exactly at the transition.
	inst := naive.Add(-time.Duration(before) * time.Second).In(loc)
	if start, _ := inst.ZoneBounds(); !start.IsZero() {
		return start.In(loc), wallSkipped
	}
	return inst, wallSkipped
}

func uniqueOffsets(a, b int) []int {
	if a == b {
		return []int{a}
	}
	return []int{a, b}
}
