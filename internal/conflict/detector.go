// Package conflict finds duplicate and overlapping intervals among sessions and
// calendar events. It only reports; callers decide what to remove.
package conflict

import (
	"fmt"
	"sort"
	"time"

	"github.com/foxseedlab/rdhours/internal/session"
)

// DefaultLongThresholdHours separates SHORT from LONG overlaps.
const DefaultLongThresholdHours = 1.0

type Severity string

const (
	SeverityShort Severity = "SHORT"
	SeverityLong  Severity = "LONG"
)

// Interval is the common shape of sessions and calendar events. Key is the
// caller-supplied identifier used for duplicate-id grouping; it defaults to ID.
type Interval struct {
	ID    string
	Key   string
	Start time.Time
	End   time.Time
}

func (iv Interval) key() string {
	if iv.Key != "" {
		return iv.Key
	}
	return iv.ID
}

func FromSessions(sessions []*session.Session) []Interval {
	out := make([]Interval, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, Interval{ID: s.ID, Start: s.Start, End: s.End})
	}
	return out
}

type OverlapRecord struct {
	AID          string
	BID          string
	OverlapStart time.Time
	OverlapEnd   time.Time
	OverlapHours float64
	Severity     Severity
}

// DuplicateReport maps each duplicated identifier or exact range to its
// members in input order. The first member is the one to keep.
type DuplicateReport struct {
	IDs    map[string][]string
	Ranges map[string][]string
}

func (r DuplicateReport) Empty() bool {
	return len(r.IDs) == 0 && len(r.Ranges) == 0
}

type Report struct {
	Duplicates DuplicateReport
	Overlaps   []OverlapRecord
}

func (r Report) Clean() bool {
	return r.Duplicates.Empty() && len(r.Overlaps) == 0
}

type Options struct {
	LongThresholdHours float64
}

type Detector struct {
	loc       *time.Location
	threshold float64
}

func NewDetector(loc *time.Location, opts Options) *Detector {
	if opts.LongThresholdHours <= 0 {
		opts.LongThresholdHours = DefaultLongThresholdHours
	}
	return &Detector{loc: loc, threshold: opts.LongThresholdHours}
}

// RangeKey is the exact grouping key for duplicate ranges.
func RangeKey(start, end time.Time) string {
	return start.Format(time.RFC3339Nano) + "|" + end.Format(time.RFC3339Nano)
}

func (d *Detector) Detect(intervals []Interval) (Report, error) {
	dups, err := d.Duplicates(intervals)
	if err != nil {
		return Report{}, err
	}
	overlaps, err := d.Overlaps(intervals)
	if err != nil {
		return Report{}, err
	}
	return Report{Duplicates: dups, Overlaps: overlaps}, nil
}

func (d *Detector) Duplicates(intervals []Interval) (DuplicateReport, error) {
	if err := d.check(intervals); err != nil {
		return DuplicateReport{}, err
	}
	return DuplicateReport{
		IDs:    groupDuplicates(intervals, Interval.key),
		Ranges: groupDuplicates(intervals, func(iv Interval) string { return RangeKey(iv.Start, iv.End) }),
	}, nil
}

func (d *Detector) DuplicateIDs(intervals []Interval) (map[string][]string, error) {
	r, err := d.Duplicates(intervals)
	return r.IDs, err
}

func (d *Detector) DuplicateRanges(intervals []Interval) (map[string][]string, error) {
	r, err := d.Duplicates(intervals)
	return r.Ranges, err
}

func groupDuplicates(intervals []Interval, keyOf func(Interval) string) map[string][]string {
	groups := make(map[string][]string)
	for _, iv := range intervals {
		k := keyOf(iv)
		groups[k] = append(groups[k], iv.ID)
	}
	for k, members := range groups {
		if len(members) < 2 {
			delete(groups, k)
		}
	}
	return groups
}

// Overlaps returns every pair of intervals that share a non-empty time range.
// An interval is never paired with itself.
func (d *Detector) Overlaps(intervals []Interval) ([]OverlapRecord, error) {
	if err := d.check(intervals); err != nil {
		return nil, err
	}
	sorted := make([]Interval, len(intervals))
	copy(sorted, intervals)
	sort.SliceStable(sorted, func(i, j int) bool { return before(sorted[i], sorted[j]) })

	var (
		found  []pair
		active []Interval
	)
	for _, cur := range sorted {
		kept := active[:0]
		for _, a := range active {
			if a.End.After(cur.Start) {
				kept = append(kept, a)
			}
		}
		active = kept
		for _, a := range active {
			if p, ok := d.overlap(a, cur); ok {
				found = append(found, p)
			}
		}
		active = append(active, cur)
	}
	return records(found), nil
}

// CrossOverlaps pairs every interval of left with every overlapping interval
// of right. Intervals are never compared with members of their own side.
func (d *Detector) CrossOverlaps(left, right []Interval) ([]OverlapRecord, error) {
	if err := d.check(left); err != nil {
		return nil, err
	}
	if err := d.check(right); err != nil {
		return nil, err
	}
	var found []pair
	for _, l := range left {
		for _, r := range right {
			if p, ok := d.overlap(l, r); ok {
				found = append(found, p)
			}
		}
	}
	return records(found), nil
}

// overlapsNaive is the quadratic reference for Overlaps.
func (d *Detector) overlapsNaive(intervals []Interval) []OverlapRecord {
	var found []pair
	for i := range intervals {
		for j := i + 1; j < len(intervals); j++ {
			if p, ok := d.overlap(intervals[i], intervals[j]); ok {
				found = append(found, p)
			}
		}
	}
	return records(found)
}

type pair struct {
	a, b Interval
	rec  OverlapRecord
}

// overlap orients the pair so that a is the earlier interval.
func (d *Detector) overlap(x, y Interval) (pair, bool) {
	if before(y, x) {
		x, y = y, x
	}
	start := maxTime(x.Start, y.Start)
	end := minTime(x.End, y.End)
	if !start.Before(end) {
		return pair{}, false
	}
	hours := end.Sub(start).Hours()
	sev := SeverityShort
	if hours >= d.threshold {
		sev = SeverityLong
	}
	return pair{a: x, b: y, rec: OverlapRecord{
		AID:          x.ID,
		BID:          y.ID,
		OverlapStart: start,
		OverlapEnd:   end,
		OverlapHours: hours,
		Severity:     sev,
	}}, true
}

// records sorts by (a.start, a.id, a.end, b.start, b.id, b.end).
func records(found []pair) []OverlapRecord {
	sort.SliceStable(found, func(i, j int) bool {
		pi, pj := found[i], found[j]
		if c := compare(pi.a, pj.a); c != 0 {
			return c < 0
		}
		return compare(pi.b, pj.b) < 0
	})
	out := make([]OverlapRecord, 0, len(found))
	for _, p := range found {
		out = append(out, p.rec)
	}
	return out
}

func compare(x, y Interval) int {
	switch {
	case x.Start.Before(y.Start):
		return -1
	case x.Start.After(y.Start):
		return 1
	case x.ID < y.ID:
		return -1
	case x.ID > y.ID:
		return 1
	case x.End.Before(y.End):
		return -1
	case x.End.After(y.End):
		return 1
	}
	return 0
}

func (d *Detector) check(intervals []Interval) error {
	for _, iv := range intervals {
		if iv.Start.Location().String() != d.loc.String() || iv.End.Location().String() != d.loc.String() {
			return session.NewInvariantViolation(iv.ID, fmt.Sprintf("interval zone %s/%s differs from canonical zone %s",
				iv.Start.Location(), iv.End.Location(), d.loc))
		}
		if !iv.Start.Before(iv.End) {
			return session.NewInvariantViolation(iv.ID, fmt.Sprintf("interval start %s is not before end %s",
				iv.Start.Format(time.RFC3339), iv.End.Format(time.RFC3339)))
		}
	}
	return nil
}

// before orders intervals by start, ties broken by identifier and then end.
func before(x, y Interval) bool {
	return compare(x, y) < 0
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}
