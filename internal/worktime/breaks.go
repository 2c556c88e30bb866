package worktime

import (
	"sort"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/foxseedlab/rdhours/internal/session"
)

type clock struct{ hour, minute int }

var (
	lunchStarts     = []clock{{12, 0}, {12, 15}, {12, 30}}
	lunchDurations  = []time.Duration{25 * time.Minute, 30 * time.Minute, 40 * time.Minute}
	dinnerStarts    = []clock{{17, 30}, {17, 40}, {17, 50}, {18, 0}, {18, 10}}
	dinnerDurations = []time.Duration{30 * time.Minute, 35 * time.Minute, 40 * time.Minute, 45 * time.Minute, 50 * time.Minute}
)

// BreakPolicy holds the thresholds that decide which breaks a session gets.
type BreakPolicy struct {
	// WorkBreakAfter is the span a session must exceed to get a work break
	// when no lunch could be placed.
	WorkBreakAfter time.Duration
	WorkBreak      time.Duration
	LunchAfter     time.Duration
	// DinnerFromHour is the hour on the start date the session must reach
	// before a dinner break is considered.
	DinnerFromHour int
}

func DefaultBreakPolicy() BreakPolicy {
	return BreakPolicy{
		WorkBreakAfter: 6 * time.Hour,
		WorkBreak:      30 * time.Minute,
		LunchAfter:     8 * time.Hour,
		DinnerFromHour: 17,
	}
}

// Choice maps seed to an index in [0, n). The same seed always yields the same index.
func Choice(seed string, n int) int {
	if n <= 0 {
		return 0
	}
	return int(xxhash.Sum64String(seed) % uint64(n))
}

// SynthesizeBreaks places lunch, work and dinner breaks inside [start, end].
// Placement depends only on the bounds and the seed, never on a random source.
func SynthesizeBreaks(start, end time.Time, seed string, policy BreakPolicy) []session.BreakInterval {
	if !start.Before(end) {
		return nil
	}
	span := end.Sub(start)
	var breaks []session.BreakInterval

	if span >= policy.LunchAfter {
		i := Choice(seed, len(lunchStarts))
		ls := at(start, lunchStarts[i])
		lunch := session.BreakInterval{Start: ls, End: ls.Add(lunchDurations[i]), Kind: session.BreakLunch}
		if inside(lunch, start, end) {
			breaks = append(breaks, lunch)
		}
	}

	if len(breaks) == 0 && span > policy.WorkBreakAfter && policy.WorkBreak > 0 {
		mid := start.Add(span / 2)
		bs := RoundToGrid(mid.Add(-policy.WorkBreak / 2))
		wb := session.BreakInterval{Start: bs, End: bs.Add(policy.WorkBreak), Kind: session.BreakWorkBreak}
		if inside(wb, start, end) {
			breaks = append(breaks, wb)
		}
	}

	if !end.Before(at(start, clock{policy.DinnerFromHour, 0})) {
		ds := at(start, dinnerStarts[Choice(seed+"#dinner", len(dinnerStarts))])
		dur := dinnerDurations[Choice(seed+"#dinner-length", len(dinnerDurations))]
		dinner := session.BreakInterval{Start: ds, End: ds.Add(dur), Kind: session.BreakDinner}
		if inside(dinner, start, end) && !collides(dinner, breaks) {
			breaks = append(breaks, dinner)
		}
	}

	sort.Slice(breaks, func(i, j int) bool { return breaks[i].Start.Before(breaks[j].Start) })
	return breaks
}

// WorkSecondsExcludingBreaks is the span minus all break durations. The result
// never goes below zero; clamped reports when it would have.
func WorkSecondsExcludingBreaks(start, end time.Time, breaks []session.BreakInterval) (seconds float64, clamped bool) {
	total := end.Sub(start)
	for _, b := range breaks {
		total -= b.Duration()
	}
	if total < 0 {
		return 0, true
	}
	return total.Seconds(), false
}

// Apply rounds the session bounds, synthesizes its breaks and recomputes its
// work time. ok is false when rounding collapses the session to nothing; the
// caller drops it.
func Apply(s *session.Session, policy BreakPolicy) (ok, clamped bool, err error) {
	start := RoundToGrid(s.Start)
	end := RoundToGrid(s.End)
	if !start.Before(end) {
		return false, false, nil
	}
	s.Start = start
	s.End = end
	s.Date = start.Format(session.DateLayout)
	s.Breaks = SynthesizeBreaks(start, end, Seed(start), policy)
	s.WorkSeconds, clamped = WorkSecondsExcludingBreaks(start, end, s.Breaks)
	return true, clamped, s.Validate()
}

// Seed is the stable break seed for a session starting at start.
func Seed(start time.Time) string {
	return start.Format(time.RFC3339)
}

func at(day time.Time, c clock) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), c.hour, c.minute, 0, 0, day.Location())
}

func inside(b session.BreakInterval, start, end time.Time) bool {
	return !b.Start.Before(start) && !b.End.After(end)
}

func collides(b session.BreakInterval, others []session.BreakInterval) bool {
	for _, o := range others {
		if b.Start.Before(o.End) && o.Start.Before(b.End) {
			return true
		}
	}
	return false
}
