package reconcile

import (
	"math"
	"sort"
	"time"

	"github.com/foxseedlab/rdhours/internal/conflict"
	"github.com/foxseedlab/rdhours/internal/session"
	"github.com/foxseedlab/rdhours/internal/worktime"
)

// DefaultDailyCapHours is the ceiling on work hours per calendar date.
const DefaultDailyCapHours = 11.0

type Stats struct {
	DuplicatesRemoved int
	Clipped           int
	DroppedByCap      int
}

// ClipDailyCap walks sessions chronologically and shortens or drops the ones
// that would push their date above capSeconds of work. A non-positive cap
// disables clipping. Sessions are modified in place; the result is ordered by start.
func ClipDailyCap(sessions []*session.Session, capSeconds float64) ([]*session.Session, Stats) {
	var stats Stats
	ordered := make([]*session.Session, len(sessions))
	copy(ordered, sessions)
	sort.SliceStable(ordered, func(i, j int) bool {
		if !ordered[i].Start.Equal(ordered[j].Start) {
			return ordered[i].Start.Before(ordered[j].Start)
		}
		return ordered[i].ID < ordered[j].ID
	})
	if capSeconds <= 0 {
		return ordered, stats
	}

	used := make(map[string]float64)
	out := make([]*session.Session, 0, len(ordered))
	for _, s := range ordered {
		remaining := capSeconds - used[s.Date]
		if remaining <= 0 {
			stats.DroppedByCap++
			continue
		}
		if s.WorkSeconds <= remaining {
			used[s.Date] += s.WorkSeconds
			out = append(out, s)
			continue
		}
		if !clip(s, remaining) {
			stats.DroppedByCap++
			continue
		}
		stats.Clipped++
		used[s.Date] += s.WorkSeconds
		out = append(out, s)
	}
	return out, stats
}

// clip moves s.End so that the session carries at most allowance seconds of
// work, snapped to the grid. It reports false when nothing would be left.
func clip(s *session.Session, allowance float64) bool {
	exact := endForWork(s.Start, s.Breaks, allowance)

	end := worktime.RoundToGrid(exact)
	if end.After(s.End) {
		end = s.End
	}
	breaks := trimBreaks(s.Breaks, end)
	work, _ := worktime.WorkSecondsExcludingBreaks(s.Start, end, breaks)
	if work > allowance {
		end = worktime.FloorToGrid(exact)
		breaks = trimBreaks(s.Breaks, end)
		work, _ = worktime.WorkSecondsExcludingBreaks(s.Start, end, breaks)
	}
	if !s.Start.Before(end) || work <= 0 {
		return false
	}
	s.End = end
	s.Breaks = breaks
	s.WorkSeconds = work
	return true
}

// endForWork finds the instant at which allowance seconds of work have
// elapsed since start, skipping over breaks.
func endForWork(start time.Time, breaks []session.BreakInterval, allowance float64) time.Time {
	left := time.Duration(math.Round(allowance * float64(time.Second)))
	cursor := start
	for _, b := range breaks {
		seg := b.Start.Sub(cursor)
		if seg >= left {
			break
		}
		left -= seg
		cursor = b.End
	}
	return cursor.Add(left)
}

func trimBreaks(breaks []session.BreakInterval, end time.Time) []session.BreakInterval {
	var out []session.BreakInterval
	for _, b := range breaks {
		if !b.Start.Before(end) {
			continue
		}
		if b.End.After(end) {
			b.End = end
		}
		out = append(out, b)
	}
	return out
}

// Reconcile deduplicates and then clips. Duplicates are removed first so they
// never consume a date's allowance.
func Reconcile(sessions []*session.Session, detector *conflict.Detector, capSeconds float64) ([]*session.Session, Stats, error) {
	report, err := detector.Duplicates(conflict.FromSessions(sessions))
	if err != nil {
		return nil, Stats{}, err
	}
	deduped, removed := Deduplicate(sessions, report)
	clipped, stats := ClipDailyCap(deduped, capSeconds)
	stats.DuplicatesRemoved = removed
	return clipped, stats, nil
}
