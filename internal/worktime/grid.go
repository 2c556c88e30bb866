// Package worktime rounds session boundaries to the reporting grid and places
// deterministic breaks inside long sessions.
package worktime

import "time"

// GridMinutes is the only grid size the rounding table is defined for.
const GridMinutes = 5

// minuteBuckets maps a minute-of-hour to its grid point. 60 means "next hour".
// Quarter hours pull a wider neighbourhood than a plain nearest-5 rounding would.
var minuteBuckets = func() [60]int {
	var table [60]int
	ranges := []struct{ from, to, target int }{
		{0, 3, 0},
		{4, 7, 5},
		{8, 11, 10},
		{12, 18, 15},
		{19, 23, 20},
		{24, 28, 25},
		{29, 33, 30},
		{34, 38, 35},
		{39, 43, 40},
		{44, 48, 45},
		{49, 53, 50},
		{54, 56, 55},
		{57, 59, 60},
	}
	for _, r := range ranges {
		for m := r.from; m <= r.to; m++ {
			table[m] = r.target
		}
	}
	return table
}()

// RoundToGrid snaps t to the 5-minute grid using the bucket table. Seconds and
// below are dropped; minutes 57-59 roll into the next hour, and past 23:57 into
// the next date.
func RoundToGrid(t time.Time) time.Time {
	target := minuteBuckets[t.Minute()]
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), target, 0, 0, t.Location())
}

// FloorToGrid returns the latest grid point not after t.
func FloorToGrid(t time.Time) time.Time {
	m := t.Minute() - t.Minute()%GridMinutes
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), m, 0, 0, t.Location())
}

// OnGrid reports whether t already sits on a grid point.
func OnGrid(t time.Time) bool {
	return t.Second() == 0 && t.Nanosecond() == 0 && t.Minute()%GridMinutes == 0
}
