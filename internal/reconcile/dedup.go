// Package reconcile removes duplicate sessions and enforces the per-day work
// ceiling before sessions leave the pipeline.
package reconcile

import (
	"github.com/foxseedlab/rdhours/internal/conflict"
	"github.com/foxseedlab/rdhours/internal/session"
)

// Deduplicate keeps the first session of every duplicate-id and duplicate-range
// group in the report and drops the rest. Input order decides which one is
// first, so the result is stable for a given ordering.
func Deduplicate(sessions []*session.Session, report conflict.DuplicateReport) (kept []*session.Session, removed int) {
	if report.Empty() {
		return sessions, 0
	}
	seenIDs := make(map[string]bool)
	seenRanges := make(map[string]bool)
	kept = make([]*session.Session, 0, len(sessions))
	for _, s := range sessions {
		rk := conflict.RangeKey(s.Start, s.End)
		_, dupID := report.IDs[s.ID]
		_, dupRange := report.Ranges[rk]
		if (dupID && seenIDs[s.ID]) || (dupRange && seenRanges[rk]) {
			removed++
			continue
		}
		seenIDs[s.ID] = true
		seenRanges[rk] = true
		kept = append(kept, s)
	}
	return kept, removed
}
