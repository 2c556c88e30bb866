package pipeline

import (
	"fmt"
	"strings"
	"time"

	"github.com/foxseedlab/rdhours/internal/calendar"
	"github.com/foxseedlab/rdhours/internal/gitlog"
	"github.com/foxseedlab/rdhours/internal/session"
)

const (
	calendarEventSummary = "R&D work"
	breakTimeLayout      = "15:04"
	shortHashLength      = 7
)

// BuildCalendarEvent projects a finalized session onto a calendar event in loc.
func BuildCalendarEvent(runID string, s *session.Session, activity gitlog.Activity, loc *time.Location) calendar.Event {
	loc = safeLocation(loc)
	summary := calendarEventSummary
	if len(activity.Repos) > 0 {
		summary = fmt.Sprintf("%s (%s)", calendarEventSummary, strings.Join(activity.Repos, ", "))
	}

	lines := []string{
		fmt.Sprintf("Work: %s", formatHoursMinutes(time.Duration(s.WorkSeconds*float64(time.Second)))),
		fmt.Sprintf("Breaks: %s", formatHoursMinutes(s.BreakDuration())),
	}
	for _, b := range s.Breaks {
		lines = append(lines, fmt.Sprintf("- %s %s-%s", b.Kind, b.Start.In(loc).Format(breakTimeLayout), b.End.In(loc).Format(breakTimeLayout)))
	}
	if len(activity.Commits) > 0 {
		lines = append(lines, "", fmt.Sprintf("Commits (%d):", len(activity.Commits)))
		for _, c := range activity.Commits {
			lines = append(lines, fmt.Sprintf("- %s %s %s", c.Repo, shortHash(c.Hash), c.Message))
		}
	}
	lines = append(lines, "", fmt.Sprintf("Session: %s", s.ID), fmt.Sprintf("Run: %s", runID))

	return calendar.Event{
		Summary:     summary,
		Description: strings.Join(lines, "\n"),
		Start:       s.Start.In(loc),
		End:         s.End.In(loc),
		TimeZone:    loc.String(),
		Properties: map[string]string{
			calendar.PropertyRunID:     runID,
			calendar.PropertySessionID: s.ID,
		},
	}
}

func shortHash(hash string) string {
	if len(hash) > shortHashLength {
		return hash[:shortHashLength]
	}
	return hash
}

func formatHoursMinutes(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int64(d.Round(time.Minute) / time.Minute)
	return fmt.Sprintf("%dh%02dm", total/60, total%60)
}

func safeLocation(loc *time.Location) *time.Location {
	if loc == nil {
		return time.UTC
	}
	return loc
}
