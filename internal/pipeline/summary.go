package pipeline

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/foxseedlab/rdhours/internal/conflict"
	"github.com/foxseedlab/rdhours/internal/repository"
	"github.com/foxseedlab/rdhours/internal/session"
	"github.com/foxseedlab/rdhours/internal/webhook"
)

// Counts explains why the final total differs from a naive sum of the raw log.
type Counts struct {
	Rows                int
	ParseFailures       int
	UnmappedEvents      int
	UnknownKinds        int
	OrphanLogoffs       int
	RepeatedLogons      int
	DroppedNoLogoff     int
	RebootsMerged       int
	MidnightSplits      int
	TruncatedMultiDay   int
	DroppedZeroLength   int
	CollapsedByRounding int
	ClampedWork         int
	DuplicatesRemoved   int
	SessionsClipped     int
	DroppedByCap        int
	OverlapsShort       int
	OverlapsLong        int
	CalendarConflicts   int
	Uploaded            int
	UploadFailures      int
	UploadsUnverified   int
	PostUploadConflicts int
}

// SkippedRecords is the number of input rows that never became part of a session.
func (c Counts) SkippedRecords() int {
	return c.ParseFailures + c.UnmappedEvents + c.UnknownKinds + c.OrphanLogoffs + c.RepeatedLogons
}

type DayTotal struct {
	Date        string
	WorkSeconds float64
	Sessions    int
}

func (d DayTotal) WorkHours() float64 {
	return d.WorkSeconds / 3600
}

type Summary struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Timezone   string
	DryRun     bool
	// CalendarUnavailable is set when existing events could not be listed
	// and uploads were skipped.
	CalendarUnavailable bool

	Counts            Counts
	Days              []DayTotal
	Sessions          []*session.Session
	Overlaps          []conflict.OverlapRecord
	CalendarConflicts []conflict.OverlapRecord
	// CalendarEventIDs maps session id to the id of the uploaded event.
	CalendarEventIDs map[string]string
}

func (s *Summary) TotalWorkSeconds() float64 {
	var total float64
	for _, d := range s.Days {
		total += d.WorkSeconds
	}
	return total
}

func dayTotals(sessions []*session.Session) []DayTotal {
	byDate := make(map[string]*DayTotal)
	for _, s := range sessions {
		d, ok := byDate[s.Date]
		if !ok {
			d = &DayTotal{Date: s.Date}
			byDate[s.Date] = d
		}
		d.WorkSeconds += s.WorkSeconds
		d.Sessions++
	}
	out := make([]DayTotal, 0, len(byDate))
	for _, d := range byDate {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}

func roundHours(seconds float64) float64 {
	return math.Round(seconds/36) / 100
}

// Text renders the notification message.
func (s *Summary) Text() string {
	var b bytes.Buffer
	title := messageRunCompletedTitle
	if s.DryRun {
		title = messageRunDryRunTitle
	}
	b.WriteString(title + "\n")
	fmt.Fprintf(&b, messageRunMetaFormat+"\n", s.RunID, s.Timezone)
	fmt.Fprintf(&b, messageTotalsFormat+"\n", len(s.Sessions), len(s.Days), roundHours(s.TotalWorkSeconds()))
	c := s.Counts
	fmt.Fprintf(&b, messageSkippedFormat+"\n", c.ParseFailures, c.UnmappedEvents+c.UnknownKinds, c.DroppedNoLogoff)
	fmt.Fprintf(&b, messageAdjustedFormat+"\n", c.RebootsMerged, c.MidnightSplits, c.DuplicatesRemoved, c.SessionsClipped, c.DroppedByCap)
	fmt.Fprintf(&b, messageConflictsFormat+"\n", c.OverlapsShort, c.OverlapsLong, c.CalendarConflicts)
	switch {
	case s.CalendarUnavailable:
		b.WriteString(messageCalendarUnavailable)
	case s.DryRun:
		b.WriteString(messageUploadSkippedDryRun)
	default:
		fmt.Fprintf(&b, messageUploadedFormat, c.Uploaded, c.UploadFailures)
		if c.UploadsUnverified > 0 || c.PostUploadConflicts > 0 {
			fmt.Fprintf(&b, "\n"+messageVerifyFormat, c.UploadsUnverified, c.PostUploadConflicts)
		}
	}
	return b.String()
}

// DaysCSV renders per-day totals as a CSV attachment.
func (s *Summary) DaysCSV() ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"date", "work_hours", "sessions"}); err != nil {
		return nil, err
	}
	for _, d := range s.Days {
		row := []string{d.Date, strconv.FormatFloat(roundHours(d.WorkSeconds), 'f', 2, 64), strconv.Itoa(d.Sessions)}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (s *Summary) webhookPayload() webhook.RunSummaryPayload {
	c := s.Counts
	days := make([]webhook.DayTotal, 0, len(s.Days))
	for _, d := range s.Days {
		days = append(days, webhook.DayTotal{Date: d.Date, WorkHours: roundHours(d.WorkSeconds), Sessions: d.Sessions})
	}
	return webhook.RunSummaryPayload{
		SchemaVersion: webhook.RunSummarySchemaVersion,
		RunID:         s.RunID,
		Timezone:      s.Timezone,
		StartedAt:     s.StartedAt.Format(time.RFC3339),
		FinishedAt:    s.FinishedAt.Format(time.RFC3339),
		DryRun:        s.DryRun,
		Counts: webhook.RunSummaryCount{
			Sessions:            len(s.Sessions),
			ParseFailures:       c.ParseFailures,
			UnmappedEvents:      c.UnmappedEvents + c.UnknownKinds,
			DroppedNoLogoff:     c.DroppedNoLogoff,
			RebootsMerged:       c.RebootsMerged,
			MidnightSplits:      c.MidnightSplits,
			DuplicatesRemoved:   c.DuplicatesRemoved,
			SessionsClipped:     c.SessionsClipped,
			DroppedByCap:        c.DroppedByCap,
			OverlapsShort:       c.OverlapsShort,
			OverlapsLong:        c.OverlapsLong,
			CalendarConflicts:   c.CalendarConflicts,
			Uploaded:            c.Uploaded,
			UploadFailures:      c.UploadFailures,
			UploadsUnverified:   c.UploadsUnverified,
			PostUploadConflicts: c.PostUploadConflicts,
		},
		Days: days,
	}
}

func (s *Summary) runRecord(eventLogPath string) repository.RunRecord {
	status := repository.RunStatusCompleted
	if s.DryRun {
		status = repository.RunStatusDryRun
	}
	c := s.Counts
	return repository.RunRecord{
		ID:                s.RunID,
		StartedAt:         s.StartedAt,
		FinishedAt:        s.FinishedAt,
		Timezone:          s.Timezone,
		Status:            status,
		EventLogPath:      eventLogPath,
		SessionCount:      len(s.Sessions),
		TotalWorkSeconds:  s.TotalWorkSeconds(),
		SkippedRecords:    c.SkippedRecords(),
		DuplicatesRemoved: c.DuplicatesRemoved,
		SessionsClipped:   c.SessionsClipped,
		DroppedByCap:      c.DroppedByCap,
		Overlaps:          c.OverlapsShort + c.OverlapsLong,
		CalendarConflicts: c.CalendarConflicts,
		Uploaded:          c.Uploaded,
	}
}

func (s *Summary) sessionRecords() []repository.SessionRecord {
	out := make([]repository.SessionRecord, 0, len(s.Sessions))
	for _, sess := range s.Sessions {
		breaks := make([]repository.BreakRecord, 0, len(sess.Breaks))
		for _, b := range sess.Breaks {
			breaks = append(breaks, repository.BreakRecord{Kind: string(b.Kind), StartedAt: b.Start, EndedAt: b.End})
		}
		out = append(out, repository.SessionRecord{
			RunID:           s.RunID,
			SessionID:       sess.ID,
			Date:            sess.Date,
			StartedAt:       sess.Start,
			EndedAt:         sess.End,
			WorkSeconds:     sess.WorkSeconds,
			CrossesMidnight: sess.CrossesMidnight,
			CalendarEventID: s.CalendarEventIDs[sess.ID],
			Breaks:          breaks,
		})
	}
	return out
}
