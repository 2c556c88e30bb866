package session

import (
	"fmt"
	"time"
)

// DateLayout is the calendar-date format used for Session.Date and per-day totals.
const DateLayout = "2006-01-02"

type EventKind string

const (
	EventLogon  EventKind = "LOGON"
	EventLogoff EventKind = "LOGOFF"
)

// RawEvent is one unparsed logon/logoff record handed over by the event log collaborator.
type RawEvent struct {
	Timestamp string
	Kind      EventKind
	SourceID  string
}

type BreakKind string

const (
	BreakLunch     BreakKind = "LUNCH"
	BreakDinner    BreakKind = "DINNER"
	BreakWorkBreak BreakKind = "WORK_BREAK"
)

type BreakInterval struct {
	Start time.Time
	End   time.Time
	Kind  BreakKind
}

func (b BreakInterval) Duration() time.Duration {
	return b.End.Sub(b.Start)
}

type Session struct {
	ID              string
	Start           time.Time
	End             time.Time
	WorkSeconds     float64
	Breaks          []BreakInterval
	Date            string
	CrossesMidnight bool
}

// New builds a session and enforces start < end and a single time zone.
// WorkSeconds starts as the full span.
func New(id string, start, end time.Time, crossesMidnight bool) (*Session, error) {
	if err := checkSpan(id, start, end); err != nil {
		return nil, err
	}
	return &Session{
		ID:              id,
		Start:           start,
		End:             end,
		WorkSeconds:     end.Sub(start).Seconds(),
		Date:            start.Format(DateLayout),
		CrossesMidnight: crossesMidnight,
	}, nil
}

func (s *Session) Span() time.Duration {
	return s.End.Sub(s.Start)
}

func (s *Session) BreakDuration() time.Duration {
	var total time.Duration
	for _, b := range s.Breaks {
		total += b.Duration()
	}
	return total
}

// Validate re-checks every invariant a session must hold once it exists.
func (s *Session) Validate() error {
	if err := checkSpan(s.ID, s.Start, s.End); err != nil {
		return err
	}
	span := s.Span().Seconds()
	if s.WorkSeconds < 0 || s.WorkSeconds > span {
		return violation(s.ID, fmt.Sprintf("work_seconds %.0f outside [0, %.0f]", s.WorkSeconds, span))
	}
	if want := s.Start.Format(DateLayout); s.Date != want {
		return violation(s.ID, fmt.Sprintf("date %s does not match start date %s", s.Date, want))
	}
	prevEnd := s.Start
	for i, b := range s.Breaks {
		if !b.Start.Before(b.End) {
			return violation(s.ID, fmt.Sprintf("break %d has start %s >= end %s", i, b.Start, b.End))
		}
		if b.Start.Before(prevEnd) || b.End.After(s.End) {
			return violation(s.ID, fmt.Sprintf("break %d [%s, %s] outside session or out of order", i, b.Start, b.End))
		}
		prevEnd = b.End
	}
	return nil
}

func checkSpan(id string, start, end time.Time) error {
	if start.Location().String() != end.Location().String() {
		return violation(id, fmt.Sprintf("start zone %s differs from end zone %s", start.Location(), end.Location()))
	}
	if !start.Before(end) {
		return violation(id, fmt.Sprintf("start %s is not before end %s", start.Format(time.RFC3339), end.Format(time.RFC3339)))
	}
	return nil
}
