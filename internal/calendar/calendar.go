package calendar

import (
	"context"
	"errors"
	"time"
)

// Private extended property keys attached to every uploaded event.
const (
	PropertyRunID     = "rdhours_run_id"
	PropertySessionID = "rdhours_session_id"
)

var ErrDisabled = errors.New("calendar store is not configured")

// Event is the projection of a work session that gets uploaded.
type Event struct {
	Summary     string
	Description string
	Start       time.Time
	End         time.Time
	TimeZone    string
	Properties  map[string]string
}

// ExistingEvent is a timed event already present in the calendar.
type ExistingEvent struct {
	ID    string
	Start time.Time
	End   time.Time
}

type Store interface {
	ListEvents(ctx context.Context, from, to time.Time) ([]ExistingEvent, error)
	InsertEvent(ctx context.Context, event Event) (string, error)
}

// Disabled lists nothing and refuses uploads.
type Disabled struct{}

func (Disabled) ListEvents(context.Context, time.Time, time.Time) ([]ExistingEvent, error) {
	return nil, nil
}

func (Disabled) InsertEvent(context.Context, Event) (string, error) {
	return "", ErrDisabled
}
