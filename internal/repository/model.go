package repository

import "time"

type RunStatus string

const (
	RunStatusCompleted RunStatus = "completed"
	RunStatusDryRun    RunStatus = "dry_run"
)

// RunRecord is one pipeline execution together with the counts users audit
// when totals differ from a naive sum.
type RunRecord struct {
	ID                string
	StartedAt         time.Time
	FinishedAt        time.Time
	Timezone          string
	Status            RunStatus
	EventLogPath      string
	SessionCount      int
	TotalWorkSeconds  float64
	SkippedRecords    int
	DuplicatesRemoved int
	SessionsClipped   int
	DroppedByCap      int
	Overlaps          int
	CalendarConflicts int
	Uploaded          int
}

type SessionRecord struct {
	RunID           string
	SessionID       string
	Date            string
	StartedAt       time.Time
	EndedAt         time.Time
	WorkSeconds     float64
	CrossesMidnight bool
	CalendarEventID string
	Breaks          []BreakRecord
}

type BreakRecord struct {
	Kind      string
	StartedAt time.Time
	EndedAt   time.Time
}
