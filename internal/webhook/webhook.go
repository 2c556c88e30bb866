package webhook

import "context"

const RunSummarySchemaVersion = "rdhours.run_summary.v1"

type RunSummaryPayload struct {
	SchemaVersion string          `json:"schema_version"`
	RunID         string          `json:"run_id"`
	Timezone      string          `json:"timezone"`
	StartedAt     string          `json:"started_at"`
	FinishedAt    string          `json:"finished_at"`
	DryRun        bool            `json:"dry_run"`
	Counts        RunSummaryCount `json:"counts"`
	Days          []DayTotal      `json:"days"`
}

type RunSummaryCount struct {
	Sessions            int `json:"sessions"`
	ParseFailures       int `json:"parse_failures"`
	UnmappedEvents      int `json:"unmapped_events"`
	DroppedNoLogoff     int `json:"dropped_no_logoff"`
	RebootsMerged       int `json:"reboots_merged"`
	MidnightSplits      int `json:"midnight_splits"`
	DuplicatesRemoved   int `json:"duplicates_removed"`
	SessionsClipped     int `json:"sessions_clipped"`
	DroppedByCap        int `json:"dropped_by_cap"`
	OverlapsShort       int `json:"overlaps_short"`
	OverlapsLong        int `json:"overlaps_long"`
	CalendarConflicts   int `json:"calendar_conflicts"`
	Uploaded            int `json:"uploaded"`
	UploadFailures      int `json:"upload_failures"`
	UploadsUnverified   int `json:"uploads_unverified"`
	PostUploadConflicts int `json:"post_upload_conflicts"`
}

type DayTotal struct {
	Date      string  `json:"date"`
	WorkHours float64 `json:"work_hours"`
	Sessions  int     `json:"sessions"`
}

type Sender interface {
	SendRunSummary(ctx context.Context, payload RunSummaryPayload) error
}
