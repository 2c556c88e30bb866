package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/foxseedlab/rdhours/internal/calendar"
	"github.com/foxseedlab/rdhours/internal/config"
	"github.com/foxseedlab/rdhours/internal/conflict"
	"github.com/foxseedlab/rdhours/internal/discord"
	"github.com/foxseedlab/rdhours/internal/eventlog"
	"github.com/foxseedlab/rdhours/internal/gitlog"
	"github.com/foxseedlab/rdhours/internal/repository"
	"github.com/foxseedlab/rdhours/internal/session"
	"github.com/foxseedlab/rdhours/internal/timeparse"
	"github.com/foxseedlab/rdhours/internal/webhook"
)

type mockEventSource struct {
	events []session.RawEvent
	stats  eventlog.LoadStats
	err    error
}

func (m *mockEventSource) Load(_ context.Context) ([]session.RawEvent, eventlog.LoadStats, error) {
	return m.events, m.stats, m.err
}

func (m *mockEventSource) Locale() string { return "" }

type mockCommitSource struct {
	commits []gitlog.Commit
	err     error
}

func (m *mockCommitSource) Commits(_ context.Context, _, _ time.Time) ([]gitlog.Commit, error) {
	return m.commits, m.err
}

type mockCalendarStore struct {
	existing  []calendar.ExistingEvent
	listErr   error
	listCalls int
	inserted  []calendar.Event

	// dropInserted keeps created events out of later lists.
	dropInserted bool
	// addOnInsert appears in the calendar alongside the first insert.
	addOnInsert []calendar.ExistingEvent
}

func (m *mockCalendarStore) ListEvents(_ context.Context, from, to time.Time) ([]calendar.ExistingEvent, error) {
	m.listCalls++
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []calendar.ExistingEvent
	for _, ev := range m.existing {
		if ev.Start.Before(to) && ev.End.After(from) {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (m *mockCalendarStore) InsertEvent(_ context.Context, event calendar.Event) (string, error) {
	m.inserted = append(m.inserted, event)
	id := "evt-" + event.Properties[calendar.PropertySessionID]
	if !m.dropInserted {
		m.existing = append(m.existing, calendar.ExistingEvent{ID: id, Start: event.Start, End: event.End})
	}
	m.existing = append(m.existing, m.addOnInsert...)
	m.addOnInsert = nil
	return id, nil
}

type mockRepository struct {
	runs     []repository.RunRecord
	sessions [][]repository.SessionRecord
	err      error
}

func (m *mockRepository) SaveRun(_ context.Context, run repository.RunRecord, sessions []repository.SessionRecord) error {
	m.runs = append(m.runs, run)
	m.sessions = append(m.sessions, sessions)
	return m.err
}

type mockDiscordClient struct {
	sendCalls []string
	fileCalls []discord.FileMessage
}

func (m *mockDiscordClient) SendChannelMessage(_ string, content string) error {
	m.sendCalls = append(m.sendCalls, content)
	return nil
}

func (m *mockDiscordClient) SendChannelMessageWithFile(msg discord.FileMessage) error {
	m.fileCalls = append(m.fileCalls, msg)
	return nil
}

type mockWebhookSender struct {
	payloads []webhook.RunSummaryPayload
}

func (m *mockWebhookSender) SendRunSummary(_ context.Context, payload webhook.RunSummaryPayload) error {
	m.payloads = append(m.payloads, payload)
	return nil
}

type fixture struct {
	events   *mockEventSource
	commits  *mockCommitSource
	calendar *mockCalendarStore
	repo     *mockRepository
	discord  *mockDiscordClient
	webhook  *mockWebhookSender
	loc      *time.Location
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		t.Fatalf("failed to load location: %v", err)
	}
	return &fixture{
		events: &mockEventSource{
			events: []session.RawEvent{
				{Timestamp: "2025-06-10 09:00:00", Kind: session.EventLogon, SourceID: "log:2"},
				{Timestamp: "2025-06-10 17:00:00", Kind: session.EventLogoff, SourceID: "log:3"},
				{Timestamp: "not a timestamp", Kind: session.EventLogon, SourceID: "log:4"},
				{Timestamp: "2025-06-11 07:00:00", Kind: session.EventLogoff, SourceID: "log:5"},
				{Timestamp: "2025-06-11 08:00:00", Kind: session.EventLogon, SourceID: "log:6"},
				{Timestamp: "2025-06-11 12:00:00", Kind: session.EventLogoff, SourceID: "log:7"},
			},
			stats: eventlog.LoadStats{Rows: 8, Unmapped: 2},
		},
		commits: &mockCommitSource{commits: []gitlog.Commit{
			{Hash: "0123456789abcdef", Timestamp: time.Date(2025, 6, 10, 10, 30, 0, 0, loc), Repo: "api", Message: "feat: session export"},
		}},
		calendar: &mockCalendarStore{existing: []calendar.ExistingEvent{
			{ID: "standup", Start: time.Date(2025, 6, 11, 10, 0, 0, 0, loc), End: time.Date(2025, 6, 11, 11, 0, 0, 0, loc)},
		}},
		repo:    &mockRepository{},
		discord: &mockDiscordClient{},
		webhook: &mockWebhookSender{},
		loc:     loc,
	}
}

func testConfig() *config.Config {
	return &config.Config{
		Env:                        "development",
		Timezone:                   "Europe/Berlin",
		EventLogPath:               "events.csv",
		DailyCapHours:              11,
		OverlapLongThresholdHours:  1,
		RebootGraceMinutes:         5,
		GridMinutes:                5,
		WorkBreakMinutes:           30,
		GoogleCalendarID:           "primary",
		GoogleCloudCredentialsJSON: "{}",
		DiscordToken:               "token",
		DiscordChannelID:           "channel",
	}
}

func (f *fixture) runner(cfg *config.Config, detector *conflict.Detector) *Runner {
	if detector == nil {
		detector = conflict.NewDetector(f.loc, conflict.Options{LongThresholdHours: cfg.OverlapLongThresholdHours})
	}
	r := NewRunner(cfg, timeparse.NewParser(f.loc), detector, f.events, f.commits, f.calendar, f.repo, f.discord, f.webhook)
	r.newID = func() string { return "run-1" }
	r.now = func() time.Time { return time.Date(2025, 6, 12, 8, 0, 0, 0, f.loc) }
	return r
}

func TestRun_EndToEnd(t *testing.T) {
	f := newFixture(t)
	sum, err := f.runner(testConfig(), nil).Run(context.Background(), Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(sum.Sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(sum.Sessions))
	}
	if sum.Counts.ParseFailures != 1 || sum.Counts.OrphanLogoffs != 1 || sum.Counts.UnmappedEvents != 2 {
		t.Errorf("unexpected skip counts %+v", sum.Counts)
	}
	if sum.Counts.CalendarConflicts != 1 || sum.Counts.Uploaded != 1 || sum.Counts.UploadFailures != 0 {
		t.Errorf("unexpected upload counts %+v", sum.Counts)
	}
	if sum.Counts.UploadsUnverified != 0 || sum.Counts.PostUploadConflicts != 0 {
		t.Errorf("upload should verify cleanly %+v", sum.Counts)
	}
	// Two days listed before the upload and again after it.
	if f.calendar.listCalls != 4 {
		t.Errorf("expected 4 list calls, got %d", f.calendar.listCalls)
	}

	if len(f.calendar.inserted) != 1 {
		t.Fatalf("expected 1 upload, got %d", len(f.calendar.inserted))
	}
	ev := f.calendar.inserted[0]
	if ev.Properties[calendar.PropertySessionID] != "session-0001" || ev.Properties[calendar.PropertyRunID] != "run-1" {
		t.Errorf("unexpected properties %v", ev.Properties)
	}
	if ev.TimeZone != "Europe/Berlin" || ev.Summary != "R&D work (api)" {
		t.Errorf("unexpected event %+v", ev)
	}
	if !strings.Contains(ev.Description, "api 0123456 feat: session export") {
		t.Errorf("commit activity missing from description:\n%s", ev.Description)
	}

	if len(f.repo.runs) != 1 {
		t.Fatalf("expected one persisted run, got %d", len(f.repo.runs))
	}
	run := f.repo.runs[0]
	if run.ID != "run-1" || run.Status != repository.RunStatusCompleted || run.SessionCount != 2 || run.SkippedRecords != 4 {
		t.Errorf("unexpected run record %+v", run)
	}
	eventIDs := map[string]string{}
	for _, rec := range f.repo.sessions[0] {
		eventIDs[rec.SessionID] = rec.CalendarEventID
	}
	if diff := cmp.Diff(map[string]string{"session-0001": "evt-session-0001", "session-0002": ""}, eventIDs); diff != "" {
		t.Errorf("unexpected calendar event ids (-want +got):\n%s", diff)
	}

	if len(f.discord.sendCalls) != 1 || len(f.discord.fileCalls) != 1 {
		t.Fatalf("expected one message and one attachment, got %d and %d", len(f.discord.sendCalls), len(f.discord.fileCalls))
	}
	if !strings.Contains(string(f.discord.fileCalls[0].FileBody), "2025-06-11,4.00,1") {
		t.Errorf("unexpected attachment:\n%s", f.discord.fileCalls[0].FileBody)
	}
	if len(f.webhook.payloads) != 1 || f.webhook.payloads[0].Counts.Uploaded != 1 {
		t.Errorf("unexpected webhook payloads %+v", f.webhook.payloads)
	}
}

func TestRun_DryRunDoesNotUpload(t *testing.T) {
	f := newFixture(t)
	sum, err := f.runner(testConfig(), nil).Run(context.Background(), Options{DryRun: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.calendar.inserted) != 0 {
		t.Fatalf("dry run uploaded %d events", len(f.calendar.inserted))
	}
	if f.calendar.listCalls != 2 || sum.Counts.CalendarConflicts != 1 {
		t.Errorf("dry run should still report calendar conflicts: calls=%d conflicts=%d", f.calendar.listCalls, sum.Counts.CalendarConflicts)
	}
	if f.repo.runs[0].Status != repository.RunStatusDryRun {
		t.Errorf("status = %s", f.repo.runs[0].Status)
	}
	if !strings.Contains(sum.Text(), "Dry run") {
		t.Errorf("unexpected text:\n%s", sum.Text())
	}
}

func TestRun_CalendarUnavailableSkipsUpload(t *testing.T) {
	f := newFixture(t)
	f.calendar.listErr = errors.New("backend unavailable")
	sum, err := f.runner(testConfig(), nil).Run(context.Background(), Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !sum.CalendarUnavailable || len(f.calendar.inserted) != 0 {
		t.Fatalf("expected upload to be skipped, inserted %d", len(f.calendar.inserted))
	}
	if len(f.repo.runs) != 1 {
		t.Fatal("run should still be persisted")
	}
}

func TestRun_ExactRangeOfExistingEventIsNotUploadedAgain(t *testing.T) {
	f := newFixture(t)
	f.calendar.existing = []calendar.ExistingEvent{
		{ID: "previous-upload", Start: time.Date(2025, 6, 10, 9, 0, 0, 0, f.loc), End: time.Date(2025, 6, 10, 17, 0, 0, 0, f.loc)},
		{ID: "previous-upload-2", Start: time.Date(2025, 6, 11, 8, 0, 0, 0, f.loc), End: time.Date(2025, 6, 11, 12, 0, 0, 0, f.loc)},
	}
	sum, err := f.runner(testConfig(), nil).Run(context.Background(), Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.calendar.inserted) != 0 || sum.Counts.CalendarConflicts != 2 {
		t.Fatalf("re-run uploaded %d events with %d conflicts", len(f.calendar.inserted), sum.Counts.CalendarConflicts)
	}
}

func TestRun_InvariantViolationAbortsBeforeSideEffects(t *testing.T) {
	f := newFixture(t)
	detector := conflict.NewDetector(time.UTC, conflict.Options{})
	_, err := f.runner(testConfig(), detector).Run(context.Background(), Options{})
	var iv *session.InvariantViolation
	if !errors.As(err, &iv) {
		t.Fatalf("expected *session.InvariantViolation, got %v", err)
	}
	if len(f.calendar.inserted) != 0 || len(f.repo.runs) != 0 || len(f.webhook.payloads) != 0 {
		t.Fatal("an aborted run must not upload, persist or notify")
	}
}

func TestRun_PersistenceFailureStillNotifies(t *testing.T) {
	f := newFixture(t)
	f.repo.err = errors.New("connection reset")
	sum, err := f.runner(testConfig(), nil).Run(context.Background(), Options{})
	if err == nil {
		t.Fatal("expected an error")
	}
	if sum == nil || sum.RunID != "run-1" {
		t.Fatalf("expected the summary alongside the error, got %+v", sum)
	}
	if len(f.webhook.payloads) != 1 {
		t.Fatalf("expected the webhook to be notified, got %d payloads", len(f.webhook.payloads))
	}
}

func TestRun_LoadFailure(t *testing.T) {
	f := newFixture(t)
	f.events.err = errors.New("permission denied")
	if _, err := f.runner(testConfig(), nil).Run(context.Background(), Options{}); err == nil {
		t.Fatal("expected an error")
	}
}

func TestRun_OptionalCollaboratorsDisabled(t *testing.T) {
	f := newFixture(t)
	f.commits.err = errors.New("not a git repository")
	cfg := testConfig()
	cfg.GoogleCalendarID = ""
	cfg.DiscordToken = ""
	cfg.DiscordChannelID = ""
	sum, err := f.runner(cfg, nil).Run(context.Background(), Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.calendar.inserted) != 0 || len(f.discord.sendCalls) != 0 {
		t.Fatal("disabled collaborators must not be used")
	}
	if sum.Counts.Uploaded != 0 || len(sum.Sessions) != 2 {
		t.Errorf("unexpected summary %+v", sum.Counts)
	}
}

func TestRun_ReadBackCountsMissingUploads(t *testing.T) {
	f := newFixture(t)
	f.calendar.dropInserted = true
	sum, err := f.runner(testConfig(), nil).Run(context.Background(), Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sum.Counts.Uploaded != 1 || sum.Counts.UploadsUnverified != 1 || sum.Counts.PostUploadConflicts != 0 {
		t.Errorf("unexpected counts %+v", sum.Counts)
	}
	if !strings.Contains(sum.Text(), "1 uploads missing, 0 new calendar conflicts") {
		t.Errorf("unexpected text:\n%s", sum.Text())
	}
	if got := f.webhook.payloads[0].Counts.UploadsUnverified; got != 1 {
		t.Errorf("webhook uploads_unverified = %d", got)
	}
}

func TestRun_ReadBackCountsEventsAddedDuringUpload(t *testing.T) {
	f := newFixture(t)
	f.calendar.addOnInsert = []calendar.ExistingEvent{
		{ID: "late-meeting", Start: time.Date(2025, 6, 10, 16, 0, 0, 0, f.loc), End: time.Date(2025, 6, 10, 17, 30, 0, 0, f.loc)},
	}
	sum, err := f.runner(testConfig(), nil).Run(context.Background(), Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sum.Counts.Uploaded != 1 || sum.Counts.UploadsUnverified != 0 || sum.Counts.PostUploadConflicts != 1 {
		t.Errorf("unexpected counts %+v", sum.Counts)
	}
}

func TestRun_ReadBackSkippedWhenNothingUploaded(t *testing.T) {
	f := newFixture(t)
	cfg := testConfig()
	cfg.GoogleCalendarID = ""
	if _, err := f.runner(cfg, nil).Run(context.Background(), Options{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.calendar.listCalls != 2 {
		t.Errorf("expected one list per day and no read back, got %d calls", f.calendar.listCalls)
	}
}

func TestDayWindows(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		t.Fatalf("failed to load location: %v", err)
	}
	sessions := []*session.Session{
		mustSession(t, "b", time.Date(2025, 6, 11, 8, 0, 0, 0, loc), time.Date(2025, 6, 11, 12, 0, 0, 0, loc)),
		mustSession(t, "a", time.Date(2025, 6, 10, 22, 0, 0, 0, loc), time.Date(2025, 6, 11, 0, 0, 0, 0, loc)),
		mustSession(t, "c", time.Date(2025, 6, 11, 13, 0, 0, 0, loc), time.Date(2025, 6, 11, 14, 0, 0, 0, loc)),
	}
	var got []string
	for _, d := range dayWindows(sessions, loc) {
		got = append(got, d.from.Format(time.RFC3339)+"/"+d.to.Format(time.RFC3339))
	}
	want := []string{
		"2025-06-10T00:00:00+02:00/2025-06-11T00:00:00+02:00",
		"2025-06-11T00:00:00+02:00/2025-06-12T00:00:00+02:00",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("unexpected windows (-want +got):\n%s", diff)
	}
}

func TestRun_MidnightSplitHalvesAfterRounding(t *testing.T) {
	f := newFixture(t)
	f.events.events = []session.RawEvent{
		{Timestamp: "2025-06-10 22:00:00", Kind: session.EventLogon, SourceID: "log:2"},
		{Timestamp: "2025-06-11 02:00:00", Kind: session.EventLogoff, SourceID: "log:3"},
	}
	sum, err := f.runner(testConfig(), nil).Run(context.Background(), Options{DryRun: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sum.Counts.MidnightSplits != 1 {
		t.Errorf("midnight splits = %d", sum.Counts.MidnightSplits)
	}

	type half struct {
		Start, End      string
		Date            string
		CrossesMidnight bool
	}
	var got []half
	for _, s := range sum.Sessions {
		got = append(got, half{s.Start.Format(time.RFC3339), s.End.Format(time.RFC3339), s.Date, s.CrossesMidnight})
	}
	// The first half ends at 23:59:59 and rounds up onto the next midnight,
	// where the second half starts.
	want := []half{
		{"2025-06-10T22:00:00+02:00", "2025-06-11T00:00:00+02:00", "2025-06-10", true},
		{"2025-06-11T00:00:00+02:00", "2025-06-11T02:00:00+02:00", "2025-06-11", true},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("unexpected halves (-want +got):\n%s", diff)
	}
	if sum.Counts.OverlapsShort+sum.Counts.OverlapsLong != 0 || len(sum.Overlaps) != 0 {
		t.Errorf("touching halves must not overlap: %+v", sum.Overlaps)
	}
	wantDays := []DayTotal{
		{Date: "2025-06-10", WorkSeconds: sum.Sessions[0].WorkSeconds, Sessions: 1},
		{Date: "2025-06-11", WorkSeconds: sum.Sessions[1].WorkSeconds, Sessions: 1},
	}
	if diff := cmp.Diff(wantDays, sum.Days); diff != "" {
		t.Errorf("unexpected day totals (-want +got):\n%s", diff)
	}
}
