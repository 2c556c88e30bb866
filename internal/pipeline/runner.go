// Package pipeline wires the core stages into one run: load events, rebuild
// sessions, shape them into reportable work time and hand them to the
// calendar, the database and the notification channels.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/foxseedlab/rdhours/internal/calendar"
	"github.com/foxseedlab/rdhours/internal/config"
	"github.com/foxseedlab/rdhours/internal/conflict"
	"github.com/foxseedlab/rdhours/internal/discord"
	"github.com/foxseedlab/rdhours/internal/eventlog"
	"github.com/foxseedlab/rdhours/internal/gitlog"
	"github.com/foxseedlab/rdhours/internal/reconcile"
	"github.com/foxseedlab/rdhours/internal/repository"
	"github.com/foxseedlab/rdhours/internal/session"
	"github.com/foxseedlab/rdhours/internal/timeparse"
	"github.com/foxseedlab/rdhours/internal/webhook"
	"github.com/foxseedlab/rdhours/internal/worktime"
)

const calendarIntervalPrefix = "calendar:"

type Options struct {
	DryRun bool
}

type Runner struct {
	cfg      *config.Config
	parser   *timeparse.Parser
	detector *conflict.Detector
	policy   worktime.BreakPolicy

	events   eventlog.Source
	commits  gitlog.Source
	calendar calendar.Store
	repo     repository.Repository
	discord  discord.Client
	webhook  webhook.Sender

	now   func() time.Time
	newID func() string
}

func NewRunner(cfg *config.Config, parser *timeparse.Parser, detector *conflict.Detector, events eventlog.Source, commits gitlog.Source, store calendar.Store, repo repository.Repository, dc discord.Client, wh webhook.Sender) *Runner {
	policy := worktime.DefaultBreakPolicy()
	if cfg.WorkBreakMinutes > 0 {
		policy.WorkBreak = cfg.WorkBreak()
	}
	return &Runner{
		cfg:      cfg,
		parser:   parser,
		detector: detector,
		policy:   policy,
		events:   events,
		commits:  commits,
		calendar: store,
		repo:     repo,
		discord:  dc,
		webhook:  wh,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// Run executes one pass over the event log. Invariant violations abort the run
// before anything is uploaded or persisted. A persistence failure is returned
// together with the summary of the otherwise completed run.
func (r *Runner) Run(ctx context.Context, opts Options) (*Summary, error) {
	loc := r.parser.Location()
	sum := &Summary{
		RunID:            r.newID(),
		StartedAt:        r.now().In(loc),
		Timezone:         loc.String(),
		DryRun:           opts.DryRun,
		CalendarEventIDs: make(map[string]string),
	}
	logger := slog.With("run_id", sum.RunID)
	logger.Info("run started", "event_log", r.cfg.EventLogPath, "timezone", sum.Timezone, "dry_run", opts.DryRun)

	raw, loadStats, err := r.events.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load events: %w", err)
	}
	sum.Counts.Rows = loadStats.Rows
	sum.Counts.UnmappedEvents = loadStats.Unmapped
	logger.Info("events loaded", "rows", loadStats.Rows, "events", len(raw), "unmapped", loadStats.Unmapped)

	sessions, err := r.buildSessions(raw, sum, logger)
	if err != nil {
		return nil, err
	}

	sessions, stats, err := reconcile.Reconcile(sessions, r.detector, r.cfg.DailyCapSeconds())
	if err != nil {
		return nil, fmt.Errorf("failed to reconcile sessions: %w", err)
	}
	sum.Counts.DuplicatesRemoved = stats.DuplicatesRemoved
	sum.Counts.SessionsClipped = stats.Clipped
	sum.Counts.DroppedByCap = stats.DroppedByCap
	logger.Info("sessions reconciled", "sessions", len(sessions), "duplicates_removed", stats.DuplicatesRemoved, "clipped", stats.Clipped, "dropped_by_cap", stats.DroppedByCap)

	for _, s := range sessions {
		if err := s.Validate(); err != nil {
			return nil, err
		}
	}
	sum.Sessions = sessions
	sum.Days = dayTotals(sessions)

	overlaps, err := r.detector.Overlaps(conflict.FromSessions(sessions))
	if err != nil {
		return nil, err
	}
	sum.Overlaps = overlaps
	for _, o := range overlaps {
		if o.Severity == conflict.SeverityLong {
			sum.Counts.OverlapsLong++
		} else {
			sum.Counts.OverlapsShort++
		}
		logger.Warn("sessions overlap", "a", o.AID, "b", o.BID, "hours", o.OverlapHours, "severity", o.Severity)
	}

	activity := r.assignActivity(ctx, sessions, logger)

	if err := r.uploadSessions(ctx, sum, activity, opts, logger); err != nil {
		return nil, err
	}

	sum.FinishedAt = r.now().In(loc)
	if err := r.repo.SaveRun(ctx, sum.runRecord(r.cfg.EventLogPath), sum.sessionRecords()); err != nil {
		logger.Error("failed to persist run", "error", err)
		r.notify(ctx, sum, logger)
		return sum, fmt.Errorf("failed to persist run: %w", err)
	}
	r.notify(ctx, sum, logger)
	logger.Info("run finished", "sessions", len(sum.Sessions), "total_hours", roundHours(sum.TotalWorkSeconds()), "uploaded", sum.Counts.Uploaded)
	return sum, nil
}

func (r *Runner) buildSessions(raw []session.RawEvent, sum *Summary, logger *slog.Logger) ([]*session.Session, error) {
	rec := session.NewReconstructor(r.parser, session.Options{
		RebootGrace: r.cfg.RebootGrace(),
		SourceHint:  r.events.Locale(),
		Logger:      logger,
	})
	sessions, rs, err := rec.Reconstruct(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to reconstruct sessions: %w", err)
	}
	c := &sum.Counts
	c.ParseFailures = rs.ParseFailures
	c.UnknownKinds = rs.UnknownKinds
	c.OrphanLogoffs = rs.OrphanLogoffs
	c.RepeatedLogons = rs.RepeatedLogons
	c.DroppedNoLogoff = rs.DroppedUnterminated
	c.RebootsMerged = rs.RebootsMerged
	c.MidnightSplits = rs.MidnightSplits
	c.TruncatedMultiDay = rs.TruncatedMultiDay
	c.DroppedZeroLength = rs.DroppedZeroLength
	logger.Info("sessions reconstructed", "sessions", len(sessions), "parse_failures", rs.ParseFailures, "reboots_merged", rs.RebootsMerged, "midnight_splits", rs.MidnightSplits, "dropped_no_logoff", rs.DroppedUnterminated)

	kept := sessions[:0]
	for _, s := range sessions {
		ok, clamped, err := worktime.Apply(s, r.policy)
		if err != nil {
			return nil, err
		}
		if !ok {
			c.CollapsedByRounding++
			logger.Info("dropping session collapsed by rounding", "session_id", s.ID)
			continue
		}
		if clamped {
			c.ClampedWork++
		}
		kept = append(kept, s)
	}
	return kept, nil
}

// assignActivity is best-effort: a failing git source only loses the
// commit listing in event descriptions.
func (r *Runner) assignActivity(ctx context.Context, sessions []*session.Session, logger *slog.Logger) map[string]gitlog.Activity {
	from, to, ok := window(sessions)
	if !ok {
		return nil
	}
	commits, err := r.commits.Commits(ctx, from, to)
	if err != nil {
		logger.Warn("failed to load git history; continuing without commit activity", "error", err)
		return nil
	}
	activity := gitlog.Assign(sessions, commits)
	logger.Info("commit activity assigned", "commits", len(commits), "sessions_with_commits", len(activity))
	return activity
}

// uploadSessions checks the sessions against the calendar's existing events
// and uploads the ones that do not collide. Colliding sessions are only
// counted and logged. After an upload the calendar is read back and checked
// again.
func (r *Runner) uploadSessions(ctx context.Context, sum *Summary, activity map[string]gitlog.Activity, opts Options, logger *slog.Logger) error {
	loc := r.parser.Location()
	days := dayWindows(sum.Sessions, loc)
	if len(days) == 0 {
		return nil
	}
	existing, err := r.listDays(ctx, days)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		sum.CalendarUnavailable = true
		logger.Error("failed to list existing calendar events; skipping upload", "error", err)
		return nil
	}

	conflicted, err := r.calendarConflicts(sum, existing)
	if err != nil {
		return err
	}
	sum.Counts.CalendarConflicts = len(conflicted)
	for _, o := range sum.CalendarConflicts {
		logger.Warn("session collides with existing calendar event", "session_id", o.AID, "event", o.BID, "hours", o.OverlapHours, "severity", o.Severity)
	}

	if opts.DryRun || !r.cfg.CalendarEnabled() {
		return nil
	}
	for _, s := range sum.Sessions {
		if conflicted[s.ID] {
			continue
		}
		id, err := r.calendar.InsertEvent(ctx, BuildCalendarEvent(sum.RunID, s, activity[s.ID], loc))
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			sum.Counts.UploadFailures++
			logger.Error("failed to upload session", "session_id", s.ID, "error", err)
			continue
		}
		sum.CalendarEventIDs[s.ID] = id
		sum.Counts.Uploaded++
	}
	logger.Info("sessions uploaded", "uploaded", sum.Counts.Uploaded, "failures", sum.Counts.UploadFailures, "conflicts", len(conflicted))
	if sum.Counts.Uploaded == 0 {
		return nil
	}
	return r.verifyUploads(ctx, sum, days, logger)
}

// listDays lists the calendar one local day at a time. An event spanning
// several days is returned once.
func (r *Runner) listDays(ctx context.Context, days []dayWindow) ([]calendar.ExistingEvent, error) {
	seen := make(map[string]bool)
	var out []calendar.ExistingEvent
	for _, d := range days {
		events, err := r.calendar.ListEvents(ctx, d.from, d.to)
		if err != nil {
			return nil, err
		}
		for _, ev := range events {
			if seen[ev.ID] {
				continue
			}
			seen[ev.ID] = true
			out = append(out, ev)
		}
	}
	return out, nil
}

// verifyUploads re-reads the calendar and runs the detector over the uploaded
// sessions again. An upload whose event does not come back with the session's
// exact range is unverified. An overlap with any event other than the
// session's own is a post-upload conflict.
func (r *Runner) verifyUploads(ctx context.Context, sum *Summary, days []dayWindow, logger *slog.Logger) error {
	existing, err := r.listDays(ctx, days)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		sum.Counts.UploadsUnverified = sum.Counts.Uploaded
		logger.Error("failed to re-read calendar after upload", "error", err)
		return nil
	}

	var uploaded []*session.Session
	for _, s := range sum.Sessions {
		if _, ok := sum.CalendarEventIDs[s.ID]; ok {
			uploaded = append(uploaded, s)
		}
	}
	sessions := conflict.FromSessions(uploaded)
	events := r.calendarIntervals(existing)

	combined := make([]conflict.Interval, 0, len(sessions)+len(events))
	combined = append(combined, sessions...)
	combined = append(combined, events...)
	ranges, err := r.detector.DuplicateRanges(combined)
	if err != nil {
		return err
	}
	verified := make(map[string]bool, len(uploaded))
	for _, members := range ranges {
		inGroup := make(map[string]bool, len(members))
		for _, id := range members {
			inGroup[id] = true
		}
		for _, s := range uploaded {
			if inGroup[s.ID] && inGroup[calendarIntervalPrefix+sum.CalendarEventIDs[s.ID]] {
				verified[s.ID] = true
			}
		}
	}
	for _, s := range uploaded {
		if !verified[s.ID] {
			sum.Counts.UploadsUnverified++
			logger.Warn("uploaded session not found in calendar", "session_id", s.ID, "event_id", sum.CalendarEventIDs[s.ID])
		}
	}

	cross, err := r.detector.CrossOverlaps(sessions, events)
	if err != nil {
		return err
	}
	for _, o := range cross {
		sid, other := o.AID, o.BID
		if _, ok := sum.CalendarEventIDs[sid]; !ok {
			sid, other = o.BID, o.AID
		}
		if other == calendarIntervalPrefix+sum.CalendarEventIDs[sid] {
			continue
		}
		sum.Counts.PostUploadConflicts++
		logger.Warn("uploaded session collides with calendar event", "session_id", sid, "event", other, "hours", o.OverlapHours, "severity", o.Severity)
	}
	logger.Info("calendar uploads verified", "verified", len(verified), "unverified", sum.Counts.UploadsUnverified, "conflicts", sum.Counts.PostUploadConflicts)
	return nil
}

func (r *Runner) calendarIntervals(existing []calendar.ExistingEvent) []conflict.Interval {
	loc := r.parser.Location()
	events := make([]conflict.Interval, 0, len(existing))
	for _, ev := range existing {
		events = append(events, conflict.Interval{ID: calendarIntervalPrefix + ev.ID, Start: ev.Start.In(loc), End: ev.End.In(loc)})
	}
	return events
}

// calendarConflicts returns the ids of sessions that overlap or exactly match
// an existing calendar event.
func (r *Runner) calendarConflicts(sum *Summary, existing []calendar.ExistingEvent) (map[string]bool, error) {
	sessions := conflict.FromSessions(sum.Sessions)
	events := r.calendarIntervals(existing)

	cross, err := r.detector.CrossOverlaps(sessions, events)
	if err != nil {
		return nil, err
	}
	sum.CalendarConflicts = cross

	isSession := make(map[string]bool, len(sessions))
	for _, iv := range sessions {
		isSession[iv.ID] = true
	}
	conflicted := make(map[string]bool)
	for _, o := range cross {
		for _, id := range []string{o.AID, o.BID} {
			if isSession[id] {
				conflicted[id] = true
			}
		}
	}

	combined := make([]conflict.Interval, 0, len(sessions)+len(events))
	combined = append(combined, sessions...)
	combined = append(combined, events...)
	ranges, err := r.detector.DuplicateRanges(combined)
	if err != nil {
		return nil, err
	}
	for _, members := range ranges {
		var hasEvent bool
		for _, id := range members {
			if !isSession[id] {
				hasEvent = true
			}
		}
		if !hasEvent {
			continue
		}
		for _, id := range members {
			if isSession[id] {
				conflicted[id] = true
			}
		}
	}
	return conflicted, nil
}

// notify posts the summary to Discord and the webhook. Failures are logged only.
func (r *Runner) notify(ctx context.Context, sum *Summary, logger *slog.Logger) {
	body, err := sum.DaysCSV()
	if err != nil {
		logger.Error("failed to render daily totals", "error", err)
	}
	if r.cfg.DiscordEnabled() {
		if err := r.discord.SendChannelMessage(r.cfg.DiscordChannelID, sum.Text()); err != nil {
			logger.Error("failed to post run summary", "error", err)
		}
		if len(sum.Days) > 0 && body != nil {
			if err := r.discord.SendChannelMessageWithFile(discord.FileMessage{
				ChannelID:   r.cfg.DiscordChannelID,
				Content:     messageAttachmentTitle,
				Filename:    attachmentFilename(sum.RunID),
				ContentType: attachmentContentType,
				FileBody:    body,
			}); err != nil {
				logger.Error("failed to post daily totals", "error", err)
			}
		}
	}
	if err := r.webhook.SendRunSummary(ctx, sum.webhookPayload()); err != nil {
		logger.Error("failed to send webhook run summary", "error", err)
	}
}

// window is the range covered by sessions: the earliest start to the latest end.
func window(sessions []*session.Session) (from, to time.Time, ok bool) {
	for i, s := range sessions {
		if i == 0 || s.Start.Before(from) {
			from = s.Start
		}
		if i == 0 || s.End.After(to) {
			to = s.End
		}
	}
	return from, to, len(sessions) > 0
}

type dayWindow struct {
	from, to time.Time
}

// dayWindows returns the local days, midnight to midnight, the sessions touch.
func dayWindows(sessions []*session.Session, loc *time.Location) []dayWindow {
	seen := make(map[int64]bool)
	var out []dayWindow
	for _, s := range sessions {
		start := s.Start.In(loc)
		day := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, loc)
		for day.Before(s.End) {
			next := day.AddDate(0, 0, 1)
			if !seen[day.Unix()] {
				seen[day.Unix()] = true
				out = append(out, dayWindow{from: day, to: next})
			}
			day = next
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].from.Before(out[j].from) })
	return out
}
