package session

import (
	"fmt"
	"log/slog"
	"sort"
	"time"
)

const DefaultRebootGrace = 5 * time.Minute

// TimestampParser turns a raw event timestamp into an instant in the canonical zone.
type TimestampParser interface {
	Parse(raw, sourceHint string) (time.Time, error)
}

type Options struct {
	// RebootGrace is the longest logoff→logon gap treated as a reboot.
	RebootGrace time.Duration
	SourceHint  string
	Logger      *slog.Logger
}

// ReconstructStats counts every event or session the reconstructor skipped or reshaped.
type ReconstructStats struct {
	ParseFailures       int
	UnknownKinds        int
	OrphanLogoffs       int
	RepeatedLogons      int
	RebootsMerged       int
	DroppedUnterminated int
	MidnightSplits      int
	TruncatedMultiDay   int
	DroppedZeroLength   int
}

type Reconstructor struct {
	parser TimestampParser
	opts   Options
	logger *slog.Logger
}

func NewReconstructor(parser TimestampParser, opts Options) *Reconstructor {
	if opts.RebootGrace <= 0 {
		opts.RebootGrace = DefaultRebootGrace
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconstructor{parser: parser, opts: opts, logger: logger}
}

type timedEvent struct {
	at       time.Time
	kind     EventKind
	sourceID string
}

type span struct {
	start, end      time.Time
	crossesMidnight bool
}

// Reconstruct pairs logon/logoff events into sessions ordered by start.
// Bad records are skipped and counted; only invariant violations are returned as errors.
func (r *Reconstructor) Reconstruct(events []RawEvent) ([]*Session, ReconstructStats, error) {
	var stats ReconstructStats
	timed := r.parseAll(events, &stats)
	sort.SliceStable(timed, func(i, j int) bool { return timed[i].at.Before(timed[j].at) })

	var (
		spans      []span
		open       bool
		start      time.Time
		// lastReboot is the logoff of the most recent reboot merged into
		// the open session; zero when there was none.
		lastReboot time.Time
	)
	for i := 0; i < len(timed); i++ {
		ev := timed[i]
		switch ev.kind {
		case EventLogon:
			if open {
				stats.RepeatedLogons++
				r.logger.Debug("ignoring logon while a session is open", "source_id", ev.sourceID, "open_since", start)
				continue
			}
			open = true
			start = ev.at
			lastReboot = time.Time{}
		case EventLogoff:
			if !open {
				stats.OrphanLogoffs++
				r.logger.Debug("ignoring logoff without open session", "source_id", ev.sourceID)
				continue
			}
			if i+1 < len(timed) && r.isReboot(ev, timed[i+1]) {
				stats.RebootsMerged++
				r.logger.Debug("merging reboot into open session", "logoff", ev.at, "logon", timed[i+1].at)
				lastReboot = ev.at
				i++
				continue
			}
			spans = append(spans, r.split(start, ev.at, &stats)...)
			open = false
		}
	}
	switch {
	case open && !lastReboot.IsZero():
		// The machine came back from a reboot and the log ends there:
		// the logoff before the reboot is the last known end.
		r.logger.Info("closing rebooted session at its last logoff", "start", start, "end", lastReboot)
		spans = append(spans, r.split(start, lastReboot, &stats)...)
	case open:
		stats.DroppedUnterminated++
		r.logger.Info("dropping session without logoff", "start", start)
	}

	sort.SliceStable(spans, func(i, j int) bool { return spans[i].start.Before(spans[j].start) })
	sessions := make([]*Session, 0, len(spans))
	for _, sp := range spans {
		s, err := New(fmt.Sprintf("session-%04d", len(sessions)+1), sp.start, sp.end, sp.crossesMidnight)
		if err != nil {
			return nil, stats, err
		}
		sessions = append(sessions, s)
	}
	return sessions, stats, nil
}

func (r *Reconstructor) parseAll(events []RawEvent, stats *ReconstructStats) []timedEvent {
	timed := make([]timedEvent, 0, len(events))
	for _, ev := range events {
		if ev.Kind != EventLogon && ev.Kind != EventLogoff {
			stats.UnknownKinds++
			r.logger.Warn("skipping event with unknown kind", "source_id", ev.SourceID, "kind", ev.Kind)
			continue
		}
		at, err := r.parser.Parse(ev.Timestamp, r.opts.SourceHint)
		if err != nil {
			stats.ParseFailures++
			r.logger.Warn("skipping event with unparseable timestamp", "source_id", ev.SourceID, "raw", ev.Timestamp, "error", err)
			continue
		}
		timed = append(timed, timedEvent{at: at, kind: ev.Kind, sourceID: ev.SourceID})
	}
	return timed
}

func (r *Reconstructor) isReboot(logoff, next timedEvent) bool {
	if next.kind != EventLogon {
		return false
	}
	gap := next.at.Sub(logoff.at)
	return gap >= 0 && gap <= r.opts.RebootGrace
}

// split cuts [start, end] at the first midnight. A second midnight is not
// followed: whatever lies beyond the next day is dropped and counted.
func (r *Reconstructor) split(start, end time.Time, stats *ReconstructStats) []span {
	if !start.Before(end) {
		stats.DroppedZeroLength++
		return nil
	}
	end = end.In(start.Location())
	if start.Format(DateLayout) == end.Format(DateLayout) {
		return []span{{start: start, end: end}}
	}

	stats.MidnightSplits++
	y, m, d := start.Date()
	loc := start.Location()
	dayEnd := time.Date(y, m, d, 23, 59, 59, 0, loc)
	nextDay := time.Date(y, m, d+1, 0, 0, 0, 0, loc)

	var out []span
	if start.Before(dayEnd) {
		out = append(out, span{start: start, end: dayEnd, crossesMidnight: true})
	} else {
		stats.DroppedZeroLength++
	}

	if end.Format(DateLayout) != nextDay.Format(DateLayout) {
		stats.TruncatedMultiDay++
		r.logger.Warn("truncating session spanning more than one midnight", "start", start, "end", end)
		return out
	}
	if nextDay.Before(end) {
		out = append(out, span{start: nextDay, end: end, crossesMidnight: true})
	}
	return out
}
