package eventlog

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/foxseedlab/rdhours/internal/eventlog"
	"github.com/foxseedlab/rdhours/internal/session"
)

var (
	timestampColumns = []string{"timecreated", "timestamp", "time", "date and time", "datetime"}
	codeColumns      = []string{"id", "eventid", "event id", "instanceid"}
	messageColumns   = []string{"message", "description"}
)

var eventCodes = map[string]session.EventKind{
	"7001": session.EventLogon,
	"6005": session.EventLogon,
	"7002": session.EventLogoff,
	"1074": session.EventLogoff,
	"6006": session.EventLogoff,
}

// Classify maps an event code, or failing that the message text, to a kind.
func Classify(code, message string) (session.EventKind, bool) {
	if kind, ok := eventCodes[strings.TrimSpace(code)]; ok {
		return kind, true
	}
	m := strings.ToLower(message)
	switch {
	case strings.Contains(m, "logoff"), strings.Contains(m, "log off"), strings.Contains(m, "shutdown"), strings.Contains(m, "shut down"):
		return session.EventLogoff, true
	case strings.Contains(m, "logon"), strings.Contains(m, "log on"), strings.Contains(m, "startup"), strings.Contains(m, "started up"):
		return session.EventLogon, true
	}
	return "", false
}

// CSVSource reads an exported OS event log.
type CSVSource struct {
	path   string
	locale string
	open   func(name string) (io.ReadCloser, error)
}

func NewCSVSource(path, locale string) *CSVSource {
	return &CSVSource{
		path:   path,
		locale: locale,
		open:   func(name string) (io.ReadCloser, error) { return os.Open(name) },
	}
}

func (s *CSVSource) Locale() string {
	return s.locale
}

func (s *CSVSource) Load(ctx context.Context) ([]session.RawEvent, eventlog.LoadStats, error) {
	f, err := s.open(s.path)
	if err != nil {
		return nil, eventlog.LoadStats{}, fmt.Errorf("failed to open event log: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()
	return parseCSV(ctx, f, filepath.Base(s.path))
}

type columns struct {
	timestamp, code, message int
}

func parseCSV(ctx context.Context, r io.Reader, name string) ([]session.RawEvent, eventlog.LoadStats, error) {
	var stats eventlog.LoadStats
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, stats, nil
		}
		return nil, stats, fmt.Errorf("failed to read event log header: %w", err)
	}
	cols, err := locateColumns(header)
	if err != nil {
		return nil, stats, err
	}

	var events []session.RawEvent
	line := 1
	for {
		if err := ctx.Err(); err != nil {
			return nil, stats, err
		}
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, stats, fmt.Errorf("failed to read event log line %d: %w", line, err)
		}
		stats.Rows++
		kind, ok := Classify(field(record, cols.code), field(record, cols.message))
		if !ok {
			stats.Unmapped++
			continue
		}
		events = append(events, session.RawEvent{
			Timestamp: field(record, cols.timestamp),
			Kind:      kind,
			SourceID:  fmt.Sprintf("%s:%d", name, line),
		})
	}
	return events, stats, nil
}

func locateColumns(header []string) (columns, error) {
	cols := columns{timestamp: -1, code: -1, message: -1}
	for i, h := range header {
		name := strings.ToLower(strings.Trim(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")), `"`))
		switch {
		case cols.timestamp < 0 && contains(timestampColumns, name):
			cols.timestamp = i
		case cols.code < 0 && contains(codeColumns, name):
			cols.code = i
		case cols.message < 0 && contains(messageColumns, name):
			cols.message = i
		}
	}
	if cols.timestamp < 0 {
		return cols, fmt.Errorf("event log has no timestamp column (header %v)", header)
	}
	if cols.code < 0 && cols.message < 0 {
		return cols, fmt.Errorf("event log has neither an event id nor a message column (header %v)", header)
	}
	return cols, nil
}

func field(record []string, i int) string {
	if i < 0 || i >= len(record) {
		return ""
	}
	return record[i]
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
