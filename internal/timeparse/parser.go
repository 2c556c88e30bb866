// Package timeparse turns the timestamp strings found in OS event logs, git output
// and calendar payloads into instants normalized to one canonical time zone.
package timeparse

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const minPlausibleYear = 2020

type family string

const (
	familyISO      family = "iso"
	familyUS       family = "us"
	familyDayFirst family = "day-first"
	familyDotted   family = "dotted"
)

type layout struct {
	value       string
	family      family
	specificity float64
	hasOffset   bool
}

// Ranked by preference; earlier entries win ties.
var layouts = []layout{
	{value: "2006-01-02T15:04:05.999999999Z07:00", family: familyISO, specificity: 10, hasOffset: true},
	{value: "2006-01-02T15:04:05Z07:00", family: familyISO, specificity: 9, hasOffset: true},
	{value: "2006-01-02T15:04:05-0700", family: familyISO, specificity: 9, hasOffset: true},
	{value: "2006-01-02 15:04:05Z07:00", family: familyISO, specificity: 9, hasOffset: true},
	{value: "2006-01-02 15:04:05 Z07:00", family: familyISO, specificity: 9, hasOffset: true},
	{value: "2006-01-02 15:04:05 -0700", family: familyISO, specificity: 9, hasOffset: true},
	{value: "2006-01-02 15:04:05-0700", family: familyISO, specificity: 9, hasOffset: true},
	{value: "2006-01-02T15:04:05", family: familyISO, specificity: 8},
	{value: "2006-01-02 15:04:05", family: familyISO, specificity: 8},
	{value: "2006/01/02 15:04:05", family: familyISO, specificity: 8},
	{value: "2006-01-02T15:04", family: familyISO, specificity: 6},
	{value: "2006-01-02 15:04", family: familyISO, specificity: 6},
	{value: "1/2/2006 3:04:05 PM", family: familyUS, specificity: 8},
	{value: "1/2/2006 3:04 PM", family: familyUS, specificity: 6},
	{value: "1-2-2006 3:04:05 PM", family: familyUS, specificity: 7},
	{value: "1/2/2006 15:04:05", family: familyUS, specificity: 7},
	{value: "1/2/2006 15:04", family: familyUS, specificity: 5},
	{value: "2/1/2006 15:04:05", family: familyDayFirst, specificity: 7},
	{value: "2/1/2006 15:04", family: familyDayFirst, specificity: 5},
	{value: "2.1.2006 15:04:05", family: familyDotted, specificity: 8},
	{value: "2.1.2006 15:04", family: familyDotted, specificity: 6},
	{value: "2006-01-02", family: familyISO, specificity: 2},
}

// SupportedLayouts are the output formats for which Parse(Format(t)) == t holds
// at second precision.
var SupportedLayouts = []string{
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02T15:04:05-0700",
	"2006-01-02 15:04:05",
	"1/2/2006 3:04:05 PM",
	"2.1.2006 15:04:05",
}

// ParseError is the recoverable failure for a single timestamp. Callers decide
// whether to skip the record or abort.
type ParseError struct {
	Raw    string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("cannot parse timestamp %q: %s", e.Raw, e.Reason)
}

// Result describes the winning candidate of a parse.
type Result struct {
	Instant    time.Time
	Layout     string
	HasOffset  bool
	Confidence float64
}

type Option func(*Parser)

// WithClock overrides the clock used for the plausible-year window.
func WithClock(now func() time.Time) Option {
	return func(p *Parser) {
		p.now = now
	}
}

type Parser struct {
	loc *time.Location
	now func() time.Time
}

func NewParser(loc *time.Location, opts ...Option) *Parser {
	if loc == nil {
		loc = time.Local
	}
	p := &Parser{loc: loc, now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Parser) Location() *time.Location {
	return p.loc
}

func (p *Parser) Parse(raw, sourceHint string) (time.Time, error) {
	r, err := p.ParseDetailed(raw, sourceHint)
	if err != nil {
		return time.Time{}, err
	}
	return r.Instant, nil
}

func (p *Parser) ParseDetailed(raw, sourceHint string) (Result, error) {
	s := clean(raw)
	if s == "" {
		return Result{}, &ParseError{Raw: raw, Reason: "empty"}
	}

	preferred := hintFamily(sourceHint)
	maxYear := p.now().In(p.loc).Year() + 1

	var (
		best  Result
		found bool
	)
	consider := func(t time.Time, l layout) {
		score := l.specificity
		if l.hasOffset {
			score += 5
		}
		if preferred != "" && l.family == preferred {
			score += 3
		}
		if y := t.Year(); y < minPlausibleYear || y > maxYear {
			score -= 20
		}
		if !found || score > best.Confidence {
			best = Result{Instant: t.In(p.loc), Layout: l.value, HasOffset: l.hasOffset, Confidence: score}
			found = true
		}
	}

	for _, l := range layouts {
		if t, err := time.ParseInLocation(l.value, s, p.loc); err == nil {
			consider(t, l)
		}
	}

	// Trailing numeric offsets after layouts that have no offset slot,
	// e.g. "5/9/2025 8:08:14 PM +0200".
	if rest, zone, ok := splitTrailingOffset(s); ok {
		for _, l := range layouts {
			if l.hasOffset {
				continue
			}
			t, err := time.ParseInLocation(l.value, rest, zone)
			if err != nil {
				continue
			}
			withOffset := l
			withOffset.hasOffset = true
			withOffset.value = l.value + " ±hhmm"
			consider(t, withOffset)
		}
	}

	if !found {
		return Result{}, &ParseError{Raw: raw, Reason: "no supported layout matched"}
	}
	return best, nil
}

// Format renders t in the parser's zone with the given layout.
func (p *Parser) Format(t time.Time, layout string) string {
	return t.In(p.loc).Format(layout)
}

func clean(raw string) string {
	s := strings.TrimSpace(raw)
	for {
		next := strings.TrimSpace(strings.Trim(strings.TrimPrefix(s, "\ufeff"), `"'`))
		if next == s {
			return s
		}
		s = next
	}
}

// splitTrailingOffset cuts a trailing "+HHMM", "-HHMM", "+HH:MM" or "-HH:MM"
// and returns the remainder with a fixed zone for that offset.
func splitTrailingOffset(s string) (string, *time.Location, bool) {
	n := len(s)
	var sign byte
	var digits string
	switch {
	case n >= 6 && (s[n-6] == '+' || s[n-6] == '-') && s[n-3] == ':':
		sign = s[n-6]
		digits = s[n-5:n-3] + s[n-2:]
		s = s[:n-6]
	case n >= 5 && (s[n-5] == '+' || s[n-5] == '-'):
		sign = s[n-5]
		digits = s[n-4:]
		s = s[:n-5]
	default:
		return "", nil, false
	}
	if len(digits) != 4 {
		return "", nil, false
	}
	hh, err := strconv.Atoi(digits[:2])
	if err != nil || hh > 14 {
		return "", nil, false
	}
	mm, err := strconv.Atoi(digits[2:])
	if err != nil || mm > 59 {
		return "", nil, false
	}
	rest := strings.TrimSpace(s)
	// A bare date like 2025-06-24 would otherwise lose its day as an "offset".
	if rest == "" || strings.HasSuffix(rest, "-") || !strings.ContainsAny(rest, ":") {
		return "", nil, false
	}
	offset := hh*3600 + mm*60
	if sign == '-' {
		offset = -offset
	}
	name := fmt.Sprintf("%c%s", sign, digits)
	return rest, time.FixedZone(name, offset), true
}

func hintFamily(hint string) family {
	h := strings.ToLower(strings.TrimSpace(hint))
	switch {
	case h == "":
		return ""
	case h == "iso" || h == "git" || h == "rfc3339":
		return familyISO
	case strings.HasPrefix(h, "en-us") || h == "us":
		return familyUS
	case strings.HasPrefix(h, "de") || strings.HasPrefix(h, "ru") || strings.HasPrefix(h, "pl") ||
		strings.HasPrefix(h, "cs") || strings.HasPrefix(h, "fi"):
		return familyDotted
	case strings.HasPrefix(h, "en-") || strings.HasPrefix(h, "fr") || strings.HasPrefix(h, "es") ||
		strings.HasPrefix(h, "it") || strings.HasPrefix(h, "nl") || strings.HasPrefix(h, "pt"):
		return familyDayFirst
	default:
		return ""
	}
}
