// Package eventlog describes where raw logon/logoff events come from.
package eventlog

import (
	"context"

	"github.com/foxseedlab/rdhours/internal/session"
)

type LoadStats struct {
	Rows     int
	Unmapped int
}

type Source interface {
	// Load returns every logon/logoff event in source order. Rows that map to
	// neither kind are counted in LoadStats.Unmapped and left out.
	Load(ctx context.Context) ([]session.RawEvent, LoadStats, error)
	// Locale hints the date order used by the source's timestamps.
	Locale() string
}
