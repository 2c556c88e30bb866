package repository

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

var migrationStatements = []string{
	`DO $$ BEGIN CREATE TYPE run_status AS ENUM ('completed', 'dry_run'); EXCEPTION WHEN duplicate_object THEN NULL; END $$`,
	`CREATE TABLE IF NOT EXISTS runs (
		id UUID PRIMARY KEY,
		started_at TIMESTAMPTZ NOT NULL,
		finished_at TIMESTAMPTZ NOT NULL,
		timezone TEXT NOT NULL,
		status run_status NOT NULL,
		event_log_path TEXT NOT NULL,
		session_count INTEGER NOT NULL,
		total_work_seconds DOUBLE PRECISION NOT NULL,
		skipped_records INTEGER NOT NULL DEFAULT 0,
		duplicates_removed INTEGER NOT NULL DEFAULT 0,
		sessions_clipped INTEGER NOT NULL DEFAULT 0,
		dropped_by_cap INTEGER NOT NULL DEFAULT 0,
		overlaps INTEGER NOT NULL DEFAULT 0,
		calendar_conflicts INTEGER NOT NULL DEFAULT 0,
		uploaded INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS work_sessions (
		run_id UUID NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		session_id TEXT NOT NULL,
		work_date DATE NOT NULL,
		started_at TIMESTAMPTZ NOT NULL,
		ended_at TIMESTAMPTZ NOT NULL,
		work_seconds DOUBLE PRECISION NOT NULL,
		crosses_midnight BOOLEAN NOT NULL DEFAULT FALSE,
		calendar_event_id TEXT,
		PRIMARY KEY (run_id, session_id),
		CHECK (started_at < ended_at),
		CHECK (work_seconds >= 0)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_work_sessions_date ON work_sessions (work_date)`,
	`CREATE TABLE IF NOT EXISTS session_breaks (
		run_id UUID NOT NULL,
		session_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		started_at TIMESTAMPTZ NOT NULL,
		ended_at TIMESTAMPTZ NOT NULL,
		FOREIGN KEY (run_id, session_id) REFERENCES work_sessions(run_id, session_id) ON DELETE CASCADE
	)`,
}

func RunMigration(ctx context.Context, pool *pgxpool.Pool) error {
	for _, s := range migrationStatements {
		stmt := strings.TrimSpace(s)
		if stmt == "" {
			continue
		}
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
