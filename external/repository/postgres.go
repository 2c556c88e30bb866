package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/foxseedlab/rdhours/internal/repository"
)

type PostgresRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresRepository(pool *pgxpool.Pool) repository.Repository {
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) SaveRun(ctx context.Context, run repository.RunRecord, sessions []repository.SessionRecord) (err error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				err = errors.Join(err, rbErr)
			}
		}
	}()

	_, err = tx.Exec(ctx,
		`INSERT INTO runs (id, started_at, finished_at, timezone, status, event_log_path, session_count,
			total_work_seconds, skipped_records, duplicates_removed, sessions_clipped, dropped_by_cap,
			overlaps, calendar_conflicts, uploaded)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		run.ID, run.StartedAt, run.FinishedAt, run.Timezone, string(run.Status), run.EventLogPath, run.SessionCount,
		run.TotalWorkSeconds, run.SkippedRecords, run.DuplicatesRemoved, run.SessionsClipped, run.DroppedByCap,
		run.Overlaps, run.CalendarConflicts, run.Uploaded)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	for _, s := range sessions {
		var eventID *string
		if s.CalendarEventID != "" {
			eventID = &s.CalendarEventID
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO work_sessions (run_id, session_id, work_date, started_at, ended_at, work_seconds, crosses_midnight, calendar_event_id)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			run.ID, s.SessionID, s.Date, s.StartedAt, s.EndedAt, s.WorkSeconds, s.CrossesMidnight, eventID)
		if err != nil {
			return fmt.Errorf("failed to insert session %s: %w", s.SessionID, err)
		}
		for _, b := range s.Breaks {
			_, err = tx.Exec(ctx,
				`INSERT INTO session_breaks (run_id, session_id, kind, started_at, ended_at) VALUES ($1, $2, $3, $4, $5)`,
				run.ID, s.SessionID, b.Kind, b.StartedAt, b.EndedAt)
			if err != nil {
				return fmt.Errorf("failed to insert break for session %s: %w", s.SessionID, err)
			}
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}
	return nil
}
