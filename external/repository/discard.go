package repository

import (
	"context"
	"log/slog"

	"github.com/foxseedlab/rdhours/internal/repository"
)

// DiscardRepository is used when no database is configured. Runs are only logged.
type DiscardRepository struct{}

func NewDiscardRepository() repository.Repository {
	return DiscardRepository{}
}

func (DiscardRepository) SaveRun(_ context.Context, run repository.RunRecord, sessions []repository.SessionRecord) error {
	slog.Info("database not configured; run not persisted", "run_id", run.ID, "sessions", len(sessions))
	return nil
}
