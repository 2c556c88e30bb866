package repository

import "context"

type Repository interface {
	// SaveRun stores the run and its final sessions atomically.
	SaveRun(ctx context.Context, run RunRecord, sessions []SessionRecord) error
}
