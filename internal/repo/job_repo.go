package repo

import (
	"context"
	"database/sql"
	"time"

	"github.com/didi/gendry/builder"

	"github.com/xxxsen/mrecall/internal/model"
	"github.com/xxxsen/mrecall/internal/pkg/dbutil"
	appErr "github.com/xxxsen/mrecall/internal/pkg/errors"
)

const maxErrorMessageLen = 2000

var jobColumns = []string{"id", "artifact_id", "status", "attempts", "error_message", "created_at", "updated_at"}

type JobRepo struct {
	db *sql.DB
}

func NewJobRepo(db *sql.DB) *JobRepo {
	return &JobRepo{db: db}
}

func (r *JobRepo) create(ctx context.Context, q execer, job *model.IngestionJob) error {
	data := map[string]interface{}{
		"id":            job.ID,
		"artifact_id":   job.ArtifactID,
		"status":        string(job.Status),
		"attempts":      job.Attempts,
		"error_message": job.ErrorMessage,
		"created_at":    job.CreatedAt,
		"updated_at":    job.UpdatedAt,
	}
	sqlStr, args, err := builder.BuildInsert("ingestion_jobs", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	_, err = q.ExecContext(ctx, sqlStr, args...)
	return err
}

func scanJob(row *sql.Row) (*model.IngestionJob, error) {
	var job model.IngestionJob
	if err := row.Scan(&job.ID, &job.ArtifactID, &job.Status, &job.Attempts, &job.ErrorMessage, &job.CreatedAt, &job.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErr.ErrNotFound
		}
		return nil, err
	}
	return &job, nil
}

func (r *JobRepo) Get(ctx context.Context, id string) (*model.IngestionJob, error) {
	sqlStr, args, err := builder.BuildSelect("ingestion_jobs", map[string]interface{}{"id": id}, jobColumns)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	return scanJob(r.db.QueryRowContext(ctx, sqlStr, args...))
}

func (r *JobRepo) getForUpdate(ctx context.Context, tx *sql.Tx, id string) (*model.IngestionJob, error) {
	const query = `
		SELECT id, artifact_id, status, attempts, error_message, created_at, updated_at
		FROM ingestion_jobs
		WHERE id = $1
		FOR UPDATE
	`
	return scanJob(tx.QueryRowContext(ctx, query, id))
}

func (r *JobRepo) markRunning(ctx context.Context, tx *sql.Tx, id string, now time.Time) error {
	const query = `
		UPDATE ingestion_jobs
		SET status = $2, attempts = attempts + 1, error_message = '', updated_at = $3
		WHERE id = $1
	`
	_, err := tx.ExecContext(ctx, query, id, string(model.JobStatusRunning), now)
	return err
}

func (r *JobRepo) markSucceeded(ctx context.Context, q execer, id string, now time.Time) error {
	const query = `
		UPDATE ingestion_jobs
		SET status = $2, error_message = '', updated_at = $3
		WHERE id = $1
	`
	_, err := q.ExecContext(ctx, query, id, string(model.JobStatusSucceeded), now)
	return err
}

func (r *JobRepo) MarkFailed(ctx context.Context, id, message string, now time.Time) error {
	return r.markFailed(ctx, r.db, id, message, now)
}

func (r *JobRepo) markFailed(ctx context.Context, q execer, id, message string, now time.Time) error {
	if len(message) > maxErrorMessageLen {
		message = message[:maxErrorMessageLen]
	}
	const query = `
		UPDATE ingestion_jobs
		SET status = $2, error_message = $3, updated_at = $4
		WHERE id = $1
	`
	res, err := q.ExecContext(ctx, query, id, string(model.JobStatusFailed), message, now)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return appErr.ErrNotFound
	}
	return nil
}
