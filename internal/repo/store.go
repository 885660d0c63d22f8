package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/xxxsen/mrecall/internal/model"
	"github.com/xxxsen/mrecall/internal/pkg/dbutil"
	appErr "github.com/xxxsen/mrecall/internal/pkg/errors"
)

// AttemptLimitMessage is recorded on a job whose last attempt never finished.
const AttemptLimitMessage = "attempt limit reached"

// Store groups the repositories the ingestion pipeline and retrieval use and
// owns the multi-table transactions.
type Store struct {
	db        *sql.DB
	artifacts *ArtifactRepo
	jobs      *JobRepo
	documents *DocumentRepo
	tasks     *TaskRepo
	now       func() time.Time
}

func NewStore(db *sql.DB) *Store {
	return &Store{
		db:        db,
		artifacts: NewArtifactRepo(db),
		jobs:      NewJobRepo(db),
		documents: NewDocumentRepo(db),
		tasks:     NewTaskRepo(db),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// CreateArtifactWithJob inserts the artifact, its PENDING job and the queue
// task that will run it in one transaction.
func (s *Store) CreateArtifactWithJob(ctx context.Context, a *model.Artifact, job *model.IngestionJob, task *model.Task) error {
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := s.artifacts.create(ctx, tx, a); err != nil {
			return fmt.Errorf("insert artifact: %w", err)
		}
		if err := s.jobs.create(ctx, tx, job); err != nil {
			return fmt.Errorf("insert job: %w", err)
		}
		if err := s.tasks.create(ctx, tx, task); err != nil {
			return fmt.Errorf("insert task: %w", err)
		}
		return nil
	})
	return dbutil.Classify("create artifact", err)
}

func (s *Store) GetJob(ctx context.Context, id string) (*model.IngestionJob, error) {
	job, err := s.jobs.Get(ctx, id)
	if err != nil && !errors.Is(err, appErr.ErrNotFound) {
		return nil, dbutil.Classify("load job", err)
	}
	return job, err
}

func (s *Store) GetArtifact(ctx context.Context, id string) (*model.Artifact, error) {
	a, err := s.artifacts.Get(ctx, id)
	if err != nil && !errors.Is(err, appErr.ErrNotFound) {
		return nil, dbutil.Classify("load artifact", err)
	}
	return a, err
}

// BeginAttempt moves the job to RUNNING, bumps attempts and clears the last
// error under a row lock. It returns ErrNotFound for unknown jobs, and the job
// together with ErrAlreadyDone when it already succeeded or with
// ErrAttemptsExhausted when maxAttempts attempts were already started. A job
// left RUNNING by its last attempt is marked FAILED on the way out.
func (s *Store) BeginAttempt(ctx context.Context, jobID string, maxAttempts int) (*model.IngestionJob, error) {
	var out *model.IngestionJob
	exhausted := false
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		job, err := s.jobs.getForUpdate(ctx, tx, jobID)
		if err != nil {
			return err
		}
		if job.Status == model.JobStatusSucceeded {
			out = job
			return appErr.ErrAlreadyDone
		}
		now := s.now()
		if maxAttempts > 0 && job.Attempts >= maxAttempts {
			if job.Status != model.JobStatusFailed {
				if err := s.jobs.markFailed(ctx, tx, jobID, AttemptLimitMessage, now); err != nil {
					return err
				}
				job.Status = model.JobStatusFailed
				job.ErrorMessage = AttemptLimitMessage
				job.UpdatedAt = now
			}
			out = job
			exhausted = true
			return nil
		}
		if err := s.jobs.markRunning(ctx, tx, jobID, now); err != nil {
			return err
		}
		job.Status = model.JobStatusRunning
		job.Attempts++
		job.ErrorMessage = ""
		job.UpdatedAt = now
		out = job
		return nil
	})
	switch {
	case err == nil && exhausted:
		return out, appErr.ErrAttemptsExhausted
	case err == nil:
		return out, nil
	case errors.Is(err, appErr.ErrNotFound):
		return nil, err
	case errors.Is(err, appErr.ErrAlreadyDone):
		return out, err
	}
	return nil, dbutil.Classify("begin attempt", err)
}

// CompleteJob persists the document, each chunk followed by its embedding in
// index order, and marks the job SUCCEEDED, all in one transaction. Earlier
// documents of the same artifact are replaced.
func (s *Store) CompleteJob(ctx context.Context, jobID string, doc *model.Document, chunks []*model.Chunk, embeddings []*model.Embedding) error {
	if len(chunks) != len(embeddings) {
		return appErr.Persistence(fmt.Sprintf("%d chunks but %d embeddings", len(chunks), len(embeddings)), false, nil)
	}
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := s.documents.deleteByArtifact(ctx, tx, doc.ArtifactID); err != nil {
			return fmt.Errorf("delete previous documents: %w", err)
		}
		if err := s.documents.create(ctx, tx, doc); err != nil {
			return fmt.Errorf("insert document: %w", err)
		}
		for i, c := range chunks {
			if err := s.documents.createChunk(ctx, tx, c); err != nil {
				return fmt.Errorf("insert chunk %d: %w", c.ChunkIndex, err)
			}
			if err := s.documents.createEmbedding(ctx, tx, embeddings[i]); err != nil {
				return fmt.Errorf("insert embedding %d: %w", c.ChunkIndex, err)
			}
		}
		return s.jobs.markSucceeded(ctx, tx, jobID, s.now())
	})
	return dbutil.Classify("persist document", err)
}

func (s *Store) MarkFailed(ctx context.Context, jobID, message string) error {
	return dbutil.Classify("mark job failed", s.jobs.MarkFailed(ctx, jobID, message, s.now()))
}

func (s *Store) SearchNearest(ctx context.Context, userID string, vec []float32, topK int) ([]*model.Candidate, error) {
	out, err := s.documents.SearchNearest(ctx, userID, vec, topK)
	if err != nil {
		return nil, dbutil.Classify("vector search", err)
	}
	return out, nil
}
