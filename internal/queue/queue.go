// Package queue is a postgres-backed task queue with at-least-once delivery.
package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/xxxsen/mrecall/internal/model"
)

// TaskStore is implemented by repo.TaskRepo.
type TaskStore interface {
	Create(ctx context.Context, task *model.Task) error
	Lease(ctx context.Context, limit int, now, leaseUntil time.Time) ([]*model.Task, error)
	Complete(ctx context.Context, id string, now time.Time) error
	Requeue(ctx context.Context, id string, runAt time.Time, lastErr string, now time.Time) error
	Bury(ctx context.Context, id string, lastErr string, now time.Time) error
	DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// RetryLater asks the queue to deliver the task again after Delay.
type RetryLater struct {
	Err   error
	Delay time.Duration
}

func (r *RetryLater) Error() string {
	return fmt.Sprintf("retry in %s: %v", r.Delay, r.Err)
}

func (r *RetryLater) Unwrap() error {
	return r.Err
}

type Queue struct {
	tasks TaskStore
	now   func() time.Time
}

func New(tasks TaskStore) *Queue {
	return &Queue{tasks: tasks, now: func() time.Time { return time.Now().UTC() }}
}

// NewTask builds a queued task for jobID, runnable delay after now. Callers
// that insert it themselves do so in the transaction that creates the job.
func NewTask(jobID string, delay time.Duration, now time.Time) *model.Task {
	return &model.Task{
		ID:        uuid.NewString(),
		JobID:     jobID,
		Status:    model.TaskStatusQueued,
		RunAt:     now.Add(delay),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Enqueue schedules a task for jobID, runnable after delay.
func (q *Queue) Enqueue(ctx context.Context, jobID string, delay time.Duration) (*model.Task, error) {
	task := NewTask(jobID, delay, q.now())
	if err := q.tasks.Create(ctx, task); err != nil {
		return nil, fmt.Errorf("enqueue job %s: %w", jobID, err)
	}
	return task, nil
}

// PurgeBefore drops done and dead tasks older than cutoff.
func (q *Queue) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return q.tasks.DeleteFinishedBefore(ctx, cutoff)
}
