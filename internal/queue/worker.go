package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/mrecall/internal/model"
)

// Handler processes one delivered task. Returning nil completes the task, a
// *RetryLater requeues it, and any other error buries it as dead.
type Handler func(ctx context.Context, task *model.Task) error

type Worker struct {
	q       *Queue
	handler Handler
	pool    *ants.Pool
	lease   time.Duration
	wg      sync.WaitGroup
}

func NewWorker(q *Queue, handler Handler, workers int, lease time.Duration) (*Worker, error) {
	if workers <= 0 {
		workers = 1
	}
	if lease <= 0 {
		lease = 5 * time.Minute
	}
	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, err
	}
	return &Worker{q: q, handler: handler, pool: pool, lease: lease}, nil
}

// Poll leases as many due tasks as there are idle workers and dispatches
// them. It does not wait for the handlers.
func (w *Worker) Poll(ctx context.Context) (int, error) {
	free := w.pool.Free()
	if free <= 0 {
		return 0, nil
	}
	now := w.q.now()
	tasks, err := w.q.tasks.Lease(ctx, free, now, now.Add(w.lease))
	if err != nil {
		return 0, err
	}
	for _, task := range tasks {
		task := task
		w.wg.Add(1)
		if err := w.pool.Submit(func() {
			defer w.wg.Done()
			w.run(task)
		}); err != nil {
			w.wg.Done()
			// the lease expires and the task is picked up again
			logutil.GetLogger(ctx).Error("dispatch task failed", zap.String("task_id", task.ID), zap.Error(err))
		}
	}
	return len(tasks), nil
}

func (w *Worker) run(task *model.Task) {
	ctx := context.Background()
	logger := logutil.GetLogger(ctx).With(
		zap.String("task_id", task.ID),
		zap.String("job_id", task.JobID),
		zap.Int("delivery", task.Deliveries),
	)
	err := w.safeHandle(ctx, task)
	now := w.q.now()
	var retry *RetryLater
	switch {
	case err == nil:
		if err := w.q.tasks.Complete(ctx, task.ID, now); err != nil {
			logger.Error("complete task failed", zap.Error(err))
		}
	case errors.As(err, &retry):
		logger.Info("task requeued", zap.Duration("delay", retry.Delay), zap.Error(retry.Err))
		msg := err.Error()
		if retry.Err != nil {
			msg = retry.Err.Error()
		}
		if err := w.q.tasks.Requeue(ctx, task.ID, now.Add(retry.Delay), msg, now); err != nil {
			logger.Error("requeue task failed", zap.Error(err))
		}
	default:
		logger.Error("task dead", zap.Error(err))
		if err := w.q.tasks.Bury(ctx, task.ID, err.Error(), now); err != nil {
			logger.Error("bury task failed", zap.Error(err))
		}
	}
}

func (w *Worker) safeHandle(ctx context.Context, task *model.Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &panicError{value: r}
		}
	}()
	return w.handler(ctx, task)
}

type panicError struct {
	value interface{}
}

func (p *panicError) Error() string {
	return fmt.Sprintf("task handler panic: %v", p.value)
}

// Wait blocks until every dispatched task has finished.
func (w *Worker) Wait() {
	w.wg.Wait()
}

func (w *Worker) Release() {
	w.wg.Wait()
	w.pool.Release()
}
