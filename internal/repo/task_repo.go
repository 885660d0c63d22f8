package repo

import (
	"context"
	"database/sql"
	"time"

	"github.com/didi/gendry/builder"
	"github.com/jmoiron/sqlx"

	"github.com/xxxsen/mrecall/internal/model"
	"github.com/xxxsen/mrecall/internal/pkg/dbutil"
	appErr "github.com/xxxsen/mrecall/internal/pkg/errors"
)

// TaskRepo backs the durable task queue.
type TaskRepo struct {
	db *sql.DB
}

func NewTaskRepo(db *sql.DB) *TaskRepo {
	return &TaskRepo{db: db}
}

func (r *TaskRepo) Create(ctx context.Context, task *model.Task) error {
	return r.create(ctx, r.db, task)
}

func (r *TaskRepo) create(ctx context.Context, q execer, task *model.Task) error {
	data := map[string]interface{}{
		"id":         task.ID,
		"job_id":     task.JobID,
		"status":     string(task.Status),
		"run_at":     task.RunAt,
		"deliveries": task.Deliveries,
		"last_error": task.LastError,
		"created_at": task.CreatedAt,
		"updated_at": task.UpdatedAt,
	}
	sqlStr, args, err := builder.BuildInsert("tasks", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	_, err = q.ExecContext(ctx, sqlStr, args...)
	return err
}

// Lease claims up to limit due tasks, including leased tasks whose lease has
// run out, and marks them leased until leaseUntil.
func (r *TaskRepo) Lease(ctx context.Context, limit int, now, leaseUntil time.Time) ([]*model.Task, error) {
	const query = `
		UPDATE tasks
		SET status = $1, lease_until = $2, deliveries = deliveries + 1, updated_at = $3
		WHERE id IN (
			SELECT id FROM tasks
			WHERE (status = $4 AND run_at <= $3) OR (status = $1 AND lease_until < $3)
			ORDER BY run_at
			LIMIT $5
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, job_id, status, run_at, lease_until, deliveries, last_error, created_at, updated_at
	`
	rows, err := r.db.QueryContext(ctx, query,
		string(model.TaskStatusLeased), leaseUntil, now, string(model.TaskStatusQueued), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var tasks []*model.Task
	for rows.Next() {
		var t model.Task
		var lease sql.NullTime
		if err := rows.Scan(&t.ID, &t.JobID, &t.Status, &t.RunAt, &lease, &t.Deliveries, &t.LastError, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		if lease.Valid {
			l := lease.Time
			t.LeaseUntil = &l
		}
		tasks = append(tasks, &t)
	}
	return tasks, rows.Err()
}

func (r *TaskRepo) update(ctx context.Context, id string, set map[string]interface{}) error {
	sqlStr, args, err := builder.BuildUpdate("tasks", map[string]interface{}{"id": id}, set)
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	res, err := r.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return appErr.ErrNotFound
	}
	return nil
}

func (r *TaskRepo) Complete(ctx context.Context, id string, now time.Time) error {
	return r.update(ctx, id, map[string]interface{}{
		"status":      string(model.TaskStatusDone),
		"lease_until": nil,
		"updated_at":  now,
	})
}

// Requeue puts the task back in the queue to run at runAt.
func (r *TaskRepo) Requeue(ctx context.Context, id string, runAt time.Time, lastErr string, now time.Time) error {
	return r.update(ctx, id, map[string]interface{}{
		"status":      string(model.TaskStatusQueued),
		"run_at":      runAt,
		"lease_until": nil,
		"last_error":  lastErr,
		"updated_at":  now,
	})
}

func (r *TaskRepo) Bury(ctx context.Context, id string, lastErr string, now time.Time) error {
	return r.update(ctx, id, map[string]interface{}{
		"status":      string(model.TaskStatusDead),
		"lease_until": nil,
		"last_error":  lastErr,
		"updated_at":  now,
	})
}

// DeleteFinishedBefore removes done and dead tasks last touched before cutoff.
func (r *TaskRepo) DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query, args, err := sqlx.In(`DELETE FROM tasks WHERE status IN (?) AND updated_at < ?`,
		[]string{string(model.TaskStatusDone), string(model.TaskStatusDead)}, cutoff)
	if err != nil {
		return 0, err
	}
	query = sqlx.Rebind(sqlx.DOLLAR, query)
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
