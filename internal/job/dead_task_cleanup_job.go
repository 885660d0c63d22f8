package job

import (
	"context"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

type TaskPurger interface {
	PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// DeadTaskCleanupJob drops finished and dead task rows past the retention
// window. Job rows keep the failure history.
type DeadTaskCleanupJob struct {
	purger    TaskPurger
	retention time.Duration
	now       func() time.Time
}

func NewDeadTaskCleanupJob(purger TaskPurger, retention time.Duration) *DeadTaskCleanupJob {
	return &DeadTaskCleanupJob{purger: purger, retention: retention, now: time.Now}
}

func (j *DeadTaskCleanupJob) Name() string {
	return "dead_task_cleanup"
}

func (j *DeadTaskCleanupJob) Run(ctx context.Context) error {
	retention := j.retention
	if retention <= 0 {
		retention = 14 * 24 * time.Hour
	}
	n, err := j.purger.PurgeBefore(ctx, j.now().Add(-retention))
	if err != nil {
		return err
	}
	if n > 0 {
		logutil.GetLogger(ctx).Info("finished tasks purged", zap.Int64("count", n))
	}
	return nil
}
