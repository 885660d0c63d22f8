package job

import (
	"context"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

type Poller interface {
	Poll(ctx context.Context) (int, error)
}

// QueuePollJob hands due tasks to the ingestion worker pool.
type QueuePollJob struct {
	poller Poller
}

func NewQueuePollJob(poller Poller) *QueuePollJob {
	return &QueuePollJob{poller: poller}
}

func (j *QueuePollJob) Name() string {
	return "queue_poll"
}

func (j *QueuePollJob) Run(ctx context.Context) error {
	n, err := j.poller.Poll(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		logutil.GetLogger(ctx).Debug("tasks dispatched", zap.Int("count", n))
	}
	return nil
}
