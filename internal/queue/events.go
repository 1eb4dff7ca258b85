package queue

import (
	"context"

	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
	"go.uber.org/zap"

	"givedesk.io/backoffice/internal/pkg/logger"
)

func listenEvents(ctx context.Context, events <-chan *river.Event, stop <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			observeEvent(ev)
		}
	}
}

func observeEvent(ev *river.Event) {
	if ev == nil || ev.Job == nil {
		return
	}
	job := ev.Job
	jobEvents.WithLabelValues(job.Queue, string(ev.Kind), string(job.State)).Inc()

	if job.State == rivertype.JobStateDiscarded {
		logger.Warn("Job discarded",
			zap.String("queue", job.Queue),
			zap.Int64("job_id", job.ID),
			zap.Int("attempts", job.Attempt),
		)
		return
	}
	logger.Debug("Job event",
		zap.String("queue", job.Queue),
		zap.Int64("job_id", job.ID),
		zap.String("event", string(ev.Kind)),
		zap.String("state", string(job.State)),
	)
}
