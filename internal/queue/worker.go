package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/riverqueue/river"
	"go.uber.org/zap"

	apperrors "givedesk.io/backoffice/internal/pkg/errors"
	"givedesk.io/backoffice/internal/pkg/logger"
)

// Job is the handler's view of one dequeued job.
type Job struct {
	ID          int64
	Queue       string
	Kind        string
	Payload     json.RawMessage
	Attempt     int
	MaxAttempts int
}

// Decode unmarshals the payload. A payload that cannot be decoded will never
// decode on retry, so the error is terminal.
func (j *Job) Decode(v interface{}) error {
	if err := json.Unmarshal(j.Payload, v); err != nil {
		return apperrors.BusinessLogicError(apperrors.CodeJobPayloadInvalid, "decode "+j.Kind+" payload: "+err.Error())
	}
	return nil
}

// Handler processes one job. Returning an error whose kind is retryable
// hands the job back to the broker's retry policy; any other error ends it.
type Handler func(ctx context.Context, job *Job) error

type binding struct {
	queue   string
	handler Handler
}

// queueWorker adapts a Handler to River for one args type.
type queueWorker[T jobArgs] struct {
	river.WorkerDefaults[T]
	binding *binding
}

func (w *queueWorker[T]) Work(ctx context.Context, job *river.Job[T]) error {
	env := job.Args.envelope()
	log := logger.ForJob(job.Queue, env.JobKind, job.ID)

	start := time.Now()
	err := w.binding.handler(ctx, &Job{
		ID:          job.ID,
		Queue:       job.Queue,
		Kind:        env.JobKind,
		Payload:     env.Payload,
		Attempt:     job.Attempt,
		MaxAttempts: job.MaxAttempts,
	})
	elapsed := time.Since(start)
	jobDuration.WithLabelValues(job.Queue, env.JobKind).Observe(elapsed.Seconds())

	if err == nil {
		log.Info("Job completed", zap.Int("attempt", job.Attempt), zap.Duration("duration", elapsed))
		return nil
	}

	out, terminal := classify(err)
	switch {
	case terminal:
		log.Error("Job failed permanently",
			zap.Int("attempt", job.Attempt),
			zap.String("error_kind", string(apperrors.KindOf(err))),
			zap.Error(err),
		)
	case job.Attempt >= job.MaxAttempts:
		log.Error("Job failed, retries exhausted",
			zap.Int("attempt", job.Attempt),
			zap.Int("max_attempts", job.MaxAttempts),
			zap.Error(err),
		)
	default:
		log.Warn("Job failed, will retry",
			zap.Int("attempt", job.Attempt),
			zap.Int("max_attempts", job.MaxAttempts),
			zap.Duration("backoff", env.Backoff.Next(job.Attempt)),
			zap.Error(err),
		)
	}
	return out
}

// NextRetry applies the backoff carried by the job. The zero time defers to
// the client retry policy.
func (w *queueWorker[T]) NextRetry(job *river.Job[T]) time.Time {
	b := job.Args.envelope().Backoff
	if b.IsZero() {
		return time.Time{}
	}
	return time.Now().Add(b.Next(job.Attempt))
}

// classify wraps terminal errors so the broker cancels the job instead of
// retrying it.
func classify(err error) (error, bool) {
	if apperrors.IsRetryable(err) {
		return err, false
	}
	return river.JobCancel(err), true
}
