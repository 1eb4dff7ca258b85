package queue

import (
	"context"

	apperrors "givedesk.io/backoffice/internal/pkg/errors"
)

// Queue is the administrative handle of one named queue.
type Queue struct {
	name        string
	concurrency int
	defaults    JobOptions
	client      jobClient
}

// Name returns the queue name.
func (q *Queue) Name() string { return q.name }

// Concurrency is the worker ceiling, or 0 when no consumer runs in this process.
func (q *Queue) Concurrency() int { return q.concurrency }

// HasConsumer reports whether this process works the queue.
func (q *Queue) HasConsumer() bool { return q.concurrency > 0 }

// Defaults returns the queue-level job options.
func (q *Queue) Defaults() JobOptions { return q.defaults }

// Pause stops fetching new jobs from this queue on every client.
func (q *Queue) Pause(ctx context.Context) error {
	if err := q.client.QueuePause(ctx, q.name, nil); err != nil {
		return apperrors.ExternalServiceError(err, "pause queue "+q.name)
	}
	return nil
}

// Resume undoes Pause.
func (q *Queue) Resume(ctx context.Context) error {
	if err := q.client.QueueResume(ctx, q.name, nil); err != nil {
		return apperrors.ExternalServiceError(err, "resume queue "+q.name)
	}
	return nil
}

// Info is the read-only view of a queue exposed to operators.
type Info struct {
	Name        string `json:"name"`
	Concurrency int    `json:"concurrency"`
	Consumer    bool   `json:"consumer"`
	MaxAttempts int    `json:"max_attempts"`
}

// Info snapshots the queue's configuration.
func (q *Queue) Info() Info {
	return Info{
		Name:        q.name,
		Concurrency: q.concurrency,
		Consumer:    q.HasConsumer(),
		MaxAttempts: q.defaults.MaxAttempts,
	}
}
