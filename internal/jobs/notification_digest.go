// Package jobs defines the periodic report jobs run on the report queue.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"givedesk.io/backoffice/internal/config"
	"givedesk.io/backoffice/internal/domain"
	apperrors "givedesk.io/backoffice/internal/pkg/errors"
	"givedesk.io/backoffice/internal/pkg/logger"
	"givedesk.io/backoffice/internal/queue"
)

const (
	// JobKindNotificationDigest summarises delivery status over a window.
	JobKindNotificationDigest = "notification_digest"

	// DefaultDigestWindow is the look-back of a digest run.
	DefaultDigestWindow = 24 * time.Hour
)

var notificationsByStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Name: "backoffice_notifications_window_by_status",
	Help: "Notifications created within the last digest window, by status.",
}, []string{"status"})

// DigestArgs is the digest job payload.
type DigestArgs struct {
	Window time.Duration `json:"window"`
}

// StatusCounter counts records by status since a point in time.
type StatusCounter interface {
	StatusCounts(ctx context.Context, since time.Time) (map[domain.Status]int, error)
}

// DigestWorker logs and exports notification status counts. Notifications
// are never deleted; the digest only reads.
type DigestWorker struct {
	counts StatusCounter
	window time.Duration
	now    func() time.Time
}

// NewDigestWorker creates a digest worker. Non-positive window falls back to
// one day.
func NewDigestWorker(counts StatusCounter, window time.Duration) *DigestWorker {
	if window <= 0 {
		window = DefaultDigestWindow
	}
	return &DigestWorker{counts: counts, window: window, now: time.Now}
}

// HandleJob is the report queue handler.
func (w *DigestWorker) HandleJob(ctx context.Context, job *queue.Job) error {
	if job.Kind != JobKindNotificationDigest {
		return apperrors.BusinessLogicError(apperrors.CodeJobPayloadInvalid, "unknown report job kind: "+job.Kind)
	}
	args := DigestArgs{Window: w.window}
	if len(job.Payload) > 0 && string(job.Payload) != "null" {
		if err := job.Decode(&args); err != nil {
			return err
		}
	}
	if args.Window <= 0 {
		args.Window = w.window
	}
	_, err := w.Run(ctx, args.Window)
	return err
}

// Run computes the digest over window and returns the counts.
func (w *DigestWorker) Run(ctx context.Context, window time.Duration) (map[domain.Status]int, error) {
	since := w.now().UTC().Add(-window)
	counts, err := w.counts.StatusCounts(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("notification digest since %s: %w", since.Format(time.RFC3339), err)
	}

	for _, status := range []domain.Status{domain.StatusPending, domain.StatusSent, domain.StatusFailed} {
		notificationsByStatus.WithLabelValues(string(status)).Set(float64(counts[status]))
	}

	logger.Info("notification digest completed",
		zap.String("since", since.Format(time.RFC3339)),
		zap.Duration("window", window),
		zap.Int("pending", counts[domain.StatusPending]),
		zap.Int("sent", counts[domain.StatusSent]),
		zap.Int("failed", counts[domain.StatusFailed]),
	)
	return counts, nil
}

// Register binds the worker to the report queue and schedules the digest.
func Register(reg *queue.Registry, w *DigestWorker, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultDigestWindow
	}
	if err := reg.RegisterWorker(config.QueueReport, w.HandleJob); err != nil {
		return err
	}
	return reg.AddPeriodic(config.QueueReport, JobKindNotificationDigest, interval, func() interface{} {
		return DigestArgs{Window: w.window}
	}, true)
}
