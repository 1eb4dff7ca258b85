package notification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"givedesk.io/backoffice/internal/config"
	"givedesk.io/backoffice/internal/domain"
	apperrors "givedesk.io/backoffice/internal/pkg/errors"
	"givedesk.io/backoffice/internal/pkg/logger"
	"givedesk.io/backoffice/internal/queue"
)

// JobKindSendNotification is the notification queue job kind.
const JobKindSendNotification = "send_notification"

// Dispatcher fans one notification record out to its eligible channels.
//
// In abort-on-first-failure mode the first channel error ends the attempt and
// the whole job is retried, so channels that already succeeded may deliver
// twice. Best-effort mode attempts every channel and reports all failures.
type Dispatcher struct {
	prefs   *PreferenceResolver
	senders map[domain.Channel]Sender
	mode    string
	timeout time.Duration
}

// NewDispatcher creates a Dispatcher. Channels without a Sender are skipped.
func NewDispatcher(prefs *PreferenceResolver, cfg config.DispatchConfig, senders ...Sender) *Dispatcher {
	byChannel := make(map[domain.Channel]Sender, len(senders))
	for _, s := range senders {
		byChannel[s.Channel()] = s
	}
	mode := cfg.Mode
	if mode == "" {
		mode = config.DispatchAbortOnFirstFailure
	}
	return &Dispatcher{
		prefs:   prefs,
		senders: byChannel,
		mode:    mode,
		timeout: cfg.ChannelTimeout,
	}
}

// HandleJob is the notification queue handler.
func (d *Dispatcher) HandleJob(ctx context.Context, job *queue.Job) error {
	if job.Kind != JobKindSendNotification {
		return apperrors.BusinessLogicError(apperrors.CodeJobPayloadInvalid, "unknown notification job kind: "+job.Kind)
	}
	var rec domain.NotificationRecord
	if err := job.Decode(&rec); err != nil {
		return err
	}
	if !rec.RecipientRole.Valid() {
		return apperrors.ErrInvalidRole(string(rec.RecipientRole))
	}
	return d.Dispatch(ctx, &rec)
}

// Dispatch delivers rec on every channel the recipient's preferences allow,
// in domain.DispatchOrder.
func (d *Dispatcher) Dispatch(ctx context.Context, rec *domain.NotificationRecord) error {
	prefs, err := d.prefs.Resolve(ctx, rec.RecipientID, rec.RecipientRole)
	if err != nil {
		return fmt.Errorf("resolve preferences for notification %s: %w", rec.ID, err)
	}

	log := logger.ForRecipient(string(rec.RecipientRole), rec.RecipientID).
		With(zap.String("notification_id", rec.ID.String()))

	var failures []error
	for _, ch := range domain.DispatchOrder {
		if !prefs.Allows(ch, rec.Category) {
			channelDeliveries.WithLabelValues(string(ch), "skipped").Inc()
			continue
		}
		sender, ok := d.senders[ch]
		if !ok {
			log.Warn("No sender configured for channel", zap.String("channel", string(ch)))
			continue
		}

		if err := d.send(ctx, sender, rec); err != nil {
			channelDeliveries.WithLabelValues(string(ch), "failed").Inc()
			err = fmt.Errorf("%s channel: %w", ch, err)
			if d.mode != config.DispatchBestEffort {
				return err
			}
			log.Warn("Channel delivery failed, continuing", zap.String("channel", string(ch)), zap.Error(err))
			failures = append(failures, err)
			continue
		}
		channelDeliveries.WithLabelValues(string(ch), "sent").Inc()
	}

	return joinFailures(failures)
}

func (d *Dispatcher) send(ctx context.Context, s Sender, rec *domain.NotificationRecord) error {
	if d.timeout <= 0 {
		return s.Send(ctx, rec)
	}
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	return s.Send(ctx, rec)
}

// joinFailures combines channel failures. When any of them may succeed on
// retry the result is an external-service error so the whole job retries;
// untyped errors such as a channel timeout count as retryable.
func joinFailures(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	joined := errors.Join(errs...)
	for _, err := range errs {
		if apperrors.IsRetryable(err) {
			return apperrors.ExternalServiceError(joined, "dispatch")
		}
	}
	return joined
}
