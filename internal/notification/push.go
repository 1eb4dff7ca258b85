package notification

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"givedesk.io/backoffice/internal/domain"
	apperrors "givedesk.io/backoffice/internal/pkg/errors"
	"givedesk.io/backoffice/internal/pkg/logger"
	"givedesk.io/backoffice/internal/push"
)

// PushSender delivers to every registered device of the recipient and drops
// tokens the gateway reports as failed.
type PushSender struct {
	recipients RecipientResolver
	tokens     TokenPruner
	gateway    push.Gateway
	batchSize  int
}

// NewPushSender creates a PushSender. batchSize is clamped to the gateway limit.
func NewPushSender(recipients RecipientResolver, tokens TokenPruner, gateway push.Gateway, batchSize int) *PushSender {
	if batchSize <= 0 || batchSize > push.MaxBatchSize {
		batchSize = push.MaxBatchSize
	}
	return &PushSender{recipients: recipients, tokens: tokens, gateway: gateway, batchSize: batchSize}
}

func (s *PushSender) Channel() domain.Channel { return domain.ChannelPush }

// Send pushes rec to the recipient's devices. No registered device is not a
// failure. A rejected batch fails the send with a PushNotificationError after
// tokens already known to be bad are pruned.
func (s *PushSender) Send(ctx context.Context, rec *domain.NotificationRecord) error {
	recipient, err := s.recipients.Resolve(ctx, rec.RecipientID, rec.RecipientRole)
	if err != nil {
		return err
	}
	if len(recipient.PushTokens) == 0 {
		return nil
	}

	data := pushData(rec)
	var invalid []string
	var sendErr error

	for start := 0; start < len(recipient.PushTokens); start += s.batchSize {
		end := min(start+s.batchSize, len(recipient.PushTokens))
		batch := recipient.PushTokens[start:end]

		msgs := make([]push.Message, len(batch))
		for i, token := range batch {
			msgs[i] = push.Message{Token: token, Title: rec.Title, Body: rec.Body, Data: data}
		}

		tickets, err := s.gateway.SendBatch(ctx, msgs)
		if err != nil {
			sendErr = apperrors.NewPushNotificationError(batch, err)
			break
		}
		for _, t := range tickets {
			if t.Failed() {
				invalid = append(invalid, t.Token)
			}
		}
	}

	s.prune(ctx, rec, invalid)
	return sendErr
}

// prune removes invalid tokens in one update. Failure is logged only: the
// delivery itself went through and the tokens are reported again next time.
func (s *PushSender) prune(ctx context.Context, rec *domain.NotificationRecord, invalid []string) {
	if len(invalid) == 0 {
		return
	}
	log := logger.ForRecipient(string(rec.RecipientRole), rec.RecipientID)
	if err := s.tokens.RemovePushTokens(ctx, rec.RecipientID, rec.RecipientRole, invalid); err != nil {
		log.Warn("Push token pruning failed", zap.Int("tokens", len(invalid)), zap.Error(err))
		return
	}
	pushTokensPruned.Add(float64(len(invalid)))
	log.Info("Pruned invalid push tokens", zap.Int("tokens", len(invalid)))
}

// pushData flattens the record into the gateway's string map.
func pushData(rec *domain.NotificationRecord) map[string]string {
	data := make(map[string]string, len(rec.Payload)+2)
	for k, v := range rec.Payload {
		switch val := v.(type) {
		case string:
			data[k] = val
		default:
			raw, err := json.Marshal(val)
			if err != nil {
				data[k] = fmt.Sprint(val)
				continue
			}
			data[k] = string(raw)
		}
	}
	data["notification_id"] = rec.ID.String()
	data["category"] = string(rec.Category)
	return data
}

var _ Sender = (*PushSender)(nil)
