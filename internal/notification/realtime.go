package notification

import (
	"context"

	"givedesk.io/backoffice/internal/domain"
	"givedesk.io/backoffice/internal/realtime"
)

// RealtimeSender emits the record to the recipient's live sessions.
// Delivery is not guaranteed and nothing is kept for absent sessions.
type RealtimeSender struct {
	emitter realtime.Emitter
}

// NewRealtimeSender creates a RealtimeSender.
func NewRealtimeSender(emitter realtime.Emitter) *RealtimeSender {
	return &RealtimeSender{emitter: emitter}
}

func (s *RealtimeSender) Channel() domain.Channel { return domain.ChannelRealtime }

func (s *RealtimeSender) Send(ctx context.Context, rec *domain.NotificationRecord) error {
	return s.emitter.Emit(ctx, rec.RecipientRole, rec.RecipientID, rec)
}

var _ Sender = (*RealtimeSender)(nil)
