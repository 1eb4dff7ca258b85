package notification

import (
	"context"

	"givedesk.io/backoffice/internal/domain"
	apperrors "givedesk.io/backoffice/internal/pkg/errors"
)

// SMSSender has no provider yet. SMS is off by default, so only recipients
// who opt in reach it.
type SMSSender struct{}

func (SMSSender) Channel() domain.Channel { return domain.ChannelSMS }

func (SMSSender) Send(context.Context, *domain.NotificationRecord) error {
	return apperrors.ErrChannelNotImplemented(string(domain.ChannelSMS))
}

var _ Sender = SMSSender{}
