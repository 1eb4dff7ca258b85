package notification

import (
	"context"

	"givedesk.io/backoffice/internal/config"
	"givedesk.io/backoffice/internal/domain"
	"givedesk.io/backoffice/internal/mail"
)

// EmailSender hands delivery to the email queue so a slow relay never holds
// up the other channels.
type EmailSender struct {
	recipients RecipientResolver
	queue      Enqueuer
}

// NewEmailSender creates an EmailSender.
func NewEmailSender(recipients RecipientResolver, q Enqueuer) *EmailSender {
	return &EmailSender{recipients: recipients, queue: q}
}

func (s *EmailSender) Channel() domain.Channel { return domain.ChannelEmail }

// Send enqueues a send_email job. A recipient without an address is skipped.
func (s *EmailSender) Send(ctx context.Context, rec *domain.NotificationRecord) error {
	recipient, err := s.recipients.Resolve(ctx, rec.RecipientID, rec.RecipientRole)
	if err != nil {
		return err
	}
	if recipient.Email == "" {
		return nil
	}
	_, err = s.queue.AddJob(ctx, config.QueueEmail, mail.JobKindSendEmail, mail.Message{
		NotificationID: rec.ID.String(),
		To:             recipient.Email,
		Subject:        rec.Title,
		Body:           rec.Body,
	}, nil)
	return err
}

var _ Sender = (*EmailSender)(nil)
