package modules

import (
	"context"

	"givedesk.io/backoffice/internal/api/handlers"
	"givedesk.io/backoffice/internal/config"
	"givedesk.io/backoffice/internal/mail"
	"givedesk.io/backoffice/internal/queue"
)

// MailModule works the email queue.
type MailModule struct {
	mailer *mail.Mailer
}

func NewMailModule(infra *Infrastructure) *MailModule {
	return &MailModule{mailer: mail.NewMailer(infra.Config.SMTP)}
}

func (m *MailModule) Name() string { return "mail" }

func (m *MailModule) ContributeServerDeps(*handlers.ServerDeps) {}

func (m *MailModule) RegisterWorkers(reg *queue.Registry) error {
	return reg.RegisterWorker(config.QueueEmail, m.mailer.HandleJob)
}

func (m *MailModule) Shutdown(context.Context) error { return nil }
