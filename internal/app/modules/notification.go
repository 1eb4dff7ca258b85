package modules

import (
	"context"

	"givedesk.io/backoffice/internal/api/handlers"
	"givedesk.io/backoffice/internal/config"
	"givedesk.io/backoffice/internal/notification"
	"givedesk.io/backoffice/internal/push"
	"givedesk.io/backoffice/internal/queue"
)

// NotificationModule owns the creation path and the dispatch worker.
type NotificationModule struct {
	infra      *Infrastructure
	service    *notification.Service
	dispatcher *notification.Dispatcher
}

// NewNotificationModule wires the channel senders in dispatch order.
func NewNotificationModule(infra *Infrastructure) *NotificationModule {
	cfg := infra.Config
	dir := infra.Directory

	senders := []notification.Sender{
		notification.NewPushSender(dir, dir, push.NewExpoGateway(cfg.Push), cfg.Push.BatchSize),
		notification.NewEmailSender(dir, infra.Queue),
		notification.SMSSender{},
		notification.NewRealtimeSender(infra.Emitter),
	}

	return &NotificationModule{
		infra:      infra,
		service:    notification.NewService(infra.Records, dir, infra.Queue),
		dispatcher: notification.NewDispatcher(notification.NewPreferenceResolver(dir), cfg.Dispatch, senders...),
	}
}

func (m *NotificationModule) Name() string { return "notification" }

func (m *NotificationModule) ContributeServerDeps(deps *handlers.ServerDeps) {
	deps.Notifications = m.service
	deps.Hub = m.infra.Hub
}

func (m *NotificationModule) RegisterWorkers(reg *queue.Registry) error {
	return reg.RegisterWorker(config.QueueNotification, m.dispatcher.HandleJob)
}

func (m *NotificationModule) Shutdown(context.Context) error { return nil }
