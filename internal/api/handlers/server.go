// Package handlers implements the HTTP surface of the notification engine.
//
// Handlers report failures with c.Error and leave rendering to
// middleware.ErrorHandler. Routes are registered by internal/app.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"givedesk.io/backoffice/internal/api/middleware"
	"givedesk.io/backoffice/internal/domain"
	"givedesk.io/backoffice/internal/notification"
	apperrors "givedesk.io/backoffice/internal/pkg/errors"
	"givedesk.io/backoffice/internal/queue"
	"givedesk.io/backoffice/internal/realtime"
	"givedesk.io/backoffice/internal/store"
)

// NotificationService is the creation path and recipient inbox.
type NotificationService interface {
	SendNotification(ctx context.Context, n domain.NewNotification) (*domain.NotificationRecord, error)
	List(ctx context.Context, recipientID string, role domain.RecipientRole, filter store.ListFilter) (*notification.Page, error)
	UnreadCount(ctx context.Context, recipientID string, role domain.RecipientRole) (int, error)
	MarkRead(ctx context.Context, id uuid.UUID, recipientID string, role domain.RecipientRole) (*domain.NotificationRecord, error)
	MarkAllRead(ctx context.Context, recipientID string, role domain.RecipientRole) (int64, error)
	GetPreferences(ctx context.Context, recipientID string, role domain.RecipientRole) (domain.NotificationPreferences, error)
	UpdatePreferences(ctx context.Context, recipientID string, role domain.RecipientRole, prefs domain.NotificationPreferences) (domain.NotificationPreferences, error)
	RegisterDevice(ctx context.Context, recipientID string, role domain.RecipientRole, token string) error
	UnregisterDevice(ctx context.Context, recipientID string, role domain.RecipientRole, token string) error
}

// QueueAdmin exposes queue inspection and pause control.
type QueueAdmin interface {
	QueueInfos() ([]queue.Info, error)
	PauseQueue(ctx context.Context, name string) error
	ResumeQueue(ctx context.Context, name string) error
}

// SessionHub accepts upgraded websocket connections.
type SessionHub interface {
	Register(role domain.RecipientRole, recipientID string, conn *websocket.Conn) *realtime.Session
	Serve(s *realtime.Session)
}

// HealthCheck reports whether one dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Server holds the dependencies shared by all handlers.
type Server struct {
	notifications NotificationService
	queues        QueueAdmin
	hub           SessionHub
	checks        map[string]HealthCheck
	upgrader      websocket.Upgrader
}

// ServerDeps holds all dependencies for creating a Server.
// Manual DI, no Wire/Dig.
type ServerDeps struct {
	Notifications NotificationService
	Queues        QueueAdmin
	Hub           SessionHub
	// HealthChecks are probed by GET /health/ready, keyed by dependency name.
	HealthChecks map[string]HealthCheck
	// CheckOrigin decides which browser origins may open the notification
	// socket. Nil keeps gorilla's same-host rule.
	CheckOrigin func(r *http.Request) bool
}

// NewServer creates a new Server with all dependencies.
func NewServer(deps ServerDeps) *Server {
	return &Server{
		notifications: deps.Notifications,
		queues:        deps.Queues,
		hub:           deps.Hub,
		checks:        deps.HealthChecks,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     deps.CheckOrigin,
		},
	}
}

// principal returns the authenticated recipient, or records a 401 on c.
func principal(c *gin.Context) (middleware.Principal, bool) {
	p, ok := middleware.GetPrincipal(c.Request.Context())
	if !ok {
		_ = c.Error(apperrors.Unauthorized(apperrors.CodeUnauthorized, "authentication required"))
		return middleware.Principal{}, false
	}
	return p, true
}
