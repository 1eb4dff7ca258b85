package handlers

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"givedesk.io/backoffice/internal/pkg/logger"
)

// ServeNotificationSocket handles GET /ws/notifications. The connection
// receives a frame for every notification addressed to the caller while it
// stays open; nothing is replayed on reconnect.
func (s *Server) ServeNotificationSocket(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written an HTTP error response.
		logger.Warn("Websocket upgrade failed",
			zap.String("recipient_id", p.RecipientID),
			zap.Error(err),
		)
		return
	}

	s.hub.Serve(s.hub.Register(p.Role, p.RecipientID, conn))
}
