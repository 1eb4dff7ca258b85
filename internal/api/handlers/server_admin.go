package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"givedesk.io/backoffice/internal/api/middleware"
	"givedesk.io/backoffice/internal/pkg/logger"
)

// ListQueues handles GET /admin/queues.
func (s *Server) ListQueues(c *gin.Context) {
	infos, err := s.queues.QueueInfos()
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": infos})
}

// PauseQueue handles POST /admin/queues/:name/pause.
func (s *Server) PauseQueue(c *gin.Context) {
	name := c.Param("name")
	if err := s.queues.PauseQueue(c.Request.Context(), name); err != nil {
		_ = c.Error(err)
		return
	}
	auditQueueAction(c, "pause", name)
	c.Status(http.StatusNoContent)
}

// ResumeQueue handles POST /admin/queues/:name/resume.
func (s *Server) ResumeQueue(c *gin.Context) {
	name := c.Param("name")
	if err := s.queues.ResumeQueue(c.Request.Context(), name); err != nil {
		_ = c.Error(err)
		return
	}
	auditQueueAction(c, "resume", name)
	c.Status(http.StatusNoContent)
}

func auditQueueAction(c *gin.Context, action, queueName string) {
	p, _ := middleware.GetPrincipal(c.Request.Context())
	logger.Info("Queue administration",
		zap.String("action", action),
		zap.String("queue", queueName),
		zap.String("actor", p.RecipientID),
		zap.String("request_id", middleware.GetRequestID(c.Request.Context())),
	)
}
