package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"givedesk.io/backoffice/internal/domain"
	apperrors "givedesk.io/backoffice/internal/pkg/errors"
)

// ListNotifications handles GET /notifications.
func (s *Server) ListNotifications(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var q listQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		_ = c.Error(bindError(err))
		return
	}

	page, err := s.notifications.List(c.Request.Context(), p.RecipientID, p.Role, q.filter())
	if err != nil {
		_ = c.Error(err)
		return
	}
	if page.Items == nil {
		page.Items = []*domain.NotificationRecord{}
	}
	c.JSON(http.StatusOK, page)
}

// GetUnreadCount handles GET /notifications/unread-count.
func (s *Server) GetUnreadCount(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	count, err := s.notifications.UnreadCount(c.Request.Context(), p.RecipientID, p.Role)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": count})
}

// MarkNotificationRead handles PUT /notifications/:id/read.
func (s *Server) MarkNotificationRead(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		_ = c.Error(apperrors.ErrInvalidID("id"))
		return
	}

	rec, err := s.notifications.MarkRead(c.Request.Context(), id, p.RecipientID, p.Role)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// MarkAllNotificationsRead handles PUT /notifications/read-all.
func (s *Server) MarkAllNotificationsRead(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	n, err := s.notifications.MarkAllRead(c.Request.Context(), p.RecipientID, p.Role)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": n})
}

// GetPreferences handles GET /notifications/preferences.
func (s *Server) GetPreferences(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	prefs, err := s.notifications.GetPreferences(c.Request.Context(), p.RecipientID, p.Role)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, prefs)
}

// UpdatePreferences handles PUT /notifications/preferences. The body
// replaces the stored document; nothing is written unless it is valid.
func (s *Server) UpdatePreferences(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var body preferencesBody
	if err := c.ShouldBindJSON(&body); err != nil {
		_ = c.Error(bindError(err))
		return
	}
	prefs, err := body.toDomain()
	if err != nil {
		_ = c.Error(err)
		return
	}

	stored, err := s.notifications.UpdatePreferences(c.Request.Context(), p.RecipientID, p.Role, prefs)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, stored)
}

// RegisterDevice handles POST /notifications/devices.
func (s *Server) RegisterDevice(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var body deviceBody
	if err := c.ShouldBindJSON(&body); err != nil {
		_ = c.Error(bindError(err))
		return
	}
	if err := s.notifications.RegisterDevice(c.Request.Context(), p.RecipientID, p.Role, body.Token); err != nil {
		_ = c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

// UnregisterDevice handles DELETE /notifications/devices/:token.
func (s *Server) UnregisterDevice(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	if err := s.notifications.UnregisterDevice(c.Request.Context(), p.RecipientID, p.Role, c.Param("token")); err != nil {
		_ = c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

// CreateNotification handles POST /notifications. Staff and admins send to
// any recipient; the record is returned once it is queued.
func (s *Server) CreateNotification(c *gin.Context) {
	var body domain.NewNotification
	if err := c.ShouldBindJSON(&body); err != nil {
		_ = c.Error(bindError(err))
		return
	}

	rec, err := s.notifications.SendNotification(c.Request.Context(), body)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, rec)
}
