package handlers

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"givedesk.io/backoffice/internal/pkg/logger"
)

const (
	healthStatusOK       = "ok"
	healthStatusDegraded = "degraded"
	readinessTimeout     = 2 * time.Second
)

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// GetLiveness handles GET /health/live.
func (s *Server) GetLiveness(c *gin.Context) {
	c.JSON(http.StatusOK, healthResponse{Status: healthStatusOK})
}

// GetReadiness handles GET /health/ready. Dependencies are checked with a short timeout.
func (s *Server) GetReadiness(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), readinessTimeout)
	defer cancel()

	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	checks := make(map[string]string, len(names))
	allHealthy := true
	for _, name := range names {
		if err := s.checks[name](ctx); err != nil {
			logger.Warn("Readiness check failed", zap.String("check", name), zap.Error(err))
			checks[name] = "error"
			allHealthy = false
			continue
		}
		checks[name] = healthStatusOK
	}

	status := healthStatusOK
	httpStatus := http.StatusOK
	if !allHealthy {
		status = healthStatusDegraded
		httpStatus = http.StatusServiceUnavailable
	}
	c.JSON(httpStatus, healthResponse{Status: status, Checks: checks})
}
