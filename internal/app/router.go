package app

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"givedesk.io/backoffice/internal/api/handlers"
	"givedesk.io/backoffice/internal/api/middleware"
	"givedesk.io/backoffice/internal/config"
	"givedesk.io/backoffice/internal/domain"
)

const (
	apiBasePath        = "/api/v1"
	notificationSocket = "/ws/notifications"
)

// defaultAllowedOrigins are the back-office UI dev servers.
var defaultAllowedOrigins = []string{
	"http://localhost:3000",
	"http://localhost:5173",
}

func newRouter(cfg *config.Config, server *handlers.Server, jwtCfg middleware.JWTConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestID(), cors.New(buildCORSConfig(cfg)), middleware.ErrorHandler())

	// Public probes and metrics.
	router.GET("/health/live", server.GetLiveness)
	router.GET("/health/ready", server.GetReadiness)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	var validatorOpts []middleware.ValidatorOption
	if cfg.Server.ValidateResponses {
		validatorOpts = append(validatorOpts, middleware.WithResponseValidation())
	}

	v1 := router.Group(apiBasePath,
		middleware.JWTAuth(jwtCfg, middleware.WithQueryTokenRoutes(apiBasePath+notificationSocket)),
		middleware.MustOpenAPIValidator(apiBasePath, validatorOpts...),
	)

	v1.GET("/notifications", server.ListNotifications)
	v1.POST("/notifications", middleware.RequireRole(domain.RoleAdmin, domain.RoleStaff), server.CreateNotification)
	v1.GET("/notifications/unread-count", server.GetUnreadCount)
	v1.GET("/notifications/preferences", server.GetPreferences)
	v1.PUT("/notifications/preferences", server.UpdatePreferences)
	v1.PUT("/notifications/read-all", server.MarkAllNotificationsRead)
	v1.PUT("/notifications/:id/read", server.MarkNotificationRead)
	v1.POST("/notifications/devices", server.RegisterDevice)
	v1.DELETE("/notifications/devices/:token", server.UnregisterDevice)
	v1.GET(notificationSocket, server.ServeNotificationSocket)

	admin := v1.Group("/admin", middleware.RequireRole(domain.RoleAdmin))
	admin.GET("/queues", server.ListQueues)
	admin.POST("/queues/:name/pause", server.PauseQueue)
	admin.POST("/queues/:name/resume", server.ResumeQueue)

	return router
}

// buildCORSConfig allows the configured UI origins. A "*" entry is ignored
// unless UnsafeAllowAllOrigins is set, which also turns credentials off.
func buildCORSConfig(cfg *config.Config) cors.Config {
	out := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
		ExposeHeaders:    []string{middleware.RequestIDHeader},
		AllowCredentials: cfg.Server.AllowCredentials,
		MaxAge:           12 * time.Hour,
	}

	if cfg.Server.UnsafeAllowAllOrigins {
		out.AllowAllOrigins = true
		out.AllowCredentials = false
		return out
	}

	out.AllowOrigins = allowedOrigins(cfg)
	return out
}

// allowedOrigins is the configured UI origin list without wildcards, falling
// back to the dev servers when empty.
func allowedOrigins(cfg *config.Config) []string {
	origins := make([]string, 0, len(cfg.Server.AllowedOrigins))
	for _, o := range cfg.Server.AllowedOrigins {
		if o == "*" || o == "" {
			continue
		}
		origins = append(origins, o)
	}
	if len(origins) == 0 {
		origins = append(origins, defaultAllowedOrigins...)
	}
	return origins
}

// websocketOriginCheck admits the same origins as CORS. Requests without an
// Origin header come from non-browser clients and are accepted, as are
// same-host pages.
func websocketOriginCheck(cfg *config.Config) func(r *http.Request) bool {
	if cfg.Server.UnsafeAllowAllOrigins {
		return func(*http.Request) bool { return true }
	}
	origins := allowedOrigins(cfg)
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, o := range origins {
			if strings.EqualFold(strings.TrimSuffix(o, "/"), origin) {
				return true
			}
		}
		u, err := url.Parse(origin)
		return err == nil && strings.EqualFold(u.Host, r.Host)
	}
}
