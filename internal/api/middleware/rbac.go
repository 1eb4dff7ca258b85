package middleware

import (
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"

	"givedesk.io/backoffice/internal/domain"
	apperrors "givedesk.io/backoffice/internal/pkg/errors"
)

// RequireRole returns middleware that admits only the listed recipient roles.
func RequireRole(roles ...domain.RecipientRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := GetPrincipal(c.Request.Context())
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code": apperrors.CodeUnauthorized, "message": "authentication required",
			})
			return
		}
		if !slices.Contains(roles, p.Role) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"code": apperrors.CodeForbidden, "message": "insufficient role",
			})
			return
		}
		c.Next()
	}
}
