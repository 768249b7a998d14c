package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const recruiterRequiredMessage = "recruiter account required"

// RequireRecruiterMiddleware 只放行招聘方与 staff，必须挂在 AuthMiddleware 之后。
func RequireRecruiterMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := ActorFromContext(c)
		if !ok {
			abortUnauthorized(c)
			return
		}
		if !actor.IsRecruiter && !actor.IsStaff {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": recruiterRequiredMessage})
			return
		}
		c.Next()
	}
}
