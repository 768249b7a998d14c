package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"jobboard/internal/account"
	"jobboard/internal/auth"
)

const (
	userIDKey = "userID"
	actorKey  = "actor"
)

// TokenValidator 校验访问令牌，由 *auth.AuthService 实现。
type TokenValidator interface {
	ValidateAccessToken(token string) (*auth.TokenClaims, error)
}

// ActorLoader 按用户 ID 读取操作者身份。
type ActorLoader func(ctx context.Context, userID uint) (account.Actor, error)

func abortUnauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
}

// AuthMiddleware 校验访问令牌，读取操作者并注入上下文。
// 账号不存在或已停用时按未认证处理。
func AuthMiddleware(validator TokenValidator, loadActor ActorLoader) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			abortUnauthorized(c)
			return
		}

		parts := strings.Fields(header)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			abortUnauthorized(c)
			return
		}

		claims, err := validator.ValidateAccessToken(parts[1])
		if err != nil {
			abortUnauthorized(c)
			return
		}

		actor, err := loadActor(c.Request.Context(), claims.UserID)
		if err != nil || !actor.IsActive {
			LoggerFromContext(c).Info("reject token for unknown or inactive account")
			abortUnauthorized(c)
			return
		}

		c.Set(userIDKey, claims.UserID)
		c.Set(actorKey, actor)
		c.Next()
	}
}

// ActorFromContext 返回认证后的操作者。
func ActorFromContext(c *gin.Context) (account.Actor, bool) {
	value, ok := c.Get(actorKey)
	if !ok {
		return account.Actor{}, false
	}
	actor, ok := value.(account.Actor)
	return actor, ok
}
