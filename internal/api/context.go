package api

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"jobboard/internal/account"
	"jobboard/internal/api/middleware"
)

// actorFromContext 返回认证后的操作者，缺失时已写入 401。
func actorFromContext(c *gin.Context) (account.Actor, bool) {
	actor, ok := middleware.ActorFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return account.Actor{}, false
	}
	return actor, true
}

// parseIDParam 解析路径中的正整数 ID，失败时已写入 400。
func parseIDParam(c *gin.Context, name string) (uint, bool) {
	raw := strings.TrimSpace(c.Param(name))
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		BadRequest(c, "invalid "+name)
		return 0, false
	}
	return uint(id), true
}

// parseIntQuery 读取可选的整数查询参数。
func parseIntQuery(c *gin.Context, name string, def int) (int, bool) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		BadRequest(c, "invalid "+name)
		return 0, false
	}
	return v, true
}
