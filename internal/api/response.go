package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"jobboard/internal/api/middleware"
	"jobboard/internal/errcode"
)

func Error(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"error": msg})
}

func AbortUnauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
}

func Unauthorized(c *gin.Context)           { Error(c, http.StatusUnauthorized, "unauthorized") }
func BadRequest(c *gin.Context, msg string) { Error(c, http.StatusBadRequest, msg) }
func Forbidden(c *gin.Context, msg string)  { Error(c, http.StatusForbidden, msg) }
func NotFound(c *gin.Context, msg string)   { Error(c, http.StatusNotFound, msg) }
func Conflict(c *gin.Context, msg string)   { Error(c, http.StatusConflict, msg) }
func Internal(c *gin.Context, msg string)   { Error(c, http.StatusInternalServerError, msg) }

// statusOf 将业务错误码映射为 HTTP 状态码。
func statusOf(code int) int {
	switch code {
	case errcode.Validation:
		return http.StatusBadRequest
	case errcode.Forbidden:
		return http.StatusForbidden
	case errcode.ResourceMissing:
		return http.StatusNotFound
	case errcode.InvalidTransition:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// respondError 按错误类型返回响应，系统错误不向调用方暴露细节。
func respondError(c *gin.Context, err error) {
	code := errcode.Of(err)
	status := statusOf(code)

	msg := "internal error"
	var ve *errcode.ValidationError
	switch {
	case errors.As(err, &ve):
		msg = ve.Msg
	case errors.Is(err, errcode.ErrStaleStatus):
		msg = "application status changed concurrently"
	case errors.Is(err, errcode.ErrInvalidTransition):
		msg = "no transition available from the current status"
	case code == errcode.Forbidden:
		msg = "forbidden"
	case code == errcode.ResourceMissing:
		msg = "not found"
	}

	if status >= http.StatusInternalServerError {
		middleware.LoggerFromContext(c).Error("request failed", "error", err)
		_ = c.Error(err)
	}
	c.JSON(status, gin.H{"error": msg, "code": code})
}
