package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"jobboard/internal/account"
	"jobboard/internal/api/middleware"
	"jobboard/internal/auth"
	"jobboard/internal/errcode"
)

// TokenIssuer 签发访问令牌，由 *auth.AuthService 实现。
type TokenIssuer interface {
	IssueAccessToken(userID uint) (string, error)
	AccessTokenTTL() time.Duration
}

// AuthHandler 处理口令登录。注册由账号子系统负责。
type AuthHandler struct {
	db      *gorm.DB
	issuer  TokenIssuer
	limiter *hourlyLimiter
}

// NewAuthHandler 构造认证处理器。
func NewAuthHandler(db *gorm.DB, issuer TokenIssuer, limiter redisRateCounter, loginRateLimitPerHour int) *AuthHandler {
	return &AuthHandler{
		db:      db,
		issuer:  issuer,
		limiter: newHourlyLimiter(limiter, "login", loginRateLimitPerHour),
	}
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// Login 校验口令并返回访问令牌。
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	logger := middleware.LoggerFromContext(c).With(slog.String("username", req.Username))

	// 速率限制：每 IP+用户名 每小时
	allowed, err := h.limiter.Allow(ctx, c.ClientIP()+":"+strings.ToLower(req.Username))
	if err != nil {
		logger.Warn("login rate counter unavailable", slog.Any("error", err))
	}
	if !allowed {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
		return
	}

	acct, err := account.Authenticate(ctx, h.db, req.Username, req.Password)
	switch {
	case errors.Is(err, account.ErrBadCredentials):
		logger.Info("login failed: bad credentials")
		Unauthorized(c)
		return
	case errors.Is(err, errcode.ErrForbidden):
		logger.Info("login failed: inactive account")
		Forbidden(c, "account is inactive")
		return
	case err != nil:
		logger.Error("login query failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	token, err := h.issuer.IssueAccessToken(acct.ID)
	if err != nil {
		if errors.Is(err, auth.ErrSigningDisabled) {
			Error(c, http.StatusServiceUnavailable, "token signing is not configured")
			return
		}
		logger.Error("issue access token failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	logger.Info("user logged in", slog.Uint64("user_id", uint64(acct.ID)))
	c.JSON(http.StatusOK, tokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int(h.issuer.AccessTokenTTL().Seconds()),
	})
}
