package api

import (
	"context"
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"jobboard/internal/account"
	"jobboard/internal/api/middleware"
	"jobboard/internal/pipeline"
	"jobboard/internal/recommend"
	"jobboard/internal/savedsearch"
	"jobboard/internal/storage"
)

// Deps 是注册路由所需的依赖。Redis 为 nil 时不限流，也不提供 WebSocket；
// Issuer 为 nil 时不提供登录接口。
type Deps struct {
	DB          *gorm.DB
	Validator   middleware.TokenValidator
	Issuer      TokenIssuer
	Redis       redis.UniversalClient
	Recommend   *recommend.Service
	Scheduler   recommend.Scheduler
	Pipeline    *pipeline.Service
	SavedSearch *savedsearch.Service
	Links       *storage.ResumeLinker
	Logger      *slog.Logger

	InternalSecret   string
	AllowedOrigins   []string
	LoginRateLimit   int
	RefreshRateLimit int
}

// RegisterRoutes 注册 /v1 业务路由与 /internal 回调路由。
func RegisterRoutes(router *gin.Engine, deps Deps) {
	var limiter redisRateCounter
	if deps.Redis != nil {
		limiter = deps.Redis
	}

	authMiddleware := middleware.AuthMiddleware(deps.Validator, actorLoader(deps.DB))
	recruiterOnly := middleware.RequireRecruiterMiddleware()

	recHandler := NewRecommendationHandler(deps.Recommend, deps.Scheduler, deps.Links, limiter, deps.RefreshRateLimit)
	appHandler := NewApplicationHandler(deps.Pipeline)
	candidateHandler := NewCandidateHandler(deps.SavedSearch, deps.Links)
	searchHandler := NewSavedSearchHandler(deps.SavedSearch, deps.Links)
	eventHandler := NewInternalEventHandler(deps.DB, deps.Scheduler)

	v1 := router.Group("/v1")
	{
		if deps.Redis != nil {
			wsHandler := NewWsHandler(deps.Redis, deps.Validator, deps.Logger, deps.AllowedOrigins)
			v1.GET("/ws", wsHandler.HandleConnection)
		}
		if deps.Issuer != nil {
			authHandler := NewAuthHandler(deps.DB, deps.Issuer, limiter, deps.LoginRateLimit)
			v1.POST("/auth/login", authHandler.Login)
		}

		authed := v1.Group("")
		authed.Use(authMiddleware)
		{
			authed.GET("/jobs/:id/recommended-candidates", recHandler.ListCandidates)
			authed.POST("/jobs/:id/recommendations/refresh", recHandler.RefreshJob)
			authed.GET("/recommended-jobs", recHandler.ListJobs)
			authed.POST("/recommendations/refresh", recHandler.RefreshMine)
			authed.POST("/recommendations/:kind/:id/dismiss", recHandler.Dismiss)

			authed.POST("/jobs/:id/apply", appHandler.Apply)
			authed.POST("/jobs/:id/withdraw", appHandler.Withdraw)
			authed.GET("/jobs/:id/applications", appHandler.ListForJob)
			authed.GET("/applications", appHandler.ListMine)
			authed.POST("/applications/:id/advance", appHandler.Advance)
			authed.POST("/applications/:id/reject", appHandler.Reject)
			authed.POST("/applications/:id/note", appHandler.UpdateNote)

			authed.GET("/candidates", recruiterOnly, candidateHandler.List)

			searches := authed.Group("/saved-searches")
			searches.Use(recruiterOnly)
			{
				searches.GET("", searchHandler.List)
				searches.POST("", searchHandler.Create)
				searches.GET("/unseen-count", searchHandler.UnseenCount)
				searches.POST("/seen", searchHandler.MarkSeen)
				searches.DELETE("/:id", searchHandler.Deactivate)
				searches.POST("/:id/run", searchHandler.Run)
				searches.GET("/:id/matches", searchHandler.Matches)
			}
		}
	}

	internal := router.Group("/internal")
	internal.Use(middleware.InternalSecretMiddleware(deps.InternalSecret))
	{
		events := internal.Group("/events")
		events.POST("/user-created", eventHandler.UserCreated)
		events.POST("/job-saved", eventHandler.JobSaved)
		events.POST("/profile-saved", eventHandler.ProfileSaved)
	}
}

func actorLoader(db *gorm.DB) middleware.ActorLoader {
	return func(ctx context.Context, userID uint) (account.Actor, error) {
		return account.LoadActor(ctx, db, userID)
	}
}
