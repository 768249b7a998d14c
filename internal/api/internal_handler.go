package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"jobboard/internal/account"
	"jobboard/internal/api/middleware"
	"jobboard/internal/recommend"
)

// InternalEventHandler 接收账号与职位子系统的写事件，把它们转换为重算任务。
type InternalEventHandler struct {
	db        *gorm.DB
	scheduler recommend.Scheduler
}

func NewInternalEventHandler(db *gorm.DB, scheduler recommend.Scheduler) *InternalEventHandler {
	return &InternalEventHandler{db: db, scheduler: scheduler}
}

type userCreatedEvent struct {
	UserID      uint `json:"user_id" binding:"required"`
	IsRecruiter bool `json:"is_recruiter"`
}

type jobSavedEvent struct {
	JobID uint `json:"job_id" binding:"required"`
}

type profileSavedEvent struct {
	UserID uint `json:"user_id" binding:"required"`
}

// UserCreated 为新账号初始化资料，POST /internal/events/user-created。
func (h *InternalEventHandler) UserCreated(c *gin.Context) {
	var ev userCreatedEvent
	if err := c.ShouldBindJSON(&ev); err != nil {
		BadRequest(c, err.Error())
		return
	}
	ctx := c.Request.Context()
	profile, err := account.EnsureProfile(ctx, h.db, ev.UserID, ev.IsRecruiter)
	if err != nil {
		respondError(c, err)
		return
	}
	if !profile.IsRecruiter {
		h.schedule(c, func() error { return h.scheduler.RegenerateCandidate(ctx, ev.UserID) })
	}
	c.JSON(http.StatusOK, gin.H{"profile_id": profile.ID})
}

// JobSaved 处理 POST /internal/events/job-saved。
func (h *InternalEventHandler) JobSaved(c *gin.Context) {
	var ev jobSavedEvent
	if err := c.ShouldBindJSON(&ev); err != nil {
		BadRequest(c, err.Error())
		return
	}
	ctx := c.Request.Context()
	if !h.schedule(c, func() error { return h.scheduler.RegenerateJob(ctx, ev.JobID) }) {
		Internal(c, "failed to enqueue regeneration")
		return
	}
	c.Status(http.StatusAccepted)
}

// ProfileSaved 处理 POST /internal/events/profile-saved。
func (h *InternalEventHandler) ProfileSaved(c *gin.Context) {
	var ev profileSavedEvent
	if err := c.ShouldBindJSON(&ev); err != nil {
		BadRequest(c, err.Error())
		return
	}
	ctx := c.Request.Context()
	if !h.schedule(c, func() error { return h.scheduler.RegenerateCandidate(ctx, ev.UserID) }) {
		Internal(c, "failed to enqueue regeneration")
		return
	}
	c.Status(http.StatusAccepted)
}

func (h *InternalEventHandler) schedule(c *gin.Context, enqueue func() error) bool {
	if err := enqueue(); err != nil {
		middleware.LoggerFromContext(c).Warn("enqueue regeneration failed", slog.Any("error", err))
		return false
	}
	return true
}
