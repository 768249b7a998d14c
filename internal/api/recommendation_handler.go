package api

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"jobboard/internal/api/middleware"
	"jobboard/internal/recommend"
	"jobboard/internal/storage"
)

// RecommendationHandler 处理推荐的查询、刷新与忽略。
type RecommendationHandler struct {
	recs      *recommend.Service
	scheduler recommend.Scheduler
	links     *storage.ResumeLinker
	limiter   *hourlyLimiter
}

// NewRecommendationHandler 构造处理器；limiter 为 nil 时不限制刷新频率。
func NewRecommendationHandler(recs *recommend.Service, scheduler recommend.Scheduler, links *storage.ResumeLinker, limiter redisRateCounter, refreshLimit int) *RecommendationHandler {
	return &RecommendationHandler{
		recs:      recs,
		scheduler: scheduler,
		links:     links,
		limiter:   newHourlyLimiter(limiter, "refresh", refreshLimit),
	}
}

type candidateRecommendationResponse struct {
	ID          uint        `json:"id"`
	JobID       uint        `json:"job_id"`
	CandidateID uint        `json:"candidate_id"`
	MatchScore  int         `json:"match_score"`
	Profile     profileView `json:"profile"`
}

type jobRecommendationResponse struct {
	ID         uint    `json:"id"`
	JobID      uint    `json:"job_id"`
	MatchScore int     `json:"match_score"`
	Job        jobView `json:"job"`
}

// ListCandidates 返回职位的候选人推荐，GET /v1/jobs/:id/recommended-candidates。
func (h *RecommendationHandler) ListCandidates(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	jobID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	minScore, ok := parseIntQuery(c, "min_score", 0)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	views, err := h.recs.ListCandidateRecommendations(ctx, actor, jobID, minScore)
	if err != nil {
		respondError(c, err)
		return
	}
	out := make([]candidateRecommendationResponse, 0, len(views))
	for _, v := range views {
		out = append(out, candidateRecommendationResponse{
			ID:          v.ID,
			JobID:       v.JobID,
			CandidateID: v.CandidateID,
			MatchScore:  v.MatchScore,
			Profile:     newProfileView(ctx, h.links, v.Profile),
		})
	}
	c.JSON(http.StatusOK, gin.H{"results": out})
}

// ListJobs 返回当前用户的职位推荐，GET /v1/recommended-jobs。
func (h *RecommendationHandler) ListJobs(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	minScore, ok := parseIntQuery(c, "min_score", 0)
	if !ok {
		return
	}

	views, err := h.recs.ListJobRecommendations(c.Request.Context(), actor, minScore)
	if err != nil {
		respondError(c, err)
		return
	}
	out := make([]jobRecommendationResponse, 0, len(views))
	for _, v := range views {
		out = append(out, jobRecommendationResponse{
			ID:         v.ID,
			JobID:      v.JobID,
			MatchScore: v.MatchScore,
			Job:        newJobView(v.Job),
		})
	}
	c.JSON(http.StatusOK, gin.H{"results": out})
}

// RefreshJob 为单个职位请求重算，POST /v1/jobs/:id/recommendations/refresh。
func (h *RecommendationHandler) RefreshJob(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	jobID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	if !h.allowRefresh(c, actor.UserID) {
		return
	}
	if err := h.recs.RefreshJob(c.Request.Context(), actor, jobID, h.scheduler); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"queued": 1})
}

// RefreshMine 为招聘方的全部职位或候选人本人请求重算，POST /v1/recommendations/refresh。
func (h *RecommendationHandler) RefreshMine(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	if !h.allowRefresh(c, actor.UserID) {
		return
	}
	n, err := h.recs.RefreshForUser(c.Request.Context(), actor, h.scheduler)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"queued": n})
}

// Dismiss 忽略一条推荐，POST /v1/recommendations/:kind/:id/dismiss。
func (h *RecommendationHandler) Dismiss(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	kind, err := recommend.ParseKind(c.Param("kind"))
	if err != nil {
		respondError(c, err)
		return
	}
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	if err := h.recs.Dismiss(c.Request.Context(), kind, id, actor); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// allowRefresh 按用户每小时计数；Redis 不可用时放行。
func (h *RecommendationHandler) allowRefresh(c *gin.Context, userID uint) bool {
	allowed, err := h.limiter.Allow(c.Request.Context(), strconv.FormatUint(uint64(userID), 10))
	if err != nil {
		middleware.LoggerFromContext(c).Warn("refresh rate counter unavailable", slog.Any("error", err))
	}
	if !allowed {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
		return false
	}
	return true
}
