package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"jobboard/internal/database"
	"jobboard/internal/savedsearch"
	"jobboard/internal/storage"
)

// SavedSearchHandler 管理招聘方保存的检索。
type SavedSearchHandler struct {
	searches *savedsearch.Service
	links    *storage.ResumeLinker
}

func NewSavedSearchHandler(searches *savedsearch.Service, links *storage.ResumeLinker) *SavedSearchHandler {
	return &SavedSearchHandler{searches: searches, links: links}
}

type createSavedSearchRequest struct {
	Name          string `json:"name" binding:"required,max=120"`
	Keywords      string `json:"keywords" binding:"max=255"`
	Location      string `json:"location" binding:"max=255"`
	MinExperience int    `json:"min_experience" binding:"min=0"`
}

type savedSearchResponse struct {
	ID            uint       `json:"id"`
	Name          string     `json:"name"`
	Keywords      string     `json:"keywords"`
	Location      string     `json:"location"`
	MinExperience int        `json:"min_experience"`
	IsActive      bool       `json:"is_active"`
	LastRunAt     *time.Time `json:"last_run_at"`
}

type savedMatchResponse struct {
	ID          uint        `json:"id"`
	CandidateID uint        `json:"candidate_id"`
	MatchedAt   time.Time   `json:"matched_at"`
	Seen        bool        `json:"seen"`
	Profile     profileView `json:"profile"`
}

func newSavedSearchResponse(s *database.SavedCandidateSearch) savedSearchResponse {
	return savedSearchResponse{
		ID:            s.ID,
		Name:          s.Name,
		Keywords:      s.Keywords,
		Location:      s.Location,
		MinExperience: s.MinExperience,
		IsActive:      s.IsActive,
		LastRunAt:     s.LastRunAt,
	}
}

// List 处理 GET /v1/saved-searches。
func (h *SavedSearchHandler) List(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	searches, err := h.searches.List(c.Request.Context(), actor)
	if err != nil {
		respondError(c, err)
		return
	}
	out := make([]savedSearchResponse, 0, len(searches))
	for i := range searches {
		out = append(out, newSavedSearchResponse(&searches[i]))
	}
	c.JSON(http.StatusOK, gin.H{"results": out})
}

// Create 处理 POST /v1/saved-searches。
func (h *SavedSearchHandler) Create(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req createSavedSearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	search, err := h.searches.Create(c.Request.Context(), actor, savedsearch.CreateInput{
		Name:          req.Name,
		Keywords:      req.Keywords,
		Location:      req.Location,
		MinExperience: req.MinExperience,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, newSavedSearchResponse(search))
}

// Deactivate 处理 DELETE /v1/saved-searches/:id。
func (h *SavedSearchHandler) Deactivate(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	if err := h.searches.Deactivate(c.Request.Context(), actor, id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Run 立即执行一次检索并返回新命中数，POST /v1/saved-searches/:id/run。
func (h *SavedSearchHandler) Run(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	if err := h.searches.Authorize(ctx, actor, id); err != nil {
		respondError(c, err)
		return
	}
	n, err := h.searches.Run(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"new_matches": n})
}

// Matches 处理 GET /v1/saved-searches/:id/matches。
func (h *SavedSearchHandler) Matches(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	views, err := h.searches.ListMatches(ctx, actor, id)
	if err != nil {
		respondError(c, err)
		return
	}
	out := make([]savedMatchResponse, 0, len(views))
	for _, v := range views {
		out = append(out, savedMatchResponse{
			ID:          v.ID,
			CandidateID: v.CandidateID,
			MatchedAt:   v.MatchedAt,
			Seen:        v.Seen,
			Profile:     newProfileView(ctx, h.links, v.Profile),
		})
	}
	c.JSON(http.StatusOK, gin.H{"results": out})
}

// UnseenCount 处理 GET /v1/saved-searches/unseen-count。
func (h *SavedSearchHandler) UnseenCount(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	n, err := h.searches.UnseenMatchCount(c.Request.Context(), actor.UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"unseen": n})
}

// MarkSeen 处理 POST /v1/saved-searches/seen。
func (h *SavedSearchHandler) MarkSeen(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	n, err := h.searches.MarkAllSeen(c.Request.Context(), actor.UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": n})
}
