package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"jobboard/internal/savedsearch"
	"jobboard/internal/storage"
)

// CandidateHandler 提供招聘方的即时候选人检索。
type CandidateHandler struct {
	searches *savedsearch.Service
	links    *storage.ResumeLinker
}

func NewCandidateHandler(searches *savedsearch.Service, links *storage.ResumeLinker) *CandidateHandler {
	return &CandidateHandler{searches: searches, links: links}
}

// List 处理 GET /v1/candidates?q=&location=&min_experience=&limit=。
func (h *CandidateHandler) List(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	minYears, ok := parseIntQuery(c, "min_experience", 0)
	if !ok {
		return
	}
	limit, ok := parseIntQuery(c, "limit", savedsearch.DefaultSearchLimit)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	criteria := savedsearch.Criteria{
		Keywords:      strings.TrimSpace(c.Query("q")),
		Location:      strings.TrimSpace(c.Query("location")),
		MinExperience: minYears,
	}
	found, err := h.searches.Search(ctx, actor, criteria, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	out := make([]profileView, 0, len(found))
	for _, d := range found {
		out = append(out, newProfileView(ctx, h.links, d))
	}
	c.JSON(http.StatusOK, gin.H{"results": out})
}
