package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"jobboard/internal/database"
	"jobboard/internal/pipeline"
)

// ApplicationHandler 处理投递与状态流转。
type ApplicationHandler struct {
	pipeline *pipeline.Service
}

func NewApplicationHandler(p *pipeline.Service) *ApplicationHandler {
	return &ApplicationHandler{pipeline: p}
}

type noteRequest struct {
	Note string `json:"note" binding:"max=4000"`
}

type advanceRequest struct {
	// ExpectedStatus 非空时只在当前状态与之相同时推进。
	ExpectedStatus string `json:"expected_status"`
}

// Apply 投递职位，POST /v1/jobs/:id/apply。重复投递返回同一条记录。
func (h *ApplicationHandler) Apply(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	jobID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req noteRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			BadRequest(c, err.Error())
			return
		}
	}

	app, err := h.pipeline.Apply(c.Request.Context(), actor, jobID, req.Note)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newApplicationView(app))
}

// Withdraw 撤回自己的投递，POST /v1/jobs/:id/withdraw。
func (h *ApplicationHandler) Withdraw(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	jobID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	app, err := h.pipeline.Withdraw(c.Request.Context(), actor, jobID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newApplicationView(app))
}

// ListForJob 返回职位收到的投递，GET /v1/jobs/:id/applications。
func (h *ApplicationHandler) ListForJob(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	jobID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	apps, err := h.pipeline.ListForJob(c.Request.Context(), actor, jobID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": applicationViews(apps)})
}

// ListMine 返回自己的投递，GET /v1/applications?status=。
func (h *ApplicationHandler) ListMine(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	apps, err := h.pipeline.ListForApplicant(c.Request.Context(), actor, c.Query("status"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": applicationViews(apps)})
}

// Advance 推进到下一状态，POST /v1/applications/:id/advance。
func (h *ApplicationHandler) Advance(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	appID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req advanceRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			BadRequest(c, err.Error())
			return
		}
	}

	ctx := c.Request.Context()
	var (
		app *database.Application
		err error
	)
	if req.ExpectedStatus != "" {
		expected, perr := pipeline.ParseStatus(req.ExpectedStatus)
		if perr != nil {
			BadRequest(c, perr.Error())
			return
		}
		app, err = h.pipeline.AdvanceFrom(ctx, actor, appID, expected)
	} else {
		app, err = h.pipeline.Advance(ctx, actor, appID)
	}
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newApplicationView(app))
}

// Reject 拒绝投递，POST /v1/applications/:id/reject。
func (h *ApplicationHandler) Reject(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	appID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	app, err := h.pipeline.Reject(c.Request.Context(), actor, appID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newApplicationView(app))
}

// UpdateNote 修改投递备注，POST /v1/applications/:id/note。
func (h *ApplicationHandler) UpdateNote(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	appID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req noteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	app, err := h.pipeline.UpdateNote(c.Request.Context(), actor, appID, req.Note)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newApplicationView(app))
}

func applicationViews(apps []database.Application) []applicationView {
	out := make([]applicationView, 0, len(apps))
	for i := range apps {
		out = append(out, newApplicationView(&apps[i]))
	}
	return out
}
