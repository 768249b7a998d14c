package api

import (
	"context"
	"time"

	"jobboard/internal/database"
	"jobboard/internal/pipeline"
	"jobboard/internal/storage"
	"jobboard/internal/visibility"
)

// profileView 只包含已披露的字段，简历字段为限时链接。
type profileView struct {
	UserID uint              `json:"user_id"`
	Fields map[string]string `json:"fields"`
}

func newProfileView(ctx context.Context, links *storage.ResumeLinker, d visibility.Disclosure) profileView {
	d = links.Resolve(ctx, d)
	fields := make(map[string]string, len(d.Fields))
	for k, v := range d.Fields {
		fields[string(k)] = v
	}
	return profileView{UserID: d.UserID, Fields: fields}
}

type jobView struct {
	ID          uint   `json:"id"`
	OwnerID     uint   `json:"owner_id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Category    string `json:"category,omitempty"`
	Location    string `json:"location"`
	Salary      string `json:"salary,omitempty"`
}

func newJobView(j database.Job) jobView {
	return jobView{
		ID:          j.ID,
		OwnerID:     j.UserID,
		Title:       j.Title,
		Description: j.Description,
		Category:    j.Category,
		Location:    j.Location,
		Salary:      j.Salary,
	}
}

type applicationView struct {
	ID          uint                    `json:"id"`
	JobID       uint                    `json:"job_id"`
	ApplicantID uint                    `json:"applicant_id"`
	Status      string                  `json:"status"`
	Note        string                  `json:"note,omitempty"`
	History     []pipeline.HistoryEntry `json:"history"`
	CreatedAt   time.Time               `json:"created_at"`
	UpdatedAt   time.Time               `json:"updated_at"`
}

func newApplicationView(app *database.Application) applicationView {
	history, err := pipeline.History(app)
	if err != nil || history == nil {
		history = []pipeline.HistoryEntry{}
	}
	return applicationView{
		ID:          app.ID,
		JobID:       app.JobID,
		ApplicantID: app.ApplicantID,
		Status:      app.Status,
		Note:        app.Note,
		History:     history,
		CreatedAt:   app.CreatedAt,
		UpdatedAt:   app.UpdatedAt,
	}
}
