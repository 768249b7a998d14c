package recommend

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"jobboard/internal/database"
	"jobboard/internal/matching"
)

const poolBatchSize = 500

// rankCandidatesForJob 分批扫描候选池并保留全局 top-K。
// 排除：职位发布者本人、已投递者、PRIVATE 资料、招聘方、停用或 staff 账号。
func (s *Service) rankCandidatesForJob(ctx context.Context, job *database.Job) ([]matching.Ranked, error) {
	db := s.db.WithContext(ctx)
	applied := db.Model(&database.Application{}).Select("applicant_id").Where("job_id = ?", job.ID)
	jobSide := matching.Side{
		Text:     matching.JobText(job.Description, job.Title, job.Category),
		Location: job.Location,
	}

	var (
		top   []matching.Ranked
		batch []database.Profile
	)
	err := db.Model(&database.Profile{}).
		Select("profiles.*").
		Joins("JOIN accounts ON accounts.id = profiles.user_id AND accounts.deleted_at IS NULL").
		Where("accounts.is_active = ? AND accounts.is_staff = ?", true, false).
		Where("profiles.is_recruiter = ? AND profiles.visibility <> ?", false, database.VisibilityPrivate).
		Where("profiles.user_id <> ?", job.UserID).
		Where("profiles.user_id NOT IN (?)", applied).
		FindInBatches(&batch, poolBatchSize, func(_ *gorm.DB, _ int) error {
			pairs := make([]matching.Pair, 0, len(batch))
			for _, p := range batch {
				pairs = append(pairs, matching.Pair{
					TargetID:  p.UserID,
					Candidate: matching.Side{Text: p.Skills, Location: p.Location},
					Job:       jobSide,
				})
			}
			top = s.ranker.Merge(top, s.ranker.Rank(pairs))
			return nil
		}).Error
	if err != nil {
		return nil, fmt.Errorf("scan candidate pool for job %d: %w", job.ID, err)
	}
	return top, nil
}

// rankJobsForCandidate 分批扫描职位池。排除候选人自己发布的和已投递的职位。
func (s *Service) rankJobsForCandidate(ctx context.Context, profile *database.Profile) ([]matching.Ranked, error) {
	db := s.db.WithContext(ctx)
	applied := db.Model(&database.Application{}).Select("job_id").Where("applicant_id = ?", profile.UserID)
	candidateSide := matching.Side{Text: profile.Skills, Location: profile.Location}

	var (
		top   []matching.Ranked
		batch []database.Job
	)
	err := db.Model(&database.Job{}).
		Where("user_id <> ?", profile.UserID).
		Where("id NOT IN (?)", applied).
		FindInBatches(&batch, poolBatchSize, func(_ *gorm.DB, _ int) error {
			pairs := make([]matching.Pair, 0, len(batch))
			for _, j := range batch {
				pairs = append(pairs, matching.Pair{
					TargetID:  j.ID,
					Candidate: candidateSide,
					Job: matching.Side{
						Text:     matching.JobText(j.Description, j.Title, j.Category),
						Location: j.Location,
					},
				})
			}
			top = s.ranker.Merge(top, s.ranker.Rank(pairs))
			return nil
		}).Error
	if err != nil {
		return nil, fmt.Errorf("scan job pool for candidate %d: %w", profile.UserID, err)
	}
	return top, nil
}
