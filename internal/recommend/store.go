package recommend

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"jobboard/internal/account"
	"jobboard/internal/database"
	"jobboard/internal/errcode"
	"jobboard/internal/matching"
)

// Kind 标识推荐方向，取值与 URL 中的路径段一致。
type Kind string

const (
	// KindCandidate 是 职位 → 候选人 推荐。
	KindCandidate Kind = "candidates"
	// KindJob 是 候选人 → 职位 推荐。
	KindJob Kind = "jobs"
)

// ParseKind 解析推荐方向。
func ParseKind(raw string) (Kind, error) {
	switch Kind(raw) {
	case KindCandidate, KindJob:
		return Kind(raw), nil
	default:
		return "", &errcode.ValidationError{Msg: fmt.Sprintf("unknown recommendation kind %q", raw)}
	}
}

// Store 负责推荐行的持久化，所有写入都以唯一 (主体, 目标) 对为键。
type Store struct {
	db              *gorm.DB
	stickyDismissal bool
}

// NewStore 构造 Store。stickyDismissal 为 true 时重算不会清除已忽略标记。
func NewStore(db *gorm.DB, stickyDismissal bool) *Store {
	return &Store{db: db, stickyDismissal: stickyDismissal}
}

// WithDB 返回使用指定连接（通常是事务）的副本。
func (s *Store) WithDB(db *gorm.DB) *Store {
	return &Store{db: db, stickyDismissal: s.stickyDismissal}
}

func (s *Store) upsertColumns() []string {
	cols := []string{"match_score", "updated_at"}
	if !s.stickyDismissal {
		cols = append(cols, "is_dismissed")
	}
	return cols
}

// UpsertCandidateRecommendations 写入职位的候选人推荐；不在列表中的旧行保持不变。
// 同一事务内会删除该职位下已有申请的候选人行，排名之后才提交的申请不会留下推荐。
func (s *Store) UpsertCandidateRecommendations(ctx context.Context, jobID uint, ranked []matching.Ranked) error {
	rows := make([]database.CandidateRecommendation, 0, len(ranked))
	for _, r := range ranked {
		rows = append(rows, database.CandidateRecommendation{
			JobID:       jobID,
			CandidateID: r.TargetID,
			MatchScore:  r.Score,
		})
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(rows) > 0 {
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "job_id"}, {Name: "candidate_id"}},
				DoUpdates: clause.AssignmentColumns(s.upsertColumns()),
			}).Create(&rows).Error
			if err != nil {
				return fmt.Errorf("upsert candidate recommendations for job %d: %w", jobID, err)
			}
		}
		applied := tx.Model(&database.Application{}).Select("applicant_id").Where("job_id = ?", jobID)
		if err := tx.Where("job_id = ? AND candidate_id IN (?)", jobID, applied).
			Delete(&database.CandidateRecommendation{}).Error; err != nil {
			return fmt.Errorf("drop applied candidates for job %d: %w", jobID, err)
		}
		return nil
	})
}

// UpsertJobRecommendations 写入候选人的职位推荐，并删除候选人已申请职位的行。
func (s *Store) UpsertJobRecommendations(ctx context.Context, candidateID uint, ranked []matching.Ranked) error {
	rows := make([]database.JobRecommendation, 0, len(ranked))
	for _, r := range ranked {
		rows = append(rows, database.JobRecommendation{
			CandidateID: candidateID,
			JobID:       r.TargetID,
			MatchScore:  r.Score,
		})
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(rows) > 0 {
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "candidate_id"}, {Name: "job_id"}},
				DoUpdates: clause.AssignmentColumns(s.upsertColumns()),
			}).Create(&rows).Error
			if err != nil {
				return fmt.Errorf("upsert job recommendations for candidate %d: %w", candidateID, err)
			}
		}
		applied := tx.Model(&database.Application{}).Select("job_id").Where("applicant_id = ?", candidateID)
		if err := tx.Where("candidate_id = ? AND job_id IN (?)", candidateID, applied).
			Delete(&database.JobRecommendation{}).Error; err != nil {
			return fmt.Errorf("drop applied jobs for candidate %d: %w", candidateID, err)
		}
		return nil
	})
}

// PruneOnApplication 删除该 (职位, 候选人) 对两个方向的推荐行；不存在时为 no-op。
func (s *Store) PruneOnApplication(ctx context.Context, jobID, candidateID uint) error {
	db := s.db.WithContext(ctx)
	if err := db.Where("job_id = ? AND candidate_id = ?", jobID, candidateID).
		Delete(&database.CandidateRecommendation{}).Error; err != nil {
		return fmt.Errorf("prune candidate recommendation: %w", err)
	}
	if err := db.Where("candidate_id = ? AND job_id = ?", candidateID, jobID).
		Delete(&database.JobRecommendation{}).Error; err != nil {
		return fmt.Errorf("prune job recommendation: %w", err)
	}
	return nil
}

// Dismiss 将推荐标记为已忽略。
// 候选人推荐只能由职位发布者忽略，职位推荐只能由候选人本人忽略。
func (s *Store) Dismiss(ctx context.Context, kind Kind, id uint, actor account.Actor) error {
	db := s.db.WithContext(ctx)
	switch kind {
	case KindCandidate:
		var rec database.CandidateRecommendation
		if err := db.First(&rec, id).Error; err != nil {
			return notFoundOr(err, "candidate recommendation")
		}
		var job database.Job
		if err := db.Select("id", "user_id").First(&job, rec.JobID).Error; err != nil {
			return notFoundOr(err, "job")
		}
		if job.UserID != actor.UserID {
			return errcode.ErrForbidden
		}
		return markDismissed(db, &database.CandidateRecommendation{}, rec.ID)
	case KindJob:
		var rec database.JobRecommendation
		if err := db.First(&rec, id).Error; err != nil {
			return notFoundOr(err, "job recommendation")
		}
		if rec.CandidateID != actor.UserID {
			return errcode.ErrForbidden
		}
		return markDismissed(db, &database.JobRecommendation{}, rec.ID)
	default:
		return &errcode.ValidationError{Msg: fmt.Sprintf("unknown recommendation kind %q", kind)}
	}
}

func markDismissed(db *gorm.DB, model interface{}, id uint) error {
	if err := db.Model(model).Where("id = ?", id).Update("is_dismissed", true).Error; err != nil {
		return fmt.Errorf("dismiss recommendation %d: %w", id, err)
	}
	return nil
}

// ListCandidateRecommendations 返回职位未忽略的候选人推荐，按分数降序、候选人升序。
func (s *Store) ListCandidateRecommendations(ctx context.Context, jobID uint, minScore int) ([]database.CandidateRecommendation, error) {
	var rows []database.CandidateRecommendation
	err := s.db.WithContext(ctx).
		Where("job_id = ? AND is_dismissed = ? AND match_score >= ?", jobID, false, minScore).
		Order("match_score DESC").Order("candidate_id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list candidate recommendations: %w", err)
	}
	return rows, nil
}

// ListJobRecommendations 返回候选人未忽略的职位推荐。
func (s *Store) ListJobRecommendations(ctx context.Context, candidateID uint, minScore int) ([]database.JobRecommendation, error) {
	var rows []database.JobRecommendation
	err := s.db.WithContext(ctx).
		Where("candidate_id = ? AND is_dismissed = ? AND match_score >= ?", candidateID, false, minScore).
		Order("match_score DESC").Order("job_id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list job recommendations: %w", err)
	}
	return rows, nil
}

func notFoundOr(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", what, errcode.ErrNotFound)
	}
	return fmt.Errorf("load %s: %w", what, err)
}
