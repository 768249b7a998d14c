// Package recommend 维护职位与候选人之间的双向推荐列表。
package recommend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"gorm.io/gorm"

	"jobboard/internal/account"
	"jobboard/internal/database"
	"jobboard/internal/errcode"
	"jobboard/internal/matching"
	"jobboard/internal/metrics"
	"jobboard/internal/visibility"
)

// Scheduler 异步请求重算，由任务分发器实现。
type Scheduler interface {
	RegenerateJob(ctx context.Context, jobID uint) error
	RegenerateCandidate(ctx context.Context, userID uint) error
}

// Service 负责推荐重算、查询与忽略。
type Service struct {
	db     *gorm.DB
	store  *Store
	ranker *matching.Ranker
	locks  *keyedMutex
	logger *slog.Logger
}

// NewService 构造推荐服务。
func NewService(db *gorm.DB, store *Store, ranker *matching.Ranker, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		db:     db,
		store:  store,
		ranker: ranker,
		locks:  newKeyedMutex(),
		logger: logger,
	}
}

// Store 暴露底层存储，供申请流程在事务内剪枝。
func (s *Service) Store() *Store { return s.store }

// RegenerateForJob 重算职位的候选人推荐，返回写入行数。
// 职位不存在时什么都不做。同一职位的并发调用在进程内排队执行。
func (s *Service) RegenerateForJob(ctx context.Context, jobID uint) (int, error) {
	unlock := s.locks.Lock(fmt.Sprintf("job:%d", jobID))
	defer unlock()

	var job database.Job
	if err := s.db.WithContext(ctx).First(&job, jobID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.logger.Debug("skip regeneration for missing job", slog.Uint64("job_id", uint64(jobID)))
			return 0, nil
		}
		return 0, fmt.Errorf("load job %d: %w", jobID, err)
	}

	ranked, err := s.rankCandidatesForJob(ctx, &job)
	if err != nil {
		return 0, err
	}
	if err := s.store.UpsertCandidateRecommendations(ctx, job.ID, ranked); err != nil {
		return 0, err
	}
	metrics.ObserveRecommendations(string(KindCandidate), len(ranked))
	return len(ranked), nil
}

// RegenerateForCandidate 重算候选人的职位推荐。
// 资料缺失、招聘方、停用或 staff 账号都不生成推荐。
func (s *Service) RegenerateForCandidate(ctx context.Context, userID uint) (int, error) {
	unlock := s.locks.Lock(fmt.Sprintf("candidate:%d", userID))
	defer unlock()

	var profile database.Profile
	err := s.db.WithContext(ctx).Preload("Account").Where("user_id = ?", userID).Take(&profile).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("load profile for user %d: %w", userID, err)
	}
	if profile.IsRecruiter || profile.Account.ID == 0 || !profile.Account.IsActive || profile.Account.IsStaff {
		return 0, nil
	}

	ranked, err := s.rankJobsForCandidate(ctx, &profile)
	if err != nil {
		return 0, err
	}
	if err := s.store.UpsertJobRecommendations(ctx, userID, ranked); err != nil {
		return 0, err
	}
	metrics.ObserveRecommendations(string(KindJob), len(ranked))
	return len(ranked), nil
}

// RefreshForUser 为招聘方的全部职位或候选人本人请求重算，返回请求的主体数。
func (s *Service) RefreshForUser(ctx context.Context, actor account.Actor, scheduler Scheduler) (int, error) {
	if !actor.IsRecruiter {
		if err := scheduler.RegenerateCandidate(ctx, actor.UserID); err != nil {
			return 0, err
		}
		return 1, nil
	}

	var jobIDs []uint
	if err := s.db.WithContext(ctx).Model(&database.Job{}).
		Where("user_id = ?", actor.UserID).Order("id").Pluck("id", &jobIDs).Error; err != nil {
		return 0, fmt.Errorf("list jobs for user %d: %w", actor.UserID, err)
	}
	for _, id := range jobIDs {
		if err := scheduler.RegenerateJob(ctx, id); err != nil {
			return 0, err
		}
	}
	return len(jobIDs), nil
}

// RefreshJob 为单个职位请求重算，仅发布者或 staff 可调用。
func (s *Service) RefreshJob(ctx context.Context, actor account.Actor, jobID uint, scheduler Scheduler) error {
	if _, err := s.authorizeJobOwner(ctx, actor, jobID); err != nil {
		return err
	}
	return scheduler.RegenerateJob(ctx, jobID)
}

// CandidateRecommendationView 是逐字段过滤后的候选人推荐。
type CandidateRecommendationView struct {
	ID          uint
	JobID       uint
	CandidateID uint
	MatchScore  int
	Profile     visibility.Disclosure
}

// JobRecommendationView 是职位推荐及其职位内容。
type JobRecommendationView struct {
	ID         uint
	JobID      uint
	MatchScore int
	Job        database.Job
}

// ListCandidateRecommendations 返回职位的候选人推荐，资料逐字段经过可见性判定。
// 仅职位发布者或 staff 可查看；查看者完全不可见的候选人会被略过。
func (s *Service) ListCandidateRecommendations(ctx context.Context, actor account.Actor, jobID uint, minScore int) ([]CandidateRecommendationView, error) {
	if _, err := s.authorizeJobOwner(ctx, actor, jobID); err != nil {
		return nil, err
	}

	rows, err := s.store.ListCandidateRecommendations(ctx, jobID, clampMinScore(minScore))
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return []CandidateRecommendationView{}, nil
	}

	ids := make([]uint, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.CandidateID)
	}
	var profiles []database.Profile
	if err := s.db.WithContext(ctx).Preload("Account").Where("user_id IN ?", ids).Find(&profiles).Error; err != nil {
		return nil, fmt.Errorf("load candidate profiles: %w", err)
	}
	byUser := make(map[uint]*database.Profile, len(profiles))
	for i := range profiles {
		byUser[profiles[i].UserID] = &profiles[i]
	}

	viewer := actor.Viewer()
	views := make([]CandidateRecommendationView, 0, len(rows))
	for _, r := range rows {
		p, ok := byUser[r.CandidateID]
		if !ok || !visibility.CanView(viewer, p, visibility.FieldHeadline) {
			continue
		}
		views = append(views, CandidateRecommendationView{
			ID:          r.ID,
			JobID:       r.JobID,
			CandidateID: r.CandidateID,
			MatchScore:  r.MatchScore,
			Profile:     visibility.Disclose(viewer, p),
		})
	}
	return views, nil
}

// ListJobRecommendations 返回操作者本人的职位推荐，已删除的职位会被略过。
func (s *Service) ListJobRecommendations(ctx context.Context, actor account.Actor, minScore int) ([]JobRecommendationView, error) {
	rows, err := s.store.ListJobRecommendations(ctx, actor.UserID, clampMinScore(minScore))
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return []JobRecommendationView{}, nil
	}

	ids := make([]uint, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.JobID)
	}
	var jobs []database.Job
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("load recommended jobs: %w", err)
	}
	byID := make(map[uint]database.Job, len(jobs))
	for _, j := range jobs {
		byID[j.ID] = j
	}

	views := make([]JobRecommendationView, 0, len(rows))
	for _, r := range rows {
		job, ok := byID[r.JobID]
		if !ok {
			continue
		}
		views = append(views, JobRecommendationView{ID: r.ID, JobID: r.JobID, MatchScore: r.MatchScore, Job: job})
	}
	return views, nil
}

// Dismiss 忽略一条推荐。
func (s *Service) Dismiss(ctx context.Context, kind Kind, id uint, actor account.Actor) error {
	return s.store.Dismiss(ctx, kind, id, actor)
}

// JobOwner 返回职位发布者。
func (s *Service) JobOwner(ctx context.Context, jobID uint) (uint, error) {
	var job database.Job
	if err := s.db.WithContext(ctx).Select("id", "user_id").First(&job, jobID).Error; err != nil {
		return 0, notFoundOr(err, "job")
	}
	return job.UserID, nil
}

func (s *Service) authorizeJobOwner(ctx context.Context, actor account.Actor, jobID uint) (*database.Job, error) {
	var job database.Job
	if err := s.db.WithContext(ctx).First(&job, jobID).Error; err != nil {
		return nil, notFoundOr(err, "job")
	}
	if job.UserID != actor.UserID && !actor.IsStaff {
		return nil, errcode.ErrForbidden
	}
	return &job, nil
}

func clampMinScore(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
