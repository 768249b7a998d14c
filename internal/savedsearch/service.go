package savedsearch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"jobboard/internal/account"
	"jobboard/internal/database"
	"jobboard/internal/errcode"
	"jobboard/internal/metrics"
	"jobboard/internal/notify"
	"jobboard/internal/visibility"
)

const scanBatchSize = 500

// Service 管理保存的检索及其命中记录。
type Service struct {
	db       *gorm.DB
	notifier notify.Publisher
	logger   *slog.Logger
	now      func() time.Time
}

// NewService 构造 Service。
func NewService(db *gorm.DB, notifier notify.Publisher, logger *slog.Logger) *Service {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{db: db, notifier: notifier, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// CreateInput 是新建检索的参数。
type CreateInput struct {
	Name          string
	Keywords      string
	Location      string
	MinExperience int
}

// Create 为招聘方或 staff 保存一个检索。
func (s *Service) Create(ctx context.Context, actor account.Actor, in CreateInput) (*database.SavedCandidateSearch, error) {
	if !actor.IsRecruiter && !actor.IsStaff {
		return nil, fmt.Errorf("only recruiters can save searches: %w", errcode.ErrForbidden)
	}
	name := strings.TrimSpace(in.Name)
	if name == "" || len(name) > 120 {
		return nil, &errcode.ValidationError{Msg: "name is required and must be at most 120 characters"}
	}
	if in.MinExperience < 0 {
		return nil, &errcode.ValidationError{Msg: "min_experience must not be negative"}
	}

	search := database.SavedCandidateSearch{
		OwnerID:       actor.UserID,
		Name:          name,
		Keywords:      strings.TrimSpace(in.Keywords),
		Location:      strings.TrimSpace(in.Location),
		MinExperience: in.MinExperience,
		IsActive:      true,
	}
	if err := s.db.WithContext(ctx).Create(&search).Error; err != nil {
		return nil, fmt.Errorf("create saved search: %w", err)
	}
	return &search, nil
}

// List 返回操作者的全部检索。
func (s *Service) List(ctx context.Context, actor account.Actor) ([]database.SavedCandidateSearch, error) {
	var searches []database.SavedCandidateSearch
	if err := s.db.WithContext(ctx).Where("owner_id = ?", actor.UserID).Order("id").Find(&searches).Error; err != nil {
		return nil, fmt.Errorf("list saved searches: %w", err)
	}
	return searches, nil
}

// Deactivate 停用检索，定时任务不再执行它。
func (s *Service) Deactivate(ctx context.Context, actor account.Actor, searchID uint) error {
	search, err := s.loadOwned(ctx, actor, searchID)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Model(search).Update("is_active", false).Error; err != nil {
		return fmt.Errorf("deactivate saved search: %w", err)
	}
	return nil
}

// Authorize 确认检索存在且属于操作者（staff 例外）。
func (s *Service) Authorize(ctx context.Context, actor account.Actor, searchID uint) error {
	_, err := s.loadOwned(ctx, actor, searchID)
	return err
}

// Run 重新执行检索，为新命中的候选人创建未读记录，返回新增数量。
// 重复执行且没有新候选人时不产生新记录。停用的检索直接返回 0。
func (s *Service) Run(ctx context.Context, searchID uint) (int, error) {
	var search database.SavedCandidateSearch
	if err := s.db.WithContext(ctx).First(&search, searchID).Error; err != nil {
		return 0, notFoundOr(err, "saved search")
	}
	if !search.IsActive {
		return 0, nil
	}

	owner, err := account.LoadActor(ctx, s.db, search.OwnerID)
	if err != nil {
		return 0, err
	}
	matcher := NewMatcher(owner.Viewer(), CriteriaOf(&search))

	db := s.db.WithContext(ctx)
	matched := db.Model(&database.SavedCandidateMatch{}).Select("candidate_id").Where("search_id = ?", search.ID)

	var hits []uint
	var batch []database.Profile
	err = db.Model(&database.Profile{}).
		Select("profiles.*").
		Joins("JOIN accounts ON accounts.id = profiles.user_id AND accounts.deleted_at IS NULL").
		Where("accounts.is_active = ? AND accounts.is_staff = ?", true, false).
		Where("profiles.is_recruiter = ?", false).
		Where("profiles.user_id <> ?", search.OwnerID).
		Where("profiles.user_id NOT IN (?)", matched).
		FindInBatches(&batch, scanBatchSize, func(_ *gorm.DB, _ int) error {
			for i := range batch {
				if matcher.Match(&batch[i]) {
					hits = append(hits, batch[i].UserID)
				}
			}
			return nil
		}).Error
	if err != nil {
		return 0, fmt.Errorf("scan candidates for search %d: %w", search.ID, err)
	}

	now := s.now()
	created := 0
	if len(hits) > 0 {
		rows := make([]database.SavedCandidateMatch, 0, len(hits))
		for _, id := range hits {
			rows = append(rows, database.SavedCandidateMatch{SearchID: search.ID, CandidateID: id, MatchedAt: now})
		}
		res := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "search_id"}, {Name: "candidate_id"}},
			DoNothing: true,
		}).Create(&rows)
		if res.Error != nil {
			return 0, fmt.Errorf("insert saved search matches: %w", res.Error)
		}
		created = int(res.RowsAffected)
	}

	if err := db.Model(&search).Update("last_run_at", now).Error; err != nil {
		return created, fmt.Errorf("update last run: %w", err)
	}

	metrics.ObserveSavedSearchMatches(created)
	if created > 0 {
		if err := s.notifier.Publish(ctx, search.OwnerID, notify.Message{
			Type:       notify.TypeSavedSearchMatches,
			SearchID:   search.ID,
			NewMatches: created,
		}); err != nil {
			s.logger.Warn("publish saved search notification failed", slog.Any("error", err))
		}
	}
	s.logger.Info("saved search executed",
		slog.Uint64("search_id", uint64(search.ID)),
		slog.Int("new_matches", created),
	)
	return created, nil
}

// MatchView 是逐字段过滤后的命中记录。
type MatchView struct {
	ID          uint
	CandidateID uint
	MatchedAt   time.Time
	Seen        bool
	Profile     visibility.Disclosure
}

// ListMatches 返回检索的命中记录，未读在前。
func (s *Service) ListMatches(ctx context.Context, actor account.Actor, searchID uint) ([]MatchView, error) {
	if _, err := s.loadOwned(ctx, actor, searchID); err != nil {
		return nil, err
	}
	var rows []database.SavedCandidateMatch
	if err := s.db.WithContext(ctx).Where("search_id = ?", searchID).
		Order("seen ASC").Order("matched_at DESC").Order("id DESC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list matches: %w", err)
	}
	if len(rows) == 0 {
		return []MatchView{}, nil
	}

	ids := make([]uint, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.CandidateID)
	}
	var profiles []database.Profile
	if err := s.db.WithContext(ctx).Preload("Account").Where("user_id IN ?", ids).Find(&profiles).Error; err != nil {
		return nil, fmt.Errorf("load matched profiles: %w", err)
	}
	byUser := make(map[uint]*database.Profile, len(profiles))
	for i := range profiles {
		byUser[profiles[i].UserID] = &profiles[i]
	}

	viewer := actor.Viewer()
	views := make([]MatchView, 0, len(rows))
	for _, r := range rows {
		view := MatchView{ID: r.ID, CandidateID: r.CandidateID, MatchedAt: r.MatchedAt, Seen: r.Seen}
		if p, ok := byUser[r.CandidateID]; ok {
			view.Profile = visibility.Disclose(viewer, p)
		}
		views = append(views, view)
	}
	return views, nil
}

func ownedSearchIDs(db *gorm.DB, ownerID uint) *gorm.DB {
	return db.Model(&database.SavedCandidateSearch{}).Select("id").Where("owner_id = ?", ownerID)
}

// UnseenMatchCount 返回招聘方全部检索的未读命中数。
func (s *Service) UnseenMatchCount(ctx context.Context, ownerID uint) (int64, error) {
	db := s.db.WithContext(ctx)
	var n int64
	err := db.Model(&database.SavedCandidateMatch{}).
		Where("seen = ? AND search_id IN (?)", false, ownedSearchIDs(db, ownerID)).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("count unseen matches: %w", err)
	}
	return n, nil
}

// MarkAllSeen 批量将招聘方的未读命中标记为已读，返回更新行数。
func (s *Service) MarkAllSeen(ctx context.Context, ownerID uint) (int64, error) {
	db := s.db.WithContext(ctx)
	res := db.Model(&database.SavedCandidateMatch{}).
		Where("seen = ? AND search_id IN (?)", false, ownedSearchIDs(db, ownerID)).
		Update("seen", true)
	if res.Error != nil {
		return 0, fmt.Errorf("mark matches seen: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// ActiveSearchIDs 返回所有启用的检索，供定时任务使用。
func (s *Service) ActiveSearchIDs(ctx context.Context) ([]uint, error) {
	var ids []uint
	if err := s.db.WithContext(ctx).Model(&database.SavedCandidateSearch{}).
		Where("is_active = ?", true).Order("id").Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("list active searches: %w", err)
	}
	return ids, nil
}

func (s *Service) loadOwned(ctx context.Context, actor account.Actor, searchID uint) (*database.SavedCandidateSearch, error) {
	var search database.SavedCandidateSearch
	if err := s.db.WithContext(ctx).First(&search, searchID).Error; err != nil {
		return nil, notFoundOr(err, "saved search")
	}
	if search.OwnerID != actor.UserID && !actor.IsStaff {
		return nil, errcode.ErrForbidden
	}
	return &search, nil
}

func notFoundOr(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", what, errcode.ErrNotFound)
	}
	return fmt.Errorf("load %s: %w", what, err)
}

// DefaultSearchLimit 是即时候选人检索的默认返回条数。
const DefaultSearchLimit = 50

// Search 即时检索候选人，条件与保存的检索相同，结果逐字段过滤。仅招聘方或 staff 可用。
func (s *Service) Search(ctx context.Context, actor account.Actor, c Criteria, limit int) ([]visibility.Disclosure, error) {
	if !actor.IsRecruiter && !actor.IsStaff {
		return nil, fmt.Errorf("only recruiters can search candidates: %w", errcode.ErrForbidden)
	}
	if c.MinExperience < 0 {
		return nil, &errcode.ValidationError{Msg: "min_experience must not be negative"}
	}
	if limit <= 0 || limit > DefaultSearchLimit {
		limit = DefaultSearchLimit
	}

	viewer := actor.Viewer()
	matcher := NewMatcher(viewer, c)
	out := make([]visibility.Disclosure, 0)

	var batch []database.Profile
	err := s.db.WithContext(ctx).Model(&database.Profile{}).
		Preload("Account").
		Select("profiles.*").
		Joins("JOIN accounts ON accounts.id = profiles.user_id AND accounts.deleted_at IS NULL").
		Where("accounts.is_active = ? AND accounts.is_staff = ?", true, false).
		Where("profiles.is_recruiter = ?", false).
		Where("profiles.user_id <> ?", actor.UserID).
		FindInBatches(&batch, scanBatchSize, func(tx *gorm.DB, _ int) error {
			for i := range batch {
				if len(out) >= limit {
					break
				}
				if matcher.Match(&batch[i]) {
					out = append(out, visibility.Disclose(viewer, &batch[i]))
				}
			}
			if len(out) >= limit {
				// 提前结束分批扫描。
				return errSearchFull
			}
			return nil
		}).Error
	if err != nil && !errors.Is(err, errSearchFull) {
		return nil, fmt.Errorf("search candidates: %w", err)
	}
	return out, nil
}

var errSearchFull = errors.New("search limit reached")
