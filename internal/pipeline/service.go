package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"jobboard/internal/account"
	"jobboard/internal/database"
	"jobboard/internal/errcode"
	"jobboard/internal/metrics"
	"jobboard/internal/notify"
	"jobboard/internal/recommend"
)

const maxNoteLength = 4000

// HistoryEntry 是 history_log 中的一条流转记录。
type HistoryEntry struct {
	From    Status    `json:"from"`
	To      Status    `json:"to"`
	At      time.Time `json:"at"`
	ActorID uint      `json:"actor_id"`
}

// Service 负责申请的创建、撤回与状态流转。
type Service struct {
	db        *gorm.DB
	recs      *recommend.Store
	scheduler recommend.Scheduler
	notifier  notify.Publisher
	logger    *slog.Logger
	now       func() time.Time
}

// NewService 构造申请流程服务。
func NewService(db *gorm.DB, recs *recommend.Store, scheduler recommend.Scheduler, notifier notify.Publisher, logger *slog.Logger) *Service {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		db:        db,
		recs:      recs,
		scheduler: scheduler,
		notifier:  notifier,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Apply 投递职位。首次投递创建 SUBMITTED 申请；重复投递只更新附言，
// 已撤回的申请重新回到 SUBMITTED。投递会删除该对的双向推荐并请求重算。
func (s *Service) Apply(ctx context.Context, actor account.Actor, jobID uint, note string) (*database.Application, error) {
	note = strings.TrimSpace(note)
	if len(note) > maxNoteLength {
		return nil, &errcode.ValidationError{Msg: "note is too long"}
	}

	job, err := s.loadJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.UserID == actor.UserID {
		return nil, fmt.Errorf("apply to own job: %w", errcode.ErrForbidden)
	}

	var app database.Application
	var from Status
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.now()
		history, err := appendHistory(nil, HistoryEntry{To: StatusSubmitted, At: now, ActorID: actor.UserID})
		if err != nil {
			return err
		}
		app = database.Application{
			JobID:       job.ID,
			ApplicantID: actor.UserID,
			Status:      string(StatusSubmitted),
			Note:        note,
			HistoryLog:  history,
		}
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "job_id"}, {Name: "applicant_id"}},
			DoNothing: true,
		}).Create(&app)
		if res.Error != nil {
			return fmt.Errorf("create application: %w", res.Error)
		}

		if res.RowsAffected == 0 {
			if err := tx.Where("job_id = ? AND applicant_id = ?", job.ID, actor.UserID).Take(&app).Error; err != nil {
				return fmt.Errorf("load existing application: %w", err)
			}
			from = Status(app.Status)
			if err := s.reapply(tx, &app, actor, note, now); err != nil {
				return err
			}
		}

		return s.recs.WithDB(tx).PruneOnApplication(ctx, job.ID, actor.UserID)
	})
	if err != nil {
		return nil, err
	}

	if from == "" || from == StatusWithdrawn {
		metrics.ObserveTransition(string(from), string(StatusSubmitted))
		s.publish(ctx, job.UserID, notify.Message{
			Type:          notify.TypeApplicationStatus,
			ApplicationID: app.ID,
			JobID:         job.ID,
			Status:        string(StatusSubmitted),
		})
	}
	s.scheduleRegeneration(ctx, job.ID, actor.UserID)
	return &app, nil
}

func (s *Service) reapply(tx *gorm.DB, app *database.Application, actor account.Actor, note string, now time.Time) error {
	if Status(app.Status) != StatusWithdrawn {
		if err := tx.Model(app).Updates(map[string]interface{}{"note": note, "updated_at": now}).Error; err != nil {
			return fmt.Errorf("update application note: %w", err)
		}
		app.Note = note
		return nil
	}

	history, err := appendHistory(app.HistoryLog, HistoryEntry{From: StatusWithdrawn, To: StatusSubmitted, At: now, ActorID: actor.UserID})
	if err != nil {
		return err
	}
	res := tx.Model(&database.Application{}).
		Where("id = ? AND status = ?", app.ID, string(StatusWithdrawn)).
		Updates(map[string]interface{}{
			"status":      string(StatusSubmitted),
			"note":        note,
			"history_log": history,
			"updated_at":  now,
		})
	if res.Error != nil {
		return fmt.Errorf("reset withdrawn application: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return errcode.ErrStaleStatus
	}
	app.Status = string(StatusSubmitted)
	app.Note = note
	app.HistoryLog = history
	app.UpdatedAt = now
	return nil
}

// Withdraw 由申请人撤回自己的申请。
func (s *Service) Withdraw(ctx context.Context, actor account.Actor, jobID uint) (*database.Application, error) {
	var app database.Application
	err := s.db.WithContext(ctx).Where("job_id = ? AND applicant_id = ?", jobID, actor.UserID).Take(&app).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("application for job %d: %w", jobID, errcode.ErrNotFound)
		}
		return nil, fmt.Errorf("load application: %w", err)
	}

	from := Status(app.Status)
	if !IsTransitionAllowed(from, StatusWithdrawn) {
		return nil, fmt.Errorf("%w: %s cannot be withdrawn", errcode.ErrInvalidTransition, from)
	}
	if err := s.transition(ctx, &app, from, StatusWithdrawn, actor.UserID); err != nil {
		return nil, err
	}
	if err := s.recs.PruneOnApplication(ctx, app.JobID, app.ApplicantID); err != nil {
		s.logger.Warn("prune recommendations after withdrawal failed", slog.Any("error", err))
	}

	var job database.Job
	if err := s.db.WithContext(ctx).Select("id", "user_id").First(&job, app.JobID).Error; err == nil {
		s.publish(ctx, job.UserID, notify.Message{
			Type:          notify.TypeApplicationStatus,
			ApplicationID: app.ID,
			JobID:         app.JobID,
			Status:        string(StatusWithdrawn),
		})
	}
	s.scheduleRegeneration(ctx, app.JobID, app.ApplicantID)
	return &app, nil
}

// Advance 沿前进边推进申请，以读取到的当前状态作为期望状态。
func (s *Service) Advance(ctx context.Context, actor account.Actor, appID uint) (*database.Application, error) {
	app, _, err := s.loadForReviewer(ctx, actor, appID)
	if err != nil {
		return nil, err
	}
	return s.advanceFrom(ctx, actor, app, Status(app.Status))
}

// AdvanceFrom 与 Advance 相同，但由调用方给出它看到的状态。
// 状态已被其他写者改变时返回 ErrStaleStatus，不会覆盖对方的结果。
func (s *Service) AdvanceFrom(ctx context.Context, actor account.Actor, appID uint, expected Status) (*database.Application, error) {
	app, _, err := s.loadForReviewer(ctx, actor, appID)
	if err != nil {
		return nil, err
	}
	return s.advanceFrom(ctx, actor, app, expected)
}

func (s *Service) advanceFrom(ctx context.Context, actor account.Actor, app *database.Application, expected Status) (*database.Application, error) {
	to, ok := Next(expected)
	if !ok {
		return nil, fmt.Errorf("%w: %s has no next stage", errcode.ErrInvalidTransition, expected)
	}
	if err := s.transition(ctx, app, expected, to, actor.UserID); err != nil {
		return nil, err
	}
	s.notifyApplicant(ctx, app)
	return app, nil
}

// Reject 拒绝一个未结束的申请。
func (s *Service) Reject(ctx context.Context, actor account.Actor, appID uint) (*database.Application, error) {
	app, _, err := s.loadForReviewer(ctx, actor, appID)
	if err != nil {
		return nil, err
	}
	from := Status(app.Status)
	if !IsTransitionAllowed(from, StatusRejected) {
		return nil, fmt.Errorf("%w: %s cannot be rejected", errcode.ErrInvalidTransition, from)
	}
	if err := s.transition(ctx, app, from, StatusRejected, actor.UserID); err != nil {
		return nil, err
	}
	s.notifyApplicant(ctx, app)
	return app, nil
}

// UpdateNote 由申请人修改附言，不改变状态。
func (s *Service) UpdateNote(ctx context.Context, actor account.Actor, appID uint, note string) (*database.Application, error) {
	note = strings.TrimSpace(note)
	if len(note) > maxNoteLength {
		return nil, &errcode.ValidationError{Msg: "note is too long"}
	}
	var app database.Application
	if err := s.db.WithContext(ctx).First(&app, appID).Error; err != nil {
		return nil, notFoundOr(err, "application")
	}
	if app.ApplicantID != actor.UserID {
		return nil, errcode.ErrForbidden
	}
	if err := s.db.WithContext(ctx).Model(&app).Updates(map[string]interface{}{"note": note, "updated_at": s.now()}).Error; err != nil {
		return nil, fmt.Errorf("update note: %w", err)
	}
	app.Note = note
	return &app, nil
}

// ListForJob 返回职位的全部申请，仅发布者或 staff 可见。
func (s *Service) ListForJob(ctx context.Context, actor account.Actor, jobID uint) ([]database.Application, error) {
	job, err := s.loadJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.UserID != actor.UserID && !actor.IsStaff {
		return nil, errcode.ErrForbidden
	}
	var apps []database.Application
	if err := s.db.WithContext(ctx).Where("job_id = ?", jobID).Order("created_at ASC").Order("id ASC").Find(&apps).Error; err != nil {
		return nil, fmt.Errorf("list applications for job: %w", err)
	}
	return apps, nil
}

// ListForApplicant 返回操作者本人的申请，可按状态过滤。
func (s *Service) ListForApplicant(ctx context.Context, actor account.Actor, status string) ([]database.Application, error) {
	q := s.db.WithContext(ctx).Where("applicant_id = ?", actor.UserID)
	if status != "" {
		st, err := ParseStatus(status)
		if err != nil {
			return nil, &errcode.ValidationError{Msg: err.Error()}
		}
		q = q.Where("status = ?", string(st))
	}
	var apps []database.Application
	if err := q.Order("updated_at DESC").Order("id DESC").Find(&apps).Error; err != nil {
		return nil, fmt.Errorf("list applications: %w", err)
	}
	return apps, nil
}

// History 解析申请的流转记录。
func History(app *database.Application) ([]HistoryEntry, error) {
	var entries []HistoryEntry
	if len(app.HistoryLog) == 0 {
		return entries, nil
	}
	if err := json.Unmarshal(app.HistoryLog, &entries); err != nil {
		return nil, fmt.Errorf("decode history log: %w", err)
	}
	return entries, nil
}

// transition 以 compare-and-set 方式写入新状态；影响 0 行说明状态已被改写。
func (s *Service) transition(ctx context.Context, app *database.Application, from, to Status, actorID uint) error {
	if !IsTransitionAllowed(from, to) {
		return fmt.Errorf("%w: %s -> %s", errcode.ErrInvalidTransition, from, to)
	}
	now := s.now()
	history, err := appendHistory(app.HistoryLog, HistoryEntry{From: from, To: to, At: now, ActorID: actorID})
	if err != nil {
		return err
	}

	res := s.db.WithContext(ctx).Model(&database.Application{}).
		Where("id = ? AND status = ?", app.ID, string(from)).
		Updates(map[string]interface{}{
			"status":      string(to),
			"history_log": history,
			"updated_at":  now,
		})
	if res.Error != nil {
		return fmt.Errorf("update application status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("application %d no longer %s: %w", app.ID, from, errcode.ErrStaleStatus)
	}

	app.Status = string(to)
	app.HistoryLog = history
	app.UpdatedAt = now
	metrics.ObserveTransition(string(from), string(to))
	s.logger.Info("application status changed",
		slog.Uint64("application_id", uint64(app.ID)),
		slog.String("from", string(from)),
		slog.String("to", string(to)),
		slog.Uint64("actor_id", uint64(actorID)),
	)
	return nil
}

func (s *Service) loadForReviewer(ctx context.Context, actor account.Actor, appID uint) (*database.Application, *database.Job, error) {
	var app database.Application
	if err := s.db.WithContext(ctx).First(&app, appID).Error; err != nil {
		return nil, nil, notFoundOr(err, "application")
	}
	job, err := s.loadJob(ctx, app.JobID)
	if err != nil {
		return nil, nil, err
	}
	if job.UserID != actor.UserID && !actor.IsStaff {
		return nil, nil, errcode.ErrForbidden
	}
	return &app, job, nil
}

func (s *Service) loadJob(ctx context.Context, jobID uint) (*database.Job, error) {
	var job database.Job
	if err := s.db.WithContext(ctx).First(&job, jobID).Error; err != nil {
		return nil, notFoundOr(err, "job")
	}
	return &job, nil
}

func (s *Service) notifyApplicant(ctx context.Context, app *database.Application) {
	s.publish(ctx, app.ApplicantID, notify.Message{
		Type:          notify.TypeApplicationStatus,
		ApplicationID: app.ID,
		JobID:         app.JobID,
		Status:        app.Status,
	})
}

func (s *Service) publish(ctx context.Context, userID uint, msg notify.Message) {
	if err := s.notifier.Publish(ctx, userID, msg); err != nil {
		s.logger.Warn("publish application notification failed",
			slog.Uint64("user_id", uint64(userID)),
			slog.Any("error", err),
		)
	}
}

func (s *Service) scheduleRegeneration(ctx context.Context, jobID, applicantID uint) {
	if s.scheduler == nil {
		return
	}
	if err := s.scheduler.RegenerateJob(ctx, jobID); err != nil {
		s.logger.Warn("schedule job regeneration failed", slog.Uint64("job_id", uint64(jobID)), slog.Any("error", err))
	}
	if err := s.scheduler.RegenerateCandidate(ctx, applicantID); err != nil {
		s.logger.Warn("schedule candidate regeneration failed", slog.Uint64("user_id", uint64(applicantID)), slog.Any("error", err))
	}
}

func appendHistory(raw datatypes.JSON, entry HistoryEntry) (datatypes.JSON, error) {
	var entries []HistoryEntry
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &entries); err != nil {
			return nil, fmt.Errorf("decode history log: %w", err)
		}
	}
	entries = append(entries, entry)
	b, err := json.Marshal(entries)
	if err != nil {
		return nil, fmt.Errorf("encode history log: %w", err)
	}
	return datatypes.JSON(b), nil
}

func notFoundOr(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", what, errcode.ErrNotFound)
	}
	return fmt.Errorf("load %s: %w", what, err)
}
