package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hibiken/asynq"

	"jobboard/internal/errcode"
	"jobboard/internal/metrics"
	"jobboard/internal/notify"
	"jobboard/internal/tasks"
)

// Regenerator 执行实际的推荐重算，由 recommend.Service 实现。
type Regenerator interface {
	RegenerateForJob(ctx context.Context, jobID uint) (int, error)
	RegenerateForCandidate(ctx context.Context, userID uint) (int, error)
	JobOwner(ctx context.Context, jobID uint) (uint, error)
}

// RegenerateHandler 消费 recommend:job 与 recommend:candidate 任务。
//
// 同一主体在持锁期间串行处理。载荷代数不超过已完成代数的任务直接合并，
// 完成时记录的是重算开始前读到的请求代数。
type RegenerateHandler struct {
	regen       Regenerator
	generations tasks.GenerationTracker
	locker      SubjectLocker
	notifier    notify.Publisher
	lockTTL     time.Duration
	logger      *slog.Logger
}

// NewRegenerateHandler 创建任务处理器。
func NewRegenerateHandler(
	regen Regenerator,
	generations tasks.GenerationTracker,
	locker SubjectLocker,
	notifier notify.Publisher,
	lockTTL time.Duration,
	logger *slog.Logger,
) *RegenerateHandler {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if lockTTL <= 0 {
		lockTTL = 2 * time.Minute
	}
	return &RegenerateHandler{
		regen:       regen,
		generations: generations,
		locker:      locker,
		notifier:    notifier,
		lockTTL:     lockTTL,
		logger:      logger,
	}
}

// ProcessTask 实现 asynq.Handler。
func (h *RegenerateHandler) ProcessTask(ctx context.Context, t *asynq.Task) (retErr error) {
	payload, err := tasks.ParseRegeneratePayload(t)
	if err != nil {
		h.logger.Error("invalid regenerate payload", slog.String("task_type", t.Type()), slog.Any("error", err))
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	subject := tasks.SubjectKey(payload.Kind, payload.SubjectID)
	log := h.logger.With(
		slog.String("correlation_id", payload.CorrelationID),
		slog.String("subject", subject),
		slog.Int64("generation", payload.Generation),
	)

	lock, err := h.locker.Acquire(ctx, subject, h.lockTTL)
	if err != nil {
		if errors.Is(err, ErrSubjectBusy) {
			log.Debug("subject busy, retry later")
		}
		return err
	}
	defer func() {
		// 任务 ctx 可能已取消，释放锁不能依赖它。
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := lock.Release(releaseCtx); err != nil {
			log.Warn("release subject lock failed", slog.Any("error", err))
		}
	}()

	defer func() {
		if retErr != nil && isFinalAsynqAttempt(ctx) {
			log.Error("regeneration gave up after final attempt", slog.Any("error", retErr))
		}
	}()

	// 持锁期间定期续期；锁丢失时取消本次重算。
	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	stopRenew := h.keepAlive(runCtx, lock, cancel, log)
	defer stopRenew()

	done, err := h.generations.Completed(runCtx, payload.Kind, payload.SubjectID)
	if err != nil {
		return lockLostOr(runCtx, err)
	}
	if payload.Generation > 0 && payload.Generation <= done {
		metrics.ObserveCoalesced(string(payload.Kind))
		log.Debug("regeneration coalesced", slog.Int64("completed", done))
		return nil
	}

	current, err := h.generations.Current(runCtx, payload.Kind, payload.SubjectID)
	if err != nil {
		return lockLostOr(runCtx, err)
	}

	start := time.Now()
	rows, err := h.regenerate(runCtx, payload.Kind, payload.SubjectID)
	metrics.ObserveRegeneration(string(payload.Kind), time.Since(start))
	if err != nil {
		err = lockLostOr(runCtx, err)
		log.Error("regeneration failed", slog.Any("error", err))
		return err
	}

	if err := h.generations.MarkCompleted(runCtx, payload.Kind, payload.SubjectID, current); err != nil {
		return lockLostOr(runCtx, err)
	}

	h.notifyUpdated(ctx, log, payload.Kind, payload.SubjectID)
	log.Info("recommendations regenerated", slog.Int("rows", rows), slog.Int64("completed", current))
	return nil
}

// renewInterval 为锁 TTL 的三分之一。
func (h *RegenerateHandler) renewInterval() time.Duration {
	if d := h.lockTTL / 3; d > 0 {
		return d
	}
	return h.lockTTL
}

// keepAlive 在后台续期锁，返回的函数停止续期并等待 goroutine 退出。
func (h *RegenerateHandler) keepAlive(ctx context.Context, lock Lock, cancel context.CancelCauseFunc, log *slog.Logger) func() {
	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(h.renewInterval())
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				err := lock.Extend(ctx, h.lockTTL)
				if err == nil {
					continue
				}
				if errors.Is(err, ErrLockLost) {
					log.Error("subject lock lost during regeneration")
					cancel(ErrLockLost)
					return
				}
				log.Warn("extend subject lock failed", slog.Any("error", err))
			}
		}
	}()
	return func() {
		close(stop)
		wg.Wait()
	}
}

func lockLostOr(ctx context.Context, err error) error {
	if errors.Is(context.Cause(ctx), ErrLockLost) {
		return fmt.Errorf("%w: %v", ErrLockLost, err)
	}
	return err
}

func (h *RegenerateHandler) regenerate(ctx context.Context, kind tasks.SubjectKind, id uint) (int, error) {
	switch kind {
	case tasks.SubjectJob:
		return h.regen.RegenerateForJob(ctx, id)
	case tasks.SubjectCandidate:
		return h.regen.RegenerateForCandidate(ctx, id)
	default:
		return 0, fmt.Errorf("%w: unknown subject kind %q", asynq.SkipRetry, kind)
	}
}

// notifyUpdated 通知推荐列表的拥有者：职位推荐给发布者，职位列表给候选人本人。
func (h *RegenerateHandler) notifyUpdated(ctx context.Context, log *slog.Logger, kind tasks.SubjectKind, id uint) {
	recipient := id
	if kind == tasks.SubjectJob {
		owner, err := h.regen.JobOwner(ctx, id)
		if err != nil {
			if !errors.Is(err, errcode.ErrNotFound) {
				log.Warn("resolve job owner failed", slog.Any("error", err))
			}
			return
		}
		recipient = owner
	}
	msg := notify.Message{
		Type:        notify.TypeRecommendationsUpdate,
		SubjectKind: string(kind),
		SubjectID:   id,
	}
	if err := h.notifier.Publish(ctx, recipient, msg); err != nil {
		log.Warn("publish recommendations notification failed", slog.Any("error", err))
	}
}

func isFinalAsynqAttempt(ctx context.Context) bool {
	retryCount, ok1 := asynq.GetRetryCount(ctx)
	maxRetry, ok2 := asynq.GetMaxRetry(ctx)
	if !ok1 || !ok2 {
		return false
	}
	return retryCount >= maxRetry
}

// RetryDelayFunc 对主体忙的任务使用固定短延迟，其余沿用 asynq 默认的指数退避。
func RetryDelayFunc(busyDelay time.Duration) asynq.RetryDelayFunc {
	return func(n int, err error, t *asynq.Task) time.Duration {
		if errors.Is(err, ErrSubjectBusy) {
			return busyDelay
		}
		return asynq.DefaultRetryDelayFunc(n, err, t)
	}
}

// IsFailure 主体忙不计入失败指标。
func IsFailure(err error) bool {
	return !errors.Is(err, ErrSubjectBusy)
}
