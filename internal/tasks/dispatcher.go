package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// Enqueuer 是 asynq.Client 的最小子集，便于测试替换。
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Dispatcher 把写路径上的事件转换为异步任务。
type Dispatcher struct {
	enqueuer    Enqueuer
	generations GenerationTracker
	maxRetry    int
	logger      *slog.Logger
}

// NewDispatcher 构造 Dispatcher。
func NewDispatcher(enqueuer Enqueuer, generations GenerationTracker, maxRetry int, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		enqueuer:    enqueuer,
		generations: generations,
		maxRetry:    maxRetry,
		logger:      logger,
	}
}

// RegenerateJob 请求重算职位的候选人推荐。
func (d *Dispatcher) RegenerateJob(ctx context.Context, jobID uint) error {
	return d.regenerate(ctx, SubjectJob, jobID)
}

// RegenerateCandidate 请求重算候选人的职位推荐。
func (d *Dispatcher) RegenerateCandidate(ctx context.Context, userID uint) error {
	return d.regenerate(ctx, SubjectCandidate, userID)
}

func (d *Dispatcher) regenerate(ctx context.Context, kind SubjectKind, id uint) error {
	if id == 0 {
		return fmt.Errorf("regenerate %s: missing subject id", kind)
	}
	gen, err := d.generations.Bump(ctx, kind, id)
	if err != nil {
		return err
	}

	correlationID := correlationIDFrom(ctx)
	task, err := NewRegenerateTask(RegeneratePayload{
		Kind:          kind,
		SubjectID:     id,
		Generation:    gen,
		CorrelationID: correlationID,
	})
	if err != nil {
		return fmt.Errorf("build regenerate task: %w", err)
	}

	info, err := d.enqueuer.EnqueueContext(ctx, task,
		asynq.Queue(QueueRecommendations),
		asynq.MaxRetry(d.maxRetry),
		asynq.Timeout(5*time.Minute),
	)
	if err != nil {
		return fmt.Errorf("enqueue regenerate %s: %w", SubjectKey(kind, id), err)
	}
	d.logger.Debug("regeneration enqueued",
		slog.String("subject", SubjectKey(kind, id)),
		slog.Int64("generation", gen),
		slog.String("task_id", info.ID),
		slog.String("correlation_id", correlationID),
	)
	return nil
}

// RunSavedSearch 请求执行一次保存搜索；已在队列中的同一搜索会被合并。
func (d *Dispatcher) RunSavedSearch(ctx context.Context, searchID uint) error {
	task, err := NewSavedSearchTask(searchID, correlationIDFrom(ctx))
	if err != nil {
		return fmt.Errorf("build saved search task: %w", err)
	}
	_, err = d.enqueuer.EnqueueContext(ctx, task,
		asynq.Queue(QueueRecommendations),
		asynq.MaxRetry(d.maxRetry),
		asynq.Unique(time.Minute),
	)
	if errors.Is(err, asynq.ErrDuplicateTask) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("enqueue saved search %d: %w", searchID, err)
	}
	return nil
}

type correlationKey struct{}

// WithCorrelationID 把关联 ID 放入 context，任务载荷会携带它。
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

// CorrelationID 读取 context 中的关联 ID。
func CorrelationID(ctx context.Context) string {
	if v, ok := ctx.Value(correlationKey{}).(string); ok {
		return v
	}
	return ""
}

func correlationIDFrom(ctx context.Context) string {
	if id := CorrelationID(ctx); id != "" {
		return id
	}
	return uuid.NewString()
}
