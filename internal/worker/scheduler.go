package worker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// ActiveSearchSource 列出需要定时执行的检索。
type ActiveSearchSource interface {
	ActiveSearchIDs(ctx context.Context) ([]uint, error)
}

// SearchEnqueuer 把一次检索放入队列。
type SearchEnqueuer interface {
	RunSavedSearch(ctx context.Context, searchID uint) error
}

// Scheduler 按 cron 表达式为所有启用的检索入队。
type Scheduler struct {
	cron     *cron.Cron
	source   ActiveSearchSource
	enqueuer SearchEnqueuer
	logger   *slog.Logger
}

// NewScheduler 解析 spec 并注册任务，spec 支持 @every 等描述符。
func NewScheduler(spec string, source ActiveSearchSource, enqueuer SearchEnqueuer, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{
		cron:     cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		source:   source,
		enqueuer: enqueuer,
		logger:   logger,
	}
	if _, err := s.cron.AddFunc(spec, func() {
		if _, err := s.EnqueueAll(context.Background()); err != nil {
			s.logger.Error("scheduled saved search run failed", slog.Any("error", err))
		}
	}); err != nil {
		return nil, fmt.Errorf("parse saved search schedule %q: %w", spec, err)
	}
	return s, nil
}

// Start 立即入队一轮，然后启动 cron。
func (s *Scheduler) Start(ctx context.Context) {
	if _, err := s.EnqueueAll(ctx); err != nil {
		s.logger.Error("initial saved search run failed", slog.Any("error", err))
	}
	s.cron.Start()
}

// Stop 停止 cron 并等待正在执行的一轮结束。
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// EnqueueAll 为每个启用的检索入队，单个失败不影响其他检索。返回成功入队数。
func (s *Scheduler) EnqueueAll(ctx context.Context) (int, error) {
	ids, err := s.source.ActiveSearchIDs(ctx)
	if err != nil {
		return 0, err
	}
	queued := 0
	for _, id := range ids {
		if err := s.enqueuer.RunSavedSearch(ctx, id); err != nil {
			s.logger.Warn("enqueue saved search failed", slog.Uint64("search_id", uint64(id)), slog.Any("error", err))
			continue
		}
		queued++
	}
	s.logger.Info("saved searches enqueued", slog.Int("queued", queued), slog.Int("active", len(ids)))
	return queued, nil
}
