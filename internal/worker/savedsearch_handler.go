package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"jobboard/internal/errcode"
	"jobboard/internal/tasks"
)

// SearchRunner 执行一次保存的检索。
type SearchRunner interface {
	Run(ctx context.Context, searchID uint) (int, error)
}

// SavedSearchHandler 消费 savedsearch:run 任务。
type SavedSearchHandler struct {
	runner SearchRunner
	logger *slog.Logger
}

func NewSavedSearchHandler(runner SearchRunner, logger *slog.Logger) *SavedSearchHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SavedSearchHandler{runner: runner, logger: logger}
}

// ProcessTask 实现 asynq.Handler。检索已被删除时直接确认任务。
func (h *SavedSearchHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	payload, err := tasks.ParseSavedSearchPayload(t)
	if err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}
	log := h.logger.With(
		slog.String("correlation_id", payload.CorrelationID),
		slog.Uint64("search_id", uint64(payload.SearchID)),
	)

	n, err := h.runner.Run(ctx, payload.SearchID)
	if errors.Is(err, errcode.ErrNotFound) {
		log.Warn("saved search not found, skipping task")
		return nil
	}
	if err != nil {
		log.Error("run saved search failed", slog.Any("error", err))
		return err
	}
	log.Debug("saved search task done", slog.Int("new_matches", n))
	return nil
}
