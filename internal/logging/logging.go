// Package logging 按配置构造进程级 slog.Logger。
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"jobboard/internal/config"
)

// New 构造写到标准输出的 Logger，并设为默认 Logger。
func New(cfg config.LogConfig, component string) *slog.Logger {
	logger := newLogger(os.Stdout, cfg).With(slog.String("component", component))
	slog.SetDefault(logger)
	return logger
}

func newLogger(w io.Writer, cfg config.LogConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}
	if strings.EqualFold(strings.TrimSpace(cfg.Format), "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// parseLevel 无法识别时回退到 info。
func parseLevel(raw string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(raw))); err != nil {
		return slog.LevelInfo
	}
	return level
}
