package storage

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"jobboard/internal/visibility"
)

// Presigner 为对象生成限时链接，由 *Client 实现。
type Presigner interface {
	PresignedURL(ctx context.Context, objectKey string, ttl time.Duration) (string, error)
}

// ResumeLinker 把披露视图中的简历对象 key 替换为限时链接。
// 未配置对象存储时简历字段总是被移除，对象 key 不会出现在响应中。
type ResumeLinker struct {
	presigner Presigner
	ttl       time.Duration
	logger    *slog.Logger
}

// NewResumeLinker 构造 ResumeLinker，presigner 为 nil 表示未启用存储。
func NewResumeLinker(presigner Presigner, ttl time.Duration, logger *slog.Logger) *ResumeLinker {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ResumeLinker{presigner: presigner, ttl: ttl, logger: logger}
}

// Resolve 只处理已披露的简历字段；签名失败时移除该字段。
func (l *ResumeLinker) Resolve(ctx context.Context, d visibility.Disclosure) visibility.Disclosure {
	key, ok := d.Fields[visibility.FieldResume]
	if !ok {
		return d
	}
	key = strings.TrimSpace(key)
	if l == nil || l.presigner == nil || key == "" {
		delete(d.Fields, visibility.FieldResume)
		return d
	}
	link, err := l.presigner.PresignedURL(ctx, key, l.ttl)
	if err != nil {
		l.logger.Warn("presign resume failed", slog.Uint64("user_id", uint64(d.UserID)), slog.Any("error", err))
		delete(d.Fields, visibility.FieldResume)
		return d
	}
	d.Fields[visibility.FieldResume] = link
	return d
}
