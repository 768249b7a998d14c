package errcode

import (
	"errors"
)

// 错误码约定：
// - 0：无错误
// - 4xxx：业务可恢复错误（调用方可处理，不中断进程）
// - 5xxx：系统错误
const (
	OK                = 0
	Validation        = 4000
	Forbidden         = 4003
	ResourceMissing   = 4004
	InvalidTransition = 4009
	SystemError       = 5000
)

var (
	// ErrNotFound 表示主体（职位、申请、推荐、检索）不存在。
	ErrNotFound = errors.New("not found")
	// ErrForbidden 表示操作者无权执行该操作，且没有发生任何写入。
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidTransition 表示当前状态没有对应的出边，调用被视为 no-op。
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrStaleStatus 表示 compare-and-set 时状态已被其他写者修改。
	ErrStaleStatus = errors.New("stale status")
)

// ValidationError wraps a user-facing validation message.
type ValidationError struct{ Msg string }

func (e *ValidationError) Error() string { return e.Msg }

// Of 将错误映射为错误码。
func Of(err error) int {
	if err == nil {
		return OK
	}
	var ve *ValidationError
	switch {
	case errors.As(err, &ve):
		return Validation
	case errors.Is(err, ErrForbidden):
		return Forbidden
	case errors.Is(err, ErrNotFound):
		return ResourceMissing
	case errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrStaleStatus):
		return InvalidTransition
	default:
		return SystemError
	}
}
