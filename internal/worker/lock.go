package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrSubjectBusy 表示同一主体正在被另一个 worker 重算，任务稍后重试。
	ErrSubjectBusy = errors.New("subject busy")
	// ErrLockLost 表示续期时锁已过期或被他人持有。
	ErrLockLost = errors.New("subject lock lost")
)

// Lock 是已持有的主体锁。
type Lock interface {
	// Extend 把过期时间重置为 ttl；锁已不属于自己时返回 ErrLockLost。
	Extend(ctx context.Context, ttl time.Duration) error
	Release(ctx context.Context) error
}

// SubjectLocker 为单个推荐主体提供跨进程互斥。
type SubjectLocker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (Lock, error)
}

// RedisLocker 使用 SET NX PX 加锁，续期与释放都校验 token。
type RedisLocker struct {
	client redis.UniversalClient
}

func NewRedisLocker(client redis.UniversalClient) *RedisLocker {
	return &RedisLocker{client: client}
}

func lockKey(key string) string {
	return "recommend:lock:" + key
}

// releaseScript 只删除自己持有的锁，锁过期后被他人获取时不会误删。
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (Lock, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, lockKey(key), token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, ErrSubjectBusy
	}
	return &redisLock{client: l.client, key: key, token: token}, nil
}

type redisLock struct {
	client redis.UniversalClient
	key    string
	token  string
}

func (l *redisLock) Extend(ctx context.Context, ttl time.Duration) error {
	n, err := extendScript.Run(ctx, l.client, []string{lockKey(l.key)}, l.token, ttl.Milliseconds()).Int64()
	if err != nil {
		return fmt.Errorf("extend lock %s: %w", l.key, err)
	}
	if n == 0 {
		return ErrLockLost
	}
	return nil
}

func (l *redisLock) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, l.client, []string{lockKey(l.key)}, l.token).Err(); err != nil {
		return fmt.Errorf("release lock %s: %w", l.key, err)
	}
	return nil
}

// MemoryLocker 是进程内实现，过期语义与 RedisLocker 一致。
type MemoryLocker struct {
	mu   sync.Mutex
	now  func() time.Time
	held map[string]memoryEntry
}

type memoryEntry struct {
	token     string
	expiresAt time.Time
}

func NewMemoryLocker() *MemoryLocker {
	return NewMemoryLockerWithClock(time.Now)
}

// NewMemoryLockerWithClock 使用指定时钟判断过期。
func NewMemoryLockerWithClock(now func() time.Time) *MemoryLocker {
	return &MemoryLocker{now: now, held: map[string]memoryEntry{}}
}

func (l *MemoryLocker) Acquire(_ context.Context, key string, ttl time.Duration) (Lock, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	if e, ok := l.held[key]; ok && now.Before(e.expiresAt) {
		return nil, ErrSubjectBusy
	}
	token := uuid.NewString()
	l.held[key] = memoryEntry{token: token, expiresAt: now.Add(ttl)}
	return &memoryLock{locker: l, key: key, token: token}, nil
}

type memoryLock struct {
	locker *MemoryLocker
	key    string
	token  string
}

func (m *memoryLock) Extend(_ context.Context, ttl time.Duration) error {
	l := m.locker
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	e, ok := l.held[m.key]
	if !ok || e.token != m.token || !now.Before(e.expiresAt) {
		return ErrLockLost
	}
	e.expiresAt = now.Add(ttl)
	l.held[m.key] = e
	return nil
}

func (m *memoryLock) Release(context.Context) error {
	l := m.locker
	l.mu.Lock()
	defer l.mu.Unlock()
	if e, ok := l.held[m.key]; ok && e.token == m.token {
		delete(l.held, m.key)
	}
	return nil
}
