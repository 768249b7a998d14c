package tasks

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// GenerationTracker 维护每个主体的请求代数与已完成代数。
// 每次入队自增请求代数；worker 完成后记录当时读到的请求代数。
type GenerationTracker interface {
	Bump(ctx context.Context, kind SubjectKind, id uint) (int64, error)
	Current(ctx context.Context, kind SubjectKind, id uint) (int64, error)
	Completed(ctx context.Context, kind SubjectKind, id uint) (int64, error)
	MarkCompleted(ctx context.Context, kind SubjectKind, id uint, gen int64) error
}

// RedisGenerations 以 Redis 计数器保存代数，多个 API/worker 进程共享。
type RedisGenerations struct {
	client redis.UniversalClient
}

func NewRedisGenerations(client redis.UniversalClient) *RedisGenerations {
	return &RedisGenerations{client: client}
}

func genKey(kind SubjectKind, id uint) string {
	return "recommend:gen:" + SubjectKey(kind, id)
}

func doneKey(kind SubjectKind, id uint) string {
	return "recommend:done:" + SubjectKey(kind, id)
}

func (g *RedisGenerations) Bump(ctx context.Context, kind SubjectKind, id uint) (int64, error) {
	n, err := g.client.Incr(ctx, genKey(kind, id)).Result()
	if err != nil {
		return 0, fmt.Errorf("bump generation %s: %w", SubjectKey(kind, id), err)
	}
	return n, nil
}

func (g *RedisGenerations) Current(ctx context.Context, kind SubjectKind, id uint) (int64, error) {
	return g.readInt(ctx, genKey(kind, id))
}

func (g *RedisGenerations) Completed(ctx context.Context, kind SubjectKind, id uint) (int64, error) {
	return g.readInt(ctx, doneKey(kind, id))
}

// markCompletedScript 只允许已完成代数前进。
var markCompletedScript = redis.NewScript(`
local cur = tonumber(redis.call("GET", KEYS[1]) or "0")
local gen = tonumber(ARGV[1])
if gen > cur then
  redis.call("SET", KEYS[1], gen)
end
return 1
`)

func (g *RedisGenerations) MarkCompleted(ctx context.Context, kind SubjectKind, id uint, gen int64) error {
	if err := markCompletedScript.Run(ctx, g.client, []string{doneKey(kind, id)}, gen).Err(); err != nil {
		return fmt.Errorf("mark generation %s completed: %w", SubjectKey(kind, id), err)
	}
	return nil
}

func (g *RedisGenerations) readInt(ctx context.Context, key string) (int64, error) {
	n, err := g.client.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", key, err)
	}
	return n, nil
}

// MemoryGenerations 是进程内实现，用于测试和单进程管理命令。
type MemoryGenerations struct {
	mu   sync.Mutex
	gen  map[string]int64
	done map[string]int64
}

func NewMemoryGenerations() *MemoryGenerations {
	return &MemoryGenerations{gen: map[string]int64{}, done: map[string]int64{}}
}

func (g *MemoryGenerations) Bump(_ context.Context, kind SubjectKind, id uint) (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	key := SubjectKey(kind, id)
	g.gen[key]++
	return g.gen[key], nil
}

func (g *MemoryGenerations) Current(_ context.Context, kind SubjectKind, id uint) (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.gen[SubjectKey(kind, id)], nil
}

func (g *MemoryGenerations) Completed(_ context.Context, kind SubjectKind, id uint) (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.done[SubjectKey(kind, id)], nil
}

func (g *MemoryGenerations) MarkCompleted(_ context.Context, kind SubjectKind, id uint, gen int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	key := SubjectKey(kind, id)
	if gen > g.done[key] {
		g.done[key] = gen
	}
	return nil
}
