package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hibiken/asynq"

	"jobboard/internal/errcode"
	"jobboard/internal/notify"
	"jobboard/internal/tasks"
)

type fakeRegenerator struct {
	mu         sync.Mutex
	jobs       []uint
	candidates []uint
	owner      uint
	err        error
}

func (f *fakeRegenerator) RegenerateForJob(_ context.Context, id uint) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs = append(f.jobs, id)
	return 3, f.err
}

func (f *fakeRegenerator) RegenerateForCandidate(_ context.Context, id uint) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.candidates = append(f.candidates, id)
	return 2, f.err
}

func (f *fakeRegenerator) JobOwner(context.Context, uint) (uint, error) {
	if f.owner == 0 {
		return 0, errcode.ErrNotFound
	}
	return f.owner, nil
}

func regenerateTask(t *testing.T, kind tasks.SubjectKind, id uint, gen int64) *asynq.Task {
	t.Helper()
	task, err := tasks.NewRegenerateTask(tasks.RegeneratePayload{Kind: kind, SubjectID: id, Generation: gen, CorrelationID: "test"})
	if err != nil {
		t.Fatalf("NewRegenerateTask: %v", err)
	}
	return task
}

func TestRegenerateCoalescesOlderGenerations(t *testing.T) {
	ctx := context.Background()
	gens := tasks.NewMemoryGenerations()
	regen := &fakeRegenerator{owner: 42}
	rec := notify.NewRecorder()
	h := NewRegenerateHandler(regen, gens, NewMemoryLocker(), rec, time.Minute, nil)

	// 三次写入各入队一次，第一次处理时已经能看到全部写入。
	var payloadGens []int64
	for i := 0; i < 3; i++ {
		g, _ := gens.Bump(ctx, tasks.SubjectJob, 7)
		payloadGens = append(payloadGens, g)
	}
	for _, g := range payloadGens {
		if err := h.ProcessTask(ctx, regenerateTask(t, tasks.SubjectJob, 7, g)); err != nil {
			t.Fatalf("ProcessTask(gen %d): %v", g, err)
		}
	}

	if len(regen.jobs) != 1 {
		t.Fatalf("regenerations = %d, want 1", len(regen.jobs))
	}
	if done, _ := gens.Completed(ctx, tasks.SubjectJob, 7); done != 3 {
		t.Fatalf("completed generation = %d, want 3", done)
	}
	msgs := rec.For(42)
	if len(msgs) != 1 || msgs[0].Type != notify.TypeRecommendationsUpdate || msgs[0].SubjectID != 7 {
		t.Fatalf("owner notifications = %+v", msgs)
	}

	// 新的写入之后必须再算一次。
	g, _ := gens.Bump(ctx, tasks.SubjectJob, 7)
	if err := h.ProcessTask(ctx, regenerateTask(t, tasks.SubjectJob, 7, g)); err != nil {
		t.Fatalf("ProcessTask: %v", err)
	}
	if len(regen.jobs) != 2 {
		t.Fatalf("regenerations after new write = %d, want 2", len(regen.jobs))
	}
}

func TestRegenerateCandidateNotifiesCandidate(t *testing.T) {
	ctx := context.Background()
	gens := tasks.NewMemoryGenerations()
	regen := &fakeRegenerator{}
	rec := notify.NewRecorder()
	h := NewRegenerateHandler(regen, gens, NewMemoryLocker(), rec, time.Minute, nil)

	g, _ := gens.Bump(ctx, tasks.SubjectCandidate, 9)
	if err := h.ProcessTask(ctx, regenerateTask(t, tasks.SubjectCandidate, 9, g)); err != nil {
		t.Fatalf("ProcessTask: %v", err)
	}
	if len(regen.candidates) != 1 || regen.candidates[0] != 9 {
		t.Fatalf("candidates = %v", regen.candidates)
	}
	if msgs := rec.For(9); len(msgs) != 1 || msgs[0].SubjectKind != string(tasks.SubjectCandidate) {
		t.Fatalf("candidate notifications = %+v", msgs)
	}
}

func TestRegenerateBusySubject(t *testing.T) {
	ctx := context.Background()
	locker := NewMemoryLocker()
	regen := &fakeRegenerator{}
	h := NewRegenerateHandler(regen, tasks.NewMemoryGenerations(), locker, nil, time.Minute, nil)

	lock, err := locker.Acquire(ctx, tasks.SubjectKey(tasks.SubjectJob, 1), time.Minute)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	err = h.ProcessTask(ctx, regenerateTask(t, tasks.SubjectJob, 1, 1))
	if !errors.Is(err, ErrSubjectBusy) {
		t.Fatalf("err = %v, want ErrSubjectBusy", err)
	}
	if len(regen.jobs) != 0 {
		t.Fatal("busy subject must not be regenerated")
	}

	_ = lock.Release(ctx)
	if err := h.ProcessTask(ctx, regenerateTask(t, tasks.SubjectJob, 1, 1)); err != nil {
		t.Fatalf("after release: %v", err)
	}
}

func TestRegenerateFailureLeavesGenerationPending(t *testing.T) {
	ctx := context.Background()
	gens := tasks.NewMemoryGenerations()
	regen := &fakeRegenerator{err: errors.New("db down")}
	h := NewRegenerateHandler(regen, gens, NewMemoryLocker(), nil, time.Minute, nil)

	g, _ := gens.Bump(ctx, tasks.SubjectCandidate, 3)
	if err := h.ProcessTask(ctx, regenerateTask(t, tasks.SubjectCandidate, 3, g)); err == nil {
		t.Fatal("expected error")
	}
	if done, _ := gens.Completed(ctx, tasks.SubjectCandidate, 3); done != 0 {
		t.Fatalf("completed = %d, want 0", done)
	}
}

func TestRegenerateInvalidPayloadSkipsRetry(t *testing.T) {
	h := NewRegenerateHandler(&fakeRegenerator{}, tasks.NewMemoryGenerations(), NewMemoryLocker(), nil, time.Minute, nil)
	err := h.ProcessTask(context.Background(), asynq.NewTask(tasks.TypeRecommendJob, []byte("{")))
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("err = %v, want SkipRetry", err)
	}
}

func TestRetryDelayFunc(t *testing.T) {
	f := RetryDelayFunc(2 * time.Second)
	if d := f(5, ErrSubjectBusy, nil); d != 2*time.Second {
		t.Fatalf("busy delay = %v", d)
	}
	if IsFailure(ErrSubjectBusy) {
		t.Fatal("busy must not count as failure")
	}
	if !IsFailure(errors.New("boom")) {
		t.Fatal("other errors are failures")
	}
}

func TestMemoryLocker(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLocker()
	lock, err := l.Acquire(ctx, "job:1", time.Second)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if _, err := l.Acquire(ctx, "job:1", time.Second); !errors.Is(err, ErrSubjectBusy) {
		t.Fatalf("second Acquire err = %v", err)
	}
	if _, err := l.Acquire(ctx, "job:2", time.Second); err != nil {
		t.Fatalf("other key: %v", err)
	}
	_ = lock.Release(ctx)
	if _, err := l.Acquire(ctx, "job:1", time.Second); err != nil {
		t.Fatalf("after release: %v", err)
	}
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestMemoryLockerExpiryAndExtend(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	l := NewMemoryLockerWithClock(clock.Now)

	first, err := l.Acquire(ctx, "job:1", 2*time.Minute)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	// 续期后原 TTL 到期也不能被他人获取。
	clock.Advance(90 * time.Second)
	if err := first.Extend(ctx, 2*time.Minute); err != nil {
		t.Fatalf("Extend: %v", err)
	}
	clock.Advance(90 * time.Second)
	if _, err := l.Acquire(ctx, "job:1", 2*time.Minute); !errors.Is(err, ErrSubjectBusy) {
		t.Fatalf("extended lock acquired by another worker: %v", err)
	}

	// 不续期则过期，他人可以获取，原持有者续期失败且释放不会误删。
	clock.Advance(3 * time.Minute)
	second, err := l.Acquire(ctx, "job:1", 2*time.Minute)
	if err != nil {
		t.Fatalf("Acquire after expiry: %v", err)
	}
	if err := first.Extend(ctx, 2*time.Minute); !errors.Is(err, ErrLockLost) {
		t.Fatalf("stale Extend err = %v, want ErrLockLost", err)
	}
	_ = first.Release(ctx)
	if _, err := l.Acquire(ctx, "job:1", 2*time.Minute); !errors.Is(err, ErrSubjectBusy) {
		t.Fatalf("stale release dropped the new holder's lock: %v", err)
	}
	_ = second.Release(ctx)
}

// blockingRegenerator 在 RegenerateForJob 中执行 run。
type blockingRegenerator struct {
	fakeRegenerator
	run func(ctx context.Context) error
}

func (b *blockingRegenerator) RegenerateForJob(ctx context.Context, id uint) (int, error) {
	if err := b.run(ctx); err != nil {
		return 0, err
	}
	return b.fakeRegenerator.RegenerateForJob(ctx, id)
}

func TestRegenerateRenewsLockWhileRunning(t *testing.T) {
	ctx := context.Background()
	locker := NewMemoryLocker()
	key := tasks.SubjectKey(tasks.SubjectJob, 1)
	const ttl = 60 * time.Millisecond

	var contended error
	regen := &blockingRegenerator{run: func(context.Context) error {
		// 运行时间超过 TTL 的数倍。
		time.Sleep(4 * ttl)
		_, contended = locker.Acquire(ctx, key, ttl)
		return nil
	}}
	h := NewRegenerateHandler(regen, tasks.NewMemoryGenerations(), locker, nil, ttl, nil)

	if err := h.ProcessTask(ctx, regenerateTask(t, tasks.SubjectJob, 1, 1)); err != nil {
		t.Fatalf("ProcessTask: %v", err)
	}
	if !errors.Is(contended, ErrSubjectBusy) {
		t.Fatalf("lock expired during regeneration, concurrent Acquire err = %v", contended)
	}
	if _, err := locker.Acquire(ctx, key, ttl); err != nil {
		t.Fatalf("lock not released after task: %v", err)
	}
}

type lostLocker struct{}

func (lostLocker) Acquire(context.Context, string, time.Duration) (Lock, error) {
	return lostLock{}, nil
}

type lostLock struct{}

func (lostLock) Extend(context.Context, time.Duration) error { return ErrLockLost }
func (lostLock) Release(context.Context) error               { return nil }

func TestRegenerateAbortsWhenLockLost(t *testing.T) {
	ctx := context.Background()
	gens := tasks.NewMemoryGenerations()
	regen := &blockingRegenerator{run: func(ctx context.Context) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(5 * time.Second):
			return errors.New("regeneration was not cancelled")
		}
	}}
	h := NewRegenerateHandler(regen, gens, lostLocker{}, nil, 30*time.Millisecond, nil)

	g, _ := gens.Bump(ctx, tasks.SubjectJob, 1)
	err := h.ProcessTask(ctx, regenerateTask(t, tasks.SubjectJob, 1, g))
	if !errors.Is(err, ErrLockLost) {
		t.Fatalf("err = %v, want ErrLockLost", err)
	}
	if done, _ := gens.Completed(ctx, tasks.SubjectJob, 1); done != 0 {
		t.Fatalf("completed = %d, want 0 after lost lock", done)
	}
}

type fakeSearchRunner struct {
	ran []uint
	err error
}

func (f *fakeSearchRunner) Run(_ context.Context, id uint) (int, error) {
	f.ran = append(f.ran, id)
	return 1, f.err
}

func TestSavedSearchHandler(t *testing.T) {
	ctx := context.Background()
	task, err := tasks.NewSavedSearchTask(5, "cid")
	if err != nil {
		t.Fatalf("NewSavedSearchTask: %v", err)
	}

	runner := &fakeSearchRunner{}
	if err := NewSavedSearchHandler(runner, nil).ProcessTask(ctx, task); err != nil {
		t.Fatalf("ProcessTask: %v", err)
	}
	if len(runner.ran) != 1 || runner.ran[0] != 5 {
		t.Fatalf("ran = %v", runner.ran)
	}

	missing := &fakeSearchRunner{err: errcode.ErrNotFound}
	if err := NewSavedSearchHandler(missing, nil).ProcessTask(ctx, task); err != nil {
		t.Fatalf("missing search should be acknowledged, got %v", err)
	}

	failing := &fakeSearchRunner{err: errors.New("db down")}
	if err := NewSavedSearchHandler(failing, nil).ProcessTask(ctx, task); err == nil {
		t.Fatal("expected error to trigger retry")
	}
}

type fakeSearchSource struct{ ids []uint }

func (f fakeSearchSource) ActiveSearchIDs(context.Context) ([]uint, error) { return f.ids, nil }

type fakeSearchEnqueuer struct {
	mu     sync.Mutex
	queued []uint
	fail   uint
}

func (f *fakeSearchEnqueuer) RunSavedSearch(_ context.Context, id uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id == f.fail {
		return errors.New("redis down")
	}
	f.queued = append(f.queued, id)
	return nil
}

func TestSchedulerEnqueueAll(t *testing.T) {
	enq := &fakeSearchEnqueuer{fail: 2}
	s, err := NewScheduler("@every 1h", fakeSearchSource{ids: []uint{1, 2, 3}}, enq, nil)
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}
	n, err := s.EnqueueAll(context.Background())
	if err != nil || n != 2 {
		t.Fatalf("EnqueueAll = %d, %v; want 2", n, err)
	}
	if len(enq.queued) != 2 || enq.queued[0] != 1 || enq.queued[1] != 3 {
		t.Fatalf("queued = %v", enq.queued)
	}
}

func TestSchedulerRejectsBadSpec(t *testing.T) {
	if _, err := NewScheduler("not a schedule", fakeSearchSource{}, &fakeSearchEnqueuer{}, nil); err == nil {
		t.Fatal("expected parse error")
	}
}
