package api

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

type failingCounter struct{}

func (failingCounter) Incr(ctx context.Context, _ string) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx)
	cmd.SetErr(errors.New("connection refused"))
	return cmd
}

func (failingCounter) Expire(ctx context.Context, _ string, _ time.Duration) *redis.BoolCmd {
	return redis.NewBoolCmd(ctx)
}

func TestHourlyLimiterWindow(t *testing.T) {
	ctx := context.Background()
	counter := &fakeCounter{}
	l := newHourlyLimiter(counter, "refresh", 2)
	now := time.Date(2026, 3, 1, 10, 59, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	for i, want := range []bool{true, true, false} {
		ok, err := l.Allow(ctx, "7")
		if err != nil || ok != want {
			t.Fatalf("call %d: allowed=%v err=%v, want %v", i, ok, err, want)
		}
	}
	if got := counter.counts["rate:refresh:7:2026030110"]; got != 3 {
		t.Fatalf("window counter = %d, want 3", got)
	}

	// 新的整点窗口重新计数，其他主体互不影响。
	now = now.Add(2 * time.Minute)
	if ok, _ := l.Allow(ctx, "7"); !ok {
		t.Fatal("next window should be allowed")
	}
	if ok, _ := l.Allow(ctx, "8"); !ok {
		t.Fatal("other subject should be allowed")
	}
}

func TestHourlyLimiterDisabledAndFailOpen(t *testing.T) {
	ctx := context.Background()
	if l := newHourlyLimiter(nil, "login", 5); l != nil {
		t.Fatal("nil counter should disable the limiter")
	}
	if l := newHourlyLimiter(&fakeCounter{}, "login", 0); l != nil {
		t.Fatal("zero limit should disable the limiter")
	}
	var disabled *hourlyLimiter
	if ok, err := disabled.Allow(ctx, "x"); !ok || err != nil {
		t.Fatalf("disabled limiter: %v %v", ok, err)
	}

	l := newHourlyLimiter(failingCounter{}, "login", 1)
	ok, err := l.Allow(ctx, "x")
	if !ok || err == nil {
		t.Fatalf("counter failure should allow and report, got %v %v", ok, err)
	}
}
