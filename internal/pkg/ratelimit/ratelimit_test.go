package ratelimit

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestLimiter(t *testing.T, perMinute int) *Limiter {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewLimiter(rdb, "annotation", perMinute)
}

func TestAllowWithinBudget(t *testing.T) {
	l := newTestLimiter(t, 5)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		ok, err := l.Allow(ctx)
		if err != nil {
			t.Fatalf("allow %d: %v", i, err)
		}
		if !ok {
			t.Fatalf("request %d denied within budget", i)
		}
	}
}

func TestDenyOverBudget(t *testing.T) {
	l := newTestLimiter(t, 3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if ok, _ := l.Allow(ctx); !ok {
			t.Fatalf("request %d denied within budget", i)
		}
	}
	ok, err := l.Allow(ctx)
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if ok {
		t.Fatal("request over budget was allowed")
	}
}

func TestWaitCancellation(t *testing.T) {
	l := newTestLimiter(t, 1)
	ctx := context.Background()

	if err := l.Wait(ctx); err != nil {
		t.Fatalf("first wait: %v", err)
	}

	cctx, cancel := context.WithCancel(ctx)
	cancel()
	if err := l.Wait(cctx); err == nil {
		t.Fatal("expected context error from cancelled wait")
	}
}
