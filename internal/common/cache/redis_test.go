package cache_test

import (
	"context"
	"testing"
	"time"

	"hsoj/internal/common/cache"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestCache(t *testing.T) (*cache.RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	rc, err := cache.NewRedisCacheWithClient(client)
	if err != nil {
		t.Fatalf("new cache failed: %v", err)
	}
	t.Cleanup(func() { _ = rc.Close() })
	return rc, mr
}

func TestRedisCacheGetMissingKey(t *testing.T) {
	rc, _ := newTestCache(t)
	val, err := rc.Get(context.Background(), "missing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if val != "" {
		t.Fatalf("expected empty value, got %q", val)
	}
}

func TestRedisCacheSetWithTTL(t *testing.T) {
	rc, mr := newTestCache(t)
	ctx := context.Background()
	if err := rc.Set(ctx, "k", "v", time.Minute); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if got, _ := rc.Get(ctx, "k"); got != "v" {
		t.Fatalf("expected v, got %q", got)
	}
	mr.FastForward(2 * time.Minute)
	if got, _ := rc.Get(ctx, "k"); got != "" {
		t.Fatalf("expected expired key, got %q", got)
	}
}

func TestRedisCacheLockIsTokenGuarded(t *testing.T) {
	rc, mr := newTestCache(t)
	ctx := context.Background()

	ok, err := rc.TryLock(ctx, "lock:pack", "holder-a", time.Minute)
	if err != nil || !ok {
		t.Fatalf("expected lock acquired, ok=%v err=%v", ok, err)
	}
	ok, err = rc.TryLock(ctx, "lock:pack", "holder-b", time.Minute)
	if err != nil || ok {
		t.Fatalf("expected second acquire to fail, ok=%v err=%v", ok, err)
	}
	if err := rc.Unlock(ctx, "lock:pack", "holder-b"); err != nil {
		t.Fatalf("unlock with foreign token failed: %v", err)
	}
	if !mr.Exists("lock:pack") {
		t.Fatalf("foreign token must not release the lock")
	}
	if err := rc.Unlock(ctx, "lock:pack", "holder-a"); err != nil {
		t.Fatalf("unlock failed: %v", err)
	}
	if mr.Exists("lock:pack") {
		t.Fatalf("expected lock released")
	}
}

func TestRedisCacheCounter(t *testing.T) {
	rc, _ := newTestCache(t)
	ctx := context.Background()

	ok, err := rc.SetNX(ctx, "rate:a", 1, time.Minute)
	if err != nil || !ok {
		t.Fatalf("expected first setnx to win, ok=%v err=%v", ok, err)
	}
	if ok, _ := rc.SetNX(ctx, "rate:a", 1, time.Minute); ok {
		t.Fatalf("second setnx must fail")
	}
	n, err := rc.Incr(ctx, "rate:a")
	if err != nil || n != 2 {
		t.Fatalf("expected 2, got %d err=%v", n, err)
	}
	ttl, err := rc.TTL(ctx, "rate:a")
	if err != nil || ttl <= 0 || ttl > time.Minute {
		t.Fatalf("unexpected ttl %v err=%v", ttl, err)
	}
}
