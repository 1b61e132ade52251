package cache

import (
	"context"
	"time"
)

// Cache is the subset of key-value operations the judge service relies on.
type Cache interface {
	BasicOps
	LockOps
	CounterOps

	Ping(ctx context.Context) error
	Close() error
}

// BasicOps covers plain string keys.
type BasicOps interface {
	// Get returns "" and a nil error when the key does not exist.
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	Expire(ctx context.Context, key string, ttl time.Duration) error
}

// LockOps covers token-guarded distributed locks.
type LockOps interface {
	// TryLock acquires key for ttl when it is free. The token identifies the holder.
	TryLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
	// Unlock releases key only if it is still held with token.
	Unlock(ctx context.Context, key, token string) error
}

// CounterOps covers fixed-window counters.
type CounterOps interface {
	SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error)
	Incr(ctx context.Context, key string) (int64, error)
	// TTL returns a negative duration when key has no expiry or does not exist.
	TTL(ctx context.Context, key string) (time.Duration, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
}
