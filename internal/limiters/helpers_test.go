package limiters

import (
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/authcache/internal/store"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1_700_000_000, 0)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

type backend struct {
	name     string
	attempts func(t *testing.T, clk *fakeClock, ttl time.Duration) store.Store[AttemptRecord]
	origins  func(t *testing.T, clk *fakeClock, ttl time.Duration) store.Store[OriginWindowRecord]
}

func newRedisClient(t *testing.T) *redis.Client {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return rdb
}

func backends() []backend {
	return []backend{
		{
			name: "memory",
			attempts: func(_ *testing.T, clk *fakeClock, ttl time.Duration) store.Store[AttemptRecord] {
				return store.NewMemory[AttemptRecord](store.MemoryOptions{TTL: ttl, Clock: clk.Now})
			},
			origins: func(_ *testing.T, clk *fakeClock, ttl time.Duration) store.Store[OriginWindowRecord] {
				return store.NewMemory[OriginWindowRecord](store.MemoryOptions{TTL: ttl, Clock: clk.Now})
			},
		},
		{
			name: "redis",
			attempts: func(t *testing.T, _ *fakeClock, ttl time.Duration) store.Store[AttemptRecord] {
				return store.NewRedis[AttemptRecord](newRedisClient(t), AttemptCodec{}, store.RedisOptions{Prefix: "acl:", TTL: ttl})
			},
			origins: func(t *testing.T, _ *fakeClock, ttl time.Duration) store.Store[OriginWindowRecord] {
				return store.NewRedis[OriginWindowRecord](newRedisClient(t), OriginCodec{}, store.RedisOptions{Prefix: "aco:", TTL: ttl})
			},
		},
	}
}
