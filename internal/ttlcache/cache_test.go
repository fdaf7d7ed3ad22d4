package ttlcache

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"
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

type countingObserver struct {
	hits, misses, evictions, expires atomic.Int64
}

func (o *countingObserver) Hit()      { o.hits.Add(1) }
func (o *countingObserver) Miss()     { o.misses.Add(1) }
func (o *countingObserver) Eviction() { o.evictions.Add(1) }
func (o *countingObserver) Expire()   { o.expires.Add(1) }

func TestGetLoadsOnMissAndCaches(t *testing.T) {
	var calls atomic.Int64
	c := New(Options[int]{
		TTL: time.Minute,
		Loader: func(_ context.Context, key string) (int, error) {
			calls.Add(1)
			return len(key), nil
		},
	})

	for i := 0; i < 3; i++ {
		v, err := c.Get(context.Background(), "abcd")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if v != 4 {
			t.Fatalf("expected 4, got %d", v)
		}
	}
	if calls.Load() != 1 {
		t.Fatalf("expected a single load, got %d", calls.Load())
	}
}

func TestGetWithoutLoaderReturnsNotFound(t *testing.T) {
	c := New(Options[string]{TTL: time.Minute})
	if _, err := c.Get(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGetPropagatesLoaderError(t *testing.T) {
	backend := errors.New("store down")
	c := New(Options[int]{
		TTL: time.Minute,
		Loader: func(context.Context, string) (int, error) {
			return 0, backend
		},
	})

	_, err := c.Get(context.Background(), "k")
	if !errors.Is(err, ErrLoad) || !errors.Is(err, backend) {
		t.Fatalf("expected wrapped loader error, got %v", err)
	}
	if c.Len() != 0 {
		t.Fatalf("failed load must not store an entry, len=%d", c.Len())
	}
}

func TestTTLIsMeasuredFromLastWrite(t *testing.T) {
	clk := newFakeClock()
	var loads atomic.Int64
	c := New(Options[int]{
		TTL:   10 * time.Second,
		Clock: clk.Now,
		Loader: func(context.Context, string) (int, error) {
			return int(loads.Add(1)), nil
		},
	})
	ctx := context.Background()

	if v, _ := c.Get(ctx, "k"); v != 1 {
		t.Fatalf("expected first load, got %d", v)
	}
	// Reads inside the window do not extend the entry.
	for i := 0; i < 9; i++ {
		clk.Advance(time.Second)
		if v, _ := c.Get(ctx, "k"); v != 1 {
			t.Fatalf("expected cached value at step %d, got %d", i, v)
		}
	}
	clk.Advance(time.Second)
	if v, _ := c.Get(ctx, "k"); v != 2 {
		t.Fatalf("expected reload after TTL, got %d", v)
	}

	clk.Advance(9 * time.Second)
	c.Set("k", 42)
	clk.Advance(9 * time.Second)
	if v, ok := c.Peek("k"); !ok || v != 42 {
		t.Fatalf("Set must restart TTL, got %d ok=%v", v, ok)
	}
}

func TestUpdateDeclinedWriteKeepsTTL(t *testing.T) {
	clk := newFakeClock()
	c := New(Options[int]{TTL: 10 * time.Second, Clock: clk.Now})
	c.Set("k", 5)

	clk.Advance(6 * time.Second)
	got, wrote := c.Update("k", func(cur int, ok bool) (int, bool) {
		if !ok {
			t.Fatal("expected live entry")
		}
		return cur, false
	})
	if wrote || got != 5 {
		t.Fatalf("expected untouched value 5, got %d wrote=%v", got, wrote)
	}

	clk.Advance(5 * time.Second)
	if _, ok := c.Peek("k"); ok {
		t.Fatal("declined update must not refresh the entry")
	}
}

func TestCapacityEvictsOldestWrite(t *testing.T) {
	obs := &countingObserver{}
	c := New(Options[int]{TTL: time.Hour, Capacity: 2, Observer: obs})
	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("a", 10) // rewrite makes "b" the oldest
	c.Set("c", 3)

	if _, ok := c.Peek("b"); ok {
		t.Fatal("expected b to be evicted")
	}
	if v, ok := c.Peek("a"); !ok || v != 10 {
		t.Fatalf("expected a=10, got %d ok=%v", v, ok)
	}
	if c.Len() != 2 {
		t.Fatalf("expected len 2, got %d", c.Len())
	}
	if obs.evictions.Load() != 1 {
		t.Fatalf("expected one eviction, got %d", obs.evictions.Load())
	}
}

func TestInvalidateForcesReload(t *testing.T) {
	var loads atomic.Int64
	c := New(Options[int]{
		TTL: time.Hour,
		Loader: func(context.Context, string) (int, error) {
			return int(loads.Add(1)), nil
		},
	})
	ctx := context.Background()
	_, _ = c.Get(ctx, "k")
	c.Invalidate("k")
	if v, _ := c.Get(ctx, "k"); v != 2 {
		t.Fatalf("expected reload after invalidate, got %d", v)
	}
}

func TestConcurrentMissesShareOneLoad(t *testing.T) {
	release := make(chan struct{})
	var loads atomic.Int64
	c := New(Options[int]{
		TTL: time.Hour,
		Loader: func(context.Context, string) (int, error) {
			loads.Add(1)
			<-release
			return 7, nil
		},
	})

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := c.Get(context.Background(), "k")
			if err == nil && v != 7 {
				err = errors.New("unexpected value")
			}
			errs <- err
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
	}
	if n := loads.Load(); n < 1 || n > 16 {
		t.Fatalf("unexpected load count %d", n)
	}
}

func TestLoadDoesNotOverwriteConcurrentWrite(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	c := New(Options[int]{
		TTL: time.Hour,
		Loader: func(context.Context, string) (int, error) {
			close(started)
			<-release
			return 1, nil
		},
	})

	done := make(chan int)
	go func() {
		v, _ := c.Get(context.Background(), "k")
		done <- v
	}()

	<-started
	c.Set("k", 99)
	close(release)

	if v := <-done; v != 99 {
		t.Fatalf("expected concurrent write to win, got %d", v)
	}
	if v, _ := c.Peek("k"); v != 99 {
		t.Fatalf("expected stored 99, got %d", v)
	}
}

func TestCancelledCallerDoesNotFailSharedLoad(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	c := New(Options[int]{
		TTL: time.Hour,
		Loader: func(ctx context.Context, _ string) (int, error) {
			close(started)
			select {
			case <-release:
				return 5, nil
			case <-ctx.Done():
				return 0, ctx.Err()
			}
		},
	})

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := c.Get(firstCtx, "k")
		firstErr <- err
	}()
	<-started

	second := make(chan int, 1)
	secondErr := make(chan error, 1)
	go func() {
		v, err := c.Get(context.Background(), "k")
		second <- v
		secondErr <- err
	}()

	cancelFirst()
	if err := <-firstErr; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected first caller to stop with context.Canceled, got %v", err)
	}

	close(release)
	if err := <-secondErr; err != nil {
		t.Fatalf("live caller failed: %v", err)
	}
	if v := <-second; v != 5 {
		t.Fatalf("expected 5, got %d", v)
	}
	if v, ok := c.Peek("k"); !ok || v != 5 {
		t.Fatalf("expected loaded value stored, got %d ok=%v", v, ok)
	}
}

func TestLoadTimeoutBoundsSharedLoad(t *testing.T) {
	c := New(Options[int]{
		TTL:         time.Hour,
		LoadTimeout: 10 * time.Millisecond,
		Loader: func(ctx context.Context, _ string) (int, error) {
			<-ctx.Done()
			return 0, ctx.Err()
		},
	})

	_, err := c.Get(context.Background(), "k")
	if !errors.Is(err, ErrLoad) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected load deadline error, got %v", err)
	}
}

func BenchmarkGetHit(b *testing.B) {
	c := New(Options[int64]{TTL: time.Hour, Capacity: 1024})
	for i := 0; i < 1024; i++ {
		c.Set(strconv.Itoa(i), int64(i))
	}
	ctx := context.Background()

	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			if _, err := c.Get(ctx, strconv.Itoa(i&1023)); err != nil {
				b.Errorf("Get: %v", err)
				return
			}
			i++
		}
	})
}
