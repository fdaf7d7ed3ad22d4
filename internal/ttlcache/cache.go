package ttlcache

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

const defaultCapacity = 10000

var (
	// ErrNotFound is returned by Get when the key is absent and no loader is configured.
	ErrNotFound = errors.New("ttlcache: key not found")
	// ErrLoad wraps loader failures returned by Get.
	ErrLoad = errors.New("ttlcache: load failed")
)

// Loader fetches the value for a missing or expired key. It must not mutate
// external state; concurrent misses may invoke it more than once over time.
type Loader[V any] func(ctx context.Context, key string) (V, error)

// Observer receives cache lifecycle events. All methods must be cheap and
// non-blocking; they are called with the cache mutex held.
type Observer interface {
	Hit()
	Miss()
	Eviction()
	Expire()
}

type noopObserver struct{}

func (noopObserver) Hit()      {}
func (noopObserver) Miss()     {}
func (noopObserver) Eviction() {}
func (noopObserver) Expire()   {}

// Options configures a [Cache].
type Options[V any] struct {
	// TTL is measured from the last write. Zero disables expiry.
	TTL time.Duration
	// Capacity bounds the number of entries. Zero selects the default.
	Capacity int
	Loader   Loader[V]
	// LoadTimeout bounds a shared load. It runs detached from the caller
	// that started it, so this is its only deadline. Zero means no bound.
	LoadTimeout time.Duration
	Clock       func() time.Time
	Observer    Observer
}

type entry[V any] struct {
	key       string
	value     V
	writtenAt time.Time
}

// Cache is a bounded keyed store with write-through expiry and lazy loading.
// Eviction under capacity pressure removes the least recently inserted entry.
type Cache[V any] struct {
	mu       sync.Mutex
	items    map[string]*list.Element
	order    *list.List // front = newest write
	ttl      time.Duration
	capacity int
	loader      Loader[V]
	loadTimeout time.Duration
	now         func() time.Time
	observer    Observer
	loads       singleflight.Group
}

// New creates a cache from opts.
func New[V any](opts Options[V]) *Cache[V] {
	if opts.Capacity <= 0 {
		opts.Capacity = defaultCapacity
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Observer == nil {
		opts.Observer = noopObserver{}
	}
	return &Cache[V]{
		items:    make(map[string]*list.Element, opts.Capacity),
		order:    list.New(),
		ttl:      opts.TTL,
		capacity: opts.Capacity,
		loader:      opts.Loader,
		loadTimeout: opts.LoadTimeout,
		now:         opts.Clock,
		observer:    opts.Observer,
	}
}

// TTL returns the configured entry lifetime.
func (c *Cache[V]) TTL() time.Duration {
	return c.ttl
}

// Get returns the live value for key, loading it on a miss. Concurrent misses
// for the same key share one loader call. The shared call does not inherit
// any caller's cancellation; each caller stops waiting when its own ctx ends.
// A loaded value is stored only if no other writer filled the key while the
// load was in flight.
func (c *Cache[V]) Get(ctx context.Context, key string) (V, error) {
	if v, ok := c.Peek(key); ok {
		return v, nil
	}

	var zero V
	if c.loader == nil {
		return zero, ErrNotFound
	}

	loadCtx := context.WithoutCancel(ctx)
	ch := c.loads.DoChan(key, func() (any, error) {
		lctx := loadCtx
		if c.loadTimeout > 0 {
			var cancel context.CancelFunc
			lctx, cancel = context.WithTimeout(loadCtx, c.loadTimeout)
			defer cancel()
		}
		loaded, err := c.loader(lctx, key)
		if err != nil {
			return nil, err
		}
		v, _ := c.Update(key, func(cur V, ok bool) (V, bool) {
			if ok {
				return cur, false
			}
			return loaded, true
		})
		return v, nil
	})

	select {
	case <-ctx.Done():
		return zero, fmt.Errorf("%w: %w", ErrLoad, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return zero, fmt.Errorf("%w: %w", ErrLoad, res.Err)
		}
		return res.Val.(V), nil
	}
}

// Peek returns the live value for key without loading.
func (c *Cache[V]) Peek(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.liveLocked(key, c.now())
	if !ok {
		c.observer.Miss()
		var zero V
		return zero, false
	}
	c.observer.Hit()
	return e.value, true
}

// Set stores v under key and restarts its TTL.
func (c *Cache[V]) Set(key string, v V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writeLocked(key, v, c.now())
}

// Update atomically applies fn to the live value for key. fn reports whether
// its result should be written; when it declines, the entry and its TTL are
// left untouched. Update returns the resulting value and whether it was written.
// fn runs with the cache mutex held and must not call back into the cache.
func (c *Cache[V]) Update(key string, fn func(cur V, ok bool) (V, bool)) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	var cur V
	e, ok := c.liveLocked(key, now)
	if ok {
		cur = e.value
	}

	next, write := fn(cur, ok)
	if !write {
		return cur, false
	}
	c.writeLocked(key, next, now)
	return next, true
}

// Invalidate drops key so the next Get reloads it.
func (c *Cache[V]) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		c.removeLocked(el)
	}
}

// Purge drops every entry.
func (c *Cache[V]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*list.Element, c.capacity)
	c.order.Init()
}

// Len returns the number of stored entries, including expired ones not yet reclaimed.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *Cache[V]) liveLocked(key string, now time.Time) (*entry[V], bool) {
	el, ok := c.items[key]
	if !ok {
		return nil, false
	}
	e := el.Value.(*entry[V])
	if c.expired(e, now) {
		c.observer.Expire()
		c.removeLocked(el)
		return nil, false
	}
	return e, true
}

func (c *Cache[V]) writeLocked(key string, v V, now time.Time) {
	if el, ok := c.items[key]; ok {
		e := el.Value.(*entry[V])
		e.value = v
		e.writtenAt = now
		c.order.MoveToFront(el)
		return
	}

	for len(c.items) >= c.capacity {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		if c.expired(oldest.Value.(*entry[V]), now) {
			c.observer.Expire()
		} else {
			c.observer.Eviction()
		}
		c.removeLocked(oldest)
	}

	c.items[key] = c.order.PushFront(&entry[V]{key: key, value: v, writtenAt: now})
}

func (c *Cache[V]) removeLocked(el *list.Element) {
	e := el.Value.(*entry[V])
	delete(c.items, e.key)
	c.order.Remove(el)
}

func (c *Cache[V]) expired(e *entry[V], now time.Time) bool {
	return c.ttl > 0 && now.Sub(e.writtenAt) >= c.ttl
}
