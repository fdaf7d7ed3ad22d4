package store

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/authcache/internal/ttlcache"
)

var (
	// ErrUnavailable indicates the backing store could not be reached.
	ErrUnavailable = errors.New("store unavailable")
	// ErrContention indicates an optimistic update kept losing to concurrent writers.
	ErrContention = errors.New("store update contention")
	// ErrCorrupt indicates a stored value could not be decoded.
	ErrCorrupt = errors.New("store value corrupt")
)

// UpdateFunc maps the current record to its successor. ok reports whether a
// live record exists. Returning write=false leaves the stored record untouched.
type UpdateFunc[V any] func(cur V, ok bool) (next V, write bool)

// Store is a keyed record store with per-key atomic updates. Implementations
// own the record TTL; every written record lives for that TTL from its write.
type Store[V any] interface {
	Get(ctx context.Context, key string) (V, bool, error)
	Update(ctx context.Context, key string, fn UpdateFunc[V]) (V, error)
	Delete(ctx context.Context, key string) error
}

// Memory is a process-local [Store] over a [ttlcache.Cache].
type Memory[V any] struct {
	cache *ttlcache.Cache[V]
}

// MemoryOptions configures [NewMemory].
type MemoryOptions struct {
	TTL      time.Duration
	Capacity int
	Clock    func() time.Time
	Observer ttlcache.Observer
}

// NewMemory creates an in-memory store.
func NewMemory[V any](opts MemoryOptions) *Memory[V] {
	return &Memory[V]{
		cache: ttlcache.New(ttlcache.Options[V]{
			TTL:      opts.TTL,
			Capacity: opts.Capacity,
			Clock:    opts.Clock,
			Observer: opts.Observer,
		}),
	}
}

func (m *Memory[V]) Get(_ context.Context, key string) (V, bool, error) {
	v, ok := m.cache.Peek(key)
	return v, ok, nil
}

func (m *Memory[V]) Update(_ context.Context, key string, fn UpdateFunc[V]) (V, error) {
	v, _ := m.cache.Update(key, fn)
	return v, nil
}

func (m *Memory[V]) Delete(_ context.Context, key string) error {
	m.cache.Invalidate(key)
	return nil
}

// Len reports the number of records held.
func (m *Memory[V]) Len() int {
	return m.cache.Len()
}
