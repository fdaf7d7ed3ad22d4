package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultMaxTxRetries = 8

// Codec converts records to and from their Redis string form.
type Codec[V any] interface {
	Encode(v V) string
	Decode(raw string) (V, error)
}

// RedisOptions configures [NewRedis].
type RedisOptions struct {
	Prefix       string
	TTL          time.Duration
	MaxTxRetries int
}

// Redis is a [Store] shared across processes. Updates run as WATCH/MULTI
// optimistic transactions on a single key.
type Redis[V any] struct {
	client  redis.UniversalClient
	codec   Codec[V]
	prefix  string
	ttl     time.Duration
	retries int
}

// NewRedis creates a Redis-backed store.
func NewRedis[V any](client redis.UniversalClient, codec Codec[V], opts RedisOptions) *Redis[V] {
	if opts.MaxTxRetries <= 0 {
		opts.MaxTxRetries = defaultMaxTxRetries
	}
	return &Redis[V]{
		client:  client,
		codec:   codec,
		prefix:  opts.Prefix,
		ttl:     opts.TTL,
		retries: opts.MaxTxRetries,
	}
}

func (s *Redis[V]) key(k string) string {
	return s.prefix + k
}

func (s *Redis[V]) Get(ctx context.Context, key string) (V, bool, error) {
	var zero V
	raw, err := s.client.Get(ctx, s.key(key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return zero, false, nil
		}
		return zero, false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	v, err := s.codec.Decode(raw)
	if err != nil {
		return zero, false, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return v, true, nil
}

func (s *Redis[V]) Update(ctx context.Context, key string, fn UpdateFunc[V]) (V, error) {
	k := s.key(key)
	var result V

	txf := func(tx *redis.Tx) error {
		var cur V
		ok := false
		raw, err := tx.Get(ctx, k).Result()
		switch {
		case err == nil:
			cur, err = s.codec.Decode(raw)
			if err != nil {
				return fmt.Errorf("%w: %v", ErrCorrupt, err)
			}
			ok = true
		case errors.Is(err, redis.Nil):
		default:
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}

		next, write := fn(cur, ok)
		if !write {
			result = cur
			return nil
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, k, s.codec.Encode(next), s.ttl)
			return nil
		})
		if err != nil {
			return err
		}
		result = next
		return nil
	}

	for i := 0; i < s.retries; i++ {
		err := s.client.Watch(ctx, txf, k)
		if err == nil {
			return result, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if errors.Is(err, ErrCorrupt) || errors.Is(err, ErrUnavailable) {
			return result, err
		}
		return result, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return result, ErrContention
}

func (s *Redis[V]) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
