package epoch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MrEthical07/authcache/internal/ttlcache"
)

const defaultTTL = 24 * time.Hour

// ErrEpochUnavailable indicates the durable store could not supply a user's
// password epoch. It is distinct from a token being invalid.
var ErrEpochUnavailable = errors.New("password epoch unavailable")

// SourceFunc loads a user's password epoch (Unix seconds) from the durable store.
type SourceFunc func(ctx context.Context, userID string) (int64, error)

// StaleWrite describes a rejected out-of-order epoch write.
type StaleWrite struct {
	UserID    string
	Attempted int64
	Current   int64
}

// Options configures a [Cache].
type Options struct {
	TTL          time.Duration
	Capacity     int
	LoadTimeout  time.Duration
	Clock        func() time.Time
	Observer     ttlcache.Observer
	Logger       *slog.Logger
	OnStaleWrite func(ctx context.Context, w StaleWrite)
}

// Cache maps user IDs to their last password change. Epochs only move
// forward while cached; entries are reloaded from the source once per TTL.
type Cache struct {
	entries *ttlcache.Cache[int64]
	logger  *slog.Logger
	onStale func(ctx context.Context, w StaleWrite)
}

// New creates a token-validity cache loading misses from src.
func New(src SourceFunc, opts Options) *Cache {
	if opts.TTL <= 0 {
		opts.TTL = defaultTTL
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Cache{
		entries: ttlcache.New(ttlcache.Options[int64]{
			TTL:         opts.TTL,
			Capacity:    opts.Capacity,
			LoadTimeout: opts.LoadTimeout,
			Clock:       opts.Clock,
			Observer:    opts.Observer,
			Loader:      ttlcache.Loader[int64](src),
		}),
		logger:  opts.Logger,
		onStale: opts.OnStaleWrite,
	}
}

// Epoch returns the effective password epoch for userID, loading it on a miss.
func (c *Cache) Epoch(ctx context.Context, userID string) (int64, error) {
	v, err := c.entries.Get(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrEpochUnavailable, err)
	}
	return v, nil
}

// ValidateToken reports whether a token issued at issuedAt (Unix seconds)
// postdates the user's last password change. A load failure is returned as
// an error wrapping [ErrEpochUnavailable], never as false.
func (c *Cache) ValidateToken(ctx context.Context, userID string, issuedAt int64) (bool, error) {
	epoch, err := c.Epoch(ctx, userID)
	if err != nil {
		return false, err
	}
	return issuedAt >= epoch, nil
}

// SetPasswordChangedAt records a password change at epochSeconds and returns
// the effective epoch. A write older than the cached epoch is ignored and the
// cached epoch is returned. If the current epoch cannot be loaded it is
// treated as 0.
func (c *Cache) SetPasswordChangedAt(ctx context.Context, userID string, epochSeconds int64) int64 {
	if _, err := c.Epoch(ctx, userID); err != nil {
		c.logger.WarnContext(ctx, "authcache: password epoch load failed before write",
			"user_id", userID,
			"error", err)
	}

	effective, wrote := c.entries.Update(userID, func(cur int64, ok bool) (int64, bool) {
		if ok && epochSeconds < cur {
			return cur, false
		}
		return epochSeconds, true
	})
	if wrote {
		return effective
	}

	c.logger.WarnContext(ctx, "authcache: stale password epoch write rejected",
		"user_id", userID,
		"attempted", epochSeconds,
		"current", effective)
	if c.onStale != nil {
		c.onStale(ctx, StaleWrite{UserID: userID, Attempted: epochSeconds, Current: effective})
	}
	return effective
}

// Invalidate forces the next lookup for userID to reload from the source.
func (c *Cache) Invalidate(userID string) {
	c.entries.Invalidate(userID)
}

// Len returns the number of cached epochs.
func (c *Cache) Len() int {
	return c.entries.Len()
}
