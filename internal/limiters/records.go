package limiters

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

var errMalformedRecord = errors.New("malformed record")

// AttemptRecord is the per-key failure state of an [AttemptThrottle].
type AttemptRecord struct {
	FailedAttempts int
	LockedUntil    time.Time // zero = not locked
}

func (r AttemptRecord) locked(now time.Time) bool {
	return !r.LockedUntil.IsZero() && now.Before(r.LockedUntil)
}

func (r AttemptRecord) lockLapsed(now time.Time) bool {
	return !r.LockedUntil.IsZero() && !now.Before(r.LockedUntil)
}

// OriginWindowRecord is the per-origin state of an [OriginLimiter].
type OriginWindowRecord struct {
	Count       int
	WindowStart time.Time
}

// AttemptCodec is the Redis encoding of [AttemptRecord]: "<count>:<lockedUntilUnixNano>".
type AttemptCodec struct{}

func (AttemptCodec) Encode(r AttemptRecord) string {
	var until int64
	if !r.LockedUntil.IsZero() {
		until = r.LockedUntil.UnixNano()
	}
	return strconv.Itoa(r.FailedAttempts) + ":" + strconv.FormatInt(until, 10)
}

func (AttemptCodec) Decode(raw string) (AttemptRecord, error) {
	count, nanos, err := splitPair(raw)
	if err != nil {
		return AttemptRecord{}, err
	}
	rec := AttemptRecord{FailedAttempts: int(count)}
	if nanos != 0 {
		rec.LockedUntil = time.Unix(0, nanos)
	}
	return rec, nil
}

// OriginCodec is the Redis encoding of [OriginWindowRecord]: "<count>:<windowStartUnixNano>".
type OriginCodec struct{}

func (OriginCodec) Encode(r OriginWindowRecord) string {
	return strconv.Itoa(r.Count) + ":" + strconv.FormatInt(r.WindowStart.UnixNano(), 10)
}

func (OriginCodec) Decode(raw string) (OriginWindowRecord, error) {
	count, nanos, err := splitPair(raw)
	if err != nil {
		return OriginWindowRecord{}, err
	}
	return OriginWindowRecord{Count: int(count), WindowStart: time.Unix(0, nanos)}, nil
}

func splitPair(raw string) (int64, int64, error) {
	left, right, ok := strings.Cut(raw, ":")
	if !ok {
		return 0, 0, errMalformedRecord
	}
	a, err := strconv.ParseInt(left, 10, 64)
	if err != nil || a < 0 {
		return 0, 0, errMalformedRecord
	}
	b, err := strconv.ParseInt(right, 10, 64)
	if err != nil || b < 0 {
		return 0, 0, errMalformedRecord
	}
	return a, b, nil
}
