package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/crypto/argon2"
)

const (
	phcPrefix = "argon2id"

	floorMemoryKB uint32 = 8 * 1024
	floorSaltLen  uint32 = 16
	floorKeyLen   uint32 = 16

	// DefaultMinLength is the shortest password accepted when Params.MinLength is zero.
	DefaultMinLength = 10
	// DefaultMaxBytes caps password input when Params.MaxBytes is zero.
	DefaultMaxBytes = 1024
)

var (
	// ErrTooShort is returned when a password is below the configured minimum.
	ErrTooShort = errors.New("password: too short")
	// ErrTooLong is returned when a password exceeds the configured byte cap.
	ErrTooLong = errors.New("password: too long")
	// ErrMalformedHash is returned for hashes that are not argon2id PHC strings.
	ErrMalformedHash = errors.New("password: malformed hash")
)

// Params are the argon2id cost parameters and input bounds.
type Params struct {
	MemoryKB    uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
	MinLength   int
	MaxBytes    int
}

// DefaultParams returns the production cost parameters.
func DefaultParams() Params {
	return Params{
		MemoryKB:    64 * 1024,
		Iterations:  3,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
		MinLength:   DefaultMinLength,
		MaxBytes:    DefaultMaxBytes,
	}
}

// Hasher hashes and verifies passwords. It is safe for concurrent use.
type Hasher struct {
	params Params

	dummyOnce sync.Once
	dummy     string
}

type phc struct {
	memory      uint32
	iterations  uint32
	parallelism uint8
	salt        []byte
	key         []byte
}

// NewHasher validates p and returns a [Hasher].
func NewHasher(p Params) (*Hasher, error) {
	if p.MinLength == 0 {
		p.MinLength = DefaultMinLength
	}
	if p.MaxBytes == 0 {
		p.MaxBytes = DefaultMaxBytes
	}
	switch {
	case p.MemoryKB < floorMemoryKB:
		return nil, fmt.Errorf("password memory must be >= %d KB", floorMemoryKB)
	case p.Iterations < 1:
		return nil, errors.New("password iterations must be >= 1")
	case p.Parallelism < 1:
		return nil, errors.New("password parallelism must be >= 1")
	case p.SaltLength < floorSaltLen:
		return nil, fmt.Errorf("password salt length must be >= %d", floorSaltLen)
	case p.KeyLength < floorKeyLen:
		return nil, fmt.Errorf("password key length must be >= %d", floorKeyLen)
	case p.MinLength < 1 || p.MaxBytes < p.MinLength:
		return nil, errors.New("password length bounds are inconsistent")
	}
	return &Hasher{params: p}, nil
}

// CheckLength applies the length bounds without hashing.
func (h *Hasher) CheckLength(password string) error {
	if len(password) > h.params.MaxBytes {
		return ErrTooLong
	}
	if len([]rune(password)) < h.params.MinLength {
		return ErrTooShort
	}
	return nil
}

// Hash returns a PHC-encoded argon2id hash of password.
func (h *Hasher) Hash(password string) (string, error) {
	if err := h.CheckLength(password); err != nil {
		return "", err
	}

	salt := make([]byte, h.params.SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", err
	}
	key := argon2.IDKey([]byte(password), salt, h.params.Iterations, h.params.MemoryKB, h.params.Parallelism, h.params.KeyLength)

	return encodePHC(phc{
		memory:      h.params.MemoryKB,
		iterations:  h.params.Iterations,
		parallelism: h.params.Parallelism,
		salt:        salt,
		key:         key,
	}), nil
}

// Verify reports whether password matches encoded.
func (h *Hasher) Verify(password, encoded string) (bool, error) {
	if len(password) > h.params.MaxBytes {
		return false, ErrTooLong
	}
	parsed, err := decodePHC(encoded)
	if err != nil {
		return false, err
	}
	key := argon2.IDKey([]byte(password), parsed.salt, parsed.iterations, parsed.memory, parsed.parallelism, uint32(len(parsed.key)))
	return subtle.ConstantTimeCompare(key, parsed.key) == 1, nil
}

// VerifyDummy performs a verification against a fixed hash and always
// reports false.
func (h *Hasher) VerifyDummy(password string) {
	h.dummyOnce.Do(func() {
		h.dummy, _ = h.Hash(strings.Repeat("x", h.params.MinLength))
	})
	if h.dummy == "" || len(password) > h.params.MaxBytes {
		return
	}
	_, _ = h.Verify(password, h.dummy)
}

// NeedsRehash reports whether encoded was produced with weaker parameters
// than the hasher's.
func (h *Hasher) NeedsRehash(encoded string) (bool, error) {
	parsed, err := decodePHC(encoded)
	if err != nil {
		return false, err
	}
	return parsed.memory < h.params.MemoryKB ||
		parsed.iterations < h.params.Iterations ||
		parsed.parallelism < h.params.Parallelism ||
		uint32(len(parsed.key)) != h.params.KeyLength, nil
}

func encodePHC(p phc) string {
	return fmt.Sprintf("$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		phcPrefix, argon2.Version,
		p.memory, p.iterations, p.parallelism,
		base64.RawStdEncoding.EncodeToString(p.salt),
		base64.RawStdEncoding.EncodeToString(p.key),
	)
}

func decodePHC(encoded string) (phc, error) {
	var out phc
	fields := strings.Split(encoded, "$")
	if len(fields) != 6 || fields[0] != "" || fields[1] != phcPrefix {
		return out, ErrMalformedHash
	}
	if fields[2] != "v="+strconv.Itoa(argon2.Version) {
		return out, fmt.Errorf("%w: unsupported version %q", ErrMalformedHash, fields[2])
	}

	var seen int
	for _, kv := range strings.Split(fields[3], ",") {
		name, raw, ok := strings.Cut(kv, "=")
		if !ok {
			return out, ErrMalformedHash
		}
		switch name {
		case "m":
			v, err := strconv.ParseUint(raw, 10, 32)
			if err != nil || uint32(v) < floorMemoryKB {
				return out, fmt.Errorf("%w: memory", ErrMalformedHash)
			}
			out.memory = uint32(v)
		case "t":
			v, err := strconv.ParseUint(raw, 10, 32)
			if err != nil || v == 0 {
				return out, fmt.Errorf("%w: iterations", ErrMalformedHash)
			}
			out.iterations = uint32(v)
		case "p":
			v, err := strconv.ParseUint(raw, 10, 8)
			if err != nil || v == 0 {
				return out, fmt.Errorf("%w: parallelism", ErrMalformedHash)
			}
			out.parallelism = uint8(v)
		default:
			return out, fmt.Errorf("%w: unknown parameter %q", ErrMalformedHash, name)
		}
		seen++
	}
	if seen != 3 || out.memory == 0 || out.iterations == 0 || out.parallelism == 0 {
		return out, fmt.Errorf("%w: missing parameters", ErrMalformedHash)
	}

	var err error
	if out.salt, err = base64.RawStdEncoding.DecodeString(fields[4]); err != nil || uint32(len(out.salt)) < floorSaltLen {
		return out, fmt.Errorf("%w: salt", ErrMalformedHash)
	}
	if out.key, err = base64.RawStdEncoding.DecodeString(fields[5]); err != nil || len(out.key) == 0 {
		return out, fmt.Errorf("%w: key", ErrMalformedHash)
	}
	return out, nil
}
