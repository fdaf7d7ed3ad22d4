package authcache

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/authcache/internal/limiters"
)

// Config is the full Engine configuration. Start from [DefaultConfig] and
// override fields; Build validates the result.
type Config struct {
	JWT            JWTConfig
	Password       PasswordConfig
	TokenValidity  TokenValidityConfig
	Login          AttemptThrottleConfig
	PasswordChange AttemptThrottleConfig
	Signup         OriginLimitConfig
	ForgotPassword OriginLimitConfig
	Redis          RedisConfig
	Audit          AuditConfig
	Metrics        MetricsConfig
	Security       SecurityConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig configures access-token issuance.
type JWTConfig struct {
	AccessTTL     time.Duration
	SigningMethod string // "ed25519" (default), "hs256" optional
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig holds argon2id cost parameters and length bounds.
type PasswordConfig struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
	MinLength   int
	MaxBytes    int
}

/*
====================================
CACHE CONFIG
====================================
*/

// FailurePolicy decides what happens when a backing store cannot answer.
type FailurePolicy int

const (
	// FailOpen accepts the request and logs the failure at error level.
	FailOpen FailurePolicy = iota
	// FailClosed rejects the request.
	FailClosed
)

func (p FailurePolicy) String() string {
	switch p {
	case FailOpen:
		return "fail-open"
	case FailClosed:
		return "fail-closed"
	default:
		return fmt.Sprintf("FailurePolicy(%d)", int(p))
	}
}

// TokenValidityConfig configures the per-process password-epoch cache.
type TokenValidityConfig struct {
	TTL      time.Duration
	Capacity int
	// LoadTimeout bounds one user-store lookup on a cache miss. The lookup is
	// shared by concurrent validations and outlives any single request.
	LoadTimeout   time.Duration
	FailurePolicy FailurePolicy
}

// DelayStrategy selects the progressive delay curve of an attempt throttle.
type DelayStrategy int

const (
	DelayNone DelayStrategy = iota
	DelayLinear
	DelayExponential
)

// AttemptThrottleConfig configures one identity+origin throttle pair.
type AttemptThrottleConfig struct {
	MaxAttempts       int
	OriginMaxAttempts int
	LockoutDuration   time.Duration
	// RecordTTL bounds how long an idle failure count survives. It must be
	// at least LockoutDuration.
	RecordTTL time.Duration
	Delay     DelayStrategy
	DelayBase time.Duration
	MaxDelay  time.Duration
	Capacity  int
}

// OriginLimitConfig configures a fixed-window per-origin limiter.
type OriginLimitConfig struct {
	Limit    int
	Window   time.Duration
	Capacity int
}

/*
====================================
BACKEND CONFIG
====================================
*/

// RedisConfig applies when Builder.WithRedis supplies a client. Throttle
// records then live in Redis and are shared across instances.
type RedisConfig struct {
	Prefix       string
	MaxTxRetries int
}

// AuditConfig configures the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig toggles in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// SecurityConfig holds environment-level switches.
type SecurityConfig struct {
	ProductionMode bool
	// EnableOriginThrottle gates the origin dimension of login and password
	// change throttling. Nil follows ProductionMode.
	EnableOriginThrottle  *bool
	ThrottleFailurePolicy FailurePolicy
}

// OriginThrottleEnabled resolves EnableOriginThrottle against ProductionMode.
func (s SecurityConfig) OriginThrottleEnabled() bool {
	if s.EnableOriginThrottle != nil {
		return *s.EnableOriginThrottle
	}
	return s.ProductionMode
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:     15 * time.Minute,
			SigningMethod: "ed25519",
			Issuer:        "authcache",
		},
		Password: PasswordConfig{
			Memory:      65536,
			Time:        3,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
			MinLength:   10,
			MaxBytes:    1024,
		},
		TokenValidity: TokenValidityConfig{
			TTL:           24 * time.Hour,
			Capacity:      100_000,
			LoadTimeout:   5 * time.Second,
			FailurePolicy: FailOpen,
		},
		Login: AttemptThrottleConfig{
			MaxAttempts:       5,
			OriginMaxAttempts: 20,
			LockoutDuration:   15 * time.Minute,
			RecordTTL:         time.Hour,
			Delay:             DelayExponential,
			DelayBase:         250 * time.Millisecond,
			MaxDelay:          4 * time.Second,
			Capacity:          100_000,
		},
		PasswordChange: AttemptThrottleConfig{
			MaxAttempts:       3,
			OriginMaxAttempts: 10,
			LockoutDuration:   30 * time.Minute,
			RecordTTL:         time.Hour,
			Delay:             DelayLinear,
			DelayBase:         500 * time.Millisecond,
			MaxDelay:          3 * time.Second,
			Capacity:          100_000,
		},
		Signup: OriginLimitConfig{
			Limit:    10,
			Window:   time.Hour,
			Capacity: 100_000,
		},
		ForgotPassword: OriginLimitConfig{
			Limit:    5,
			Window:   15 * time.Minute,
			Capacity: 100_000,
		},
		Redis: RedisConfig{
			Prefix:       "ac",
			MaxTxRetries: 8,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
		Security: SecurityConfig{
			ThrottleFailurePolicy: FailOpen,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	if cfg.Security.EnableOriginThrottle != nil {
		v := *cfg.Security.EnableOriginThrottle
		out.Security.EnableOriginThrottle = &v
	}
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// Validate reports the first configuration error.
func (c *Config) Validate() error {
	// JWT
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	switch c.JWT.SigningMethod {
	case "ed25519":
		if len(c.JWT.PrivateKey) == 0 || len(c.JWT.PublicKey) == 0 {
			return errors.New("ed25519 requires PrivateKey and PublicKey")
		}
	case "hs256":
		if len(c.JWT.PrivateKey) < 32 {
			return errors.New("hs256 requires a PrivateKey of at least 32 bytes")
		}
	default:
		return errors.New("unsupported JWT signing method")
	}

	// Password
	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KB")
	}
	if c.Password.Time < 1 {
		return errors.New("Password Time must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("Password Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}
	if c.Password.MinLength < 1 || c.Password.MaxBytes < c.Password.MinLength {
		return errors.New("Password MinLength/MaxBytes are inconsistent")
	}

	// Token validity
	if c.TokenValidity.TTL <= 0 {
		return errors.New("TokenValidity TTL must be > 0")
	}
	if c.TokenValidity.Capacity <= 0 {
		return errors.New("TokenValidity Capacity must be > 0")
	}
	if c.TokenValidity.LoadTimeout < 0 {
		return errors.New("TokenValidity LoadTimeout must be >= 0")
	}
	if err := validatePolicy("TokenValidity", c.TokenValidity.FailurePolicy); err != nil {
		return err
	}

	// Throttles
	if err := c.Login.validate("Login"); err != nil {
		return err
	}
	if err := c.PasswordChange.validate("PasswordChange"); err != nil {
		return err
	}
	if err := c.Signup.validate("Signup"); err != nil {
		return err
	}
	if err := c.ForgotPassword.validate("ForgotPassword"); err != nil {
		return err
	}
	if err := validatePolicy("Security Throttle", c.Security.ThrottleFailurePolicy); err != nil {
		return err
	}

	// Redis
	if strings.TrimSpace(c.Redis.Prefix) == "" {
		return errors.New("Redis Prefix must not be empty")
	}
	if c.Redis.MaxTxRetries < 1 {
		return errors.New("Redis MaxTxRetries must be >= 1")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}
	if c.Metrics.EnableLatencyHistograms && !c.Metrics.Enabled {
		return errors.New("Metrics EnableLatencyHistograms requires Metrics Enabled")
	}

	return nil
}

func (t AttemptThrottleConfig) validate(name string) error {
	switch {
	case t.MaxAttempts <= 0:
		return fmt.Errorf("%s MaxAttempts must be > 0", name)
	case t.OriginMaxAttempts <= 0:
		return fmt.Errorf("%s OriginMaxAttempts must be > 0", name)
	case t.LockoutDuration <= 0:
		return fmt.Errorf("%s LockoutDuration must be > 0", name)
	case t.RecordTTL < t.LockoutDuration:
		return fmt.Errorf("%s RecordTTL must be >= LockoutDuration", name)
	case t.Delay < DelayNone || t.Delay > DelayExponential:
		return fmt.Errorf("%s Delay strategy is invalid", name)
	case t.Delay != DelayNone && t.DelayBase <= 0:
		return fmt.Errorf("%s DelayBase must be > 0 when a delay strategy is set", name)
	case t.MaxDelay < 0:
		return fmt.Errorf("%s MaxDelay must be >= 0", name)
	case t.Capacity <= 0:
		return fmt.Errorf("%s Capacity must be > 0", name)
	}
	return nil
}

func (o OriginLimitConfig) validate(name string) error {
	switch {
	case o.Limit <= 0:
		return fmt.Errorf("%s Limit must be > 0", name)
	case o.Window <= 0:
		return fmt.Errorf("%s Window must be > 0", name)
	case o.Capacity <= 0:
		return fmt.Errorf("%s Capacity must be > 0", name)
	}
	return nil
}

func validatePolicy(name string, p FailurePolicy) error {
	if p != FailOpen && p != FailClosed {
		return fmt.Errorf("%s FailurePolicy is invalid", name)
	}
	return nil
}

func (t AttemptThrottleConfig) identityPolicy() limiters.AttemptPolicy {
	return limiters.AttemptPolicy{
		MaxAttempts:     t.MaxAttempts,
		LockoutDuration: t.LockoutDuration,
		Delay:           t.delayFunc(),
		MaxDelay:        t.MaxDelay,
	}
}

func (t AttemptThrottleConfig) originPolicy() limiters.AttemptPolicy {
	p := t.identityPolicy()
	p.MaxAttempts = t.OriginMaxAttempts
	return p
}

func (t AttemptThrottleConfig) delayFunc() limiters.DelayFunc {
	switch t.Delay {
	case DelayLinear:
		return limiters.LinearDelay(t.DelayBase)
	case DelayExponential:
		return limiters.ExponentialDelay(t.DelayBase)
	default:
		return limiters.NoDelay
	}
}
