package authcache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MrEthical07/authcache/internal/epoch"
	"github.com/MrEthical07/authcache/internal/limiters"
	"github.com/MrEthical07/authcache/internal/rate"
	"github.com/MrEthical07/authcache/internal/store"
	"github.com/MrEthical07/authcache/jwt"
	"github.com/MrEthical07/authcache/password"
	"github.com/redis/go-redis/v9"
)

// Builder assembles an [Engine]. A Builder is single-use.
type Builder struct {
	config       Config
	redis        redis.UniversalClient
	userProvider UserProvider
	auditSink    AuditSink
	notifier     ResetNotifier
	logger       *slog.Logger
	clock        func() time.Time

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{config: defaultConfig()}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis moves throttle records into Redis so lockouts and origin windows
// are shared by every instance using the same prefix. The token-validity
// cache stays per-process.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

func (b *Builder) WithUserProvider(up UserProvider) *Builder {
	b.userProvider = up
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithResetNotifier registers the hook that delivers password-reset
// instructions. Without one, RequestPasswordReset only throttles and audits.
func (b *Builder) WithResetNotifier(n ResetNotifier) *Builder {
	b.notifier = n
	return b
}

func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithClock overrides time.Now for every component. Intended for tests.
func (b *Builder) WithClock(clock func() time.Time) *Builder {
	b.clock = clock
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires every component.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.userProvider == nil {
		return nil, errors.New("user provider required")
	}

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := b.clock
	if clock == nil {
		clock = time.Now
	}

	engine := &Engine{
		config:       cfg,
		userProvider: b.userProvider,
		notifier:     b.notifier,
		logger:       logger,
		now:          clock,
		metrics:      NewMetrics(cfg.Metrics),
	}
	engine.audit = newAuditDispatcher(cfg.Audit, b.auditSink)

	// -------- PASSWORD / JWT --------
	hasher, err := password.NewHasher(password.Params{
		MemoryKB:    cfg.Password.Memory,
		Iterations:  cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
		MinLength:   cfg.Password.MinLength,
		MaxBytes:    cfg.Password.MaxBytes,
	})
	if err != nil {
		return nil, err
	}
	engine.passwords = hasher

	tokens, err := jwt.NewManager(jwt.Config{
		AccessTTL:     cfg.JWT.AccessTTL,
		SigningMethod: jwt.SigningMethod(cfg.JWT.SigningMethod),
		PrivateKey:    cloneBytes(cfg.JWT.PrivateKey),
		PublicKey:     cloneBytes(cfg.JWT.PublicKey),
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		Leeway:        cfg.JWT.Leeway,
		Clock:         clock,
	})
	if err != nil {
		return nil, err
	}
	engine.tokens = tokens

	// -------- TOKEN VALIDITY --------
	engine.epochs = epoch.New(engine.loadPasswordEpoch, epoch.Options{
		TTL:          cfg.TokenValidity.TTL,
		Capacity:     cfg.TokenValidity.Capacity,
		LoadTimeout:  cfg.TokenValidity.LoadTimeout,
		Clock:        clock,
		Observer:     epochObserver(engine.metrics),
		Logger:       logger,
		OnStaleWrite: engine.onStaleEpochWrite,
	})

	// -------- THROTTLES --------
	stores := storeFactory{
		redis:   b.redis,
		prefix:  cfg.Redis.Prefix,
		retries: cfg.Redis.MaxTxRetries,
		clock:   clock,
		metrics: engine.metrics,
	}
	originEnabled := cfg.Security.OriginThrottleEnabled()

	engine.loginLimiter = rate.New(
		limiters.NewAttemptThrottle(stores.attempts("login:id", cfg.Login), cfg.Login.identityPolicy(), clock),
		limiters.NewAttemptThrottle(stores.attempts("login:ip", cfg.Login), cfg.Login.originPolicy(), clock),
		rate.Config{EnableOriginThrottle: originEnabled},
	)
	engine.passwordChangeLimiter = rate.New(
		limiters.NewAttemptThrottle(stores.attempts("pwchange:id", cfg.PasswordChange), cfg.PasswordChange.identityPolicy(), clock),
		limiters.NewAttemptThrottle(stores.attempts("pwchange:ip", cfg.PasswordChange), cfg.PasswordChange.originPolicy(), clock),
		rate.Config{EnableOriginThrottle: originEnabled},
	)
	engine.signupLimiter = limiters.NewOriginLimiter(
		stores.windows("signup", cfg.Signup),
		limiters.OriginPolicy{Limit: cfg.Signup.Limit, Window: cfg.Signup.Window},
		clock,
	)
	engine.forgotLimiter = limiters.NewOriginLimiter(
		stores.windows("forgot", cfg.ForgotPassword),
		limiters.OriginPolicy{Limit: cfg.ForgotPassword.Limit, Window: cfg.ForgotPassword.Window},
		clock,
	)

	logger.Debug("authcache engine built",
		"redis", b.redis != nil,
		"origin_throttle", originEnabled,
		"token_failure_policy", cfg.TokenValidity.FailurePolicy.String(),
		"throttle_failure_policy", cfg.Security.ThrottleFailurePolicy.String())

	b.built = true
	return engine, nil
}

// storeFactory builds throttle record stores, in Redis when a client was
// supplied and in process memory otherwise.
type storeFactory struct {
	redis   redis.UniversalClient
	prefix  string
	retries int
	clock   func() time.Time
	metrics *Metrics
}

func (f storeFactory) attempts(name string, cfg AttemptThrottleConfig) store.Store[limiters.AttemptRecord] {
	if f.redis != nil {
		return store.NewRedis[limiters.AttemptRecord](f.redis, limiters.AttemptCodec{}, store.RedisOptions{
			Prefix:       fmt.Sprintf("%s:%s:", f.prefix, name),
			TTL:          cfg.RecordTTL,
			MaxTxRetries: f.retries,
		})
	}
	return store.NewMemory[limiters.AttemptRecord](store.MemoryOptions{
		TTL:      cfg.RecordTTL,
		Capacity: cfg.Capacity,
		Clock:    f.clock,
		Observer: throttleObserver(f.metrics),
	})
}

func (f storeFactory) windows(name string, cfg OriginLimitConfig) store.Store[limiters.OriginWindowRecord] {
	if f.redis != nil {
		return store.NewRedis[limiters.OriginWindowRecord](f.redis, limiters.OriginCodec{}, store.RedisOptions{
			Prefix:       fmt.Sprintf("%s:%s:", f.prefix, name),
			TTL:          cfg.Window,
			MaxTxRetries: f.retries,
		})
	}
	return store.NewMemory[limiters.OriginWindowRecord](store.MemoryOptions{
		TTL:      cfg.Window,
		Capacity: cfg.Capacity,
		Clock:    f.clock,
		Observer: throttleObserver(f.metrics),
	})
}

func (e *Engine) loadPasswordEpoch(ctx context.Context, userID string) (int64, error) {
	rec, err := e.userProvider.GetUserByID(ctx, userID)
	if err != nil {
		return 0, err
	}
	return rec.PasswordEpoch().Unix(), nil
}
