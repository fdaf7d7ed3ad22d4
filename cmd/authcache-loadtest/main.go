// Command authcache-loadtest drives an Engine with concurrent token
// validation, login throttling and password-epoch churn, and prints latency
// percentiles per phase.
//
// Throttle state lives in Redis (-redis-addr or REDIS_ADDR, miniredis when
// neither is set). Users live in memory unless -database-url or DATABASE_URL
// points at PostgreSQL.
package main

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	mrand "math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/authcache"
	"github.com/MrEthical07/authcache/userstore/memory"
	"github.com/MrEthical07/authcache/userstore/postgres"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type account struct {
	identifier string
	userID     string
	token      string
	issuedAt   time.Time
}

func main() {
	var (
		users       = flag.Int("users", 1000, "number of accounts to create")
		concurrency = flag.Int("concurrency", 256, "number of concurrent workers")
		ops         = flag.Int("ops", 200000, "operations per phase")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		databaseURL = flag.String("database-url", "", "postgres DSN; if empty, DATABASE_URL env or an in-memory store is used")
		prefix      = flag.String("prefix", "lt", "redis key prefix")
		argonMemKB  = flag.Uint("argon-memory", 8*1024, "argon2id memory in KiB")
		failOpen    = flag.Bool("fail-open", true, "accept tokens when the password epoch cannot be loaded")
	)
	flag.Parse()

	if *users <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "users, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	client, closeRedis, err := openRedis(*redisAddr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "redis: %v\n", err)
		os.Exit(1)
	}
	defer closeRedis()

	provider, closeDB, err := openUserStore(ctx, *databaseURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "user store: %v\n", err)
		os.Exit(1)
	}
	defer closeDB()

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		fmt.Fprintf(os.Stderr, "keygen: %v\n", err)
		os.Exit(1)
	}

	cfg := authcache.DefaultConfig()
	cfg.JWT.PrivateKey = priv
	cfg.JWT.PublicKey = pub
	cfg.Password.Memory = uint32(*argonMemKB)
	cfg.Password.Time = 1
	cfg.Login.Delay = authcache.DelayNone
	cfg.Redis.Prefix = *prefix
	cfg.Metrics.EnableLatencyHistograms = true
	cfg.Security.EnableOriginThrottle = new(bool)
	if !*failOpen {
		cfg.TokenValidity.FailurePolicy = authcache.FailClosed
	}

	engine, err := authcache.New().
		WithConfig(cfg).
		WithRedis(client).
		WithUserProvider(provider).
		WithLogger(logger).
		Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "engine build: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	fmt.Printf("creating %d accounts...\n", *users)
	startSeed := time.Now()
	accounts, err := seed(ctx, engine, *users, *concurrency)
	if err != nil {
		fmt.Fprintf(os.Stderr, "seed failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	validateStats := runPhase(*ops, *concurrency, func(r *mrand.Rand, _ int) error {
		_, err := engine.Validate(ctx, accounts[r.Intn(len(accounts))].token)
		return err
	})

	throttleStats := runPhase(*ops, *concurrency, func(r *mrand.Rand, _ int) error {
		ident := accounts[r.Intn(len(accounts))].identifier
		d, err := engine.CheckLogin(ctx, ident)
		if err != nil {
			return err
		}
		if !d.Allowed {
			return engine.ResetLogin(ctx, ident)
		}
		_, err = engine.RecordLoginFailure(ctx, ident)
		return err
	})

	// epoch writes never exceed token iat, so every check must pass
	var revoked atomic.Int64
	churnStats := runPhase(*ops, *concurrency, func(r *mrand.Rand, i int) error {
		acc := accounts[r.Intn(len(accounts))]
		if i%8 == 0 {
			_, err := engine.SetPasswordChangedAt(ctx, acc.userID, acc.issuedAt.Add(-time.Duration(r.Intn(3600))*time.Second))
			return err
		}
		ok, err := engine.ValidateTokenEpoch(ctx, acc.userID, acc.issuedAt)
		if err == nil && !ok {
			revoked.Add(1)
		}
		return err
	})

	fmt.Println("---- results ----")
	printStats("validate", validateStats)
	printStats("login-throttle", throttleStats)
	printStats("epoch-churn", churnStats)
	if n := revoked.Load(); n != 0 {
		fmt.Printf("unexpected revocations during churn: %d\n", n)
	}

	snap := engine.MetricsSnapshot()
	fmt.Printf("epoch cache: entries=%d hits=%d misses=%d evictions=%d stale_writes=%d\n",
		engine.EpochCacheSize(),
		snap.Counters[authcache.MetricEpochCacheHit],
		snap.Counters[authcache.MetricEpochCacheMiss],
		snap.Counters[authcache.MetricEpochCacheEviction],
		snap.Counters[authcache.MetricEpochStaleWrite],
	)
}

func openRedis(addr string) (redis.UniversalClient, func(), error) {
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}
	if addr != "" {
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		fmt.Printf("using redis at %s\n", addr)
		return client, func() { _ = client.Close() }, nil
	}

	mr, err := miniredis.Run()
	if err != nil {
		return nil, nil, fmt.Errorf("start miniredis: %w", err)
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
	fmt.Printf("using miniredis at %s\n", mr.Addr())
	return client, func() {
		_ = client.Close()
		mr.Close()
	}, nil
}

func openUserStore(ctx context.Context, dsn string) (authcache.UserProvider, func(), error) {
	if dsn == "" {
		dsn = os.Getenv("DATABASE_URL")
	}
	if dsn == "" {
		fmt.Println("using in-memory user store")
		return memory.New(nil), func() {}, nil
	}

	db, err := postgres.Open(ctx, dsn)
	if err != nil {
		return nil, nil, err
	}
	if err := postgres.Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	fmt.Println("using postgres user store")
	return postgres.New(db, nil), func() { _ = db.Close() }, nil
}

func seed(ctx context.Context, engine *authcache.Engine, n, concurrency int) ([]account, error) {
	accounts := make([]account, n)
	run := time.Now().UnixNano()

	var (
		wg       sync.WaitGroup
		cursor   atomic.Int64
		firstErr error
		errOnce  sync.Once
	)
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				i := int(cursor.Add(1)) - 1
				if i >= n {
					return
				}
				acc, err := seedOne(ctx, engine, fmt.Sprintf("lt-%d-%d@example.com", run, i))
				if err != nil {
					errOnce.Do(func() { firstErr = err })
					return
				}
				accounts[i] = acc
			}
		}()
	}
	wg.Wait()
	return accounts, firstErr
}

func seedOne(ctx context.Context, engine *authcache.Engine, identifier string) (account, error) {
	const pass = "load-test-password"

	res, err := engine.Signup(ctx, identifier, pass)
	if err != nil {
		return account{}, fmt.Errorf("signup %s: %w", identifier, err)
	}
	if !res.Accepted {
		return account{}, errors.New("signup throttled")
	}
	login, err := engine.Login(ctx, identifier, pass)
	if err != nil {
		return account{}, fmt.Errorf("login %s: %w", identifier, err)
	}
	return account{
		identifier: identifier,
		userID:     login.UserID,
		token:      login.AccessToken,
		issuedAt:   login.IssuedAt,
	}, nil
}

func runPhase(ops, concurrency int, op func(r *mrand.Rand, i int) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := mrand.New(mrand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				err := op(r, i)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	return samples[(len(samples)-1)*p/100]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
