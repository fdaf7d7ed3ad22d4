package authcache

import (
	"context"
	"errors"
	"fmt"
	"sync"
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

var errProviderDown = errors.New("provider down")

type mockUserProvider struct {
	mu           sync.Mutex
	clock        func() time.Time
	users        map[string]UserRecord
	byIdentifier map[string]string
	seq          int
	failByID     bool

	getByIDCalls int
}

func newMockUserProvider(clock func() time.Time) *mockUserProvider {
	return &mockUserProvider{
		clock:        clock,
		users:        make(map[string]UserRecord),
		byIdentifier: make(map[string]string),
	}
}

func (m *mockUserProvider) GetUserByIdentifier(_ context.Context, identifier string) (UserRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byIdentifier[identifier]
	if !ok {
		return UserRecord{}, ErrUserNotFound
	}
	return m.users[id], nil
}

func (m *mockUserProvider) GetUserByID(_ context.Context, userID string) (UserRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getByIDCalls++
	if m.failByID {
		return UserRecord{}, errProviderDown
	}
	rec, ok := m.users[userID]
	if !ok {
		return UserRecord{}, ErrUserNotFound
	}
	return rec, nil
}

func (m *mockUserProvider) CreateUser(_ context.Context, in CreateUserInput) (UserRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byIdentifier[in.Identifier]; ok {
		return UserRecord{}, ErrAccountExists
	}
	m.seq++
	now := m.clock()
	rec := UserRecord{
		UserID:       fmt.Sprintf("u%d", m.seq),
		Identifier:   in.Identifier,
		PasswordHash: in.PasswordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	m.users[rec.UserID] = rec
	m.byIdentifier[rec.Identifier] = rec.UserID
	return rec, nil
}

func (m *mockUserProvider) UpdatePasswordHash(_ context.Context, userID, hash string) (UserRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.users[userID]
	if !ok {
		return UserRecord{}, ErrUserNotFound
	}
	now := m.clock()
	rec.PasswordHash = hash
	rec.PasswordChangedAt = now
	rec.UpdatedAt = now
	m.users[userID] = rec
	return rec, nil
}

func (m *mockUserProvider) setFailByID(fail bool) {
	m.mu.Lock()
	m.failByID = fail
	m.mu.Unlock()
}

func (m *mockUserProvider) byIDCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getByIDCalls
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.SigningMethod = "hs256"
	cfg.JWT.PrivateKey = []byte("0123456789abcdef0123456789abcdef")
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Login.Delay = DelayNone
	cfg.PasswordChange.Delay = DelayNone
	return cfg
}

type testEngine struct {
	*Engine
	clock *fakeClock
	users *mockUserProvider
}

func newTestEngine(t *testing.T, cfg Config, opts ...func(*Builder)) testEngine {
	t.Helper()
	clk := newFakeClock()
	users := newMockUserProvider(clk.Now)

	b := New().
		WithConfig(cfg).
		WithUserProvider(users).
		WithClock(clk.Now)
	for _, opt := range opts {
		opt(b)
	}
	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)
	return testEngine{Engine: engine, clock: clk, users: users}
}

func (te testEngine) signup(t *testing.T, identifier, password string) string {
	t.Helper()
	res, err := te.Signup(context.Background(), identifier, password)
	if err != nil {
		t.Fatalf("signup failed: %v", err)
	}
	if !res.Accepted {
		t.Fatal("signup unexpectedly throttled")
	}
	return res.UserID
}

func boolPtr(v bool) *bool { return &v }
