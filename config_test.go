package authcache

import (
	"testing"
	"time"
)

func TestDefaultConfigNeedsOnlyKeys(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected default config without keys to be rejected")
	}
	tcfg := testConfig()
	if err := tcfg.Validate(); err != nil {
		t.Fatalf("test config should validate: %v", err)
	}
}

func TestDefaultThrottlePolicies(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Login.MaxAttempts != 5 || cfg.Login.LockoutDuration != 15*time.Minute {
		t.Fatalf("unexpected login defaults %+v", cfg.Login)
	}
	if cfg.PasswordChange.MaxAttempts != 3 || cfg.PasswordChange.LockoutDuration != 30*time.Minute {
		t.Fatalf("unexpected password change defaults %+v", cfg.PasswordChange)
	}
	if cfg.Signup.Limit != 10 || cfg.Signup.Window != time.Hour {
		t.Fatalf("unexpected signup defaults %+v", cfg.Signup)
	}
	if cfg.ForgotPassword.Limit != 5 || cfg.ForgotPassword.Window != 15*time.Minute {
		t.Fatalf("unexpected forgot-password defaults %+v", cfg.ForgotPassword)
	}
	if cfg.TokenValidity.TTL != 24*time.Hour || cfg.TokenValidity.FailurePolicy != FailOpen {
		t.Fatalf("unexpected token validity defaults %+v", cfg.TokenValidity)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantValid bool
	}{
		{"hs256 short key", func(c *Config) { c.JWT.PrivateKey = []byte("short") }, false},
		{"unknown signing method", func(c *Config) { c.JWT.SigningMethod = "rs256" }, false},
		{"ed25519 without keys", func(c *Config) { c.JWT.SigningMethod = "ed25519" }, false},
		{"zero access ttl", func(c *Config) { c.JWT.AccessTTL = 0 }, false},
		{"weak argon memory", func(c *Config) { c.Password.Memory = 1024 }, false},
		{"inconsistent password bounds", func(c *Config) { c.Password.MinLength, c.Password.MaxBytes = 20, 10 }, false},
		{"zero epoch ttl", func(c *Config) { c.TokenValidity.TTL = 0 }, false},
		{"negative epoch load timeout", func(c *Config) { c.TokenValidity.LoadTimeout = -time.Second }, false},
		{"fail closed epoch", func(c *Config) { c.TokenValidity.FailurePolicy = FailClosed }, true},
		{"bogus failure policy", func(c *Config) { c.TokenValidity.FailurePolicy = FailurePolicy(9) }, false},
		{"zero login attempts", func(c *Config) { c.Login.MaxAttempts = 0 }, false},
		{"record ttl below lockout", func(c *Config) { c.Login.RecordTTL = time.Minute }, false},
		{"delay without base", func(c *Config) { c.PasswordChange.Delay, c.PasswordChange.DelayBase = DelayLinear, 0 }, false},
		{"exponential delay", func(c *Config) { c.Login.Delay, c.Login.DelayBase = DelayExponential, time.Millisecond }, true},
		{"bad delay strategy", func(c *Config) { c.Login.Delay = DelayStrategy(7) }, false},
		{"zero signup window", func(c *Config) { c.Signup.Window = 0 }, false},
		{"zero forgot limit", func(c *Config) { c.ForgotPassword.Limit = 0 }, false},
		{"blank redis prefix", func(c *Config) { c.Redis.Prefix = "  " }, false},
		{"audit without buffer", func(c *Config) { c.Audit.Enabled, c.Audit.BufferSize = true, 0 }, false},
		{"histograms without metrics", func(c *Config) { c.Metrics.Enabled, c.Metrics.EnableLatencyHistograms = false, true }, false},
		{"origin throttle forced on", func(c *Config) { c.Security.EnableOriginThrottle = boolPtr(true) }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantValid && err != nil {
				t.Fatalf("expected valid, got %v", err)
			}
			if !tt.wantValid && err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestCloneConfigIsolatesSlicesAndPointers(t *testing.T) {
	cfg := testConfig()
	cfg.Security.EnableOriginThrottle = boolPtr(true)
	clone := cloneConfig(cfg)

	cfg.JWT.PrivateKey[0] = 'X'
	*cfg.Security.EnableOriginThrottle = false
	if clone.JWT.PrivateKey[0] == 'X' {
		t.Fatal("private key shared with clone")
	}
	if !*clone.Security.EnableOriginThrottle {
		t.Fatal("origin throttle pointer shared with clone")
	}
}

func TestBuilderRejectsMissingProviderAndReuse(t *testing.T) {
	if _, err := New().WithConfig(testConfig()).Build(); err == nil {
		t.Fatal("expected missing user provider to fail")
	}

	b := New().WithConfig(testConfig()).WithUserProvider(newMockUserProvider(newFakeClock().Now))
	e, err := b.Build()
	if err != nil {
		t.Fatalf("first build failed: %v", err)
	}
	defer e.Close()
	if _, err := b.Build(); err == nil {
		t.Fatal("expected builder reuse to fail")
	}
}
