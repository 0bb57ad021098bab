package main

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"admission-gateway/middleware/ratelimit"
	"admission-gateway/middleware/ratelimit/domain"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestReadConfig_Defaults(t *testing.T) {
	t.Setenv("UPSTREAM_URL", "http://localhost:9000")

	cfg, err := readConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.defaultPolicy.Name != "relaxed" || cfg.strictPolicy.Name != "strict" {
		t.Fatalf("unexpected policies: default=%q strict=%q", cfg.defaultPolicy.Name, cfg.strictPolicy.Name)
	}
	if cfg.strictPolicy.Quota != 5 || cfg.strictPolicy.Window != time.Minute {
		t.Fatalf("unexpected strict policy %+v", cfg.strictPolicy)
	}
	if cfg.sweepEvery != time.Minute {
		t.Fatalf("expected 1m sweep cadence, got %s", cfg.sweepEvery)
	}
	if len(cfg.strictPrefixes) != 2 || cfg.strictPrefixes[0] != "/login" || cfg.strictPrefixes[1] != "/auth" {
		t.Fatalf("unexpected strict prefixes %v", cfg.strictPrefixes)
	}
	if !cfg.addHeaders {
		t.Fatalf("expected rate limit headers on by default")
	}
}

func TestReadConfig_RequiresUpstream(t *testing.T) {
	t.Setenv("UPSTREAM_URL", "")
	if _, err := readConfig(); err == nil {
		t.Fatalf("expected error without UPSTREAM_URL")
	}
}

func TestReadConfig_UnknownPolicyNameIsFatal(t *testing.T) {
	t.Setenv("UPSTREAM_URL", "http://localhost:9000")
	t.Setenv("RATE_DEFAULT_POLICY", "nope")

	if _, err := readConfig(); !errors.Is(err, domain.ErrUnknownPolicy) {
		t.Fatalf("expected ErrUnknownPolicy, got %v", err)
	}
}

func TestReadConfig_RedisStatsRequireAddr(t *testing.T) {
	t.Setenv("UPSTREAM_URL", "http://localhost:9000")
	t.Setenv("RATE_STATS_BACKEND", "redis")

	if _, err := readConfig(); err == nil {
		t.Fatalf("expected error without RATE_STATS_REDIS_ADDR")
	}
}

func TestReadConfig_RejectsUnknownStatsBackend(t *testing.T) {
	t.Setenv("UPSTREAM_URL", "http://localhost:9000")
	t.Setenv("RATE_STATS_BACKEND", "postgres")

	if _, err := readConfig(); err == nil {
		t.Fatalf("expected error for unsupported stats backend")
	}
}

func TestReadConfig_SweepEveryMustBePositive(t *testing.T) {
	t.Setenv("UPSTREAM_URL", "http://localhost:9000")

	for _, v := range []string{"0", "0s", "-1m", "bogus"} {
		t.Setenv("RATE_SWEEP_EVERY", v)
		if _, err := readConfig(); err == nil {
			t.Fatalf("RATE_SWEEP_EVERY=%q: expected config error", v)
		}
	}

	t.Setenv("RATE_SWEEP_EVERY", "30s")
	cfg, err := readConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.sweepEvery != 30*time.Second {
		t.Fatalf("expected 30s, got %s", cfg.sweepEvery)
	}
}

func TestReadConfig_StrictPrefixesMustBeRoutePaths(t *testing.T) {
	t.Setenv("UPSTREAM_URL", "http://localhost:9000")

	for _, v := range []string{"login", "/login,auth", "/api/*", "/users/{id}"} {
		t.Setenv("RATE_STRICT_PREFIXES", v)
		if _, err := readConfig(); err == nil {
			t.Fatalf("RATE_STRICT_PREFIXES=%q: expected config error", v)
		}
	}
}

func TestReadConfig_StrictPrefixesBuildRouter(t *testing.T) {
	t.Setenv("UPSTREAM_URL", "http://localhost:9000")
	t.Setenv("RATE_STRICT_PREFIXES", "/login/, /auth/token")

	cfg, err := readConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	h, _ := newTestRouter(t, cfg, nil)
	if w := get(h, "/auth/token", "5.5.5.5"); w.Header().Get(ratelimit.HeaderLimit) != "5" {
		t.Fatalf("expected strict policy on /auth/token, got limit %q", w.Header().Get(ratelimit.HeaderLimit))
	}
}

func TestReadConfig_StatsPathMustBeRoutePath(t *testing.T) {
	t.Setenv("UPSTREAM_URL", "http://localhost:9000")
	t.Setenv("RATE_STATS_PATH", "stats")

	if _, err := readConfig(); err == nil {
		t.Fatalf("expected config error for RATE_STATS_PATH without leading '/'")
	}
}

func TestLoadPolicies_FromYAML(t *testing.T) {
	path := writeFile(t, "policies.yaml", `
policies:
  - name: login
    window: 30s
    quota: 3
  - name: api
    window: 1m
    quota: 600
`)

	table, err := loadPolicies(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	login, err := table.Lookup("login")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if login.Window != 30*time.Second || login.Quota != 3 {
		t.Fatalf("unexpected login policy %+v", login)
	}
	if table.Len() != 2 {
		t.Fatalf("expected 2 policies, got %d", table.Len())
	}
}

func TestLoadPolicies_InvalidValuesAreFatal(t *testing.T) {
	cases := map[string]string{
		"zero_quota":  "policies:\n  - name: p\n    window: 1m\n    quota: 0\n",
		"zero_window": "policies:\n  - name: p\n    window: 0s\n    quota: 1\n",
		"bad_window":  "policies:\n  - name: p\n    window: soon\n    quota: 1\n",
	}
	for name, content := range cases {
		path := writeFile(t, name+".yaml", content)
		if _, err := loadPolicies(path); !errors.Is(err, domain.ErrInvalidPolicy) {
			t.Fatalf("%s: expected ErrInvalidPolicy, got %v", name, err)
		}
	}

	empty := writeFile(t, "empty.yaml", "policies: []\n")
	if _, err := loadPolicies(empty); err == nil {
		t.Fatalf("expected error for empty policy file")
	}
	if _, err := loadPolicies(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestSplitList(t *testing.T) {
	got := splitList(" /login/ , ,/auth")
	if len(got) != 2 || got[0] != "/login" || got[1] != "/auth" {
		t.Fatalf("unexpected list %v", got)
	}
}
