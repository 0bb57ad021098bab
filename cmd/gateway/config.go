package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"admission-gateway/middleware/ratelimit/domain"
	"admission-gateway/middleware/ratelimit/infra"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

type config struct {
	listenAddr  string
	upstreamURL string
	logLevel    string
	logFormat   string

	rateEnabled    bool
	policies       domain.PolicyTable
	defaultPolicy  domain.Policy
	strictPolicy   domain.Policy
	strictPrefixes []string
	sweepEvery     time.Duration
	rateKeyHeader  string
	addHeaders     bool

	concurrencyMax     int
	concurrencyTimeout time.Duration

	statsBackend       string // "", "memory", "redis" ou "sqlite"
	statsRedisAddr     string
	statsRedisPassword string
	statsRedisDB       int
	statsPrefix        string
	statsTTL           time.Duration
	statsBucket        string
	statsTrackKeys     bool
	statsSQLitePath    string
	statsPath          string
}

// defaultPolicies vale quando RATE_POLICIES_FILE não é informado.
func defaultPolicies() []domain.Policy {
	return []domain.Policy{
		{Name: "strict", Window: time.Minute, Quota: 5},
		{Name: "relaxed", Window: time.Minute, Quota: 100},
	}
}

// loadDotEnv carrega ENV_FILE (padrão .env) sem sobrescrever o ambiente.
// Arquivo ausente não é erro.
func loadDotEnv() {
	path := getenvDefault("ENV_FILE", ".env")
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn().Err(err).Str("path", path).Msg("failed to load env file")
	}
}

func readConfig() (config, error) {
	cfg := config{}
	cfg.listenAddr = getenvDefault("LISTEN_ADDR", ":8080")
	cfg.upstreamURL = os.Getenv("UPSTREAM_URL")
	cfg.logLevel = getenvDefault("LOG_LEVEL", "info")
	cfg.logFormat = getenvDefault("LOG_FORMAT", "json")

	cfg.rateEnabled = getenvBoolDefault("RATE_ENABLED", true)
	cfg.rateKeyHeader = os.Getenv("RATE_KEY_HEADER")
	cfg.addHeaders = getenvBoolDefault("ADD_RATELIMIT_HEADERS", true)
	cfg.strictPrefixes = splitList(getenvDefault("RATE_STRICT_PREFIXES", "/login,/auth"))

	sweepEvery, err := getenvPositiveDuration("RATE_SWEEP_EVERY", infra.DefaultSweepEvery)
	if err != nil {
		return config{}, err
	}
	cfg.sweepEvery = sweepEvery
	for _, prefix := range cfg.strictPrefixes {
		if err := validateRoutePath(prefix); err != nil {
			return config{}, fmt.Errorf("RATE_STRICT_PREFIXES: %w", err)
		}
	}

	policies, err := loadPolicies(os.Getenv("RATE_POLICIES_FILE"))
	if err != nil {
		return config{}, err
	}
	cfg.policies = policies
	if cfg.defaultPolicy, err = policies.Lookup(getenvDefault("RATE_DEFAULT_POLICY", "relaxed")); err != nil {
		return config{}, fmt.Errorf("RATE_DEFAULT_POLICY: %w", err)
	}
	if cfg.strictPolicy, err = policies.Lookup(getenvDefault("RATE_STRICT_POLICY", "strict")); err != nil {
		return config{}, fmt.Errorf("RATE_STRICT_POLICY: %w", err)
	}

	cfg.concurrencyMax = getenvIntDefault("CONCURRENCY_MAX", 100)
	cfg.concurrencyTimeout = getenvDurationDefault("CONCURRENCY_TIMEOUT", 0)

	cfg.statsBackend = strings.ToLower(strings.TrimSpace(os.Getenv("RATE_STATS_BACKEND")))
	cfg.statsRedisAddr = os.Getenv("RATE_STATS_REDIS_ADDR")
	cfg.statsRedisPassword = os.Getenv("RATE_STATS_REDIS_PASSWORD")
	cfg.statsRedisDB = getenvIntDefault("RATE_STATS_REDIS_DB", 0)
	cfg.statsPrefix = getenvDefault("RATE_STATS_PREFIX", infra.DefaultStatsPrefix)
	cfg.statsTTL = getenvDurationDefault("RATE_STATS_TTL", 24*time.Hour)
	cfg.statsBucket = getenvDefault("RATE_STATS_BUCKET", "minute")
	cfg.statsTrackKeys = getenvBoolDefault("RATE_STATS_TRACK_KEYS", false)
	cfg.statsSQLitePath = getenvDefault("RATE_STATS_SQLITE_PATH", "admission-stats.db")
	cfg.statsPath = getenvDefault("RATE_STATS_PATH", "/stats")
	if err := validateRoutePath(cfg.statsPath); err != nil {
		return config{}, fmt.Errorf("RATE_STATS_PATH: %w", err)
	}

	switch cfg.statsBackend {
	case "", "memory", "sqlite":
	case "redis":
		if strings.TrimSpace(cfg.statsRedisAddr) == "" {
			return config{}, errors.New("RATE_STATS_REDIS_ADDR is required when RATE_STATS_BACKEND=redis")
		}
	default:
		return config{}, fmt.Errorf("unsupported RATE_STATS_BACKEND: %q", cfg.statsBackend)
	}

	if cfg.upstreamURL == "" {
		return config{}, errors.New("UPSTREAM_URL is required")
	}
	if cfg.concurrencyMax < 0 {
		return config{}, errors.New("CONCURRENCY_MAX must be >= 0")
	}
	return cfg, nil
}

type policyFile struct {
	Policies []struct {
		Name   string `yaml:"name"`
		Window string `yaml:"window"`
		Quota  int    `yaml:"quota"`
	} `yaml:"policies"`
}

// loadPolicies lê a tabela de policies do YAML em path. Qualquer policy
// inválida impede o start do processo.
func loadPolicies(path string) (domain.PolicyTable, error) {
	if strings.TrimSpace(path) == "" {
		return domain.NewPolicyTable(defaultPolicies()...)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return domain.PolicyTable{}, fmt.Errorf("read policies file: %w", err)
	}
	var file policyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return domain.PolicyTable{}, fmt.Errorf("parse policies file: %w", err)
	}
	if len(file.Policies) == 0 {
		return domain.PolicyTable{}, fmt.Errorf("policies file %s defines no policies", path)
	}

	policies := make([]domain.Policy, 0, len(file.Policies))
	for _, p := range file.Policies {
		window, err := time.ParseDuration(strings.TrimSpace(p.Window))
		if err != nil {
			return domain.PolicyTable{}, fmt.Errorf("%w: %q window: %v", domain.ErrInvalidPolicy, p.Name, err)
		}
		policies = append(policies, domain.Policy{Name: strings.TrimSpace(p.Name), Window: window, Quota: p.Quota})
	}
	return domain.NewPolicyTable(policies...)
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		item = strings.TrimRight(strings.TrimSpace(item), "/")
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}

// validateRoutePath recusa o que o chi não aceita como padrão estático.
func validateRoutePath(p string) error {
	if !strings.HasPrefix(p, "/") {
		return fmt.Errorf("%q must start with '/'", p)
	}
	if strings.ContainsAny(p, "*{}") {
		return fmt.Errorf("%q must be a literal path", p)
	}
	return nil
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvIntDefault(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func getenvBoolDefault(k string, def bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

// getenvPositiveDuration é estrito: valor inválido ou <= 0 é erro de configuração.
func getenvPositiveDuration(k string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", k, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be > 0, got %s", k, d)
	}
	return d, nil
}

func getenvDurationDefault(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
