package infra

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"admission-gateway/middleware/ratelimit/domain"

	"github.com/redis/go-redis/v9"
)

const (
	outcomeAllowed = "allowed"
	outcomeDenied  = "denied"

	// DefaultStatsPrefix é o namespace das chaves de estatística no Redis.
	DefaultStatsPrefix = "admission:stats"
)

// RedisStatsStore grava contadores de decisão em hashes do Redis:
//
//	<prefix>:total                         allowed / denied
//	<prefix>:policy:<nome>                 allowed / denied
//	<prefix>:policy:<nome>:minute:<bucket> allowed / denied (com TTL)
//	<prefix>:route                         "<método> <rota>:<resultado>"
//	<prefix>:key:<identidade>              allowed / denied (opt-in, com TTL)
//
// Só estatística: o estado dos contadores de admissão continua local ao processo.
type RedisStatsStore struct {
	rdb redis.Cmdable

	prefix    string
	ttl       time.Duration
	perMinute bool
	trackKeys bool
}

var (
	_ domain.StatsStore  = (*RedisStatsStore)(nil)
	_ domain.StatsReader = (*RedisStatsStore)(nil)
)

type RedisStatsOption func(*RedisStatsStore)

func WithStatsPrefix(prefix string) RedisStatsOption {
	return func(s *RedisStatsStore) {
		if p := strings.Trim(prefix, ": "); p != "" {
			s.prefix = p
		}
	}
}

// WithStatsTTL vale para as séries por minuto e por identidade. Os
// contadores cumulativos não expiram.
func WithStatsTTL(d time.Duration) RedisStatsOption {
	return func(s *RedisStatsStore) { s.ttl = d }
}

// WithStatsBucket aceita "minute" (padrão) ou "none".
func WithStatsBucket(bucket string) RedisStatsOption {
	return func(s *RedisStatsStore) {
		s.perMinute = strings.ToLower(strings.TrimSpace(bucket)) != "none"
	}
}

func WithStatsTrackKeys(track bool) RedisStatsOption {
	return func(s *RedisStatsStore) { s.trackKeys = track }
}

// NewRedisStatsStore aceita redis.Cmdable para funcionar com Client, ClusterClient, etc.
func NewRedisStatsStore(rdb redis.Cmdable, opts ...RedisStatsOption) *RedisStatsStore {
	s := &RedisStatsStore{
		rdb:       rdb,
		prefix:    DefaultStatsPrefix,
		ttl:       24 * time.Hour,
		perMinute: true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStatsStore) Record(ctx context.Context, ev domain.StatsEvent) error {
	if s == nil || s.rdb == nil {
		return nil
	}

	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	outcome := outcomeField(ev.Allowed)
	policy := strings.TrimSpace(ev.Policy)

	pipe := s.rdb.Pipeline()
	pipe.HIncrBy(ctx, s.TotalKey(), outcome, 1)

	if policy != "" {
		pipe.HIncrBy(ctx, s.PolicyKey(policy), outcome, 1)
		if s.perMinute {
			s.incrExpiring(ctx, pipe, s.MinuteKey(policy, at), outcome)
		}
	}

	if route := strings.TrimSpace(ev.Method + " " + ev.Route); route != "" {
		pipe.HIncrBy(ctx, s.prefix+":route", route+":"+outcome, 1)
	}

	if s.trackKeys && ev.Key != "" {
		s.incrExpiring(ctx, pipe, s.prefix+":key:"+string(ev.Key), outcome)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis stats record: %w", err)
	}
	return nil
}

func (s *RedisStatsStore) incrExpiring(ctx context.Context, pipe redis.Pipeliner, key, field string) {
	pipe.HIncrBy(ctx, key, field, 1)
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
}

// Totals lê os contadores cumulativos de uma policy.
func (s *RedisStatsStore) Totals(ctx context.Context, policy string) (domain.Counters, error) {
	vals, err := s.rdb.HGetAll(ctx, s.PolicyKey(policy)).Result()
	if err != nil {
		return domain.Counters{}, fmt.Errorf("redis stats totals: %w", err)
	}
	var c domain.Counters
	if c.Allowed, err = parseCount(vals[outcomeAllowed]); err != nil {
		return domain.Counters{}, err
	}
	if c.Denied, err = parseCount(vals[outcomeDenied]); err != nil {
		return domain.Counters{}, err
	}
	return c, nil
}

func (s *RedisStatsStore) TotalKey() string { return s.prefix + ":total" }

func (s *RedisStatsStore) PolicyKey(policy string) string { return s.prefix + ":policy:" + policy }

func (s *RedisStatsStore) MinuteKey(policy string, at time.Time) string {
	return s.PolicyKey(policy) + ":minute:" + minuteBucket(at)
}

func parseCount(v string) (int64, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("redis stats: invalid counter %q: %w", v, err)
	}
	return n, nil
}

func outcomeField(allowed bool) string {
	if allowed {
		return outcomeAllowed
	}
	return outcomeDenied
}
