package infra

import (
	"context"
	"testing"
	"time"

	"admission-gateway/middleware/ratelimit/domain"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestRedisStatsStore_RecordsTotalsPolicyAndBucket(t *testing.T) {
	mr, client := newTestRedis(t)
	s := NewRedisStatsStore(client, WithStatsPrefix("test:stats:"), WithStatsTTL(time.Hour))
	ctx := context.Background()
	at := time.Date(2024, 1, 15, 14, 30, 5, 0, time.UTC)

	events := []domain.StatsEvent{
		{Key: "a", Policy: "strict", Allowed: true, Method: "POST", Route: "/login", At: at},
		{Key: "a", Policy: "strict", Allowed: false, Method: "POST", Route: "/login", At: at},
		{Key: "a", Policy: "strict", Allowed: false, Method: "POST", Route: "/login", At: at},
	}
	for _, ev := range events {
		if err := s.Record(ctx, ev); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	if got := mr.HGet("test:stats:total", "allowed"); got != "1" {
		t.Fatalf("expected total allowed=1, got %q", got)
	}
	if got := mr.HGet("test:stats:total", "denied"); got != "2" {
		t.Fatalf("expected total denied=2, got %q", got)
	}
	if got := mr.HGet("test:stats:route", "POST /login:allowed"); got != "1" {
		t.Fatalf("expected route allowed=1, got %q", got)
	}

	totals, err := s.Totals(ctx, "strict")
	if err != nil {
		t.Fatalf("totals: %v", err)
	}
	if totals != (domain.Counters{Allowed: 1, Denied: 2}) {
		t.Fatalf("unexpected policy totals %+v", totals)
	}

	bucket := s.MinuteKey("strict", at)
	if bucket != "test:stats:policy:strict:minute:202401151430" {
		t.Fatalf("unexpected bucket key %q", bucket)
	}
	if got := mr.HGet(bucket, "denied"); got != "2" {
		t.Fatalf("expected bucket denied=2, got %q", got)
	}
	if ttl := mr.TTL(bucket); ttl != time.Hour {
		t.Fatalf("expected bucket ttl 1h, got %s", ttl)
	}
	if mr.TTL(s.PolicyKey("strict")) != 0 {
		t.Fatalf("expected cumulative policy counters without ttl")
	}
	if mr.Exists("test:stats:key:a") {
		t.Fatalf("expected per-key counters to be disabled by default")
	}
}

func TestRedisStatsStore_TrackKeysAndNoBucket(t *testing.T) {
	mr, client := newTestRedis(t)
	s := NewRedisStatsStore(client, WithStatsBucket("none"), WithStatsTrackKeys(true))

	at := time.Date(2024, 1, 15, 14, 30, 0, 0, time.UTC)
	ev := domain.StatsEvent{Key: "k1", Policy: "relaxed", Allowed: true, At: at}
	if err := s.Record(context.Background(), ev); err != nil {
		t.Fatalf("record: %v", err)
	}

	if got := mr.HGet(DefaultStatsPrefix+":key:k1", "allowed"); got != "1" {
		t.Fatalf("expected key counter, got %q", got)
	}
	if mr.Exists(s.MinuteKey("relaxed", at)) {
		t.Fatalf("expected no minute bucket when bucket=none")
	}
}

func TestRedisStatsStore_TotalsForUnknownPolicyAreZero(t *testing.T) {
	_, client := newTestRedis(t)
	s := NewRedisStatsStore(client)

	totals, err := s.Totals(context.Background(), "never-seen")
	if err != nil {
		t.Fatalf("totals: %v", err)
	}
	if totals != (domain.Counters{}) {
		t.Fatalf("expected zero counters, got %+v", totals)
	}
}

func TestRedisStatsStore_ReturnsErrorWhenRedisDown(t *testing.T) {
	mr, client := newTestRedis(t)
	s := NewRedisStatsStore(client)
	mr.Close()

	if err := s.Record(context.Background(), domain.StatsEvent{Allowed: true}); err == nil {
		t.Fatalf("expected error when redis is unavailable")
	}
}
