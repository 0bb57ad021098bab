package infra

import (
	"context"
	"testing"
	"time"

	"admission-gateway/middleware/ratelimit/domain"
)

func newTestSQLiteStats(t *testing.T) *SQLiteStatsStore {
	t.Helper()
	s, err := NewSQLiteStatsStore(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStatsStore_UpsertsCounters(t *testing.T) {
	s := newTestSQLiteStats(t)
	ctx := context.Background()
	first := time.Date(2024, 1, 15, 14, 30, 0, 0, time.UTC)
	second := first.Add(time.Minute)

	for _, ev := range []domain.StatsEvent{
		{Policy: "strict", Allowed: true, At: first},
		{Policy: "strict", Allowed: true, At: first},
		{Policy: "strict", Allowed: false, At: second},
		{Policy: "relaxed", Allowed: true, At: second},
	} {
		if err := s.Record(ctx, ev); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	got, err := s.Totals(ctx, "strict")
	if err != nil {
		t.Fatal(err)
	}
	if got.Allowed != 2 || got.Denied != 1 {
		t.Fatalf("unexpected strict totals: %+v", got)
	}

	got, err = s.Totals(ctx, "missing")
	if err != nil {
		t.Fatal(err)
	}
	if got != (domain.Counters{}) {
		t.Fatalf("expected zero counters for unknown policy, got %+v", got)
	}
}
