package infra

import (
	"context"
	"sync"

	"admission-gateway/middleware/ratelimit/domain"
)

func addOutcome(c *domain.Counters, allowed bool) {
	if allowed {
		c.Allowed++
		return
	}
	c.Denied++
}

// MemoryStatsStore é uma implementação simples em memória.
// Útil para testes, desenvolvimento e o endpoint /stats do example-server.
//
// Não faz expiração: por key só é contado com WithTrackKeys(true).
type MemoryStatsStore struct {
	mu       sync.Mutex
	total    domain.Counters
	byRoute  map[string]domain.Counters
	byPolicy map[string]domain.Counters
	byKey    map[string]domain.Counters

	trackKeys bool
}

var (
	_ domain.StatsStore  = (*MemoryStatsStore)(nil)
	_ domain.StatsReader = (*MemoryStatsStore)(nil)
)

type MemoryStatsOption func(*MemoryStatsStore)

func WithTrackKeys(track bool) MemoryStatsOption {
	return func(s *MemoryStatsStore) { s.trackKeys = track }
}

func NewMemoryStatsStore(opts ...MemoryStatsOption) *MemoryStatsStore {
	s := &MemoryStatsStore{
		byRoute:  make(map[string]domain.Counters),
		byPolicy: make(map[string]domain.Counters),
		byKey:    make(map[string]domain.Counters),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStatsStore) Record(_ context.Context, ev domain.StatsEvent) error {
	route := ev.Method + " " + ev.Route

	s.mu.Lock()
	defer s.mu.Unlock()

	addOutcome(&s.total, ev.Allowed)
	bumpCounters(s.byRoute, route, ev.Allowed)
	if ev.Policy != "" {
		bumpCounters(s.byPolicy, ev.Policy, ev.Allowed)
	}
	if s.trackKeys {
		bumpCounters(s.byKey, string(ev.Key), ev.Allowed)
	}
	return nil
}

func bumpCounters(m map[string]domain.Counters, k string, allowed bool) {
	c := m[k]
	addOutcome(&c, allowed)
	m[k] = c
}

func (s *MemoryStatsStore) Total() domain.Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

// Totals devolve os contadores acumulados de policy.
func (s *MemoryStatsStore) Totals(_ context.Context, policy string) (domain.Counters, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byPolicy[policy], nil
}

func (s *MemoryStatsStore) ByRoute() map[string]domain.Counters { return s.snapshot(s.byRoute) }

func (s *MemoryStatsStore) ByPolicy() map[string]domain.Counters { return s.snapshot(s.byPolicy) }

func (s *MemoryStatsStore) ByKey() map[string]domain.Counters { return s.snapshot(s.byKey) }

func (s *MemoryStatsStore) snapshot(src map[string]domain.Counters) map[string]domain.Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]domain.Counters, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
