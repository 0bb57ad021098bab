package infra

import (
	"sync"
	"time"

	"admission-gateway/middleware/ratelimit/domain"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultSweepEvery é a cadência global da limpeza, desacoplada da janela
// de qualquer policy.
const DefaultSweepEvery = time.Minute

// Clock fornece o horário atual para o store.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Store é o Counter Store: contadores de janela fixa por (identidade, policy),
// protegidos por um único mutex, com limpeza periódica das entradas expiradas.
//
// A goroutine de limpeza (janitor) nasce em NewStore e morre em Close.
type Store struct {
	mu      sync.Mutex
	entries map[entryKey]*counterEntry

	clock      Clock
	sweepEvery time.Duration
	logger     zerolog.Logger

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

var _ domain.CounterStore = (*Store)(nil)

type entryKey struct {
	key    domain.Key
	policy string
}

type counterEntry struct {
	count   int
	resetAt time.Time
}

// expired: resetAt no passado ou exatamente agora.
func (e *counterEntry) expired(now time.Time) bool {
	return !e.resetAt.After(now)
}

type StoreOption func(*Store)

// WithSweepEvery define a cadência do janitor. <= 0 desliga o janitor
// (Sweep ainda pode ser chamado manualmente).
func WithSweepEvery(d time.Duration) StoreOption {
	return func(s *Store) { s.sweepEvery = d }
}

func WithClock(c Clock) StoreOption {
	return func(s *Store) {
		if c != nil {
			s.clock = c
		}
	}
}

func WithLogger(l zerolog.Logger) StoreOption {
	return func(s *Store) { s.logger = l }
}

func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		entries:    make(map[entryKey]*counterEntry),
		clock:      realClock{},
		sweepEvery: DefaultSweepEvery,
		logger:     log.Logger,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With().Str("component", "counter_store").Logger()

	if s.sweepEvery > 0 {
		go s.janitor()
	} else {
		close(s.done)
	}
	return s
}

func (s *Store) SweepEvery() time.Duration { return s.sweepEvery }

// Check registra uma unidade de consumo para key sob a policy e devolve a decisão.
//
// A tentativa é sempre contada, inclusive a que estoura a quota. Entrada
// expirada é tratada como inexistente, tenha o janitor passado ou não.
func (s *Store) Check(key domain.Key, policy domain.Policy) domain.Decision {
	k := entryKey{key: key, policy: policy.Name}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	ent, ok := s.entries[k]
	if !ok || ent.expired(now) {
		ent = &counterEntry{resetAt: now.Add(policy.Window)}
		s.entries[k] = ent
	}
	ent.count++

	remaining := policy.Quota - ent.count
	if remaining < 0 {
		remaining = 0
	}
	resetIn := ent.resetAt.Sub(now)
	if resetIn < 0 {
		resetIn = 0
	}

	return domain.Decision{
		Allowed:   ent.count <= policy.Quota,
		Limit:     policy.Quota,
		Remaining: remaining,
		ResetIn:   resetIn,
	}
}

// Sweep remove todas as entradas expiradas e retorna quantas foram removidas.
// É o único caminho que apaga entradas do mapa.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	removed := 0
	for k, ent := range s.entries {
		if ent.expired(now) {
			delete(s.entries, k)
			removed++
		}
	}
	return removed
}

// Len retorna quantas entradas estão no mapa, incluindo as já expiradas
// que ainda não passaram pelo Sweep.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Close para o janitor e espera a goroutine sair. Pode ser chamado mais de uma vez.
func (s *Store) Close() error {
	s.closeOnce.Do(func() { close(s.stop) })
	<-s.done
	return nil
}

func (s *Store) janitor() {
	defer close(s.done)

	t := time.NewTicker(s.sweepEvery)
	defer t.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-t.C:
			removed := s.Sweep()
			s.logger.Debug().Int("removed", removed).Int("tracked", s.Len()).Msg("sweep finished")
		}
	}
}
