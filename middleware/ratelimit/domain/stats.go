package domain

import (
	"context"
	"time"
)

// StatsEvent representa um evento de decisão de admissão.
//
// Ele é propositalmente "agnóstico de HTTP": Method/Route são strings genéricas
// e podem ser usadas para web, gRPC, etc.
//
// Observação: cuidado com cardinalidade. Route é o padrão da rota (ex: "/api/*"),
// nunca o path cru da request. Key pode vir de header controlado pelo cliente,
// então salvar por key deve ser opt-in.
type StatsEvent struct {
	Key     Key
	Policy  string
	Allowed bool

	Method string
	Route  string

	At time.Time
}

// Counters agrega decisões por resultado.
type Counters struct {
	Allowed int64 `json:"allowed"`
	Denied  int64 `json:"denied"`
}

// StatsStore é a estratégia de persistência para estatísticas de admissão.
//
// Implementações: memória, Redis, SQLite.
// O middleware trata erro como best-effort (não derruba request).
type StatsStore interface {
	Record(ctx context.Context, ev StatsEvent) error
}

// StatsReader lê os contadores acumulados de uma policy.
type StatsReader interface {
	Totals(ctx context.Context, policy string) (Counters, error)
}
