package domain

import (
	"context"
	"errors"
)

// SlotPool representa um recurso com capacidade finita (ex: requisições em voo).
//
// Acquire bloqueia até conseguir uma vaga ou até o ctx encerrar.
// Ao adquirir, retorna uma função de release que deve ser chamada exatamente uma vez.
type SlotPool interface {
	Acquire(ctx context.Context) (release func(), ok bool)
	// InUse retorna quantas vagas estão ocupadas agora.
	InUse() int
}

// ErrSaturated indica que nenhuma vaga ficou livre dentro do prazo de aquisição.
var ErrSaturated = errors.New("no slot available")
