package domain

// Camada de domínio do controle de admissão.
//
// Regras e contratos (interfaces/tipos) sem dependência de net/http.

import "time"

// Key identifica um cliente lógico (ex: IP encaminhado, API key).
// É opaca: nada além do Counter Store interpreta seu conteúdo.
type Key string

// UnknownKey é a identidade sentinela usada quando não há metadado de
// encaminhamento. Todos esses clientes dividem o mesmo contador.
const UnknownKey Key = "unknown"

// Decision é o resultado de uma checagem de admissão.
//
// Over-quota não é erro: chega aqui como Allowed=false.
type Decision struct {
	Allowed bool
	// Limit é a quota da policy aplicada.
	Limit int
	// Remaining nunca é negativo, mesmo depois que a contagem passa da quota.
	Remaining int
	// ResetIn é o tempo até o fim da janela corrente (nunca negativo).
	ResetIn time.Duration
}

// ResetSeconds retorna ResetIn em segundos inteiros, arredondando para cima.
func (d Decision) ResetSeconds() int {
	if d.ResetIn <= 0 {
		return 0
	}
	secs := d.ResetIn / time.Second
	if d.ResetIn%time.Second != 0 {
		secs++
	}
	return int(secs)
}

// CounterStore registra e avalia uma unidade de consumo para (identidade, policy).
//
// A implementação é dona exclusiva das entradas de contador; Check nunca
// bloqueia por I/O e deve ser atômico por identidade.
type CounterStore interface {
	Check(key Key, policy Policy) Decision
}
