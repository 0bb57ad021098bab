package application

import (
	"admission-gateway/middleware/ratelimit/domain"
)

// Service concentra a regra de aplicação do controle de admissão.
//
// Ele não sabe nada sobre HTTP (headers/status), apenas retorna uma decisão.
type Service struct {
	Store    domain.CounterStore
	Policies domain.PolicyTable
}

// Decide consome uma unidade de key sob policy.
// Sem Store configurado tudo passa, com a quota cheia reportada.
func (s Service) Decide(key domain.Key, policy domain.Policy) domain.Decision {
	if s.Store == nil {
		return domain.Decision{Allowed: true, Limit: policy.Quota, Remaining: policy.Quota}
	}
	if key == "" {
		key = domain.UnknownKey
	}
	return s.Store.Check(key, policy)
}

// DecideByName resolve a policy pelo nome na tabela e decide.
// Nome desconhecido é erro de programação do handler, não resultado de admissão.
func (s Service) DecideByName(key domain.Key, name string) (domain.Decision, error) {
	policy, err := s.Policies.Lookup(name)
	if err != nil {
		return domain.Decision{}, err
	}
	return s.Decide(key, policy), nil
}
