package application

import (
	"strings"

	"admission-gateway/middleware/ratelimit/domain"
)

// ForwardedForHeader é o header de onde sai a identidade do cliente.
const ForwardedForHeader = "X-Forwarded-For"

// ResolveIdentity deriva a identidade a partir do valor cru de X-Forwarded-For:
// o primeiro elemento da lista, sem espaços. Sem valor utilizável, devolve
// domain.UnknownKey e todos esses clientes dividem um único contador.
//
// Heurística, não autenticação: o header é controlado pelo cliente a menos que
// um proxy confiável o sobrescreva antes de chegar aqui.
func ResolveIdentity(forwardedFor string) domain.Key {
	first, _, _ := strings.Cut(forwardedFor, ",")
	if first = strings.TrimSpace(first); first != "" {
		return domain.Key(first)
	}
	return domain.UnknownKey
}
