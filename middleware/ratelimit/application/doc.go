// Package application contém os casos de uso do controle de admissão e do
// limite de concorrência.
//
// Ele depende apenas do pacote domain e não conhece net/http.
// Ex.: ResolveIdentity(xff) devolve a identidade; Service.Decide(key, policy)
// devolve a Decision (allowed, remaining, resetIn).
package application
